package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	credits "github.com/xraph/credits"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// received is the acknowledgement processors expect.
var received = map[string]bool{"received": true}

// statusFor maps an engine error to an HTTP status. Order matters: a
// refund failure also matches ErrGenerationFailed and usually
// ErrStoreUnavailable.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, credits.ErrRefundFailed):
		return http.StatusInternalServerError
	case errors.Is(err, credits.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, credits.ErrStoreUnavailable):
		return http.StatusInternalServerError
	case errors.Is(err, credits.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, credits.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, credits.ErrInvalidSignature),
		errors.Is(err, credits.ErrMissingAccountReference),
		errors.Is(err, credits.ErrMalformedPayload),
		errors.Is(err, credits.ErrInvalidAmount),
		errors.Is(err, credits.ErrInvalidInput):
		return http.StatusBadRequest
	case credits.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, credits.ErrAlreadyExists), errors.Is(err, credits.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing text for err. Server faults are
// not described beyond their kind.
func messageFor(err error) string {
	switch statusFor(err) {
	case http.StatusInternalServerError:
		if errors.Is(err, credits.ErrRefundFailed) {
			return "generation failed and the refund is pending manual reconciliation"
		}
		return "internal error"
	case http.StatusBadGateway:
		return "generation failed, no credits were charged"
	}
	return err.Error()
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), messageFor(err))
}
