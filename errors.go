package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")
	ErrConflict      = errors.New("credits: conflict")
	ErrInvalidInput  = errors.New("credits: invalid input")
	ErrNotConfigured = errors.New("credits: not configured")

	// Account errors
	ErrAccountNotFound     = errors.New("credits: account not found")
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	ErrInvalidAmount       = errors.New("credits: amount must be a positive integer")
	ErrUnauthorized        = errors.New("credits: unauthorized")

	// Journal errors
	ErrReservationNotFound = errors.New("credits: reservation not found")
	ErrGrantNotFound       = errors.New("credits: grant not found")
	ErrEventNotFound       = errors.New("credits: processed event not found")

	// Webhook errors
	ErrInvalidSignature        = errors.New("credits: invalid webhook signature")
	ErrMissingAccountReference = errors.New("credits: webhook payload carries no account reference")
	ErrAccountUnresolved       = errors.New("credits: no account linked to billing identity")
	ErrDuplicateEvent          = errors.New("credits: duplicate payment event")
	ErrMalformedPayload        = errors.New("credits: malformed webhook payload")

	// Metered action errors
	ErrGenerationFailed = errors.New("credits: generation failed")
	ErrRefundFailed     = errors.New("credits: refund failed")

	// Store errors
	ErrStoreUnavailable = errors.New("credits: store unavailable")
	ErrMigrationFailed  = errors.New("credits: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Is lets a ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "credits: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("credits: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unavailable marks err as an infrastructure fault. The result matches
// both ErrStoreUnavailable and err.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return errors.Join(ErrStoreUnavailable, err)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsRetryable returns true if the error is temporary and the sender of
// the request should try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error was caused by the request
// rather than by the engine or its store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMissingAccountReference) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInsufficientCredits)
}
