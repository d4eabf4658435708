// Package httpapi exposes the credits engine over HTTP: processor
// webhooks, balances, admin grants and metered actions.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/webhook"
)

// ActorHeader names the authenticated caller. It is set by the auth layer
// in front of this handler.
const ActorHeader = "X-Actor-ID"

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// GeneratorFactory builds the generator for one metered action request.
type GeneratorFactory func(action reservation.Action, input json.RawMessage) (credits.Generator, error)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng       *credits.Engine
	verifiers map[payment.Provider]webhook.Verifier
	generate  GeneratorFactory
	metrics   http.Handler
	logger    *slog.Logger
	maxBody   int64
	mux       *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithVerifier serves webhooks for v's provider.
func WithVerifier(v webhook.Verifier) Option {
	return func(h *Handler) { h.verifiers[v.Provider()] = v }
}

// WithGenerators enables POST /v1/actions/{action}.
func WithGenerators(f GeneratorFactory) Option {
	return func(h *Handler) { h.generate = f }
}

// WithMetricsHandler serves GET /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// New creates an HTTP handler and registers all routes.
func New(eng *credits.Engine, opts ...Option) http.Handler {
	h := &Handler{
		eng:       eng,
		verifiers: make(map[payment.Provider]webhook.Verifier),
		logger:    eng.Logger(),
		maxBody:   DefaultMaxBodyBytes,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("POST /webhooks/stripe", h.webhook(payment.ProviderStripe))
	h.mux.HandleFunc("POST /webhooks/nowpayments", h.webhook(payment.ProviderNOWPayments))
	h.mux.HandleFunc("POST /v1/accounts", h.ensureAccount)
	h.mux.HandleFunc("GET /v1/accounts/{id}/balance", h.balance)
	h.mux.HandleFunc("GET /v1/accounts/{id}/grants", h.listGrants)
	h.mux.HandleFunc("POST /v1/admin/grants", h.grant)
	h.mux.HandleFunc("GET /v1/admin/reservations", h.listReservations)
	h.mux.HandleFunc("POST /v1/actions/{action}", h.runAction)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	return loggingMiddleware(h.logger, h.mux)
}

// POST /webhooks/{provider}: verify, then apply at most once.
func (h *Handler) webhook(provider payment.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		v, ok := h.verifiers[provider]
		if !ok {
			h.logger.Warn("webhook received but not configured", "provider", provider)
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("%s webhook is not configured", provider))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		h.eng.Plugins().EmitWebhookReceived(ctx, string(provider), body)

		res, err := v.Verify(ctx, body, r.Header)
		if err != nil {
			if errors.Is(err, credits.ErrInvalidSignature) {
				h.eng.Plugins().EmitSignatureRejected(ctx, string(provider), err)
				h.logger.Warn("webhook signature rejected", "provider", provider, "error", err)
			} else {
				h.logger.Warn("webhook rejected", "provider", provider, "error", err)
			}
			writeErr(w, err)
			return
		}
		if res.Ignored {
			h.logger.Debug("webhook acknowledged without effect", "provider", provider, "reason", res.Reason)
			writeJSON(w, http.StatusOK, received)
			return
		}

		if _, err := h.eng.ApplyPayment(ctx, res.Event); err != nil {
			if errors.Is(err, credits.ErrAccountUnresolved) {
				// Acknowledged so the processor stops retrying; logged by the engine.
				writeJSON(w, http.StatusOK, received)
				return
			}
			h.logger.Error("webhook could not be applied",
				"provider", provider,
				"event_id", res.Event.EventID,
				"error", err,
			)
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, received)
	}
}

type ensureAccountRequest struct {
	ID     string         `json:"id"`
	Origin account.Origin `json:"origin"`
}

// POST /v1/accounts: create on first sight, return as-is afterwards.
func (h *Handler) ensureAccount(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, created, err := h.eng.EnsureAccount(r.Context(), req.ID, req.Origin)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": a,
		"created": created,
	})
}

// GET /v1/accounts/{id}/balance
func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.eng.Balance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /v1/accounts/{id}/grants: callers see their own grants; admins see anyone's.
func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	actor := r.Header.Get(ActorHeader)
	if actor != accountID {
		if err := h.eng.Authorize(r.Context(), actor); err != nil {
			writeErr(w, err)
			return
		}
	}
	limit, offset := paging(r)
	list, err := h.eng.ListGrants(r.Context(), accountID, grant.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": list})
}

type grantRequest struct {
	AccountID string `json:"accountId"`
	Credits   int64  `json:"credits"`
	Reason    string `json:"reason"`
}

// POST /v1/admin/grants
func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	g, err := h.eng.Grant(r.Context(), credits.GrantInput{
		ActorID:   r.Header.Get(ActorHeader),
		AccountID: req.AccountID,
		Credits:   req.Credits,
		Reason:    req.Reason,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GET /v1/admin/reservations?state=refund_failed
func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Authorize(r.Context(), r.Header.Get(ActorHeader)); err != nil {
		writeErr(w, err)
		return
	}
	limit, offset := paging(r)
	q := r.URL.Query()
	list, err := h.eng.ListReservations(r.Context(), reservation.ListOpts{
		AccountID: q.Get("account_id"),
		State:     reservation.State(q.Get("state")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": list})
}

type actionRequest struct {
	AccountID string          `json:"accountId"`
	Items     int             `json:"items"`
	Input     json.RawMessage `json:"input"`
}

// POST /v1/actions/{action}: debit, generate, commit or refund.
func (h *Handler) runAction(w http.ResponseWriter, r *http.Request) {
	if h.generate == nil {
		writeError(w, http.StatusServiceUnavailable, "generation is not configured")
		return
	}
	var req actionRequest
	if !h.decode(w, r, &req) {
		return
	}

	name := reservation.Action(r.PathValue("action"))
	action, err := credits.NewMeteredAction(req.AccountID, name, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}
	gen, err := h.generate(name, req.Input)
	if err != nil {
		writeErr(w, err)
		return
	}

	out, err := h.eng.Run(r.Context(), action, gen)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 when the store is unreachable.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

func paging(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
