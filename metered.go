package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/types"
)

// errEmptyResult is the cause recorded when a generator returns neither a
// result nor an error.
var errEmptyResult = errors.New("generator returned no result")

// Generator performs the external, failure-prone work a metered action
// pays for.
type Generator interface {
	Generate(ctx context.Context) (any, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context) (any, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context) (any, error) { return f(ctx) }

// MeteredAction describes one paid action. When AllowFree is set and the
// account has free actions left, one free action is spent instead of Cost.
type MeteredAction struct {
	AccountID string
	Action    reservation.Action
	Cost      int64
	AllowFree bool
}

// NewMeteredAction prices action from the catalogue. items is only used
// for batch actions.
func NewMeteredAction(accountID string, action reservation.Action, items int) (MeteredAction, error) {
	p, err := reservation.PriceFor(action, items)
	if err != nil {
		return MeteredAction{}, ValidationError{Field: "action", Message: err.Error()}
	}
	return MeteredAction{
		AccountID: accountID,
		Action:    action,
		Cost:      p.Credits,
		AllowFree: p.AllowFree,
	}, nil
}

// Outcome is the result of a committed metered action.
type Outcome struct {
	Reservation *reservation.Reservation `json:"reservation"`
	Result      any                      `json:"result"`
	UsedFree    bool                     `json:"used_free"`
}

// ──────────────────────────────────────────────────
// Metered actions
// ──────────────────────────────────────────────────

// Run debits the account, calls gen, and either keeps the debit or
// refunds it. The debit always lands before gen is called and no lock is
// held while gen runs.
//
// Errors:
//   - ErrInsufficientCredits: nothing was debited and gen was not called.
//   - ErrStoreUnavailable: the balance could not be read or debited; gen was not called.
//   - ErrGenerationFailed: gen failed or timed out and the debit was refunded.
//   - ErrRefundFailed (also matching ErrGenerationFailed): gen failed and the
//     refund could not be applied. The reservation is journaled as refund_failed.
func (e *Engine) Run(ctx context.Context, action MeteredAction, gen Generator) (out *Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "credits.Run", trace.WithAttributes(
		attribute.String("credits.account_id", action.AccountID),
		attribute.String("credits.action", string(action.Action)),
		attribute.Int64("credits.cost", action.Cost),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if action.AccountID == "" {
		return nil, ValidationError{Field: "account_id", Message: "account id is required"}
	}
	if action.Cost <= 0 {
		return nil, fmt.Errorf("%w: cost %d", ErrInvalidAmount, action.Cost)
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: no generator for action %q", ErrNotConfigured, action.Action)
	}

	rsv, err := e.reserve(ctx, action)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("credits.reservation_id", rsv.ID.String()),
		attribute.Bool("credits.used_free", rsv.FreeActions > 0),
	)

	start := time.Now()
	result, genErr := e.generate(ctx, gen)
	if genErr == nil {
		e.settle(ctx, rsv, reservation.StateCommitted, "")
		elapsed := time.Since(start)
		e.plugins.EmitCreditsCommitted(ctx, rsv, elapsed)
		e.logger.Debug("metered action committed",
			"reservation_id", rsv.ID.String(),
			"account_id", rsv.AccountID,
			"action", rsv.Action,
			"elapsed_ms", elapsed.Milliseconds(),
		)
		return &Outcome{Reservation: rsv, Result: result, UsedFree: rsv.FreeActions > 0}, nil
	}

	return nil, e.refund(ctx, rsv, genErr)
}

// reserve checks the balance and debits it.
func (e *Engine) reserve(ctx context.Context, action MeteredAction) (*reservation.Reservation, error) {
	bal, err := e.store.ReadBalance(ctx, action.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, Unavailable(err)
	}

	var debitCredits, debitFree int64
	switch {
	case action.AllowFree && bal.FreeActions > 0:
		debitFree = 1
	case bal.Credits >= action.Cost:
		debitCredits = action.Cost
	default:
		e.plugins.EmitInsufficientCredits(ctx, action.AccountID, action.Action, action.Cost)
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, bal.Credits, action.Cost)
	}

	if err := e.store.Adjust(ctx, action.AccountID, -debitCredits, -debitFree); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredits):
			// A concurrent action spent the balance after it was read.
			e.plugins.EmitInsufficientCredits(ctx, action.AccountID, action.Action, action.Cost)
			return nil, err
		case errors.Is(err, ErrAccountNotFound):
			return nil, err
		}
		return nil, Unavailable(err)
	}

	rsv := &reservation.Reservation{
		Entity:      types.NewEntity(),
		ID:          id.NewReservationID(),
		AccountID:   action.AccountID,
		Action:      action.Action,
		Credits:     debitCredits,
		FreeActions: debitFree,
		State:       reservation.StateReserved,
	}
	if err := e.store.CreateReservation(ctx, rsv); err != nil {
		e.logger.Warn("reservation journal write failed",
			"reservation_id", rsv.ID.String(),
			"account_id", rsv.AccountID,
			"error", err,
		)
	}

	e.plugins.EmitCreditsReserved(ctx, rsv)
	return rsv, nil
}

type generation struct {
	result any
	err    error
}

// generate runs gen under the action timeout. On timeout the call is
// abandoned; its eventual result is discarded.
func (e *Engine) generate(ctx context.Context, gen Generator) (any, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		res, err := gen.Generate(genCtx)
		done <- generation{result: res, err: err}
	}()

	select {
	case g := <-done:
		if g.err != nil {
			return nil, g.err
		}
		if g.result == nil {
			return nil, errEmptyResult
		}
		return g.result, nil
	case <-genCtx.Done():
		return nil, fmt.Errorf("generation abandoned after %s: %w", e.actionTimeout, genCtx.Err())
	}
}

// refund returns the debit of rsv. It runs detached from the caller's
// cancellation so a disconnected client cannot strand a debit.
func (e *Engine) refund(ctx context.Context, rsv *reservation.Reservation, cause error) error {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.refundTimeout)
	defer cancel()

	if err := e.store.Adjust(refundCtx, rsv.AccountID, rsv.Credits, rsv.FreeActions); err != nil {
		e.logger.Error("refund failed, reservation needs reconciliation",
			"reservation_id", rsv.ID.String(),
			"account_id", rsv.AccountID,
			"credits", rsv.Credits,
			"free_actions", rsv.FreeActions,
			"cause", cause,
			"error", err,
		)
		e.settle(refundCtx, rsv, reservation.StateRefundFailed, fmt.Sprintf("generation: %v; refund: %v", cause, err))
		e.plugins.EmitRefundFailed(refundCtx, rsv, cause, err)
		return fmt.Errorf("%w: %w: %w (refund: %w)", ErrRefundFailed, ErrGenerationFailed, cause, err)
	}

	e.settle(refundCtx, rsv, reservation.StateRefunded, cause.Error())
	e.plugins.EmitCreditsRefunded(refundCtx, rsv, cause)
	e.logger.Info("metered action refunded",
		"reservation_id", rsv.ID.String(),
		"account_id", rsv.AccountID,
		"credits", rsv.Credits,
		"free_actions", rsv.FreeActions,
		"cause", cause,
	)
	return fmt.Errorf("%w, no credits were charged: %w", ErrGenerationFailed, cause)
}

// settle records the final state of rsv in the journal. Journal failures
// never change the outcome of the action.
func (e *Engine) settle(ctx context.Context, rsv *reservation.Reservation, state reservation.State, errMsg string) {
	rsv.State = state
	rsv.Error = errMsg
	rsv.Touch()
	if err := e.store.UpdateReservationState(ctx, rsv.ID, state, errMsg); err != nil {
		e.logger.Warn("reservation journal update failed",
			"reservation_id", rsv.ID.String(),
			"state", state,
			"error", err,
		)
	}
}
