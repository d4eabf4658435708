package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
)

// GrantInput is a manual credit adjustment requested by an administrator.
type GrantInput struct {
	ActorID   string `json:"actorId"`
	AccountID string `json:"accountId"`
	Credits   int64  `json:"credits"`
	Reason    string `json:"reason,omitempty"`
}

// ──────────────────────────────────────────────────
// Admin adjustments
// ──────────────────────────────────────────────────

// Grant adds credits to an account on behalf of an administrator. The
// actor is checked before anything else; a refused grant changes nothing.
// Grants are not deduplicated.
func (e *Engine) Grant(ctx context.Context, in GrantInput) (*grant.Grant, error) {
	if err := e.Authorize(ctx, in.ActorID); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		e.plugins.EmitGrantDenied(ctx, in.ActorID, in.AccountID, err)
		e.logger.Warn("admin grant refused",
			"actor_id", in.ActorID,
			"account_id", in.AccountID,
			"error", err,
		)
		return nil, err
	}
	if in.Credits <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, in.Credits)
	}
	if _, err := e.store.GetAccount(ctx, in.AccountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, Unavailable(err)
	}

	if err := e.store.Adjust(ctx, in.AccountID, in.Credits, 0); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, Unavailable(err)
	}

	g := &grant.Grant{
		ID:        id.NewGrantID(),
		AccountID: in.AccountID,
		AdminID:   in.ActorID,
		Credits:   in.Credits,
		Reason:    in.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateGrant(ctx, g); err != nil {
		// The credits are applied; the record is what is missing.
		e.logger.Error("admin grant applied but not recorded",
			"grant_id", g.ID.String(),
			"actor_id", in.ActorID,
			"account_id", in.AccountID,
			"credits", in.Credits,
			"error", err,
		)
	}

	e.plugins.EmitAdminGrant(ctx, g)
	e.logger.Info("admin grant applied",
		"grant_id", g.ID.String(),
		"actor_id", in.ActorID,
		"account_id", in.AccountID,
		"credits", in.Credits,
		"reason", in.Reason,
	)
	return g, nil
}

// Authorize checks that actorID names an administrator. It fails with
// ErrUnauthorized for unknown actors and non-admins.
func (e *Engine) Authorize(ctx context.Context, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: no actor", ErrUnauthorized)
	}
	actor, err := e.store.GetAccount(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: unknown actor %s", ErrUnauthorized, actorID)
		}
		return Unavailable(err)
	}
	if !actor.IsAdmin {
		return fmt.Errorf("%w: %s is not an administrator", ErrUnauthorized, actorID)
	}
	return nil
}
