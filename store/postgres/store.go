package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
	creditsstore "github.com/xraph/credits/store"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to dsn and returns a store on the new connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("credits/postgres: open: %w", err)
	}
	db, err := grove.Open(pg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("credits/postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("credits/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", credits.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	res, err := s.pg.NewInsert(m).OnConflict("(id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

func (s *Store) GetAccountByBillingIdentity(ctx context.Context, billingIdentity string) (*account.Account, error) {
	if billingIdentity == "" {
		return nil, credits.ErrAccountNotFound
	}
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("billing_identity = $1", billingIdentity).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models)
	if opts.AdminsOnly {
		q = q.Where("is_admin = $1", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) ReadBalance(ctx context.Context, accountID string) (account.Balance, error) {
	var b account.Balance
	err := s.pg.NewRaw(
		`SELECT credits, free_actions FROM credits_accounts WHERE id = $1`,
		accountID,
	).Scan(ctx, &b.Credits, &b.FreeActions)
	if err != nil {
		if isNoRows(err) {
			return account.Balance{}, credits.ErrAccountNotFound
		}
		return account.Balance{}, credits.Unavailable(err)
	}
	return b, nil
}

// Adjust applies both deltas in one conditional UPDATE, so concurrent
// debits can never take a counter below zero.
func (s *Store) Adjust(ctx context.Context, accountID string, creditsDelta, freeActionsDelta int64) error {
	res, err := s.pg.NewRaw(`
		UPDATE credits_accounts
		SET credits = credits + $1::bigint, free_actions = free_actions + $2::bigint, updated_at = $3
		WHERE id = $4
		  AND ($1::bigint >= 0 OR credits + $1::bigint >= 0)
		  AND ($2::bigint >= 0 OR free_actions + $2::bigint >= 0)`,
		creditsDelta, freeActionsDelta, now(), accountID,
	).Exec(ctx)
	if err != nil {
		return credits.Unavailable(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return credits.Unavailable(err)
	}
	if rows == 0 {
		return s.missOrShort(ctx, accountID)
	}
	return nil
}

func (s *Store) SetBillingIdentity(ctx context.Context, accountID, billingIdentity string) error {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("billing_identity = $1", billingIdentity).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID).
		Where("billing_identity = ''").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return credits.ErrConflict
		}
		return credits.Unavailable(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return credits.Unavailable(err)
	}
	if rows == 0 {
		// Either unknown or already linked; the latter is not an error.
		_, err := s.GetAccount(ctx, accountID)
		return err
	}
	return nil
}

func (s *Store) SetSubscriptionState(ctx context.Context, accountID string, state *account.SubscriptionState) error {
	var st account.SubscriptionState
	if state != nil {
		st = *state
	}
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("subscription_id = $1", st.SubscriptionID).
		Set("subscription_status = $2", string(st.Status)).
		Set("subscription_plan_id = $3", st.PlanID).
		Set("subscription_period_end = $4", timePtr(st.CurrentPeriodEnd)).
		Set("updated_at = $5", now()).
		Where("id = $6", accountID).
		Exec(ctx)
	return rowsOrNotFound(res, err, credits.ErrAccountNotFound)
}

func (s *Store) SetAdmin(ctx context.Context, accountID string, isAdmin bool) error {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("is_admin = $1", isAdmin).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID).
		Exec(ctx)
	return rowsOrNotFound(res, err, credits.ErrAccountNotFound)
}

// ==================== Idempotency Store ====================

func (s *Store) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := s.pg.NewRaw(
		`SELECT COUNT(*) FROM credits_processed_events WHERE event_id = $1`,
		eventID,
	).Scan(ctx, &n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) MarkProcessed(ctx context.Context, r *idempotency.Record) error {
	m := toProcessedEventModel(r)
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = now()
	}
	res, err := s.pg.NewInsert(m).OnConflict("(event_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrConflict
	}
	return nil
}

func (s *Store) GetProcessed(ctx context.Context, eventID string) (*idempotency.Record, error) {
	m := new(processedEventModel)
	err := s.pg.NewSelect(m).
		Where("event_id = $1", eventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrEventNotFound
		}
		return nil, err
	}
	return fromProcessedEventModel(m), nil
}

// ==================== Reservation Store ====================

func (s *Store) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	m := toReservationModel(r)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	m := new(reservationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", rsvID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrReservationNotFound
		}
		return nil, err
	}
	return fromReservationModel(m)
}

func (s *Store) UpdateReservationState(ctx context.Context, rsvID id.ReservationID, state reservation.State, errMsg string) error {
	res, err := s.pg.NewUpdate((*reservationModel)(nil)).
		Set("state = $1", string(state)).
		Set("error = $2", errMsg).
		Set("updated_at = $3", now()).
		Where("id = $4", rsvID.String()).
		Exec(ctx)
	return rowsOrNotFound(res, err, credits.ErrReservationNotFound)
}

func (s *Store) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	var models []reservationModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.AccountID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("account_id = $%d", argIdx), opts.AccountID)
	}
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*reservation.Reservation, len(models))
	for i := range models {
		r, err := fromReservationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Grant Store ====================

func (s *Store) CreateGrant(ctx context.Context, g *grant.Grant) error {
	m := toGrantModel(g)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	m := new(grantModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", grantID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrGrantNotFound
		}
		return nil, err
	}
	return fromGrantModel(m)
}

func (s *Store) ListGrants(ctx context.Context, accountID string, opts grant.ListOpts) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.pg.NewSelect(&models).Where("account_id = $1", accountID)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*grant.Grant, len(models))
	for i := range models {
		g, err := fromGrantModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}
	return result, nil
}

// ==================== Helpers ====================

// missOrShort explains a conditional update that matched no row.
func (s *Store) missOrShort(ctx context.Context, accountID string) error {
	if _, err := s.ReadBalance(ctx, accountID); err != nil {
		return err
	}
	return credits.ErrInsufficientCredits
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func rowsOrNotFound(res rowsAffecter, err error, notFound error) error {
	if err != nil {
		return credits.Unavailable(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return credits.Unavailable(err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isUniqueViolation reports a unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
