package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
	creditsstore "github.com/xraph/credits/store"
)

// Collection name constants.
const (
	colAccounts        = "credits_accounts"
	colProcessedEvents = "credits_processed_events"
	colReservations    = "credits_reservations"
	colGrants          = "credits_grants"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to uri. An empty database falls back to the name in the URI.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	mdb := mongodriver.New()
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("credits/mongo: open: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("credits/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo %s indexes: %w", credits.ErrMigrationFailed, col, err)
		}
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrAlreadyExists
		}
		return fmt.Errorf("credits/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) GetAccountByBillingIdentity(ctx context.Context, billingIdentity string) (*account.Account, error) {
	if billingIdentity == "" {
		return nil, credits.ErrAccountNotFound
	}
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"billing_identity": billingIdentity}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get account by billing identity: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	filter := bson.M{}
	if opts.AdminsOnly {
		filter["is_admin"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) ReadBalance(ctx context.Context, accountID string) (account.Balance, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return account.Balance{}, err
	}
	return a.Balance(), nil
}

// Adjust applies both deltas with a single filtered $inc. The filter only
// matches while every debited counter covers its debit.
func (s *Store) Adjust(ctx context.Context, accountID string, creditsDelta, freeActionsDelta int64) error {
	filter := bson.M{"_id": accountID}
	if creditsDelta < 0 {
		filter["credits"] = bson.M{"$gte": -creditsDelta}
	}
	if freeActionsDelta < 0 {
		filter["free_actions"] = bson.M{"$gte": -freeActionsDelta}
	}

	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(filter).
		SetUpdate(bson.M{
			"$inc": bson.M{"credits": creditsDelta, "free_actions": freeActionsDelta},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: adjust: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.missOrShort(ctx, accountID)
	}
	return nil
}

func (s *Store) SetBillingIdentity(ctx context.Context, accountID, billingIdentity string) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID, "billing_identity": ""}).
		Set("billing_identity", billingIdentity).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrConflict
		}
		return fmt.Errorf("credits/mongo: set billing identity: %w", err)
	}
	if res.MatchedCount() == 0 {
		// Either unknown or already linked; the latter is not an error.
		_, err := s.GetAccount(ctx, accountID)
		return err
	}
	return nil
}

func (s *Store) SetSubscriptionState(ctx context.Context, accountID string, state *account.SubscriptionState) error {
	update := bson.M{"$set": bson.M{"updated_at": now()}}
	if state == nil {
		update["$unset"] = bson.M{"subscription": ""}
	} else {
		update["$set"].(bson.M)["subscription"] = toSubscriptionModel(state)
	}

	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID}).
		SetUpdate(update).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: set subscription state: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrAccountNotFound
	}
	return nil
}

func (s *Store) SetAdmin(ctx context.Context, accountID string, isAdmin bool) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID}).
		Set("is_admin", isAdmin).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: set admin: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrAccountNotFound
	}
	return nil
}

// ==================== Idempotency Store ====================

func (s *Store) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.mdb.NewFind((*processedEventModel)(nil)).
		Filter(bson.M{"_id": eventID}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("credits/mongo: is processed: %w", err)
	}
	return n > 0, nil
}

func (s *Store) MarkProcessed(ctx context.Context, r *idempotency.Record) error {
	m := toProcessedEventModel(r)
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = now()
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrConflict
		}
		return fmt.Errorf("credits/mongo: mark processed: %w", err)
	}
	return nil
}

func (s *Store) GetProcessed(ctx context.Context, eventID string) (*idempotency.Record, error) {
	var m processedEventModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": eventID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrEventNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get processed: %w", err)
	}
	return fromProcessedEventModel(&m), nil
}

// ==================== Reservation Store ====================

func (s *Store) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	m := toReservationModel(r)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrAlreadyExists
		}
		return fmt.Errorf("credits/mongo: create reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	var m reservationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": rsvID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrReservationNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get reservation: %w", err)
	}
	return fromReservationModel(&m)
}

func (s *Store) UpdateReservationState(ctx context.Context, rsvID id.ReservationID, state reservation.State, errMsg string) error {
	res, err := s.mdb.NewUpdate((*reservationModel)(nil)).
		Filter(bson.M{"_id": rsvID.String()}).
		Set("state", string(state)).
		Set("error", errMsg).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: update reservation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrReservationNotFound
	}
	return nil
}

func (s *Store) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	var models []reservationModel

	filter := bson.M{}
	if opts.AccountID != "" {
		filter["account_id"] = opts.AccountID
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list reservations: %w", err)
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrAlreadyExists
		}
		return fmt.Errorf("credits/mongo: create grant: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrGrantNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get grant: %w", err)
	}
	return fromGrantModel(&m)
}

func (s *Store) ListGrants(ctx context.Context, accountID string, opts grant.ListOpts) ([]*grant.Grant, error) {
	var models []grantModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"account_id": accountID}).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list grants: %w", err)
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

// missOrShort explains a filtered update that matched no document.
func (s *Store) missOrShort(ctx context.Context, accountID string) error {
	if _, err := s.ReadBalance(ctx, accountID); err != nil {
		return err
	}
	return credits.ErrInsufficientCredits
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys: bson.D{{Key: "billing_identity", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"billing_identity": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "is_admin", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colProcessedEvents: {
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "processed_at", Value: -1}}},
		},
		colReservations: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colGrants: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
