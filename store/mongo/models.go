package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:credits_accounts"`

	ID              string             `grove:"id,pk"            bson:"_id"`
	Credits         int64              `grove:"credits"          bson:"credits"`
	FreeActions     int64              `grove:"free_actions"     bson:"free_actions"`
	BillingIdentity string             `grove:"billing_identity" bson:"billing_identity"`
	Subscription    *subscriptionModel `grove:"subscription"     bson:"subscription,omitempty"`
	IsAdmin         bool               `grove:"is_admin"         bson:"is_admin"`
	Origin          string             `grove:"origin"           bson:"origin"`
	CreatedAt       time.Time          `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time          `grove:"updated_at"       bson:"updated_at"`
}

type subscriptionModel struct {
	SubscriptionID   string    `bson:"subscription_id"`
	Status           string    `bson:"status"`
	PlanID           string    `bson:"plan_id"`
	CurrentPeriodEnd time.Time `bson:"current_period_end,omitempty"`
}

func toSubscriptionModel(st *account.SubscriptionState) *subscriptionModel {
	if st == nil {
		return nil
	}
	return &subscriptionModel{
		SubscriptionID:   st.SubscriptionID,
		Status:           string(st.Status),
		PlanID:           st.PlanID,
		CurrentPeriodEnd: st.CurrentPeriodEnd,
	}
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:              a.ID,
		Credits:         a.Credits,
		FreeActions:     a.FreeActions,
		BillingIdentity: a.BillingIdentity,
		Subscription:    toSubscriptionModel(a.Subscription),
		IsAdmin:         a.IsAdmin,
		Origin:          string(a.Origin),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	a := &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              m.ID,
		Credits:         m.Credits,
		FreeActions:     m.FreeActions,
		BillingIdentity: m.BillingIdentity,
		IsAdmin:         m.IsAdmin,
		Origin:          account.Origin(m.Origin),
	}
	if sm := m.Subscription; sm != nil {
		a.Subscription = &account.SubscriptionState{
			SubscriptionID: sm.SubscriptionID,
			Status:         account.Status(sm.Status),
			PlanID:         sm.PlanID,
		}
		if !sm.CurrentPeriodEnd.IsZero() {
			a.Subscription.CurrentPeriodEnd = sm.CurrentPeriodEnd.UTC()
		}
	}
	return a
}

// ==================== Processed event models ====================

type processedEventModel struct {
	grove.BaseModel `grove:"table:credits_processed_events"`

	EventID     string    `grove:"event_id,pk"  bson:"_id"`
	Provider    string    `grove:"provider"     bson:"provider"`
	AccountID   string    `grove:"account_id"   bson:"account_id"`
	Credits     int64     `grove:"credits"      bson:"credits"`
	ProcessedAt time.Time `grove:"processed_at" bson:"processed_at"`
}

func toProcessedEventModel(r *idempotency.Record) *processedEventModel {
	return &processedEventModel{
		EventID:     r.EventID,
		Provider:    r.Provider,
		AccountID:   r.AccountID,
		Credits:     r.Credits,
		ProcessedAt: r.ProcessedAt,
	}
}

func fromProcessedEventModel(m *processedEventModel) *idempotency.Record {
	return &idempotency.Record{
		EventID:     m.EventID,
		Provider:    m.Provider,
		AccountID:   m.AccountID,
		Credits:     m.Credits,
		ProcessedAt: m.ProcessedAt,
	}
}

// ==================== Reservation models ====================

type reservationModel struct {
	grove.BaseModel `grove:"table:credits_reservations"`

	ID          string    `grove:"id,pk"        bson:"_id"`
	AccountID   string    `grove:"account_id"   bson:"account_id"`
	Action      string    `grove:"action"       bson:"action"`
	Credits     int64     `grove:"credits"      bson:"credits"`
	FreeActions int64     `grove:"free_actions" bson:"free_actions"`
	State       string    `grove:"state"        bson:"state"`
	Error       string    `grove:"error"        bson:"error,omitempty"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
}

func toReservationModel(r *reservation.Reservation) *reservationModel {
	return &reservationModel{
		ID:          r.ID.String(),
		AccountID:   r.AccountID,
		Action:      string(r.Action),
		Credits:     r.Credits,
		FreeActions: r.FreeActions,
		State:       string(r.State),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromReservationModel(m *reservationModel) (*reservation.Reservation, error) {
	rsvID, err := id.ParseReservationID(m.ID)
	if err != nil {
		return nil, err
	}
	return &reservation.Reservation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          rsvID,
		AccountID:   m.AccountID,
		Action:      reservation.Action(m.Action),
		Credits:     m.Credits,
		FreeActions: m.FreeActions,
		State:       reservation.State(m.State),
		Error:       m.Error,
	}, nil
}

// ==================== Grant models ====================

type grantModel struct {
	grove.BaseModel `grove:"table:credits_grants"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	AccountID string    `grove:"account_id" bson:"account_id"`
	AdminID   string    `grove:"admin_id"   bson:"admin_id"`
	Credits   int64     `grove:"credits"    bson:"credits"`
	Reason    string    `grove:"reason"     bson:"reason,omitempty"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}

func toGrantModel(g *grant.Grant) *grantModel {
	return &grantModel{
		ID:        g.ID.String(),
		AccountID: g.AccountID,
		AdminID:   g.AdminID,
		Credits:   g.Credits,
		Reason:    g.Reason,
		CreatedAt: g.CreatedAt,
	}
}

func fromGrantModel(m *grantModel) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(m.ID)
	if err != nil {
		return nil, err
	}
	return &grant.Grant{
		ID:        grantID,
		AccountID: m.AccountID,
		AdminID:   m.AdminID,
		Credits:   m.Credits,
		Reason:    m.Reason,
		CreatedAt: m.CreatedAt,
	}, nil
}
