package postgres

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

	ID                 string     `grove:"id,pk"`
	Credits            int64      `grove:"credits"`
	FreeActions        int64      `grove:"free_actions"`
	BillingIdentity    string     `grove:"billing_identity"`
	SubscriptionID     string     `grove:"subscription_id"`
	SubscriptionStatus string     `grove:"subscription_status"`
	SubscriptionPlanID string     `grove:"subscription_plan_id"`
	PeriodEnd          *time.Time `grove:"subscription_period_end"`
	IsAdmin            bool       `grove:"is_admin"`
	Origin             string     `grove:"origin"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	m := &accountModel{
		ID:              a.ID,
		Credits:         a.Credits,
		FreeActions:     a.FreeActions,
		BillingIdentity: a.BillingIdentity,
		IsAdmin:         a.IsAdmin,
		Origin:          string(a.Origin),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if st := a.Subscription; st != nil {
		m.SubscriptionID = st.SubscriptionID
		m.SubscriptionStatus = string(st.Status)
		m.SubscriptionPlanID = st.PlanID
		m.PeriodEnd = timePtr(st.CurrentPeriodEnd)
	}
	return m
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
	if m.SubscriptionID != "" {
		a.Subscription = &account.SubscriptionState{
			SubscriptionID: m.SubscriptionID,
			Status:         account.Status(m.SubscriptionStatus),
			PlanID:         m.SubscriptionPlanID,
		}
		if m.PeriodEnd != nil {
			a.Subscription.CurrentPeriodEnd = m.PeriodEnd.UTC()
		}
	}
	return a
}

// ==================== Processed event models ====================

type processedEventModel struct {
	grove.BaseModel `grove:"table:credits_processed_events"`

	EventID     string    `grove:"event_id,pk"`
	Provider    string    `grove:"provider"`
	AccountID   string    `grove:"account_id"`
	Credits     int64     `grove:"credits"`
	ProcessedAt time.Time `grove:"processed_at"`
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

	ID          string    `grove:"id,pk"`
	AccountID   string    `grove:"account_id"`
	Action      string    `grove:"action"`
	Credits     int64     `grove:"credits"`
	FreeActions int64     `grove:"free_actions"`
	State       string    `grove:"state"`
	Error       string    `grove:"error"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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

	ID        string    `grove:"id,pk"`
	AccountID string    `grove:"account_id"`
	AdminID   string    `grove:"admin_id"`
	Credits   int64     `grove:"credits"`
	Reason    string    `grove:"reason"`
	CreatedAt time.Time `grove:"created_at"`
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

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
