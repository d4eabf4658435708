// Package idempotency records which processor events have already been
// applied to the ledger.
package idempotency

import (
	"time"
)

// Record marks a payment event as applied. Records are append-only.
type Record struct {
	EventID     string    `json:"event_id"`
	Provider    string    `json:"provider"`
	AccountID   string    `json:"account_id"`
	Credits     int64     `json:"credits"`
	ProcessedAt time.Time `json:"processed_at"`
}
