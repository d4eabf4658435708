// Package grant records manual credit grants made by administrators.
package grant

import (
	"time"

	"github.com/xraph/credits/id"
)

// Grant is an append-only audit record of an admin adjustment.
type Grant struct {
	ID        id.GrantID `json:"id"`
	AccountID string     `json:"account_id"`
	AdminID   string     `json:"admin_id"`
	Credits   int64      `json:"credits"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
