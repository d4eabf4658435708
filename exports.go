package credits

import (
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/types"
)

// Re-export common types for convenience so users don't have to import
// the types and account packages.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Balance is re-exported from account package.
type Balance = account.Balance

// Re-export constructors
var (
	Units       = types.Units
	ParseAmount = types.ParseAmount
	NewEntity   = types.NewEntity
)
