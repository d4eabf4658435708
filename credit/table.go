// Package credit translates paid products into credit amounts.
package credit

import (
	"fmt"
	"maps"

	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
)

// Table maps processor products to credits. Stripe entries are keyed by
// price id. NOWPayments entries are keyed by the paid amount rendered with
// eight decimals, e.g. "25.00000000".
type Table struct {
	Stripe      map[string]int64 `json:"stripe" yaml:"stripe"`
	NOWPayments map[string]int64 `json:"nowpayments" yaml:"nowpayments"`
}

// DefaultTable returns the built-in price list.
func DefaultTable() *Table {
	return &Table{
		Stripe: map[string]int64{
			"price_starter": 40,
			"price_pro":     100,
			"price_scale":   250,
		},
		NOWPayments: map[string]int64{
			"25.00000000":  40,
			"50.00000000":  100,
			"100.00000000": 250,
		},
	}
}

// Translate returns the credits an event of kind buys. Cancellations and
// updates are always worth zero. known is false when the product has no
// entry; the caller decides how loudly to report that.
func (t *Table) Translate(kind payment.Kind, productID string, amountPaid types.Amount) (credits int64, known bool) {
	if !kind.Credits() {
		return 0, true
	}
	if n, ok := t.Stripe[productID]; ok {
		return n, true
	}
	key := productID
	if key == "" && amountPaid.IsPositive() {
		key = amountPaid.String()
	}
	if n, ok := t.NOWPayments[key]; ok {
		return n, true
	}
	return 0, false
}

// Normalize rewrites NOWPayments keys into their canonical eight decimal
// form and rejects negative entries.
func (t *Table) Normalize() error {
	for k, v := range t.Stripe {
		if v < 0 {
			return fmt.Errorf("credit: stripe price %q has negative credits %d", k, v)
		}
	}
	out := make(map[string]int64, len(t.NOWPayments))
	for k, v := range t.NOWPayments {
		amt, err := types.ParseAmount(k)
		if err != nil {
			return fmt.Errorf("credit: nowpayments key %q: %w", k, err)
		}
		if v < 0 {
			return fmt.Errorf("credit: nowpayments amount %q has negative credits %d", k, v)
		}
		out[amt.String()] = v
	}
	t.NOWPayments = out
	return nil
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	return &Table{
		Stripe:      maps.Clone(t.Stripe),
		NOWPayments: maps.Clone(t.NOWPayments),
	}
}
