package reservation

import "fmt"

// Action tags what a reservation pays for.
type Action string

const (
	ActionPlan     Action = "plan"
	ActionGenerate Action = "generate"
	ActionAudit    Action = "audit"
	ActionBatch    Action = "batch"
)

// Price is the cost of an action in credits.
type Price struct {
	Credits   int64
	AllowFree bool
}

var catalogue = map[Action]Price{
	ActionPlan:     {Credits: 3},
	ActionGenerate: {Credits: 1},
	ActionAudit:    {Credits: 2, AllowFree: true},
}

// Lookup returns the price of a fixed-cost action.
func Lookup(a Action) (Price, bool) {
	p, ok := catalogue[a]
	return p, ok
}

// BatchCost is the cost of producing n items in one batch.
func BatchCost(n int) int64 {
	return 1 + int64(n)
}

// PriceFor resolves the cost of a, using items for batch actions.
func PriceFor(a Action, items int) (Price, error) {
	if a == ActionBatch {
		if items <= 0 {
			return Price{}, fmt.Errorf("reservation: batch needs at least one item, got %d", items)
		}
		return Price{Credits: BatchCost(items)}, nil
	}
	p, ok := Lookup(a)
	if !ok {
		return Price{}, fmt.Errorf("reservation: unknown action %q", a)
	}
	return p, nil
}
