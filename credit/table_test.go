package credit_test

import (
	"testing"

	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
)

func TestTranslate(t *testing.T) {
	table := credit.DefaultTable()
	tests := []struct {
		name      string
		kind      payment.Kind
		product   string
		amount    types.Amount
		want      int64
		wantKnown bool
	}{
		{"stripe starter", payment.KindOneTimePurchase, "price_starter", 0, 40, true},
		{"stripe renewal", payment.KindSubscriptionRenewed, "price_pro", 0, 100, true},
		{"crypto by key", payment.KindOneTimePurchase, "25.00000000", 0, 40, true},
		{"crypto by amount", payment.KindOneTimePurchase, "", types.Units(100), 250, true},
		{"unknown price", payment.KindOneTimePurchase, "price_missing", 0, 0, false},
		{"cancel is zero", payment.KindSubscriptionCanceled, "price_scale", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := table.Translate(tt.kind, tt.product, tt.amount)
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("Translate = (%d, %v), want (%d, %v)", got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	table := &credit.Table{NOWPayments: map[string]int64{"25": 40, "7.5": 10}}
	if err := table.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if table.NOWPayments["25.00000000"] != 40 || table.NOWPayments["7.50000000"] != 10 {
		t.Errorf("normalized keys = %v", table.NOWPayments)
	}

	bad := &credit.Table{Stripe: map[string]int64{"price_x": -1}}
	if err := bad.Normalize(); err == nil {
		t.Error("expected error for negative credits")
	}
}
