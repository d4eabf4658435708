// Package nowpayments verifies NOWPayments instant payment notifications.
package nowpayments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/webhook"
)

// SignatureHeader is the header carrying the IPN signature.
const SignatureHeader = "x-nowpayments-sig"

// StatusFinished is the only payment status that credits an account.
const StatusFinished = "finished"

// Verifier authenticates NOWPayments IPN callbacks.
type Verifier struct {
	secret string
}

var _ webhook.Verifier = (*Verifier)(nil)

// New creates a Verifier for the IPN secret.
func New(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Provider returns payment.ProviderNOWPayments.
func (v *Verifier) Provider() payment.Provider { return payment.ProviderNOWPayments }

// Configured reports whether a usable IPN secret is set.
func (v *Verifier) Configured() bool { return webhook.Configured(v.secret) }

// Sign returns the hex HMAC-SHA512 of the canonical form of body.
func Sign(secret string, body []byte) (string, error) {
	canon, err := Canonicalize(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canon)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// notification is the subset of the IPN payload the ledger needs.
type notification struct {
	PaymentID     any    `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id"`
	PriceAmount   any    `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
}

// Verify checks the signature over the canonical body and normalizes the
// notification. Statuses other than finished are acknowledged and ignored.
func (v *Verifier) Verify(_ context.Context, body []byte, header http.Header) (payment.Result, error) {
	if !v.Configured() {
		return payment.Result{}, fmt.Errorf("nowpayments: %w: IPN secret", credits.ErrNotConfigured)
	}

	sig := header.Get(SignatureHeader)
	if sig == "" {
		return payment.Result{}, fmt.Errorf("nowpayments: %w: missing %s header", credits.ErrInvalidSignature, SignatureHeader)
	}
	want, err := Sign(v.secret, body)
	if err != nil {
		return payment.Result{}, fmt.Errorf("nowpayments: %w: %v", credits.ErrMalformedPayload, err)
	}
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return payment.Result{}, fmt.Errorf("nowpayments: %w", credits.ErrInvalidSignature)
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return payment.Result{}, fmt.Errorf("nowpayments: %w: %v", credits.ErrMalformedPayload, err)
	}
	if n.PaymentStatus != StatusFinished {
		return payment.Ignore("payment status " + n.PaymentStatus), nil
	}
	if n.OrderID == "" {
		return payment.Result{}, fmt.Errorf("nowpayments: %w: order_id is empty", credits.ErrMissingAccountReference)
	}

	amount, err := parseAmount(n.PriceAmount)
	if err != nil {
		return payment.Result{}, fmt.Errorf("nowpayments: %w: price_amount: %v", credits.ErrMalformedPayload, err)
	}

	eventID := "nowpayments:" + sig
	if pid := scalarString(n.PaymentID); pid != "" {
		eventID = "nowpayments:" + pid
	}

	return payment.Apply(&payment.Event{
		EventID:    eventID,
		Provider:   payment.ProviderNOWPayments,
		Kind:       payment.KindOneTimePurchase,
		AccountID:  n.OrderID,
		ProductID:  amount.String(),
		AmountPaid: amount,
		ReceivedAt: time.Now().UTC(),
	}), nil
}

func parseAmount(v any) (types.Amount, error) {
	switch x := v.(type) {
	case float64:
		return types.AmountFromFloat(x), nil
	case string:
		return types.ParseAmount(x)
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return ""
	}
}
