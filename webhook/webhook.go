// Package webhook defines how processor callbacks are authenticated and
// normalized into payment events.
package webhook

import (
	"context"
	"net/http"
	"strings"

	"github.com/xraph/credits/payment"
)

// Verifier authenticates a raw processor callback and normalizes it.
// Verifiers never touch the ledger.
//
// Errors:
//   - credits.ErrNotConfigured: no usable secret is set.
//   - credits.ErrInvalidSignature: the signature does not match.
//   - credits.ErrMissingAccountReference: the payload names no account.
//   - credits.ErrMalformedPayload: the payload cannot be decoded.
type Verifier interface {
	Provider() payment.Provider
	Verify(ctx context.Context, body []byte, header http.Header) (payment.Result, error)
}

// placeholders are sample values from setup guides that must never be
// treated as real secrets.
var placeholders = map[string]struct{}{
	"whsec_...":                  {},
	"sk_test_...":                {},
	"<REPLACE_ME_WITH_YOUR_KEY>": {},
	"changeme":                   {},
}

// Configured reports whether secret is set to a usable value.
func Configured(secret string) bool {
	s := strings.TrimSpace(secret)
	if s == "" {
		return false
	}
	_, placeholder := placeholders[s]
	return !placeholder
}
