package credit_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/payment"
)

const tableYAML = `stripe:
  price_starter: 40
nowpayments:
  "25": 40
`

func writeTable(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoaderLoadsAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.yaml")
	writeTable(t, path, tableYAML)

	l, err := credit.NewLoader(path, nil)
	require.NoError(t, err)

	table := l.Table()
	assert.Equal(t, int64(40), table.Stripe["price_starter"])
	assert.Equal(t, int64(40), table.NOWPayments["25.00000000"])
}

func TestLoaderRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.yaml")
	writeTable(t, path, "stripe: [not, a, map]\n")

	_, err := credit.NewLoader(path, nil)
	require.Error(t, err)

	_, err = credit.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoaderReloadNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.yaml")
	writeTable(t, path, tableYAML)

	l, err := credit.NewLoader(path, nil)
	require.NoError(t, err)

	got := make(chan *credit.Table, 1)
	l.OnChange(func(t *credit.Table) { got <- t })

	writeTable(t, path, "stripe:\n  price_starter: 55\n")
	_, err = l.Reload()
	require.NoError(t, err)

	select {
	case table := <-got:
		n, known := table.Translate(payment.KindOneTimePurchase, "price_starter", 0)
		assert.True(t, known)
		assert.Equal(t, int64(55), n)
	case <-time.After(time.Second):
		t.Fatal("OnChange callback not invoked")
	}
}

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.yaml")
	writeTable(t, path, tableYAML)

	l, err := credit.NewLoader(path, nil)
	require.NoError(t, err)

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	writeTable(t, path, "stripe:\n  price_starter: 70\n")

	require.Eventually(t, func() bool {
		return l.Table().Stripe["price_starter"] == 70
	}, 5*time.Second, 20*time.Millisecond)
}
