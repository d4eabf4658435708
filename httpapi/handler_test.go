package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/webhook/nowpayments"
	"github.com/xraph/credits/webhook/stripe"
)

const (
	stripeSecret = "whsec_handler_test"
	ipnSecret    = "ipn_handler_test"
)

type fixture struct {
	eng *credits.Engine
	srv *httptest.Server
}

func newFixture(t *testing.T, opts ...httpapi.Option) *fixture {
	t.Helper()
	eng := credits.New(memory.New())
	base := []httpapi.Option{
		httpapi.WithVerifier(stripe.New(stripeSecret)),
		httpapi.WithVerifier(nowpayments.New(ipnSecret)),
		httpapi.WithGenerators(func(_ reservation.Action, input json.RawMessage) (credits.Generator, error) {
			var in struct {
				Fail bool `json:"fail"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, credits.ValidationError{Field: "input", Message: err.Error()}
				}
			}
			return credits.GeneratorFunc(func(context.Context) (any, error) {
				if in.Fail {
					return nil, errors.New("model overloaded")
				}
				return map[string]string{"text": "done"}, nil
			}), nil
		}),
	}
	srv := httptest.NewServer(httpapi.New(eng, append(base, opts...)...))
	t.Cleanup(srv.Close)
	return &fixture{eng: eng, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) signup(t *testing.T, id string, origin account.Origin) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"id": id, "origin": string(origin)})
	resp := f.do(t, http.MethodPost, "/v1/accounts", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (f *fixture) balance(t *testing.T, id string) account.Balance {
	t.Helper()
	resp := f.do(t, http.MethodGet, "/v1/accounts/"+id+"/balance", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b account.Balance
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	return b
}

func ipn(t *testing.T, body string) ([]byte, http.Header) {
	t.Helper()
	sig, err := nowpayments.Sign(ipnSecret, []byte(body))
	require.NoError(t, err)
	h := http.Header{}
	h.Set(nowpayments.SignatureHeader, sig)
	return []byte(body), h
}

func TestCryptoPurchase(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "user_1", account.OriginEmail)
	require.Equal(t, int64(8), f.balance(t, "user_1").Credits)

	waiting, h := ipn(t, `{"payment_id":77,"payment_status":"waiting","order_id":"user_1","price_amount":25}`)
	resp := f.do(t, http.MethodPost, "/webhooks/nowpayments", waiting, h)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(8), f.balance(t, "user_1").Credits)

	finished, h := ipn(t, `{"payment_id":77,"payment_status":"finished","order_id":"user_1","price_amount":25}`)
	for i := 0; i < 2; i++ {
		resp = f.do(t, http.MethodPost, "/webhooks/nowpayments", finished, h)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int64(48), f.balance(t, "user_1").Credits)
}

func TestCardPurchaseReplay(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "user_2", account.OriginEmail)

	p := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Secret: stripeSecret,
		Payload: []byte(`{
  "id": "evt_card_1", "object": "event", "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_1", "object": "checkout.session", "client_reference_id": "user_2",
    "customer": "cus_2", "mode": "payment", "payment_status": "paid", "amount_total": 1000,
    "line_items": {"object": "list", "data": [{"id": "li_1", "price": {"id": "price_starter"}}]}}}
}`),
	})
	h := http.Header{}
	h.Set(stripe.SignatureHeader, p.Header)

	for i := 0; i < 3; i++ {
		resp := f.do(t, http.MethodPost, "/webhooks/stripe", p.Payload, h)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int64(48), f.balance(t, "user_2").Credits)

	a, err := f.eng.GetAccount(context.Background(), "user_2")
	require.NoError(t, err)
	assert.Equal(t, "cus_2", a.BillingIdentity)
}

func TestWebhookRejections(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "user_3", account.OriginEmail)

	body, h := ipn(t, `{"payment_id":9,"payment_status":"finished","order_id":"user_3","price_amount":25}`)
	tampered := bytes.Replace(body, []byte("25"), []byte("99"), 1)
	resp := f.do(t, http.MethodPost, "/webhooks/nowpayments", tampered, h)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/webhooks/stripe", []byte(`{}`), http.Header{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, int64(8), f.balance(t, "user_3").Credits)
}

func TestWebhookUnknownAccountIsRetried(t *testing.T) {
	f := newFixture(t)
	body, h := ipn(t, `{"payment_id":10,"payment_status":"finished","order_id":"ghost","price_amount":25}`)
	resp := f.do(t, http.MethodPost, "/webhooks/nowpayments", body, h)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.signup(t, "ghost", account.OriginEmail)
	resp = f.do(t, http.MethodPost, "/webhooks/nowpayments", body, h)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(48), f.balance(t, "ghost").Credits)
}

func TestWebhookNotConfigured(t *testing.T) {
	eng := credits.New(memory.New())
	srv := httptest.NewServer(httpapi.New(eng))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhooks/stripe", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestActions(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "user_4", account.OriginEmail)

	run := func(input string) *http.Response {
		body := []byte(`{"accountId":"user_4","input":` + input + `}`)
		return f.do(t, http.MethodPost, "/v1/actions/plan", body, nil)
	}

	resp := run(`{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Reservation struct {
			State reservation.State `json:"state"`
		} `json:"reservation"`
		Result map[string]string `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "done", out.Result["text"])
	assert.Equal(t, reservation.StateCommitted, out.Reservation.State)
	assert.Equal(t, int64(5), f.balance(t, "user_4").Credits)

	resp = run(`{"fail":true}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int64(5), f.balance(t, "user_4").Credits)

	require.Equal(t, http.StatusOK, run(`{}`).StatusCode)
	resp = run(`{}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, int64(2), f.balance(t, "user_4").Credits)

	resp = f.do(t, http.MethodPost, "/v1/actions/teleport", []byte(`{"accountId":"user_4"}`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminGrant(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "admin", account.OriginEmail)
	f.signup(t, "user_5", account.OriginEmail)

	body := []byte(`{"accountId":"user_5","credits":10,"reason":"support"}`)
	actor := http.Header{}
	actor.Set(httpapi.ActorHeader, "admin")

	resp := f.do(t, http.MethodPost, "/v1/admin/grants", body, actor)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int64(8), f.balance(t, "user_5").Credits)

	require.NoError(t, f.eng.SetAdmin(context.Background(), "admin", true))
	resp = f.do(t, http.MethodPost, "/v1/admin/grants", body, actor)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(18), f.balance(t, "user_5").Credits)

	resp = f.do(t, http.MethodPost, "/v1/admin/grants", []byte(`{"accountId":"user_5","credits":0}`), actor)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/accounts/user_5/grants", nil, actor)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Grants []json.RawMessage `json:"grants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Grants, 1)

	resp = f.do(t, http.MethodGet, "/v1/admin/reservations", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProbes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, nil).StatusCode)

	resp := f.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(httpapi.RequestIDHeader))
}
