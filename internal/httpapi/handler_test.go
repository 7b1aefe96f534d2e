package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	escrowsvc "github.com/mailpay-labs/mailpay/internal/services/escrow"
	lendingsvc "github.com/mailpay-labs/mailpay/internal/services/lending"
	paymentsvc "github.com/mailpay-labs/mailpay/internal/services/payment"
	vestingsvc "github.com/mailpay-labs/mailpay/internal/services/vesting"
	"github.com/mailpay-labs/mailpay/internal/storage"
)

const hubContract = "0x1234567890abcdef1234567890abcdef12345678"

func testAddress(seed byte) string {
	return address.Uint160ToString(util.Uint160{seed, 0xAB, 0xCD})
}

func newServer(t *testing.T) (*httptest.Server, *ledger.FakeLedger) {
	t.Helper()
	fake := ledger.NewFakeLedger()

	payments := paymentsvc.New(storage.NewMemory(), fake, paymentsvc.Config{HubContract: hubContract}, nil).WithClock(fake.Now)
	escrows := escrowsvc.New(fake, escrowsvc.Config{HubContract: hubContract}, nil).WithClock(fake.Now)
	vesting := vestingsvc.New(fake, vestingsvc.Config{HubContract: hubContract}, nil).WithClock(fake.Now)
	lending := lendingsvc.New(fake, lendingsvc.Config{HubContract: hubContract}, nil)

	srv := httptest.NewServer(New(payments, escrows, vesting, lending, nil).Router())
	t.Cleanup(srv.Close)
	return srv, fake
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	srv, fake := newServer(t)
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 10_000_000_000)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/payments", map[string]any{
		"amount":          "50",
		"asset":           "GAS",
		"recipient_email": "bob@example.com",
		"sender_address":  sender,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.Equal(t, "pending", body["status"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/payments/"+id+"/claim", map[string]any{
		"recipient_address": recipient,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, recipient, body["recipient_address"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/payments/"+id+"/execute", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "claimed", body["status"])
	assert.NotEmpty(t, body["transaction_ref"])

	// Second execution conflicts.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/payments/"+id+"/execute", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body["error"].(map[string]any)["kind"])
}

func TestPaymentValidationMapsTo400(t *testing.T) {
	srv, _ := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/payments", map[string]any{
		"amount":          "50",
		"asset":           "GAS",
		"recipient_email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["error"].(map[string]any)["kind"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/payments", map[string]any{
		"amount":          "50",
		"asset":           "DOGE",
		"recipient_email": "bob@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEscrowFlowOverHTTP(t *testing.T) {
	srv, fake := newServer(t)
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 10_000_000_000)

	release := fake.Now().Add(time.Hour)
	expiry := fake.Now().Add(2 * time.Hour)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/escrows", map[string]any{
		"variant":      "time-locked",
		"sender":       sender,
		"recipient":    recipient,
		"amount":       "10",
		"asset":        "GAS",
		"release_time": release.Format(time.RFC3339),
		"expiry_time":  expiry.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "locked", body["status"])
	id := int64(body["id"].(float64))

	// Early release is a failed precondition.
	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/escrows/%d/release", srv.URL, id), map[string]any{
		"caller": recipient,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "precondition", body["error"].(map[string]any)["kind"])

	fake.Advance(time.Hour + time.Minute)
	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/escrows/%d/release", srv.URL, id), map[string]any{
		"caller": recipient,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "released", body["status"])

	// Unknown escrow is a 404.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/escrows/404/release", map[string]any{"caller": recipient})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVestingFlowOverHTTP(t *testing.T) {
	srv, fake := newServer(t)
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.USDL, 100_000_000)
	start := fake.Now()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/vesting", map[string]any{
		"sender":    sender,
		"recipient": recipient,
		"amount":    "100",
		"asset":     "USDL",
		"start":     start.Format(time.RFC3339),
		"end":       start.Add(1000 * time.Second).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(body["id"].(float64))

	fake.Advance(500 * time.Second)
	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/vesting/%d/claim", srv.URL, id), map[string]any{
		"caller": recipient,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(50_000_000), body["claimed"])

	stream := body["stream"].(map[string]any)
	assert.Equal(t, float64(50), stream["progress"])
}

func TestLendingOverHTTP(t *testing.T) {
	srv, fake := newServer(t)
	account := testAddress(1)
	fake.SetBalance(account, asset.USDL, 1_000_000_000)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/lending/supply", map[string]any{
		"account": account,
		"amount":  "400",
		"asset":   "USDL",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(400_000_000), body["total_liquidity"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/lending/borrow", map[string]any{
		"account": account,
		"amount":  "301",
		"asset":   "USDL",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "precondition", body["error"].(map[string]any)["kind"])

	// Stating the collateral makes the cap fail fast, before submission.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/lending/borrow", map[string]any{
		"account":    account,
		"amount":     "350",
		"asset":      "USDL",
		"collateral": "400",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "precondition", body["error"].(map[string]any)["kind"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/lending/borrow", map[string]any{
		"account":    account,
		"amount":     "300",
		"asset":      "USDL",
		"collateral": "400",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(300_000_000), body["total_borrowed"])

	poolResp, err := http.Get(srv.URL + "/v1/lending/pool?asset=USDL")
	require.NoError(t, err)
	defer poolResp.Body.Close()
	assert.Equal(t, http.StatusOK, poolResp.StatusCode)
}
