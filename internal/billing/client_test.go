package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api, err := upstream.New(upstream.Config{Name: "billing", BaseURL: srv.URL})
	require.NoError(t, err)
	c, err := NewClient(api)
	require.NoError(t, err)
	return c
}

func TestCreateOrderSendsIdempotencyKey(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/billing/orders", r.URL.Path)
		assert.Equal(t, "42-01J", r.Header.Get("x-idempotency-key"))
		var body domain.OrderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "t1", body.TenantID)
		assert.Equal(t, domain.PaymentCOD, body.PaymentMode)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"created","order":{"_id":"o1","finalTotal":120,"orderStatus":"pending","paymentStatus":"pending"}}`))
	})

	order, err := c.CreateOrder(context.Background(), domain.OrderPayload{TenantID: "t1", PaymentMode: domain.PaymentCOD}, "42-01J")
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, 120.0, order.FinalTotal)

	_, err = c.CreateOrder(context.Background(), domain.OrderPayload{}, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCustomerNotFoundIsDetectable(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/billing/customers/42", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Customer not found"}`))
	})

	_, err := c.Customer(context.Background(), "42")
	require.Error(t, err)
	assert.True(t, upstream.IsNotFound(err))
	assert.Equal(t, "Customer not found", upstream.Message(err))
}

func TestAddressCRUD(t *testing.T) {
	var calls []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if r.Method != http.MethodDelete {
				assert.JSONEq(t, `{"text":"12 Park Rd","isDefault":true}`, string(raw))
			}
		}
		_, _ = w.Write([]byte(`{"customer":{"_id":"c1","addresses":[{"_id":"a1","text":"12 Park Rd","isDefault":true}]}}`))
	})
	ctx := context.Background()
	in := AddressInput{Text: "  12 Park Rd ", IsDefault: true}

	cust, err := c.AddAddress(ctx, "c1", in)
	require.NoError(t, err)
	addr, ok := cust.DefaultAddress()
	require.True(t, ok)
	assert.Equal(t, "a1", addr.ID)

	_, err = c.UpdateAddress(ctx, "c1", "a1", in)
	require.NoError(t, err)
	_, err = c.DeleteAddress(ctx, "c1", "a1")
	require.NoError(t, err)

	_, err = c.AddAddress(ctx, "c1", AddressInput{Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, []string{
		"POST /billing/customers/c1/addresses",
		"PUT /billing/customers/c1/addresses/a1",
		"DELETE /billing/customers/c1/addresses/a1",
	}, calls)
}

func TestTaxesAndDelivery(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/billing/taxes":
			assert.Equal(t, "t1", r.URL.Query().Get("tenantId"))
			_, _ = w.Write([]byte(`{"taxes":[{"name":"GST","rate":5,"isActive":true}]}`))
		case "/billing/delivery/calculate":
			assert.Equal(t, "598", r.URL.Query().Get("orderSubTotal"))
			_, _ = w.Write([]byte(`{"deliveryCharge":0,"isFreeDelivery":true}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	taxes, err := c.Taxes(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Tax{{Name: "GST", Rate: 5, IsActive: true}}, taxes)

	quote, err := c.Delivery(ctx, "t1", 598)
	require.NoError(t, err)
	assert.True(t, quote.IsFree)
}

func TestVerifyCoupon(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["code"] {
		case "SAVE10":
			_, _ = w.Write([]byte(`{"valid":true,"code":"SAVE10","title":"Ten off","discount":10}`))
		case "EXPIRED":
			_, _ = w.Write([]byte(`{"valid":false,"message":"Coupon expired"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid coupon code"}`))
		}
	})
	ctx := context.Background()

	coupon, err := c.VerifyCoupon(ctx, " SAVE10 ", "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerifiedCoupon{Code: "SAVE10", Title: "Ten off", Discount: 10}, coupon)

	_, err = c.VerifyCoupon(ctx, "EXPIRED", "t1")
	assert.ErrorIs(t, err, ErrCouponRejected)
	assert.Contains(t, err.Error(), "Coupon expired")

	_, err = c.VerifyCoupon(ctx, "BADCODE", "t1")
	assert.Equal(t, "Invalid coupon code", upstream.Message(err))
}

func TestPaymentAndRefunds(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/billing/payments/initiate":
			assert.Equal(t, "payment-o1-01J", r.Header.Get("x-idempotency-key"))
			_, _ = w.Write([]byte(`{"sessionId":"cs_1","paymentUrl":"https://pay.example/cs_1"}`))
		case "/billing/payments/cs_1":
			_, _ = w.Write([]byte(`{"orderId":"o1","paymentStatus":"paid"}`))
		case "/billing/payments/refunds/o1":
			_, _ = w.Write([]byte(`{"refunds":[]}`))
		}
	})
	ctx := context.Background()

	session, err := c.InitiatePayment(ctx, PaymentRequest{OrderID: "o1", Amount: 465.11, Currency: "INR", TenantID: "t1"}, "payment-o1-01J")
	require.NoError(t, err)
	assert.Equal(t, "o1", session.OrderID)
	assert.Equal(t, "https://pay.example/cs_1", session.PaymentURL)

	result, err := c.Payment(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, result.Paid())
	assert.Equal(t, "cs_1", result.SessionID)

	refunds, err := c.Refunds(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestWalletEndpoints(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/billing/wallets/balance":
			_, _ = w.Write([]byte(`{"balance":250.5,"currency":"INR"}`))
		case "/billing/wallets/transactions":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"transactions":[{"_id":"w1","type":"cashback","amount":12}],"pagination":{"page":1,"limit":20,"total":1,"pages":1}}`))
		case "/billing/wallets/calculate-cashback":
			_, _ = w.Write([]byte(`{"orderAmount":500,"walletAmountUsed":0,"cashbackAmount":25}`))
		}
	})
	ctx := context.Background()

	wallet, err := c.Wallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250.5, wallet.Balance)

	txns, err := c.WalletTransactions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns.Transactions, 1)
	assert.Equal(t, domain.TransactionCashback, txns.Transactions[0].Type)

	preview, err := c.CalculateCashback(ctx, 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 25.0, preview.CashbackAmount)

	_, err = c.CalculateCashback(ctx, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
