package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/topup/internal/payment/amount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayCreateOrder(t *testing.T) {
	var got razorpayOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Q1","entity":"order","amount":49900,"currency":"INR","receipt":"ORD_1","status":"created"}`))
	}))
	defer srv.Close()

	client := NewRazorpay(RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		BaseURL:   srv.URL,
	})

	remote, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   49900,
		Currency: amount.CurrencyINR,
		Receipt:  "ORD_1",
		Notes:    map[string]string{"orderId": "ORD_1", "gameUID": "5123456789"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_Q1", remote.ID)
	assert.Equal(t, int64(49900), remote.Amount)

	assert.Equal(t, int64(49900), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "ORD_1", got.Receipt)
	assert.Equal(t, "5123456789", got.Notes["gameUID"])
}

func TestRazorpayCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name: "gateway rejection",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "auth failure without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "malformed success body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not-json`))
			},
			status: http.StatusOK,
		},
		{
			name: "missing id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"entity":"order"}`))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL})
			_, err := client.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: amount.CurrencyUSD, Receipt: "ORD_2"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrGateway))

			var gwErr *Error
			require.True(t, errors.As(err, &gwErr))
			assert.Equal(t, tc.status, gwErr.StatusCode)
		})
	}
}

func TestRazorpayCreateOrderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: amount.CurrencyINR, Receipt: "ORD_3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGateway))
}

func TestRazorpayRequiresCredentials(t *testing.T) {
	client := NewRazorpay(RazorpayConfig{})
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: amount.CurrencyINR})
	assert.ErrorIs(t, err, ErrGateway)
}
