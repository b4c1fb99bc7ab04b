package webhook_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/topup/internal/clock"
	orderdomain "github.com/smallbiznis/topup/internal/order/domain"
	paymentdomain "github.com/smallbiznis/topup/internal/payment/domain"
	"github.com/smallbiznis/topup/internal/payment/repository"
	"github.com/smallbiznis/topup/internal/payment/signature"
	"github.com/smallbiznis/topup/internal/payment/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

const capturedPayload = `{"entity":"event","account_id":"acc_1","event":"payment.captured","contains":["payment"],"payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_rzp_1","method":"upi","status":"captured","amount":49900,"currency":"INR","notes":{"orderId":"ORD_1"}}}},"created_at":1735689600}`

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) CreateOrder(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.CreateOrderResponse, error) {
	panic("unexpected call")
}

func (m *mockOrders) RetryGatewayOrder(ctx context.Context, orderID string) (*orderdomain.CreateOrderResponse, error) {
	panic("unexpected call")
}

func (m *mockOrders) ConfirmPayment(ctx context.Context, req orderdomain.ConfirmRequest) (*orderdomain.ConfirmResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*orderdomain.ConfirmResult)
	return result, args.Error(1)
}

func (m *mockOrders) GetOrder(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	panic("unexpected call")
}

func (m *mockOrders) ListAwaitingFulfillment(ctx context.Context, limit int) ([]orderdomain.Order, error) {
	panic("unexpected call")
}

func (m *mockOrders) AdvanceDelivery(ctx context.Context, orderID string, to orderdomain.DeliveryStatus) (*orderdomain.Order, error) {
	panic("unexpected call")
}

type fixture struct {
	svc    paymentdomain.WebhookService
	db     *gorm.DB
	orders *mockOrders
	signer *signature.WebhookVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	f := &fixture{
		db:     setupTestDB(t),
		orders: &mockOrders{},
		signer: signature.NewWebhookVerifier(webhookSecret),
	}
	f.svc = webhook.NewService(webhook.Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Orders:   f.orders,
		Verifier: f.signer,
	})
	return f
}

func (f *fixture) headers(body string, eventID string) http.Header {
	h := http.Header{}
	h.Set(paymentdomain.HeaderSignature, f.signer.Sign([]byte(body)))
	if eventID != "" {
		h.Set(paymentdomain.HeaderEventID, eventID)
	}
	return h
}

func paidResult() *orderdomain.ConfirmResult {
	return &orderdomain.ConfirmResult{
		Order:        &orderdomain.Order{OrderID: "ORD_1", Status: orderdomain.StatusPaid},
		Transitioned: true,
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(paymentdomain.HeaderSignature, "deadbeef")
	err := f.svc.Ingest(ctx, []byte(capturedPayload), headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	err = f.svc.Ingest(ctx, []byte(capturedPayload), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	// Signed by the client key secret instead of the webhook secret.
	wrongSecret := signature.NewWebhookVerifier("rzp_key_secret")
	headers.Set(paymentdomain.HeaderSignature, wrongSecret.Sign([]byte(capturedPayload)))
	err = f.svc.Ingest(ctx, []byte(capturedPayload), headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	f.orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events", 0)
}

func TestIngestCapturedConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.On("ConfirmPayment", mock.Anything, orderdomain.ConfirmRequest{
		Source:           orderdomain.SourceWebhook,
		GatewayOrderID:   "order_rzp_1",
		GatewayPaymentID: "pay_123",
		PaymentMethod:    "upi",
	}).Return(paidResult(), nil).Once()

	err := f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "evt_1"))
	require.NoError(t, err)
	f.orders.AssertExpectations(t)

	var stored struct {
		ProviderEventID string
		EventType       string
		GatewayOrderID  string
		Outcome         string
		Processed       int64
	}
	require.NoError(t, f.db.Raw(
		`SELECT provider_event_id, event_type, gateway_order_id, outcome,
			CASE WHEN processed_at IS NULL THEN 0 ELSE 1 END AS processed
		 FROM payment_events`,
	).Scan(&stored).Error)
	assert.Equal(t, "evt_1", stored.ProviderEventID)
	assert.Equal(t, "payment.captured", stored.EventType)
	assert.Equal(t, "order_rzp_1", stored.GatewayOrderID)
	assert.Equal(t, "applied", stored.Outcome)
	assert.Equal(t, int64(1), stored.Processed)
}

func TestIngestRedeliveryStillReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.On("ConfirmPayment", mock.Anything, mock.AnythingOfType("domain.ConfirmRequest")).
		Return(paidResult(), nil).Twice()

	headers := f.headers(capturedPayload, "evt_dup")
	require.NoError(t, f.svc.Ingest(ctx, []byte(capturedPayload), headers))
	require.NoError(t, f.svc.Ingest(ctx, []byte(capturedPayload), headers))

	f.orders.AssertNumberOfCalls(t, "ConfirmPayment", 2)
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events", 1)
}

func TestIngestFallsBackToPayloadHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.On("ConfirmPayment", mock.Anything, mock.Anything).Return(paidResult(), nil)

	require.NoError(t, f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "")))
	require.NoError(t, f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "")))

	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events WHERE provider_event_id LIKE 'sha256:%'", 1)
}

func TestIngestUnknownOrderIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.On("ConfirmPayment", mock.Anything, mock.Anything).Return(nil, orderdomain.ErrNotFound).Once()

	err := f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "evt_orphan"))
	require.NoError(t, err)
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events WHERE outcome = 'orphaned'", 1)
}

func TestIngestTerminalOrderIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.On("ConfirmPayment", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("confirm: %w", orderdomain.ErrInvalidTransition)).Once()

	require.NoError(t, f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "evt_refunded")))
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events WHERE outcome = 'ignored'", 1)
}

func TestIngestReconcileFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("db down")
	f.orders.On("ConfirmPayment", mock.Anything, mock.Anything).Return(nil, boom).Once()

	err := f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "evt_fail"))
	assert.ErrorIs(t, err, boom)
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events WHERE processed_at IS NULL", 1)
}

func TestIngestStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Exec("DROP TABLE payment_events").Error)

	err := f.svc.Ingest(ctx, []byte(capturedPayload), f.headers(capturedPayload, "evt_1"))
	require.Error(t, err)
	f.orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestIngestIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, body := range []string{
		`{"entity":"event","event":"refund.created","payload":{}}`,
		`{"entity":"event","event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_rzp_9","error_code":"BAD_REQUEST_ERROR","error_reason":"payment_failed"}}}}`,
	} {
		require.NoError(t, f.svc.Ingest(ctx, []byte(body), f.headers(body, "")))
	}

	f.orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events WHERE outcome = 'ignored'", 2)
}

func TestIngestOrderPaidUsesOrderEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := `{"entity":"event","event":"order.paid","payload":{"payment":{"entity":{"id":"pay_7","order_id":"order_rzp_7","method":"card","notes":[]}},"order":{"entity":{"id":"order_rzp_7","receipt":"ORD_7","status":"paid","notes":[]}}}}`
	f.orders.On("ConfirmPayment", mock.Anything, orderdomain.ConfirmRequest{
		Source:           orderdomain.SourceWebhook,
		GatewayOrderID:   "order_rzp_7",
		GatewayPaymentID: "pay_7",
		PaymentMethod:    "card",
	}).Return(paidResult(), nil).Once()

	require.NoError(t, f.svc.Ingest(ctx, []byte(body), f.headers(body, "evt_7")))
	f.orders.AssertExpectations(t)
}

func TestIngestMalformedBodyIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := `{"event": `

	require.NoError(t, f.svc.Ingest(context.Background(), []byte(body), f.headers(body, "")))
	f.orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events", 0)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			gateway_order_id TEXT,
			payload TEXT NOT NULL,
			outcome TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event_id ON payment_events(provider, provider_event_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
