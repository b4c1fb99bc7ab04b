package webhook_test

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/topup/internal/clock"
	"github.com/smallbiznis/topup/internal/config"
	"github.com/smallbiznis/topup/internal/migration"
	orderdomain "github.com/smallbiznis/topup/internal/order/domain"
	orderrepository "github.com/smallbiznis/topup/internal/order/repository"
	orderservice "github.com/smallbiznis/topup/internal/order/service"
	paymentdomain "github.com/smallbiznis/topup/internal/payment/domain"
	"github.com/smallbiznis/topup/internal/payment/repository"
	"github.com/smallbiznis/topup/internal/payment/signature"
	"github.com/smallbiznis/topup/internal/payment/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// writeCountingRepo counts order rows actually changed by reconciliation.
type writeCountingRepo struct {
	orderdomain.Repository

	statusWrites atomic.Int64
	annotations  atomic.Int64
}

func (r *writeCountingRepo) CompareAndUpdate(ctx context.Context, db *gorm.DB, orderID string, expected orderdomain.Status, m orderdomain.Mutation) error {
	err := r.Repository.CompareAndUpdate(ctx, db, orderID, expected, m)
	if err == nil {
		r.statusWrites.Add(1)
	}
	return err
}

func (r *writeCountingRepo) AnnotatePaid(ctx context.Context, db *gorm.DB, orderID string, a orderdomain.Annotation) (bool, error) {
	changed, err := r.Repository.AnnotatePaid(ctx, db, orderID, a)
	if changed {
		r.annotations.Add(1)
	}
	return changed, err
}

func (r *writeCountingRepo) writes() int64 {
	return r.statusWrites.Load() + r.annotations.Load()
}

type ordersFixture struct {
	svc    paymentdomain.WebhookService
	db     *gorm.DB
	repo   *writeCountingRepo
	signer *signature.WebhookVerifier
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:ingest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	f := &ordersFixture{
		db:     db,
		repo:   &writeCountingRepo{Repository: orderrepository.Provide()},
		signer: signature.NewWebhookVerifier(webhookSecret),
	}

	cfg := config.Config{}
	cfg.Razorpay.Timeout = time.Second
	orders := orderservice.NewService(orderservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Config:   cfg,
		Clock:    clk,
		Repo:     f.repo,
		Verifier: signature.NewClientVerifier("rzp_test_secret"),
	})

	f.svc = webhook.NewService(webhook.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		Orders:   orders,
		Verifier: f.signer,
	})
	return f
}

func (f *ordersFixture) ingest(t *testing.T, body, eventID string) error {
	t.Helper()

	headers := http.Header{}
	headers.Set(paymentdomain.HeaderSignature, f.signer.Sign([]byte(body)))
	headers.Set(paymentdomain.HeaderEventID, eventID)
	return f.svc.Ingest(context.Background(), []byte(body), headers)
}

func (f *ordersFixture) seedPendingOrder(t *testing.T, orderID, gatewayOrderID string) {
	t.Helper()

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.repo.Create(context.Background(), f.db, &orderdomain.Order{
		ID:              1,
		OrderID:         orderID,
		GatewayOrderID:  &gatewayOrderID,
		ProductID:       101,
		ProductName:     "Starter Pack",
		ProductCoins:    500,
		ProductPriceINR: decimal.NewFromInt(499),
		ProductPriceUSD: decimal.RequireFromString("5.99"),
		CustomerEmail:   "player@example.com",
		GameUID:         "5123456789",
		AmountMinor:     49900,
		Currency:        "INR",
		Status:          orderdomain.StatusPending,
		DeliveryStatus:  orderdomain.DeliveryPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

func TestIngestUnknownGatewayOrderLeavesOrdersUntouched(t *testing.T) {
	f := newOrdersFixture(t)
	f.seedPendingOrder(t, "ORD_1", "order_rzp_other")

	require.NoError(t, f.ingest(t, capturedPayload, "evt_unknown"))

	assert.Zero(t, f.repo.writes())
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events WHERE outcome = 'orphaned'", 1)
	assertCount(t, f.db, "SELECT COUNT(*) FROM orders WHERE status = 'pending'", 1)
}

func TestIngestRedeliveredCaptureWritesStatusOnce(t *testing.T) {
	f := newOrdersFixture(t)
	f.seedPendingOrder(t, "ORD_1", "order_rzp_1")

	require.NoError(t, f.ingest(t, capturedPayload, "evt_captured"))
	require.NoError(t, f.ingest(t, capturedPayload, "evt_captured"))

	assert.Equal(t, int64(1), f.repo.statusWrites.Load())
	assert.Zero(t, f.repo.annotations.Load())
	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_events", 1)

	order, err := f.repo.FindByOrderID(context.Background(), f.db, "ORD_1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	assert.Equal(t, orderdomain.DeliveryProcessing, order.DeliveryStatus)
	assert.True(t, order.WebhookConfirmed)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "pay_123", *order.GatewayPaymentID)
	require.NotNil(t, order.PaymentMethod)
	assert.Equal(t, "upi", *order.PaymentMethod)
}
