package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/topup/internal/cache"
	"github.com/smallbiznis/topup/internal/clock"
	"github.com/smallbiznis/topup/internal/config"
	obscontext "github.com/smallbiznis/topup/internal/observability/context"
	"github.com/smallbiznis/topup/internal/observability/logger"
	"github.com/smallbiznis/topup/internal/observability/metrics"
	"github.com/smallbiznis/topup/internal/order/domain"
	"github.com/smallbiznis/topup/internal/payment/amount"
	"github.com/smallbiznis/topup/internal/payment/gateway"
	"github.com/smallbiznis/topup/internal/payment/signature"
	productdomain "github.com/smallbiznis/topup/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	orderIDPrefix      = "ORD_"
	maxGameUIDLength   = 64
	maxFulfillmentPage = 500
	gatewayLockTTL     = 30 * time.Second
	keyGatewayLock     = "topup:gateway:order:%s"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Config    config.Config
	Clock     clock.Clock
	Repo      domain.Repository
	Products  productdomain.Service
	Gateway   gateway.Client
	Verifier  *signature.ClientVerifier
	Metrics   *metrics.Metrics          `optional:"true"`
	Reconcile *metrics.ReconcileMetrics `optional:"true"`
	Locker    *cache.Locker             `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	products  productdomain.Service
	gateway   gateway.Client
	verifier  *signature.ClientVerifier
	metrics   *metrics.Metrics
	reconcile *metrics.ReconcileMetrics
	locker    *cache.Locker

	keyID          string
	gatewayTimeout time.Duration
}

func NewService(p Params) domain.Service {
	timeout := p.Config.Razorpay.Timeout
	if timeout <= 0 {
		timeout = gateway.DefaultTimeout
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("order.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		products:       p.Products,
		gateway:        p.Gateway,
		verifier:       p.Verifier,
		metrics:        p.Metrics,
		reconcile:      p.Reconcile,
		locker:         p.Locker,
		keyID:          p.Config.Razorpay.KeyID,
		gatewayTimeout: timeout,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	productRef := strings.TrimSpace(req.ProductID)
	if productRef == "" {
		return nil, domain.ErrInvalidProductID
	}
	email, err := normalizeEmail(req.CustomerEmail)
	if err != nil {
		return nil, err
	}
	gameUID := strings.TrimSpace(req.GameUID)
	if gameUID == "" || len(gameUID) > maxGameUIDLength {
		return nil, domain.ErrInvalidGameUID
	}
	currency, err := amount.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	product, err := s.products.Get(ctx, productRef)
	if err != nil {
		return nil, err
	}
	price, err := product.Price(currency)
	if err != nil {
		return nil, err
	}
	minor, err := amount.ToMinorUnits(price, currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:              s.genID.Generate().Int64(),
		OrderID:         newOrderID(),
		ProductID:       product.ID,
		ProductName:     product.Name,
		ProductCoins:    product.Coins,
		ProductPriceINR: product.PriceINR,
		ProductPriceUSD: product.PriceUSD,
		CustomerEmail:   email,
		GameUID:         gameUID,
		AmountMinor:     minor,
		Currency:        currency.String(),
		Status:          domain.StatusPending,
		DeliveryStatus:  domain.DeliveryPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, s.db, order); err != nil {
		return nil, err
	}

	ctx = obscontext.WithOrderID(ctx, order.OrderID)
	log := logger.WithContext(ctx, s.log)
	log.Info("order created",
		zap.Int64("product_id", product.ID),
		zap.Int64("amount_minor", minor),
		zap.String("currency", order.Currency),
	)
	s.metrics.RecordOrderCreated(ctx, order.Currency)

	attached, err := s.createGatewayOrder(ctx, order)
	if err != nil {
		// The pending order stays usable through RetryGatewayOrder.
		return &domain.CreateOrderResponse{Order: order}, err
	}
	return &domain.CreateOrderResponse{Order: attached, KeyID: s.keyID}, nil
}

// RetryGatewayOrder re-attempts only the remote order creation for a pending
// order whose first gateway call failed. An order that already has a gateway
// id is returned as is.
func (s *Service) RetryGatewayOrder(ctx context.Context, orderID string) (*domain.CreateOrderResponse, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrderID
	}
	order, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if order.HasGatewayOrder() {
		return &domain.CreateOrderResponse{Order: order, KeyID: s.keyID}, nil
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrInvalidTransition
	}

	ctx = obscontext.WithOrderID(ctx, order.OrderID)
	order, err = s.createGatewayOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	return &domain.CreateOrderResponse{Order: order, KeyID: s.keyID}, nil
}

func (s *Service) createGatewayOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	log := logger.WithContext(ctx, s.log)

	lockKey := fmt.Sprintf(keyGatewayLock, order.OrderID)
	token, locked, err := s.locker.TryLock(ctx, lockKey, gatewayLockTTL)
	if err != nil {
		log.Warn("gateway lock unavailable", zap.Error(err))
		locked = true
	}
	if !locked {
		return nil, &gateway.Error{Op: "create_order", Message: "gateway order creation already in progress"}
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn("gateway lock release failed", zap.Error(err))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	remote, err := s.gateway.CreateOrder(callCtx, gateway.CreateOrderRequest{
		Amount:   order.AmountMinor,
		Currency: amount.Currency(order.Currency),
		Receipt:  order.OrderID,
		Notes: map[string]string{
			"orderId":       order.OrderID,
			"productId":     fmt.Sprintf("%d", order.ProductID),
			"gameUID":       order.GameUID,
			"customerEmail": order.CustomerEmail,
		},
	})
	if err != nil {
		s.metrics.RecordGatewayFailure(ctx, "create_order")
		log.Error("gateway order creation failed, order left pending", zap.Error(err))
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	err = s.repo.AttachGatewayOrderID(ctx, s.db, order.OrderID, remote.ID, s.clock.Now())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrGatewayOrderAlreadySet):
		// A concurrent attempt attached first; its id stays authoritative.
		log.Warn("gateway order id already attached, discarding remote order",
			zap.String("discarded_gateway_order_id", remote.ID),
		)
	default:
		return nil, err
	}

	current, err := s.repo.FindByOrderID(ctx, s.db, order.OrderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	log.Info("gateway order attached", zap.String("gateway_order_id", derefString(current.GatewayOrderID)))
	return current, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrderID
	}
	order, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListAwaitingFulfillment(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > maxFulfillmentPage {
		return nil, domain.ErrInvalidLimit
	}
	return s.repo.ListAwaitingFulfillment(ctx, s.db, limit)
}

// AdvanceDelivery moves the delivery flag forward for a paid order. It is the
// write side of the fulfillment worker contract.
func (s *Service) AdvanceDelivery(ctx context.Context, orderID string, to domain.DeliveryStatus) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPaid {
		return nil, domain.ErrInvalidTransition
	}
	if order.DeliveryStatus == to {
		return order, nil
	}
	if err := s.repo.AdvanceDelivery(ctx, s.db, order.OrderID, order.DeliveryStatus, to, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.OrderID)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.ErrInvalidCustomerEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ErrInvalidCustomerEmail
	}
	return email, nil
}

func newOrderID() string {
	return orderIDPrefix + ulid.Make().String()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
