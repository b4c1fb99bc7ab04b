package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/topup/internal/clock"
	"github.com/smallbiznis/topup/internal/observability/logger"
	"github.com/smallbiznis/topup/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/topup/internal/order/domain"
	paymentdomain "github.com/smallbiznis/topup/internal/payment/domain"
	"github.com/smallbiznis/topup/internal/payment/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      paymentdomain.Repository
	Orders    orderdomain.Service
	Verifier  *signature.WebhookVerifier
	Reconcile *metrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      paymentdomain.Repository
	orders    orderdomain.Service
	verifier  *signature.WebhookVerifier
	reconcile *metrics.ReconcileMetrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		orders:    p.Orders,
		verifier:  p.Verifier,
		reconcile: p.Reconcile,
	}
}

func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) error {
	log := logger.WithContext(ctx, s.log)

	// Nothing in the body is trusted before the MAC over the raw bytes checks out.
	if !s.verifier.Verify(payload, headers.Get(paymentdomain.HeaderSignature)) {
		s.reconcile.RecordWebhookEvent("", metrics.WebhookOutcomeInvalid)
		log.Warn("webhook signature rejected", zap.Int("payload_bytes", len(payload)))
		return paymentdomain.ErrInvalidSignature
	}

	var envelope paymentdomain.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil || strings.TrimSpace(envelope.Event) == "" {
		s.reconcile.RecordWebhookEvent("", metrics.WebhookOutcomeIgnored)
		log.Warn("webhook payload unreadable, acknowledging", zap.Error(err))
		return nil
	}
	eventType := strings.TrimSpace(envelope.Event)
	log = log.With(zap.String("event_type", eventType))

	stored, err := s.record(ctx, eventType, envelope, payload, headers)
	if err != nil {
		s.reconcile.RecordWebhookEvent(eventType, metrics.WebhookOutcomeFailed)
		log.Error("webhook event not recorded", zap.Error(err))
		return err
	}

	outcome, err := s.apply(ctx, log, eventType, envelope)
	if err != nil {
		s.reconcile.RecordWebhookEvent(eventType, metrics.WebhookOutcomeFailed)
		return err
	}
	s.reconcile.RecordWebhookEvent(eventType, outcome)

	if stored.ProcessedAt == nil {
		if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, outcome, s.clock.Now()); err != nil {
			log.Warn("webhook event not marked processed", zap.Int64("event_id", stored.ID), zap.Error(err))
		}
	}
	return nil
}

// record appends the delivery to the audit log. A redelivery returns the
// existing row; it never short-circuits reconciliation.
func (s *Service) record(ctx context.Context, eventType string, envelope paymentdomain.Envelope, payload []byte, headers http.Header) (*paymentdomain.EventRecord, error) {
	eventID := strings.TrimSpace(headers.Get(paymentdomain.HeaderEventID))
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "sha256:" + hex.EncodeToString(sum[:])
	}

	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate().Int64(),
		Provider:        paymentdomain.ProviderRazorpay,
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	if gatewayOrderID := envelope.GatewayOrderID(); gatewayOrderID != "" {
		record.GatewayOrderID = &gatewayOrderID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if inserted {
		return record, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, record.Provider, record.ProviderEventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("payment event vanished after conflict")
	}
	return existing, nil
}

func (s *Service) apply(ctx context.Context, log *zap.Logger, eventType string, envelope paymentdomain.Envelope) (string, error) {
	switch eventType {
	case paymentdomain.EventPaymentCaptured, paymentdomain.EventOrderPaid:
	case paymentdomain.EventPaymentFailed:
		payment := envelope.Payment()
		log.Info("payment failed at gateway",
			zap.String("gateway_order_id", envelope.GatewayOrderID()),
			zap.String("gateway_payment_id", payment.ID),
			zap.String("error_code", payment.ErrorCode),
			zap.String("error_reason", payment.ErrorReason),
		)
		return metrics.WebhookOutcomeIgnored, nil
	default:
		log.Debug("webhook event ignored")
		return metrics.WebhookOutcomeIgnored, nil
	}

	payment := envelope.Payment()
	req := orderdomain.ConfirmRequest{
		Source:           orderdomain.SourceWebhook,
		GatewayOrderID:   envelope.GatewayOrderID(),
		GatewayPaymentID: payment.ID,
		PaymentMethod:    payment.Method,
	}
	if req.GatewayOrderID == "" {
		req.OrderID = envelope.LocalOrderID()
	}

	result, err := s.orders.ConfirmPayment(ctx, req)
	switch {
	case err == nil:
		log.Info("webhook reconciled",
			zap.String("order_id", result.Order.OrderID),
			zap.Bool("transitioned", result.Transitioned),
			zap.Bool("already_paid", result.AlreadyPaid),
		)
		return metrics.WebhookOutcomeApplied, nil
	case errors.Is(err, orderdomain.ErrNotFound), errors.Is(err, orderdomain.ErrInvalidOrderID):
		log.Warn("webhook for unknown order, acknowledging",
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.String("gateway_payment_id", req.GatewayPaymentID),
		)
		return metrics.WebhookOutcomeOrphaned, nil
	case errors.Is(err, orderdomain.ErrInvalidTransition):
		log.Warn("webhook for order that cannot be paid, acknowledging",
			zap.String("gateway_order_id", req.GatewayOrderID),
		)
		return metrics.WebhookOutcomeIgnored, nil
	default:
		log.Error("webhook reconciliation failed", zap.Error(err))
		return "", err
	}
}
