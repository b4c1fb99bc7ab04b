package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	obscontext "github.com/smallbiznis/topup/internal/observability/context"
	"github.com/smallbiznis/topup/internal/observability/logger"
	"github.com/smallbiznis/topup/internal/observability/metrics"
	"github.com/smallbiznis/topup/internal/order/domain"
	"go.uber.org/zap"
)

// ConfirmPayment drives pending -> paid from either confirmation source.
// Every outcome is idempotent: replays and late signals converge on the
// already paid order without a second status write.
func (s *Service) ConfirmPayment(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	req = normalizeConfirm(req)
	if !req.Source.Valid() {
		return nil, domain.ErrInvalidSource
	}
	source := string(req.Source)

	order, err := s.lookupForConfirm(ctx, req)
	if err != nil {
		s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
		return nil, err
	}
	if order == nil {
		s.reconcile.RecordConfirmation(source, metrics.OutcomeNotFound)
		return nil, domain.ErrNotFound
	}

	ctx = obscontext.WithOrderID(ctx, order.OrderID)
	log := logger.WithContext(ctx, s.log).With(zap.String("source", source))

	if req.Source == domain.SourceClient {
		if err := s.authenticateClient(order, req); err != nil {
			s.reconcile.RecordConfirmation(source, metrics.OutcomeUnauthenticated)
			log.Warn("client confirmation rejected", zap.Error(err))
			return nil, err
		}
	}

	// One retry is enough: a lost compare-and-update means status already
	// left pending, and pending is never re-entered.
	for attempt := 0; attempt < 2; attempt++ {
		switch order.Status {
		case domain.StatusPaid:
			return s.converge(ctx, log, order, req, attempt > 0)
		case domain.StatusPending:
		default:
			s.reconcile.RecordConfirmation(source, metrics.OutcomeRejected)
			log.Warn("confirmation for non-payable order", zap.String("status", string(order.Status)))
			return nil, domain.ErrInvalidTransition
		}

		err := s.repo.CompareAndUpdate(ctx, s.db, order.OrderID, domain.StatusPending, s.paidMutation(req))
		switch {
		case err == nil:
			updated, err := s.repo.FindByOrderID(ctx, s.db, order.OrderID)
			if err != nil {
				s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
				return nil, err
			}
			if updated == nil {
				return nil, domain.ErrNotFound
			}
			s.reconcile.RecordConfirmation(source, metrics.OutcomeTransitioned)
			log.Info("order paid",
				zap.String("gateway_payment_id", req.GatewayPaymentID),
				zap.Bool("webhook_confirmed", updated.WebhookConfirmed),
			)
			return &domain.ConfirmResult{Order: updated, Transitioned: true}, nil
		case errors.Is(err, domain.ErrConflict):
			s.reconcile.RecordConflict()
			log.Info("order status moved concurrently, re-reading")
			order, err = s.repo.FindByOrderID(ctx, s.db, order.OrderID)
			if err != nil {
				s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
				return nil, err
			}
			if order == nil {
				return nil, domain.ErrNotFound
			}
		default:
			s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
			return nil, err
		}
	}

	s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
	return nil, fmt.Errorf("order %s still pending after conflict", order.OrderID)
}

func (s *Service) lookupForConfirm(ctx context.Context, req domain.ConfirmRequest) (*domain.Order, error) {
	switch {
	case req.Source == domain.SourceClient && req.OrderID != "":
		return s.repo.FindByOrderID(ctx, s.db, req.OrderID)
	case req.GatewayOrderID != "":
		return s.repo.FindByGatewayOrderID(ctx, s.db, req.GatewayOrderID)
	case req.OrderID != "":
		return s.repo.FindByOrderID(ctx, s.db, req.OrderID)
	default:
		return nil, domain.ErrInvalidOrderID
	}
}

// authenticateClient requires a valid key-secret signature over the presented
// gateway ids, and that the presented gateway order is the one attached to
// this order.
func (s *Service) authenticateClient(order *domain.Order, req domain.ConfirmRequest) error {
	if req.GatewayPaymentID == "" {
		return domain.ErrInvalidPaymentID
	}
	if !s.verifier.VerifyConfirmation(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return domain.ErrUnauthenticated
	}
	if !order.HasGatewayOrder() || *order.GatewayOrderID != req.GatewayOrderID {
		return domain.ErrUnauthenticated
	}
	return nil
}

func (s *Service) paidMutation(req domain.ConfirmRequest) domain.Mutation {
	now := s.clock.Now()
	processing := domain.DeliveryProcessing
	webhook := req.Source == domain.SourceWebhook

	m := domain.Mutation{
		Status:           domain.StatusPaid,
		DeliveryStatus:   &processing,
		WebhookConfirmed: &webhook,
		PaidAt:           &now,
		UpdatedAt:        now,
	}
	if req.GatewayPaymentID != "" {
		m.GatewayPaymentID = &req.GatewayPaymentID
	}
	if req.Source == domain.SourceClient && req.Signature != "" {
		m.GatewaySignature = &req.Signature
	}
	if req.PaymentMethod != "" {
		m.PaymentMethod = &req.PaymentMethod
	}
	return m
}

// converge handles a confirmation for an order that is already paid. Either
// source may fill in details that are still missing; nothing recorded is
// overwritten.
func (s *Service) converge(ctx context.Context, log *zap.Logger, order *domain.Order, req domain.ConfirmRequest, raced bool) (*domain.ConfirmResult, error) {
	source := string(req.Source)
	outcome := metrics.OutcomeAlreadyPaid
	if raced {
		outcome = metrics.OutcomeConverged
	}

	if order.GatewayPaymentID != nil && req.GatewayPaymentID != "" && *order.GatewayPaymentID != req.GatewayPaymentID {
		log.Warn("payment id differs from recorded payment, keeping first",
			zap.String("recorded_gateway_payment_id", *order.GatewayPaymentID),
			zap.String("presented_gateway_payment_id", req.GatewayPaymentID),
		)
	}

	if a, ok := s.annotationFor(order, req); ok {
		changed, err := s.repo.AnnotatePaid(ctx, s.db, order.OrderID, a)
		if err != nil {
			s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
			return nil, err
		}
		if changed {
			refreshed, err := s.repo.FindByOrderID(ctx, s.db, order.OrderID)
			if err != nil {
				s.reconcile.RecordConfirmation(source, metrics.OutcomeError)
				return nil, err
			}
			if refreshed != nil {
				order = refreshed
			}
			log.Info("paid order annotated")
		}
	}

	s.reconcile.RecordConfirmation(source, outcome)
	return &domain.ConfirmResult{Order: order, AlreadyPaid: true}, nil
}

// annotationFor returns the details req can add to a paid order. Client
// requests reach here only after authenticateClient.
func (s *Service) annotationFor(order *domain.Order, req domain.ConfirmRequest) (domain.Annotation, bool) {
	a := domain.Annotation{UpdatedAt: s.clock.Now()}
	needed := false

	if order.GatewayPaymentID == nil && req.GatewayPaymentID != "" {
		a.GatewayPaymentID = &req.GatewayPaymentID
		needed = true
	}

	switch req.Source {
	case domain.SourceWebhook:
		if !order.WebhookConfirmed {
			a.WebhookConfirmed = true
			needed = true
		}
		if order.PaymentMethod == nil && req.PaymentMethod != "" {
			a.PaymentMethod = &req.PaymentMethod
			needed = true
		}
	case domain.SourceClient:
		if order.GatewaySignature == nil && req.Signature != "" {
			a.GatewaySignature = &req.Signature
			needed = true
		}
	}
	return a, needed
}

func normalizeConfirm(req domain.ConfirmRequest) domain.ConfirmRequest {
	req.Source = domain.Source(strings.ToLower(strings.TrimSpace(string(req.Source))))
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.GatewayOrderID = strings.TrimSpace(req.GatewayOrderID)
	req.GatewayPaymentID = strings.TrimSpace(req.GatewayPaymentID)
	req.Signature = strings.TrimSpace(req.Signature)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	return req
}
