package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeTransitioned    = "transitioned"
	OutcomeAlreadyPaid     = "already_paid"
	OutcomeConverged       = "converged"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeNotFound        = "not_found"
	OutcomeRejected        = "rejected"
	OutcomeError           = "error"

	WebhookOutcomeApplied  = "applied"
	WebhookOutcomeIgnored  = "ignored"
	WebhookOutcomeOrphaned = "orphaned"
	WebhookOutcomeInvalid  = "invalid_signature"
	WebhookOutcomeFailed   = "failed"
)

// ReconcileMetrics tracks payment confirmation outcomes so duplicate and
// racing signals are visible on /metrics.
type ReconcileMetrics struct {
	confirmations *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	casConflicts  prometheus.Counter
}

func NewReconcileMetrics(cfg Config) *ReconcileMetrics {
	return newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	labels := constLabels(cfg)
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "topup_payment_confirmations_total",
		Help:        "Payment confirmations by signal source and outcome.",
		ConstLabels: labels,
	}, []string{"source", "outcome"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "topup_webhook_events_total",
		Help:        "Verified and rejected gateway webhook deliveries.",
		ConstLabels: labels,
	}, []string{"event_type", "outcome"})
	casConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "topup_order_cas_conflicts_total",
		Help:        "Compare-and-update attempts that lost a race and converged.",
		ConstLabels: labels,
	})

	return &ReconcileMetrics{
		confirmations: registerOrExisting(registerer, confirmations).(*prometheus.CounterVec),
		webhookEvents: registerOrExisting(registerer, webhookEvents).(*prometheus.CounterVec),
		casConflicts:  registerOrExisting(registerer, casConflicts).(prometheus.Counter),
	}
}

func (m *ReconcileMetrics) RecordConfirmation(source, outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(strings.TrimSpace(source), strings.TrimSpace(outcome)).Inc()
}

func (m *ReconcileMetrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, strings.TrimSpace(outcome)).Inc()
}

func (m *ReconcileMetrics) RecordConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}
