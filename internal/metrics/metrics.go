// Package metrics exposes Prometheus collectors for the sentinel.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handler outcomes recorded on the notifications counter.
const (
	OutcomeWithinBudget    = "within_budget"
	OutcomeBillingDisabled = "billing_disabled"
	OutcomeAlreadyDisabled = "already_disabled"
	OutcomeMalformed       = "malformed"
	OutcomeError           = "error"
)

// Metrics contains Prometheus metrics for notification handling.
type Metrics struct {
	notificationsHandled *prometheus.CounterVec
	billingDisables      *prometheus.CounterVec
	costTotal            *prometheus.GaugeVec
	handleDuration       prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		notificationsHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_sentinel_notifications_total",
				Help: "Total number of budget notifications handled",
			},
			[]string{"outcome"},
		),

		billingDisables: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_sentinel_billing_disables_total",
				Help: "Total number of billing-disable actions taken",
			},
			[]string{"project_id"},
		),

		costTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "budget_sentinel_cost_total",
				Help: "Running cross-period cost total per project",
			},
			[]string{"project_id"},
		),

		handleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "budget_sentinel_handle_duration_seconds",
				Help:    "Duration of notification handling in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordOutcome counts one handled notification by outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.notificationsHandled.WithLabelValues(outcome).Inc()
}

// RecordBillingDisable counts one billing-disable action.
func (m *Metrics) RecordBillingDisable(projectID string) {
	if m == nil {
		return
	}
	m.billingDisables.WithLabelValues(projectID).Inc()
}

// SetCostTotal records the latest running total for a project.
func (m *Metrics) SetCostTotal(projectID string, total float64) {
	if m == nil {
		return
	}
	m.costTotal.WithLabelValues(projectID).Set(total)
}

// ObserveHandleDuration records how long one notification took end to end.
func (m *Metrics) ObserveHandleDuration(seconds float64) {
	if m == nil {
		return
	}
	m.handleDuration.Observe(seconds)
}
