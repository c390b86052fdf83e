// Budget notification handling for the sentinel.
//
// DESIGN: One Handle call per delivered event, sequential and blocking:
//   decode -> billing status check -> ledger read-modify-write ->
//   atomic persist (ledger + audit record) -> total vs budget -> maybe disable.
//
// Handle fails loudly: every fault propagates to the invocation boundary so
// the delivery platform can retry and alert. There is no internal retry.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/capguard/budget-sentinel/internal/billing"
	"github.com/capguard/budget-sentinel/internal/ledger"
	"github.com/capguard/budget-sentinel/internal/metrics"
	"github.com/capguard/budget-sentinel/internal/notification"
)

// ErrBillingAlreadyDisabled is returned when a notification arrives for a
// project whose billing is not confirmed enabled. Treated as an error rather
// than a silent no-op so redeliveries after a disable stay visible upstream.
var ErrBillingAlreadyDisabled = errors.New("billing already in disabled state")

// ErrStoreFailure marks ledger read or persist failures.
var ErrStoreFailure = errors.New("ledger store failure")

// Handler processes budget notifications against a ledger store and the
// billing control API. Clients are injected so tests can substitute fakes.
type Handler struct {
	store   ledger.Store
	billing billing.Client
	metrics *metrics.Metrics
	prefix  string
	now     func() time.Time
}

// Option configures the Handler.
type Option func(*Handler)

// WithCollectionPrefix overrides the default collection name prefix.
func WithCollectionPrefix(prefix string) Option {
	return func(h *Handler) {
		if prefix != "" {
			h.prefix = prefix
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithClock overrides the time source used to stamp addedAt.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a notification handler.
func New(store ledger.Store, billingClient billing.Client, opts ...Option) *Handler {
	h := &Handler{
		store:   store,
		billing: billingClient,
		prefix:  "budget-notifications",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one raw budget notification event (base64-encoded JSON).
func (h *Handler) Handle(ctx context.Context, rawEvent []byte) error {
	start := h.now()
	err := h.handle(ctx, rawEvent)
	h.metrics.ObserveHandleDuration(time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, notification.ErrMalformedInput):
		h.metrics.RecordOutcome(metrics.OutcomeMalformed)
	case errors.Is(err, ErrBillingAlreadyDisabled):
		h.metrics.RecordOutcome(metrics.OutcomeAlreadyDisabled)
	default:
		h.metrics.RecordOutcome(metrics.OutcomeError)
	}
	return err
}

func (h *Handler) handle(ctx context.Context, rawEvent []byte) error {
	n, err := notification.Decode(rawEvent)
	if err != nil {
		return err
	}
	projectID := n.ProjectID()

	log.Info().
		Str("project_id", projectID).
		Float64("budget", n.BudgetAmount).
		Float64("cost", n.CostAmount).
		Str("cost_interval_start", n.CostIntervalStart).
		Msg("handling budget notification")

	collectionKey := ledger.CollectionKey(h.prefix, projectID)

	enabled, err := h.billing.IsBillingEnabled(ctx, projectID)
	if err != nil {
		return fmt.Errorf("checking billing status for %s: %w", projectID, err)
	}
	if !enabled {
		// Intentionally fatal: redelivered notifications after a disable
		// surface as errors instead of disappearing as no-ops.
		return fmt.Errorf("%w: project %s", ErrBillingAlreadyDisabled, projectID)
	}

	n.AddedAt = h.now().Format(time.RFC3339)

	l, err := h.store.GetLedger(ctx, collectionKey)
	if err != nil {
		return fmt.Errorf("%w: loading ledger %q: %v", ErrStoreFailure, collectionKey, err)
	}

	// Last-write-wins per interval: a later notification for a known
	// interval replaces the stored cost, it does not accumulate.
	l[n.CostIntervalStart] = n.CostAmount

	log.Info().
		Str("collection_key", collectionKey).
		Int("intervals", len(l)).
		Interface("costs_per_interval_start", l).
		Msg("updated cost ledger")

	if err := h.store.AtomicPersist(ctx, collectionKey, l, ledger.NewRecord(n)); err != nil {
		return fmt.Errorf("%w: persisting ledger %q: %v", ErrStoreFailure, collectionKey, err)
	}

	total := l.Total()
	h.metrics.SetCostTotal(projectID, total)
	log.Info().
		Str("project_id", projectID).
		Float64("total", total).
		Msg("computed total cost amount")

	if total < n.BudgetAmount {
		log.Info().
			Str("project_id", projectID).
			Float64("total", total).
			Float64("budget", n.BudgetAmount).
			Msg("no action taken on total cost amount")
		h.metrics.RecordOutcome(metrics.OutcomeWithinBudget)
		return nil
	}

	log.Warn().
		Str("project_id", projectID).
		Float64("total", total).
		Float64("budget", n.BudgetAmount).
		Msg("total cost reached budget, disabling billing")

	if err := h.billing.DisableBilling(ctx, projectID); err != nil {
		return fmt.Errorf("disabling billing for %s: %w", projectID, err)
	}

	h.metrics.RecordBillingDisable(projectID)
	h.metrics.RecordOutcome(metrics.OutcomeBillingDisabled)
	return nil
}
