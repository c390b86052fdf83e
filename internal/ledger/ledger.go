// Package ledger defines the per-project cost ledger and its store contract.
//
// DESIGN: One ledger per project, a single document mapping cost interval
// start to the last reported cost for that interval (last-write-wins per
// interval). Every received notification is additionally kept as an immutable
// audit record in the same collection. Store drivers live in subpackages
// (mongostore, sqlitestore, memstore).
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/capguard/budget-sentinel/internal/notification"
)

// LedgerDocName is the fixed name of the ledger document inside a project's
// collection. The 0- prefix keeps it sorted first in console document listings.
const LedgerDocName = "0-costs-per-interval-starts"

// CollectionKey builds the per-project collection name: "{prefix}-{projectID}".
func CollectionKey(prefix, projectID string) string {
	return prefix + "-" + projectID
}

// CostLedger maps a cost interval start to the last reported cost accrued in
// that interval. Keys are unique; a later notification for a known interval
// overwrites the stored cost, it does not accumulate.
type CostLedger map[string]float64

// Total sums the last-known cost of every interval ever seen. This is the
// running cross-period figure that is compared against the budget.
func (l CostLedger) Total() float64 {
	var total float64
	for _, cost := range l {
		total += cost
	}
	return total
}

// Clone returns an independent copy of the ledger.
func (l CostLedger) Clone() CostLedger {
	c := make(CostLedger, len(l))
	for k, v := range l {
		c[k] = v
	}
	return c
}

// NotificationRecord is the immutable audit copy of one received notification.
// Records are appended on every event and never updated or deleted.
type NotificationRecord struct {
	ID string `json:"id"`
	notification.BudgetNotification
	ReceivedAt time.Time `json:"receivedAt"`
}

// NewRecord builds an audit record with a generated id.
func NewRecord(n *notification.BudgetNotification) *NotificationRecord {
	return &NotificationRecord{
		ID:                 uuid.NewString(),
		BudgetNotification: *n,
		ReceivedAt:         time.Now().UTC(),
	}
}

// Store persists cost ledgers and audit records.
//
// GetLedger followed by AtomicPersist is deliberately not a transaction:
// concurrent invocations for the same project can race on the whole ledger
// document, last writer wins. See the repository design notes.
type Store interface {
	// GetLedger loads the ledger for a collection key. A project with no
	// prior notifications yields an empty, non-nil ledger.
	GetLedger(ctx context.Context, collectionKey string) (CostLedger, error)

	// AtomicPersist writes the full ledger document and appends the audit
	// record as one unit: both commit or neither does.
	AtomicPersist(ctx context.Context, collectionKey string, l CostLedger, rec *NotificationRecord) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
