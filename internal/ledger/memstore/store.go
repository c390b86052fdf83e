// Package memstore is an in-memory ledger store for tests and dry runs.
package memstore

import (
	"context"
	"sync"

	"github.com/capguard/budget-sentinel/internal/ledger"
)

// Store keeps ledgers and audit records in process memory.
type Store struct {
	mu      sync.RWMutex
	ledgers map[string]ledger.CostLedger
	records map[string][]*ledger.NotificationRecord
}

var _ ledger.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		ledgers: make(map[string]ledger.CostLedger),
		records: make(map[string][]*ledger.NotificationRecord),
	}
}

// GetLedger returns a copy of the stored ledger, or an empty ledger when the
// collection has never been written.
func (s *Store) GetLedger(_ context.Context, collectionKey string) (ledger.CostLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.ledgers[collectionKey]; ok {
		return l.Clone(), nil
	}
	return ledger.CostLedger{}, nil
}

// AtomicPersist replaces the ledger document and appends the audit record.
// Both happen under one lock, so partial state is never observable.
func (s *Store) AtomicPersist(_ context.Context, collectionKey string, l ledger.CostLedger, rec *ledger.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledgers[collectionKey] = l.Clone()
	s.records[collectionKey] = append(s.records[collectionKey], rec)
	return nil
}

// Records returns the audit records stored for a collection key.
func (s *Store) Records(collectionKey string) []*ledger.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.NotificationRecord, len(s.records[collectionKey]))
	copy(out, s.records[collectionKey])
	return out
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
