package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capguard/budget-sentinel/internal/ledger"
	"github.com/capguard/budget-sentinel/internal/notification"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(project, interval string, cost float64) *ledger.NotificationRecord {
	return ledger.NewRecord(&notification.BudgetNotification{
		BudgetDisplayName: project,
		BudgetAmount:      100,
		CostAmount:        cost,
		CostIntervalStart: interval,
		AddedAt:           "2024-01-15T10:00:00Z",
	})
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestGetLedger_EmptyWhenAbsent(t *testing.T) {
	s := openTestStore(t)

	l, err := s.GetLedger(context.Background(), "budget-notifications-p1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Empty(t, l)
}

func TestAtomicPersist_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "budget-notifications-p1"

	require.NoError(t, s.AtomicPersist(ctx, key, ledger.CostLedger{"2024-01": 40}, record("p1", "2024-01", 40)))

	l, err := s.GetLedger(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ledger.CostLedger{"2024-01": 40}, l)

	records, err := s.Records(ctx, key)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].BudgetDisplayName)
	assert.Equal(t, 40.0, records[0].CostAmount)
}

func TestAtomicPersist_LastWriteWinsPerInterval(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "budget-notifications-p1"

	require.NoError(t, s.AtomicPersist(ctx, key, ledger.CostLedger{"2024-01": 40}, record("p1", "2024-01", 40)))
	require.NoError(t, s.AtomicPersist(ctx, key, ledger.CostLedger{"2024-01": 70}, record("p1", "2024-01", 70)))

	l, err := s.GetLedger(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 70.0, l["2024-01"])

	records, err := s.Records(ctx, key)
	require.NoError(t, err)
	assert.Len(t, records, 2, "audit records accumulate even when the ledger entry is overwritten")
}

func TestAtomicPersist_BothOrNeither(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "budget-notifications-p1"

	rec := record("p1", "2024-01", 40)
	require.NoError(t, s.AtomicPersist(ctx, key, ledger.CostLedger{"2024-01": 40}, rec))

	// Re-using a record id violates the primary key, so the whole persist
	// must roll back: the ledger keeps its previous contents.
	err := s.AtomicPersist(ctx, key, ledger.CostLedger{"2024-01": 999}, rec)
	require.Error(t, err)

	l, err := s.GetLedger(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 40.0, l["2024-01"], "failed persist must not apply the ledger write")

	records, err := s.Records(ctx, key)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()
	key := "budget-notifications-p1"

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AtomicPersist(ctx, key, ledger.CostLedger{"2024-01": 40}, record("p1", "2024-01", 40)))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	l, err := s2.GetLedger(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 40.0, l["2024-01"])
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
