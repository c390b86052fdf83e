// Package sqlitestore implements the ledger store on SQLite.
//
// DESIGN: Suitable for single-instance deployments. The ledger document is
// stored as one JSON blob per collection key so whole-document
// last-write-wins semantics match the document-store driver exactly. Audit
// records land in a separate append-only table. AtomicPersist wraps both
// writes in a single SQL transaction.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/capguard/budget-sentinel/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledgers (
	collection_key TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_records (
	id TEXT PRIMARY KEY,
	collection_key TEXT NOT NULL,
	doc TEXT NOT NULL,
	added_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_collection ON notification_records(collection_key);
`

// Store persists ledgers and audit records in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	// WAL mode with a busy timeout; SQLite only supports a single writer.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		path, int((5 * time.Second).Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetLedger loads the ledger document for a collection key.
func (s *Store) GetLedger(ctx context.Context, collectionKey string) (ledger.CostLedger, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM ledgers WHERE collection_key = ?`, collectionKey).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.CostLedger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: load ledger %q: %w", collectionKey, err)
	}

	var l ledger.CostLedger
	if err := json.Unmarshal([]byte(doc), &l); err != nil {
		return nil, fmt.Errorf("ledger/sqlite: decode ledger %q: %w", collectionKey, err)
	}
	if l == nil {
		l = ledger.CostLedger{}
	}
	return l, nil
}

// AtomicPersist upserts the ledger document and appends the audit record in
// one transaction.
func (s *Store) AtomicPersist(ctx context.Context, collectionKey string, l ledger.CostLedger, rec *ledger.NotificationRecord) error {
	ledgerDoc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: encode ledger: %w", err)
	}
	recordDoc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: encode record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: begin persist: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledgers (collection_key, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (collection_key) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		collectionKey, string(ledgerDoc), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ledger/sqlite: upsert ledger %q: %w", collectionKey, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notification_records (id, collection_key, doc, added_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, collectionKey, string(recordDoc), rec.AddedAt)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: insert record %q: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger/sqlite: commit persist: %w", err)
	}
	return nil
}

// Records loads all audit records for a collection key, oldest first.
func (s *Store) Records(ctx context.Context, collectionKey string) ([]*ledger.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM notification_records WHERE collection_key = ? ORDER BY rowid`, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: list records %q: %w", collectionKey, err)
	}
	defer rows.Close()

	var records []*ledger.NotificationRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("ledger/sqlite: scan record: %w", err)
		}
		var rec ledger.NotificationRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("ledger/sqlite: decode record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
