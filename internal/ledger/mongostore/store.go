// Package mongostore implements the ledger store on MongoDB.
//
// DESIGN: The production driver. One collection per project
// ("{prefix}-{projectID}"); inside it a single fixed-id ledger document plus
// one audit document per received notification. AtomicPersist runs both
// writes in a session transaction so they commit as one unit.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/capguard/budget-sentinel/internal/ledger"
)

// Store persists ledgers and audit records in MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ ledger.Store = (*Store)(nil)

// ledgerDoc is the persisted shape of the per-project ledger document.
type ledgerDoc struct {
	ID    string             `bson:"_id"`
	Costs map[string]float64 `bson:"costs"`
}

// recordDoc is the persisted shape of one audit record.
type recordDoc struct {
	ID                string    `bson:"_id"`
	BudgetDisplayName string    `bson:"budgetDisplayName"`
	BudgetAmount      float64   `bson:"budgetAmount"`
	CostAmount        float64   `bson:"costAmount"`
	CostIntervalStart string    `bson:"costIntervalStart"`
	AddedAt           string    `bson:"addedAt"`
	ReceivedAt        time.Time `bson:"receivedAt"`
}

func toRecordDoc(rec *ledger.NotificationRecord) *recordDoc {
	return &recordDoc{
		ID:                rec.ID,
		BudgetDisplayName: rec.BudgetDisplayName,
		BudgetAmount:      rec.BudgetAmount,
		CostAmount:        rec.CostAmount,
		CostIntervalStart: rec.CostIntervalStart,
		AddedAt:           rec.AddedAt,
		ReceivedAt:        rec.ReceivedAt,
	}
}

// Open connects to MongoDB and verifies connectivity.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ledger/mongo: ping: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// GetLedger loads the ledger document for a collection key.
func (s *Store) GetLedger(ctx context.Context, collectionKey string) (ledger.CostLedger, error) {
	var doc ledgerDoc
	err := s.db.Collection(collectionKey).
		FindOne(ctx, bson.M{"_id": ledger.LedgerDocName}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ledger.CostLedger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: load ledger %q: %w", collectionKey, err)
	}

	if doc.Costs == nil {
		return ledger.CostLedger{}, nil
	}
	return ledger.CostLedger(doc.Costs), nil
}

// AtomicPersist replaces the full ledger document and inserts the audit
// record inside one transaction.
func (s *Store) AtomicPersist(ctx context.Context, collectionKey string, l ledger.CostLedger, rec *ledger.NotificationRecord) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("ledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		col := s.db.Collection(collectionKey)

		_, err := col.ReplaceOne(ctx,
			bson.M{"_id": ledger.LedgerDocName},
			ledgerDoc{ID: ledger.LedgerDocName, Costs: l},
			options.Replace().SetUpsert(true))
		if err != nil {
			return nil, fmt.Errorf("replace ledger: %w", err)
		}

		if _, err := col.InsertOne(ctx, toRecordDoc(rec)); err != nil {
			return nil, fmt.Errorf("insert record: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("ledger/mongo: persist %q: %w", collectionKey, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
