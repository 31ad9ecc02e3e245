// Package mongostore is the MongoDB phishetl.Store: one document per
// phish_id, written with unordered bulk upserts.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
)

// Defaults for database and collection names.
const (
	DefaultDatabase   = "etl_db"
	DefaultCollection = "phishtank_raw"

	keyField  = "phish_id"
	indexName = "phish_id_unique"
)

// ServerSelectionTimeout bounds how long Connect waits for a reachable server.
var ServerSelectionTimeout = 10 * time.Second

// Store is a collection of phishing reports.
type Store struct {
	client *mongo.Client // nil when wrapping a caller's collection
	coll   *mongo.Collection
}

var _ phishetl.Store = (*Store)(nil)

// Connect dials uri and pings the primary, failing fast when the server is
// unreachable.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(ServerSelectionTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongostore: cannot reach server, check the URI and network access: %w", err)
	}
	return &Store{client: client, coll: client.Database(database).Collection(collection)}, nil
}

// New wraps an existing collection. Close is then a no-op.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Close disconnects the client if Connect created it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// EnsureSchema creates the unique index on phish_id. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: keyField, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(indexName),
	})
	if err != nil {
		return fmt.Errorf("mongostore: create index: %w", err)
	}
	return nil
}

// UpsertBatch sends one unordered bulk write of
// UpdateOne{phish_id: ID}, {$set: record}, upsert. Inserted counts upserts and
// Updated counts matched documents.
func (s *Store) UpsertBatch(ctx context.Context, batch []phishetl.Record) (phishetl.UpsertResult, error) {
	models := make([]mongo.WriteModel, 0, len(batch))
	for _, rec := range batch {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: keyField, Value: rec.ID}}).
			SetUpdate(bson.D{{Key: "$set", Value: rec}}).
			SetUpsert(true))
	}
	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return translate(batch, res, err)
}

// translate turns a BulkWrite result into the store-neutral shape. Write
// errors become a *phishetl.BulkWriteError; a write-concern-only failure or
// any other error is returned unchanged.
func translate(batch []phishetl.Record, res *mongo.BulkWriteResult, err error) (phishetl.UpsertResult, error) {
	var out phishetl.UpsertResult
	if res != nil {
		out.Inserted = int(res.UpsertedCount)
		out.Updated = int(res.MatchedCount)
	}
	if err == nil {
		return out, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return out, err
	}

	partial := &phishetl.BulkWriteError{Inserted: out.Inserted, Updated: out.Updated}
	for _, we := range bwe.WriteErrors {
		f := phishetl.WriteFailure{Index: we.Index, Err: we.WriteError}
		if we.Index >= 0 && we.Index < len(batch) {
			f.Key = batch[we.Index].ID
		}
		partial.Failures = append(partial.Failures, f)
	}
	return out, partial
}

// Get returns the stored record for id, or phishetl.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (phishetl.Record, error) {
	var rec phishetl.Record
	err := s.coll.FindOne(ctx, bson.D{{Key: keyField, Value: id}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return phishetl.Record{}, phishetl.ErrNotFound
	}
	return rec, err
}

// Drop removes the collection and its indexes.
func (s *Store) Drop(ctx context.Context) error {
	return s.coll.Drop(ctx)
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{})
}
