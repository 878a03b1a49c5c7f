package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

const runsCollection = "runs"

// productDoc is a product as stored in MongoDB.
type productDoc struct {
	RunID         string    `bson:"run_id"`
	Goal          string    `bson:"goal"`
	StoredAt      time.Time `bson:"stored_at"`
	types.Product `bson:",inline"`
}

// runDoc is a run summary as stored in MongoDB, keyed by run id.
type runDoc struct {
	RunID    string           `bson:"_id"`
	StartURL string           `bson:"start_url"`
	Goal     string           `bson:"goal"`
	Summary  types.RunSummary `bson:"summary"`
	StoredAt time.Time        `bson:"stored_at"`
}

func productDocs(rec *RunRecord) []any {
	docs := make([]any, len(rec.Products))
	for i, p := range rec.Products {
		docs[i] = productDoc{RunID: rec.RunID, Goal: rec.Goal, StoredAt: rec.StoredAt, Product: p}
	}
	return docs
}

func summaryDoc(rec *RunRecord) runDoc {
	return runDoc{
		RunID:    rec.RunID,
		StartURL: rec.StartURL,
		Goal:     rec.Goal,
		Summary:  rec.Summary,
		StoredAt: rec.StoredAt,
	}
}

// MongoStorage writes products to one collection and run summaries to a
// "runs" collection in the same database.
type MongoStorage struct {
	client   *mongo.Client
	products *mongo.Collection
	runs     *mongo.Collection
	logger   *slog.Logger
}

// NewMongoStorage connects, pings and ensures the run_id index.
func NewMongoStorage(uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	db := client.Database(database)
	s := &MongoStorage{
		client:   client,
		products: db.Collection(collection),
		runs:     db.Collection(runsCollection),
		logger:   logger.With("component", "mongo_storage"),
	}

	_, err = s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "url", Value: 1}},
	})
	if err != nil {
		s.logger.Warn("could not create run_id index", "error", err)
	}
	return s, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

// SaveRun inserts the products and upserts the summary. Saving the same run
// twice replaces the summary but appends products again.
func (s *MongoStorage) SaveRun(ctx context.Context, rec *RunRecord) error {
	stamp(rec)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if len(rec.Products) > 0 {
		if _, err := s.products.InsertMany(ctx, productDocs(rec)); err != nil {
			return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("insert products: %w", err)}
		}
	}

	_, err := s.runs.ReplaceOne(ctx, bson.M{"_id": rec.RunID}, summaryDoc(rec), options.Replace().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("upsert run: %w", err)}
	}

	s.logger.Debug("run stored in mongodb", "run_id", rec.RunID, "products", len(rec.Products))
	return nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes runs to several backends. A failing backend does not
// stop the others.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) SaveRun(ctx context.Context, rec *RunRecord) error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.SaveRun(ctx, rec); err != nil {
			s.logger.Error("backend save failed", "backend", backend.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MultiStorage) Close() error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
