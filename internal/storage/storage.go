package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/config"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// RunRecord is everything a caller persists for one finished run.
type RunRecord struct {
	RunID    string           `json:"runId"`
	StartURL string           `json:"startUrl"`
	Goal     string           `json:"goal"`
	Products []types.Product  `json:"products"`
	Summary  types.RunSummary `json:"summary"`
	StoredAt time.Time        `json:"storedAt"`
}

// Storage is the interface for all storage backends.
type Storage interface {
	// SaveRun persists the products and summary of one run.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the backend selected by cfg.Type.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case "", "json":
		return NewJSONStorage(cfg.OutputPath, logger)
	case "jsonl":
		return NewJSONLStorage(cfg.OutputPath, logger)
	case "mongo":
		return NewMongoStorage(cfg.MongoURI, cfg.Database, cfg.Collection, logger)
	default:
		return nil, &types.StorageError{Backend: cfg.Type, Err: fmt.Errorf("unsupported storage type")}
	}
}

func stamp(rec *RunRecord) {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
}
