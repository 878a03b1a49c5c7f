package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// --- JSON Storage ---

// JSONStorage writes each run to its own indented JSON file named after the
// run id.
type JSONStorage struct {
	dir    string
	mu     sync.Mutex
	runs   int
	logger *slog.Logger
}

// NewJSONStorage creates a JSON storage rooted at dir.
func NewJSONStorage(dir string, logger *slog.Logger) (*JSONStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "json", Err: fmt.Errorf("create output dir: %w", err)}
	}
	return &JSONStorage{
		dir:    dir,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

// Path returns the file a run is written to.
func (s *JSONStorage) Path(runID string) string {
	return filepath.Join(s.dir, "run-"+runID+".json")
}

func (s *JSONStorage) SaveRun(_ context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(rec)

	tmp := s.Path(rec.RunID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &types.StorageError{Backend: "json", Err: fmt.Errorf("create output file: %w", err)}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		f.Close()
		os.Remove(tmp)
		return &types.StorageError{Backend: "json", Err: fmt.Errorf("encode JSON: %w", err)}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &types.StorageError{Backend: "json", Err: err}
	}
	if err := os.Rename(tmp, s.Path(rec.RunID)); err != nil {
		return &types.StorageError{Backend: "json", Err: err}
	}

	s.runs++
	s.logger.Info("run written", "path", s.Path(rec.RunID), "products", len(rec.Products))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("json storage closed", "runs", s.runs)
	return nil
}

// --- JSONL Storage ---

// productLine is one products.jsonl record.
type productLine struct {
	RunID string `json:"runId"`
	types.Product
}

// runLine is one runs.jsonl record.
type runLine struct {
	RunID    string           `json:"runId"`
	StartURL string           `json:"startUrl"`
	Goal     string           `json:"goal"`
	Summary  types.RunSummary `json:"summary"`
}

// JSONLStorage appends products to products.jsonl and one summary line per
// run to runs.jsonl, both under dir.
type JSONLStorage struct {
	products *os.File
	runs     *os.File
	mu       sync.Mutex
	count    int
	logger   *slog.Logger
}

// NewJSONLStorage opens (or creates) the JSONL files under dir.
func NewJSONLStorage(dir string, logger *slog.Logger) (*JSONLStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("create output dir: %w", err)}
	}
	products, err := openAppend(filepath.Join(dir, "products.jsonl"))
	if err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: err}
	}
	runs, err := openAppend(filepath.Join(dir, "runs.jsonl"))
	if err != nil {
		products.Close()
		return nil, &types.StorageError{Backend: "jsonl", Err: err}
	}
	return &JSONLStorage{
		products: products,
		runs:     runs,
		logger:   logger.With("component", "jsonl_storage"),
	}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) SaveRun(_ context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.products)
	for _, p := range rec.Products {
		if err := enc.Encode(productLine{RunID: rec.RunID, Product: p}); err != nil {
			return &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("encode product: %w", err)}
		}
	}
	line := runLine{RunID: rec.RunID, StartURL: rec.StartURL, Goal: rec.Goal, Summary: rec.Summary}
	if err := json.NewEncoder(s.runs).Encode(line); err != nil {
		return &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("encode summary: %w", err)}
	}

	s.count += len(rec.Products)
	s.logger.Debug("run appended", "run_id", rec.RunID, "products", len(rec.Products), "total", s.count)
	return nil
}

func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("jsonl storage closing", "total_products", s.count)
	err := s.products.Close()
	if rerr := s.runs.Close(); err == nil {
		err = rerr
	}
	return err
}
