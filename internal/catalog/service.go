package catalog

// service.go orchestrates one import request through the pipeline stages:
// decode → resolve headers → validate → (preview: stop) or
// (commit: reconcile → record ledger entry).
//
// Any failure before reconciliation aborts with a caller-visible error and no
// store mutation and no ledger entry. Per-row failures during reconciliation
// are absorbed; a fatal store failure surfaces with no partial ledger entry.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bookwise/catalog-import/internal/decode"
	"github.com/bookwise/catalog-import/internal/logging"
)

// Options configures a Service.
type Options struct {
	// MaxFileSize is the upload size ceiling in bytes. Zero disables the check.
	MaxFileSize int64

	// Synonyms is the header synonym table. Nil means DefaultSynonyms.
	Synonyms SynonymTable
}

// Service runs catalog imports against the configured stores.
type Service struct {
	catalog  CatalogStore
	runs     RunStore
	maxSize  int64
	synonyms SynonymTable
}

// NewService wires the pipeline to its store collaborators.
func NewService(catalog CatalogStore, runs RunStore, opts Options) *Service {
	syn := opts.Synonyms
	if syn == nil {
		syn = DefaultSynonyms()
	}
	return &Service{
		catalog:  catalog,
		runs:     runs,
		maxSize:  opts.MaxFileSize,
		synonyms: syn,
	}
}

// ImportRequest is one uploaded file plus its processing mode.
type ImportRequest struct {
	Filename string
	Data     []byte
	DryRun   bool
}

// PreviewResult is the bounded dry-run response: no store mutation, no ledger
// entry, just what validation would accept and reject.
type PreviewResult struct {
	Preview     []CanonicalRow `json:"preview"`
	TotalRows   int            `json:"totalRows"`
	ErrorsCount int            `json:"errorsCount"`
	Errors      []RowError     `json:"errors"`
}

// ImportResult is the committed-run response. Errors is truncated harder than
// the ledger entry is; the full (capped) list lives on the ImportRun.
type ImportResult struct {
	ImportID    uuid.UUID  `json:"importId"`
	Filename    string     `json:"filename"`
	Inserted    int        `json:"inserted"`
	Updated     int        `json:"updated"`
	Skipped     int        `json:"skipped"`
	ErrorsCount int        `json:"errorsCount"`
	Errors      []RowError `json:"errors"`
}

// prepare runs the pure stages shared by preview and commit.
func (s *Service) prepare(req ImportRequest) (accepted []CanonicalRow, rejected []RowError, err error) {
	if s.maxSize > 0 && int64(len(req.Data)) > s.maxSize {
		return nil, nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, len(req.Data), s.maxSize)
	}

	table, err := decode.Decode(req.Data, req.Filename)
	if err != nil {
		return nil, nil, err
	}
	if len(table.Rows) == 0 {
		return nil, nil, ErrNoData
	}

	hm, err := ResolveHeaders(table.Headers, s.synonyms)
	if err != nil {
		return nil, nil, err
	}

	accepted, rejected = NormalizeRows(table.Rows, hm)
	return accepted, rejected, nil
}

// Preview runs decode → resolve → validate and returns a bounded preview.
// It never touches the catalog store or the ledger.
func (s *Service) Preview(ctx context.Context, req ImportRequest) (*PreviewResult, error) {
	accepted, rejected, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("import preview",
		"filename", req.Filename,
		"accepted", len(accepted),
		"rejected", len(rejected),
	)

	return &PreviewResult{
		Preview:     truncateRows(accepted, maxPreviewRows),
		TotalRows:   len(accepted),
		ErrorsCount: len(rejected),
		Errors:      truncateErrors(rejected, maxPreviewErrors),
	}, nil
}

// Import commits an upload: validated rows are reconciled into the catalog
// and a single ledger entry is recorded. Per-row store conflicts are folded
// into the error list; a fatal store failure propagates and leaves no ledger
// entry behind.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	logger := logging.WithFields(ctx, "filename", req.Filename)

	accepted, rejected, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	rec, err := Reconcile(ctx, s.catalog, accepted)
	if err != nil {
		return nil, err
	}

	allErrors := make([]RowError, 0, len(rejected)+len(rec.StoreErrors))
	allErrors = append(allErrors, rejected...)
	allErrors = append(allErrors, rec.StoreErrors...)
	skipped := len(rejected) + len(rec.StoreErrors)

	// Deliberately asymmetric: all accumulated errors (store-level ones
	// included) are compared against the accepted count, not the original
	// row count. Preserved from the system this replaces.
	status := RunCompleted
	if len(allErrors) > len(accepted) {
		status = RunFailed
	}

	run := &ImportRun{
		ID:        uuid.New(),
		Filename:  req.Filename,
		Status:    status,
		Inserted:  rec.Inserted,
		Updated:   rec.Updated,
		Skipped:   skipped,
		Errors:    truncateErrors(allErrors, maxStoredErrors),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.InsertRun(ctx, run); err != nil {
		return nil, &StoreFatalError{Err: fmt.Errorf("record import run: %w", err)}
	}

	logger.Info("import committed",
		"import_id", run.ID,
		"status", run.Status,
		"inserted", run.Inserted,
		"updated", run.Updated,
		"skipped", run.Skipped,
		"errors", len(allErrors),
	)

	return &ImportResult{
		ImportID:    run.ID,
		Filename:    run.Filename,
		Inserted:    run.Inserted,
		Updated:     run.Updated,
		Skipped:     run.Skipped,
		ErrorsCount: len(allErrors),
		Errors:      truncateErrors(allErrors, maxReturnedErrors),
	}, nil
}

// ListRuns returns the most recent ledger entries, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	return s.runs.ListRuns(ctx, limit)
}

// GetRun fetches one ledger entry by ID.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	return s.runs.GetRun(ctx, id)
}

func truncateRows(rows []CanonicalRow, max int) []CanonicalRow {
	if len(rows) <= max {
		return rows
	}
	return rows[:max]
}

func truncateErrors(errs []RowError, max int) []RowError {
	if len(errs) <= max {
		return errs
	}
	return errs[:max]
}
