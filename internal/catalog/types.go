// Package catalog implements the bulk catalog import pipeline: resolving
// spreadsheet headers onto the canonical record schema, validating and
// deduplicating rows, reconciling accepted rows against the catalog store,
// and recording an audit ledger entry per committed run.
//
// The package performs no I/O of its own except through the CatalogStore and
// RunStore interfaces, which keeps the whole pipeline testable with fakes.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Canonical field identifiers. Every recognized spreadsheet header resolves
// to exactly one of these.
type Field string

const (
	FieldCode Field = "code"
	FieldName Field = "name"
	FieldRate Field = "rate"
)

// CanonicalRow is one validated, normalized catalog row ready for
// reconciliation. Immutable once produced by NormalizeRows.
type CanonicalRow struct {
	Code string   `json:"code"`
	Name string   `json:"name"`
	Rate *float64 `json:"rate"`

	// SourceRowNumber is the 1-based line number in the uploaded file
	// (header = line 1), used only for diagnostics.
	SourceRowNumber int `json:"sourceRowNumber"`
}

// RowError describes a single row that was rejected, either during
// validation or by the store during reconciliation.
type RowError struct {
	SourceRowNumber int    `json:"sourceRowNumber"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message"`
}

// RunStatus is the outcome recorded on an ImportRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ImportRun is the audit ledger entry for one committed (non-preview) import.
type ImportRun struct {
	ID        uuid.UUID  `json:"id"`
	Filename  string     `json:"filename"`
	Status    RunStatus  `json:"status"`
	Inserted  int        `json:"inserted"`
	Updated   int        `json:"updated"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Caps on error and preview payloads. The ledger keeps more detail than the
// HTTP response does; everything beyond these bounds is dropped in insertion
// order.
const (
	maxStoredErrors   = 1000
	maxReturnedErrors = 100
	maxPreviewRows    = 10
	maxPreviewErrors  = 50
)

// UpsertOutcome is the per-item result of a batched upsert. Err is non-nil
// when the store rejected this item with a recoverable conflict; item-level
// conflicts never abort the batch.
type UpsertOutcome struct {
	Code    string
	Created bool
	Err     error
}

// CatalogStore is the reconciliation target. Implementations must issue the
// whole batch in one request, isolate per-item failures, and signal
// unique-key conflicts through UpsertOutcome.Err. A returned error means the
// batch failed as a whole (infrastructure failure) and nothing should be
// assumed about individual items.
//
// Outcomes may be returned in any order; callers match them by Code.
type CatalogStore interface {
	UpsertAll(ctx context.Context, rows []CanonicalRow) ([]UpsertOutcome, error)
}

// RunStore persists and queries the import run ledger.
type RunStore interface {
	InsertRun(ctx context.Context, run *ImportRun) error
	ListRuns(ctx context.Context, limit int) ([]ImportRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*ImportRun, error)
}
