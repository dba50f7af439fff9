package catalog

// reconcile.go merges an accepted batch into the catalog store with
// idempotent upserts keyed on code: insert when absent, overwrite name and
// rate when present (last writer wins, no field-level merging).
//
// The batch is not atomic. The store isolates per-item failures and reports
// them through UpsertOutcome.Err; those are folded into RowErrors here. Only
// an infrastructure-level failure aborts the run.

import (
	"context"
	"fmt"
)

// ReconcileResult aggregates the outcome of one batched upsert.
// Inserted + Updated + len(StoreErrors) equals the number of executed items.
type ReconcileResult struct {
	Inserted    int
	Updated     int
	StoreErrors []RowError
}

// Reconcile issues exactly one batched upsert for the accepted rows and maps
// the per-item outcomes back to source row numbers. Codes in accepted must be
// pairwise distinct (NormalizeRows guarantees this), which makes the
// code→row mapping unambiguous even though the store may return outcomes in
// any order.
//
// A non-nil error is always a *StoreFatalError; no ledger entry should be
// written when it occurs.
func Reconcile(ctx context.Context, store CatalogStore, accepted []CanonicalRow) (ReconcileResult, error) {
	var res ReconcileResult
	if len(accepted) == 0 {
		return res, nil
	}

	rowByCode := make(map[string]CanonicalRow, len(accepted))
	for _, row := range accepted {
		rowByCode[row.Code] = row
	}

	outcomes, err := store.UpsertAll(ctx, accepted)
	if err != nil {
		return ReconcileResult{}, &StoreFatalError{Err: err}
	}
	if len(outcomes) != len(accepted) {
		return ReconcileResult{}, &StoreFatalError{
			Err: fmt.Errorf("store returned %d outcomes for %d rows", len(outcomes), len(accepted)),
		}
	}

	for _, out := range outcomes {
		row, ok := rowByCode[out.Code]
		if !ok {
			return ReconcileResult{}, &StoreFatalError{
				Err: fmt.Errorf("store returned outcome for unknown code %q", out.Code),
			}
		}

		switch {
		case out.Err != nil:
			res.StoreErrors = append(res.StoreErrors, RowError{
				SourceRowNumber: row.SourceRowNumber,
				Code:            row.Code,
				Message:         fmt.Sprintf("store rejected row: %v", out.Err),
			})
		case out.Created:
			res.Inserted++
		default:
			res.Updated++
		}
	}

	return res, nil
}
