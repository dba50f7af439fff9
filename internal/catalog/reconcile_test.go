package catalog

import (
	"context"
	"errors"
	"testing"
)

// fakeCatalogStore records upsert calls and plays back scripted outcomes.
// With no script it behaves like an empty catalog: every code is created
// on first sight and updated afterwards.
type fakeCatalogStore struct {
	calls    int
	lastRows []CanonicalRow
	existing map[string]bool

	outcomes []UpsertOutcome // scripted outcomes, used verbatim when set
	err      error           // batch-level failure
	rowErrs  map[string]error
}

func (f *fakeCatalogStore) UpsertAll(ctx context.Context, rows []CanonicalRow) ([]UpsertOutcome, error) {
	f.calls++
	f.lastRows = rows

	if f.err != nil {
		return nil, f.err
	}
	if f.outcomes != nil {
		return f.outcomes, nil
	}

	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	outcomes := make([]UpsertOutcome, 0, len(rows))
	for _, row := range rows {
		if err, ok := f.rowErrs[row.Code]; ok {
			outcomes = append(outcomes, UpsertOutcome{Code: row.Code, Err: err})
			continue
		}
		outcomes = append(outcomes, UpsertOutcome{Code: row.Code, Created: !f.existing[row.Code]})
		f.existing[row.Code] = true
	}
	return outcomes, nil
}

// ============================================================================
// Reconcile Tests
// ============================================================================

func someRows(codes ...string) []CanonicalRow {
	rows := make([]CanonicalRow, len(codes))
	for i, c := range codes {
		rows[i] = CanonicalRow{Code: c, Name: "Book " + c, SourceRowNumber: i + 2}
	}
	return rows
}

func TestReconcileEmptyBatch(t *testing.T) {
	store := &fakeCatalogStore{}

	res, err := Reconcile(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Inserted != 0 || res.Updated != 0 || len(res.StoreErrors) != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
	if store.calls != 0 {
		t.Errorf("store called %d times for empty batch, want 0", store.calls)
	}
}

func TestReconcileInsertThenUpdate(t *testing.T) {
	store := &fakeCatalogStore{}
	rows := someRows("B001", "B002", "B003")

	first, err := Reconcile(context.Background(), store, rows)
	if err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	if first.Inserted != 3 || first.Updated != 0 {
		t.Errorf("first run = %+v, want 3 inserted", first)
	}

	// Same batch again: idempotent upsert, everything becomes an update
	second, err := Reconcile(context.Background(), store, rows)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if second.Inserted != 0 || second.Updated != 3 {
		t.Errorf("second run = %+v, want 3 updated", second)
	}

	if store.calls != 2 {
		t.Errorf("store calls = %d, want exactly one per run", store.calls)
	}
}

func TestReconcilePerItemConflictAbsorbed(t *testing.T) {
	store := &fakeCatalogStore{
		rowErrs: map[string]error{"B002": errors.New("constraint violation")},
	}
	rows := someRows("B001", "B002", "B003")

	res, err := Reconcile(context.Background(), store, rows)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", res.Inserted)
	}
	if len(res.StoreErrors) != 1 {
		t.Fatalf("StoreErrors = %v, want 1", res.StoreErrors)
	}

	re := res.StoreErrors[0]
	if re.Code != "B002" || re.SourceRowNumber != 3 {
		t.Errorf("StoreErrors[0] = %+v, want code B002 at source row 3", re)
	}
}

func TestReconcileFatalStoreError(t *testing.T) {
	store := &fakeCatalogStore{err: errors.New("connection refused")}

	_, err := Reconcile(context.Background(), store, someRows("B001"))

	var fatal *StoreFatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Reconcile() error = %v, want *StoreFatalError", err)
	}
}

func TestReconcileOutcomeCountMismatch(t *testing.T) {
	store := &fakeCatalogStore{
		outcomes: []UpsertOutcome{{Code: "B001", Created: true}},
	}

	_, err := Reconcile(context.Background(), store, someRows("B001", "B002"))

	var fatal *StoreFatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Reconcile() error = %v, want *StoreFatalError", err)
	}
}

func TestReconcileUnknownOutcomeCode(t *testing.T) {
	store := &fakeCatalogStore{
		outcomes: []UpsertOutcome{{Code: "GHOST", Created: true}},
	}

	_, err := Reconcile(context.Background(), store, someRows("B001"))

	var fatal *StoreFatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Reconcile() error = %v, want *StoreFatalError", err)
	}
}

func TestReconcileOutcomesInAnyOrder(t *testing.T) {
	store := &fakeCatalogStore{
		outcomes: []UpsertOutcome{
			{Code: "B002", Created: false},
			{Code: "B001", Created: true},
		},
	}

	res, err := Reconcile(context.Background(), store, someRows("B001", "B002"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 {
		t.Errorf("result = %+v, want 1 inserted and 1 updated", res)
	}
}
