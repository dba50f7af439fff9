// Package store provides the PostgreSQL implementations of the catalog
// record store and the import run ledger.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwise/catalog-import/internal/catalog"
)

// Store satisfies catalog.CatalogStore and catalog.RunStore against a pgx
// connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool. The pool stays owned by the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS catalog_records (
	code       text PRIMARY KEY,
	name       text NOT NULL,
	rate       double precision,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_runs (
	id         uuid PRIMARY KEY,
	filename   text NOT NULL,
	status     text NOT NULL,
	inserted   integer NOT NULL DEFAULT 0,
	updated    integer NOT NULL DEFAULT 0,
	skipped    integer NOT NULL DEFAULT 0,
	errors     jsonb NOT NULL DEFAULT '[]',
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS import_runs_created_at_idx ON import_runs (created_at DESC);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const setUpsertSQL = `
INSERT INTO catalog_records (code, name, rate)
SELECT * FROM unnest($1::text[], $2::text[], $3::float8[])
ON CONFLICT (code) DO UPDATE
SET name = EXCLUDED.name, rate = EXCLUDED.rate, updated_at = now()
RETURNING code, (xmax = 0) AS inserted`

const rowUpsertSQL = `
INSERT INTO catalog_records (code, name, rate)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE
SET name = EXCLUDED.name, rate = EXCLUDED.rate, updated_at = now()
RETURNING (xmax = 0) AS inserted`

// UpsertAll merges the batch into catalog_records keyed on code, insert or
// overwrite, in one request. The fast path is a single set-based statement;
// when that statement fails on an integrity violation the batch is retried
// row-at-a-time under savepoints so the offending rows surface as per-item
// conflicts instead of poisoning the whole run.
func (s *Store) UpsertAll(ctx context.Context, rows []catalog.CanonicalRow) ([]catalog.UpsertOutcome, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	outcomes, err := s.upsertSet(ctx, rows)
	if err == nil {
		return outcomes, nil
	}
	if !isIntegrityViolation(err) {
		return nil, err
	}
	return s.upsertEach(ctx, rows)
}

func (s *Store) upsertSet(ctx context.Context, rows []catalog.CanonicalRow) ([]catalog.UpsertOutcome, error) {
	codes := make([]string, len(rows))
	names := make([]string, len(rows))
	rates := make([]pgtype.Float8, len(rows))
	for i, r := range rows {
		codes[i] = r.Code
		names[i] = r.Name
		if r.Rate != nil {
			rates[i] = pgtype.Float8{Float64: *r.Rate, Valid: true}
		}
	}

	result, err := s.pool.Query(ctx, setUpsertSQL, codes, names, rates)
	if err != nil {
		return nil, fmt.Errorf("batch upsert: %w", err)
	}
	defer result.Close()

	outcomes := make([]catalog.UpsertOutcome, 0, len(rows))
	for result.Next() {
		var out catalog.UpsertOutcome
		if err := result.Scan(&out.Code, &out.Created); err != nil {
			return nil, fmt.Errorf("batch upsert scan: %w", err)
		}
		outcomes = append(outcomes, out)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("batch upsert: %w", err)
	}
	return outcomes, nil
}

// upsertEach is the degraded path: one transaction, one savepoint per row, so
// a constraint violation rolls back only its own row.
func (s *Store) upsertEach(ctx context.Context, rows []catalog.CanonicalRow) ([]catalog.UpsertOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	outcomes := make([]catalog.UpsertOutcome, 0, len(rows))
	for i, row := range rows {
		sp := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("savepoint %s: %w", sp, err)
		}

		var rate pgtype.Float8
		if row.Rate != nil {
			rate = pgtype.Float8{Float64: *row.Rate, Valid: true}
		}

		var created bool
		err := tx.QueryRow(ctx, rowUpsertSQL, row.Code, row.Name, rate).Scan(&created)
		if err != nil {
			if !isIntegrityViolation(err) {
				return nil, fmt.Errorf("upsert code %s: %w", row.Code, err)
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint %s: %w", sp, rbErr)
			}
			outcomes = append(outcomes, catalog.UpsertOutcome{
				Code: row.Code,
				Err:  conflictError(err),
			})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("release savepoint %s: %w", sp, err)
		}
		outcomes = append(outcomes, catalog.UpsertOutcome{Code: row.Code, Created: created})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upserts: %w", err)
	}
	return outcomes, nil
}

// isIntegrityViolation reports whether err carries SQLSTATE class 23
// (integrity constraint violation). Everything in that class is treated as a
// recoverable per-item conflict; anything else is infrastructure-level.
func isIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

// conflictError reduces a constraint violation to a short message. The raw
// SQLSTATE detail stays server-side; callers see only the classification.
func conflictError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.New("duplicate key conflict")
	}
	return errors.New("constraint violation")
}

// InsertRun persists one ledger entry. Called exactly once per committed run.
func (s *Store) InsertRun(ctx context.Context, run *catalog.ImportRun) error {
	errJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}

	const q = `
INSERT INTO import_runs (id, filename, status, inserted, updated, skipped, errors, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q,
		run.ID, run.Filename, string(run.Status),
		run.Inserted, run.Updated, run.Skipped,
		errJSON, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// ListRuns returns ledger entries newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]catalog.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
SELECT id, filename, status, inserted, updated, skipped, errors, created_at
FROM import_runs
ORDER BY created_at DESC
LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var runs []catalog.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	return runs, nil
}

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("import run not found")

// GetRun fetches a single ledger entry.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*catalog.ImportRun, error) {
	const q = `
SELECT id, filename, status, inserted, updated, skipped, errors, created_at
FROM import_runs
WHERE id = $1`
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get import run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get import run: %w", err)
		}
		return nil, ErrRunNotFound
	}
	return scanRun(rows)
}

func scanRun(rows pgx.Rows) (*catalog.ImportRun, error) {
	var (
		run     catalog.ImportRun
		status  string
		errJSON []byte
	)
	if err := rows.Scan(&run.ID, &run.Filename, &status,
		&run.Inserted, &run.Updated, &run.Skipped, &errJSON, &run.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan import run: %w", err)
	}
	run.Status = catalog.RunStatus(status)
	if err := json.Unmarshal(errJSON, &run.Errors); err != nil {
		return nil, fmt.Errorf("decode run errors: %w", err)
	}
	return &run, nil
}
