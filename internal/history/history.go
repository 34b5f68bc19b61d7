// Package history persists verification reports in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contractkit/internal/verifier"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

// maxLimit caps how many runs Recent returns.
const maxLimit = 1000

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("verification run not found")

// Store reads and writes verification runs.
type Store struct {
	db *sql.DB
}

// NewStore creates the history tables if they don't exist.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS verification_runs (
			id TEXT PRIMARY KEY,
			base_url TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			duration_ns INTEGER DEFAULT 0,
			passed INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification_runs table: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS verification_results (
			run_id TEXT NOT NULL REFERENCES verification_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			contract TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			passed INTEGER NOT NULL,
			status_code INTEGER DEFAULT 0,
			duration_ns INTEGER DEFAULT 0,
			failures JSON,
			PRIMARY KEY (run_id, position)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification_results table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON verification_runs(started_at)",
		"CREATE INDEX IF NOT EXISTS idx_results_contract ON verification_results(contract)",
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	return &Store{db: db}, nil
}

// Save writes a report and its results in one transaction.
func (s *Store) Save(ctx context.Context, report verifier.Report) error {
	if report.RunID == "" {
		return fmt.Errorf("report has no run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO verification_runs (id, base_url, started_at, duration_ns, passed, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.BaseURL,
		report.StartedAt.UTC().Format(timeLayout),
		int64(report.Duration),
		report.Passed,
		report.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification run %s: %w", report.RunID, err)
	}

	for i, r := range report.Results {
		var failures any
		if len(r.Failures) > 0 {
			raw, err := json.Marshal(r.Failures)
			if err != nil {
				return fmt.Errorf("failed to marshal failures for %s: %w", r.Contract, err)
			}
			failures = string(raw)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO verification_results (run_id, position, contract, fingerprint, passed, status_code, duration_ns, failures)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, i, r.Contract, r.Fingerprint, boolToInt(r.Passed), r.Status, int64(r.Duration), failures,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.Contract, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verification run %s: %w", report.RunID, err)
	}
	return nil
}

// Recent returns the latest runs, newest first, with their results.
func (s *Store) Recent(ctx context.Context, limit int) ([]verifier.Report, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, base_url, started_at, duration_ns, passed, failed
		FROM verification_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification runs: %w", err)
	}

	var reports []verifier.Report
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating verification runs: %w", err)
	}
	rows.Close()

	// Results are loaded after the runs cursor is closed; the pool has a
	// single connection.
	for i := range reports {
		results, err := s.results(ctx, reports[i].RunID)
		if err != nil {
			return nil, err
		}
		reports[i].Results = results
	}
	return reports, nil
}

// Get returns a single run by id.
func (s *Store) Get(ctx context.Context, runID string) (verifier.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, base_url, started_at, duration_ns, passed, failed FROM verification_runs WHERE id = ?`, runID)
	report, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return verifier.Report{}, ErrNotFound
	}
	if err != nil {
		return verifier.Report{}, err
	}

	report.Results, err = s.results(ctx, runID)
	if err != nil {
		return verifier.Report{}, err
	}
	return report, nil
}

func (s *Store) results(ctx context.Context, runID string) ([]verifier.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT contract, fingerprint, passed, status_code, duration_ns, failures
		FROM verification_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results for run %s: %w", runID, err)
	}
	defer rows.Close()

	results := []verifier.Result{}
	for rows.Next() {
		var (
			r          verifier.Result
			passed     int
			durationNs int64
			failures   sql.NullString
		)
		if err := rows.Scan(&r.Contract, &r.Fingerprint, &passed, &r.Status, &durationNs, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.Passed = passed != 0
		r.Duration = time.Duration(durationNs)
		if failures.Valid && failures.String != "" {
			if err := json.Unmarshal([]byte(failures.String), &r.Failures); err != nil {
				slog.Warn("failed to unmarshal verification failures", "error", err, "run_id", runID, "contract", r.Contract)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results for run %s: %w", runID, err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (verifier.Report, error) {
	var (
		r          verifier.Report
		startedAt  string
		durationNs int64
	)
	if err := row.Scan(&r.RunID, &r.BaseURL, &startedAt, &durationNs, &r.Passed, &r.Failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan verification run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		slog.Warn("failed to parse run timestamp", "error", err, "run_id", r.RunID, "raw", startedAt)
	}
	r.StartedAt = t
	r.Duration = time.Duration(durationNs)
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
