// Package history persists a summary of every coordination run in a local
// SQLite database. A Store is owned by its caller; nothing in fanout keeps
// global run bookkeeping.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/errors"
)

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 20

// Run is one stored coordination run.
type Run struct {
	ID               string              `json:"id"`
	RunID            string              `json:"runId"`
	Strategy         string              `json:"strategy"`
	Success          bool                `json:"success"`
	Canceled         bool                `json:"canceled"`
	ConflictStrategy string              `json:"conflictStrategy"`
	Metrics          coordinator.Metrics `json:"metrics"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// Store is a run history backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			run_id            TEXT NOT NULL,
			strategy          TEXT NOT NULL,
			success           BOOLEAN NOT NULL,
			canceled          BOOLEAN NOT NULL DEFAULT FALSE,
			conflict_strategy TEXT,
			metrics           TEXT NOT NULL,
			created_at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Record stores a summary of res and returns it.
func (s *Store) Record(ctx context.Context, res *coordinator.Result) (*Run, error) {
	if res == nil {
		return nil, errors.NewValidationError("result is required").WithField("result")
	}
	run := &Run{
		ID:        ulid.Make().String(),
		RunID:     res.RunID,
		Strategy:  string(res.Strategy),
		Success:   res.Success,
		Canceled:  res.Canceled,
		Metrics:   res.Metrics,
		CreatedAt: time.Now().UTC(),
	}
	if res.Conflicts != nil {
		run.ConflictStrategy = string(res.Conflicts.Strategy)
	}

	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, run_id, strategy, success, canceled, conflict_strategy, metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunID, run.Strategy, run.Success, run.Canceled, run.ConflictStrategy,
		string(metrics), run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

const runColumns = `id, run_id, strategy, success, canceled, conflict_strategy, metrics, created_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	r := &Run{}
	var (
		conflictStrategy sql.NullString
		metrics          string
		created          string
	)
	if err := scanner.Scan(&r.ID, &r.RunID, &r.Strategy, &r.Success, &r.Canceled, &conflictStrategy, &metrics, &created); err != nil {
		return nil, err
	}
	r.ConflictStrategy = conflictStrategy.String
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics of run %s: %w", r.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("decode created_at of run %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Get returns the run with the given ID, or a NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}
