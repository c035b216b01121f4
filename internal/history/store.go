// Package history keeps a SQLite record of every finished run and execution.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/plan"
	_ "modernc.org/sqlite"
)

// Store persists run outcomes. It implements executor.Observer.
type Store struct {
	db     *sql.DB
	dbPath string
}

var _ executor.Observer = (*Store)(nil)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ExecutionID string
	Workflow    string
	Wave        int
	RunID       string
	Job         string
	Status      string
	Required    bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Error       string
}

// ExecutionRecord is one row of the executions table.
type ExecutionRecord struct {
	ID        string
	Workflow  string
	Succeeded bool
	Cancelled bool
	StartedAt time.Time
	Duration  time.Duration
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Observers are called from many goroutines; serialize writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		execution_id TEXT NOT NULL,
		workflow TEXT NOT NULL,
		wave INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		job TEXT NOT NULL,
		status TEXT NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		started_at TEXT,
		finished_at TEXT,
		error TEXT,
		PRIMARY KEY (execution_id, run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		workflow TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		cancelled INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RunStarted implements executor.Observer. Only terminal runs are stored.
func (s *Store) RunStarted(context.Context, executor.Event) {}

// RunFinished implements executor.Observer.
func (s *Store) RunFinished(ctx context.Context, ev executor.Event) {
	if err := s.RecordRun(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to record run history.", "run", ev.Run.ID, "error", err)
	}
}

// RecordRun stores the terminal state of one run.
func (s *Store) RecordRun(ctx context.Context, ev executor.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(execution_id, workflow, wave, run_id, job, status, required, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ExecutionID, ev.Workflow, ev.Wave, ev.Run.ID, ev.Run.Job, ev.Run.Status.String(),
		ev.Required, formatTime(ev.Run.StartedAt), formatTime(ev.Run.FinishedAt), nullString(ev.Run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordExecution stores the summary of a finished execution.
func (s *Store) RecordExecution(ctx context.Context, res *executor.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO executions (id, workflow, succeeded, cancelled, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.ExecutionID, res.Plan.Name, res.Succeeded, res.Cancelled,
		res.StartedAt.UTC().Format(time.RFC3339Nano), res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

// Runs returns the recorded runs of one execution in wave, then run order.
func (s *Store) Runs(ctx context.Context, executionID string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, workflow, wave, run_id, job, status, required, started_at, finished_at, error
		FROM runs WHERE execution_id = ? ORDER BY wave, run_id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished sql.NullString
			errMsg            sql.NullString
		)
		if err := rows.Scan(&r.ExecutionID, &r.Workflow, &r.Wave, &r.RunID, &r.Job, &r.Status,
			&r.Required, &started, &finished, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastExecution returns the most recent execution of a workflow.
func (s *Store) LastExecution(ctx context.Context, workflow string) (*ExecutionRecord, error) {
	var (
		rec      ExecutionRecord
		started  string
		duration int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, succeeded, cancelled, started_at, duration_ms
		FROM executions WHERE workflow = ? ORDER BY started_at DESC LIMIT 1`, workflow).
		Scan(&rec.ID, &rec.Workflow, &rec.Succeeded, &rec.Cancelled, &started, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query execution: %w", err)
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	rec.Duration = time.Duration(duration) * time.Millisecond
	return &rec, nil
}

// CountByStatus returns how many runs of a workflow ended in each status
// across all recorded executions.
func (s *Store) CountByStatus(ctx context.Context, workflow string) (map[plan.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM runs WHERE workflow = ? GROUP BY status`, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]plan.Status, len(plan.Statuses))
	for _, st := range plan.Statuses {
		byName[st.String()] = st
	}

	out := make(map[plan.Status]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		st, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown status %q in history", name)
		}
		out[st] = n
	}
	return out, rows.Err()
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s.String, err)
	}
	return t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
