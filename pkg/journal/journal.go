package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/provio/provio/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run does not exist in the journal.
var ErrNotFound = errors.New("run not found")

// Config holds journal settings.
type Config struct {
	// Path is the SQLite database file. The parent directory is created
	// if missing.
	Path string

	// Logger receives journal diagnostics.
	Logger zerolog.Logger
}

// DefaultPath returns the per-user journal location, ~/.provio/journal.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".provio", "journal.db"), nil
}

// Journal is a SQLite-backed run journal. It implements engine.Recorder for
// the write side and serves the read queries behind `provio runs`.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the journal database and applies any
// pending migrations.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// A local journal sees one writer at a time; a single connection
	// sidesteps SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	j.logger.Debug().Str("path", cfg.Path).Msg("Journal opened")
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RunStarted implements engine.Recorder.
func (j *Journal) RunStarted(ctx context.Context, runID, stackName string, steps []engine.Step) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, stack, status, step_count, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID, stackName, string(engine.StatusRunning), len(steps), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// StepFinished implements engine.Recorder. Recording the same step twice
// replaces the earlier row.
func (j *Journal) StepFinished(ctx context.Context, runID string, result *engine.StepResult) error {
	if result == nil {
		return nil
	}

	var outputs []byte
	if len(result.Outputs) > 0 {
		var err error
		outputs, err = json.Marshal(result.Outputs)
		if err != nil {
			return fmt.Errorf("failed to encode step outputs: %w", err)
		}
	}

	var resourceID string
	if result.Ref != nil {
		resourceID = result.Ref.ID
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO step_results
			(run_id, step_name, resource, outcome, decision, resource_id,
			 outputs, attempts, converged, error, warning, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			outcome = excluded.outcome,
			decision = excluded.decision,
			resource_id = excluded.resource_id,
			outputs = excluded.outputs,
			attempts = excluded.attempts,
			converged = excluded.converged,
			error = excluded.error,
			warning = excluded.warning,
			finished_at = excluded.finished_at`,
		runID,
		result.StepName,
		result.Resource,
		string(result.Outcome),
		nullString(string(result.Decision)),
		nullString(resourceID),
		nullString(string(outputs)),
		result.Attempts,
		result.Converged,
		nullString(errString(result.Err)),
		nullString(errString(result.Warning)),
		result.StartedAt.UTC(),
		result.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step result: %w", err)
	}
	return nil
}

// RunFinished implements engine.Recorder.
func (j *Journal) RunFinished(ctx context.Context, runID string, summary *engine.RunSummary) error {
	if summary == nil {
		return fmt.Errorf("run summary is required")
	}

	var manifest []byte
	if len(summary.Manifest) > 0 {
		var err error
		manifest, err = json.Marshal(summary.Manifest)
		if err != nil {
			return fmt.Errorf("failed to encode run manifest: %w", err)
		}
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, failed_step = ?, error = ?, manifest = ?, finished_at = ?
		WHERE id = ?`,
		string(summary.Status),
		nullString(summary.FailedStep),
		nullString(errString(summary.Err)),
		nullString(string(manifest)),
		summary.FinishedAt.UTC(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// Event implements engine.Recorder.
func (j *Journal) Event(ctx context.Context, event engine.Event) error {
	var data []byte
	if len(event.Data) > 0 {
		var err error
		data, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (run_id, step, type, level, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullString(event.RunID),
		nullString(event.Step),
		event.Type,
		event.Level,
		event.Message,
		nullString(string(data)),
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Run is a journaled deployment run.
type Run struct {
	ID         string                       `json:"id"`
	Stack      string                       `json:"stack"`
	Status     engine.DeploymentStatus      `json:"status"`
	StepCount  int                          `json:"step_count"`
	FailedStep string                       `json:"failed_step,omitempty"`
	Error      string                       `json:"error,omitempty"`
	Manifest   map[string]map[string]string `json:"manifest,omitempty"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt *time.Time                   `json:"finished_at,omitempty"`
}

// StepRecord is a journaled step result.
type StepRecord struct {
	RunID      string             `json:"run_id"`
	StepName   string             `json:"step_name"`
	Resource   string             `json:"resource"`
	Outcome    engine.StepOutcome `json:"outcome"`
	Decision   string             `json:"decision,omitempty"`
	ResourceID string             `json:"resource_id,omitempty"`
	Outputs    map[string]string  `json:"outputs,omitempty"`
	Attempts   int                `json:"attempts"`
	Converged  bool               `json:"converged"`
	Error      string             `json:"error,omitempty"`
	Warning    string             `json:"warning,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// EventRecord is a journaled event.
type EventRecord struct {
	ID        int64                  `json:"id"`
	RunID     string                 `json:"run_id,omitempty"`
	Step      string                 `json:"step,omitempty"`
	Type      string                 `json:"type"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ListRuns returns the most recent runs, newest first. A limit of 0 applies
// the default of 20.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, stack, status, step_count, failed_step, error, manifest, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID. ErrNotFound when absent.
func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, stack, status, step_count, failed_step, error, manifest, started_at, finished_at
		FROM runs
		WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListSteps returns the step results of a run in start order.
func (j *Journal) ListSteps(ctx context.Context, runID string) ([]*StepRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, step_name, resource, outcome, decision, resource_id,
		       outputs, attempts, converged, error, warning, started_at, finished_at
		FROM step_results
		WHERE run_id = ?
		ORDER BY started_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		var (
			rec      StepRecord
			decision sql.NullString
			resID    sql.NullString
			outputs  sql.NullString
			errMsg   sql.NullString
			warnMsg  sql.NullString
		)
		if err := rows.Scan(
			&rec.RunID, &rec.StepName, &rec.Resource, &rec.Outcome,
			&decision, &resID, &outputs, &rec.Attempts, &rec.Converged,
			&errMsg, &warnMsg, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		rec.Decision = decision.String
		rec.ResourceID = resID.String
		rec.Error = errMsg.String
		rec.Warning = warnMsg.String
		if outputs.Valid && outputs.String != "" {
			if err := json.Unmarshal([]byte(outputs.String), &rec.Outputs); err != nil {
				return nil, fmt.Errorf("failed to decode step outputs: %w", err)
			}
		}
		steps = append(steps, &rec)
	}
	return steps, rows.Err()
}

// ListEvents returns a run's events in emission order.
func (j *Journal) ListEvents(ctx context.Context, runID string) ([]*EventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_id, step, type, level, message, data, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var (
			rec   EventRecord
			runID sql.NullString
			step  sql.NullString
			data  sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &runID, &step, &rec.Type, &rec.Level,
			&rec.Message, &data, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.RunID = runID.String
		rec.Step = step.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &rec.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, &rec)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		failedStep sql.NullString
		errMsg     sql.NullString
		manifest   sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&run.ID, &run.Stack, &run.Status, &run.StepCount,
		&failedStep, &errMsg, &manifest, &run.StartedAt, &finishedAt,
	); err != nil {
		return nil, err
	}
	run.FailedStep = failedStep.String
	run.Error = errMsg.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if manifest.Valid && manifest.String != "" {
		if err := json.Unmarshal([]byte(manifest.String), &run.Manifest); err != nil {
			return nil, fmt.Errorf("failed to decode run manifest: %w", err)
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func errString(err *engine.DeployError) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
