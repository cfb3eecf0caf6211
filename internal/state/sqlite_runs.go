package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// CreateRun creates a new pipeline run.
func (s *SQLiteStore) CreateRun(engine string, steps int) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{
		ID:        generateID(),
		Engine:    engine,
		Steps:     steps,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("engine", engine), slog.Int("steps", steps))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, engine, steps, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Engine, run.Steps, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, engine, steps, status, started_at, completed_at, error FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, engine, steps, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*core.Run, error) {
	var (
		run         core.Run
		status      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Engine, &run.Steps, &status, &run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	run.Status = core.RunStatus(status)
	run.CompletedAt = timePtr(completedAt)
	run.Error = errMsg.String
	return &run, nil
}
