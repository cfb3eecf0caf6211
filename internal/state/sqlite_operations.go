package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// RecordOperationRun inserts an operation run. An empty ID is generated.
func (s *SQLiteStore) RecordOperationRun(op *core.OperationRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if op.ID == "" {
		op.ID = generateID()
	}
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO operation_runs
		 (id, run_id, request_id, operation, status, layer_id, attempts, repaired, error_kind, error, started_at, completed_at, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.RunID, op.RequestID, op.Operation, string(op.Status), op.LayerID,
		op.Attempts, op.Repaired, op.ErrorKind, op.Error, op.StartedAt, op.CompletedAt, op.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record operation run: %w", err)
	}
	return nil
}

// UpdateOperationRun stores the outcome fields of an operation run.
func (s *SQLiteStore) UpdateOperationRun(op *core.OperationRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE operation_runs
		 SET status = ?, layer_id = ?, attempts = ?, repaired = ?, error_kind = ?, error = ?, completed_at = ?, execution_ms = ?
		 WHERE id = ?`,
		string(op.Status), op.LayerID, op.Attempts, op.Repaired, op.ErrorKind, op.Error,
		op.CompletedAt, op.ExecutionMS, op.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("operation run not found: %s", op.ID)
	}
	return nil
}

// GetOperationRunsForRun returns the operation runs of a run in start order.
func (s *SQLiteStore) GetOperationRunsForRun(runID string) ([]*core.OperationRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, request_id, operation, status, layer_id, attempts, repaired,
		        error_kind, error, started_at, completed_at, execution_ms
		 FROM operation_runs WHERE run_id = ? ORDER BY started_at, rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.OperationRun
	for rows.Next() {
		var (
			op          core.OperationRun
			status      string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.RunID, &op.RequestID, &op.Operation, &status, &op.LayerID,
			&op.Attempts, &op.Repaired, &op.ErrorKind, &op.Error, &op.StartedAt, &completedAt, &op.ExecutionMS); err != nil {
			return nil, fmt.Errorf("failed to scan operation run: %w", err)
		}
		op.Status = core.ResultStatus(status)
		op.CompletedAt = timePtr(completedAt)
		out = append(out, &op)
	}
	return out, rows.Err()
}
