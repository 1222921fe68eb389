package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

const (
	taskTable      = "scheduled_tasks"
	executionTable = "task_executions"
)

// SQLiteStore persists tasks and executions in a SQLite database.
type SQLiteStore struct {
	db           *sql.DB
	historyLimit int
}

// NewSQLiteStore creates a SQLite-backed store and ensures schema.
// limit <= 0 means DefaultHistoryLimit.
func NewSQLiteStore(db *sql.DB, limit int) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if err := ensureSchedulerSchema(db); err != nil {
		return nil, errors.New(errors.CodeStoreError, "ensure schema", err)
	}
	return &SQLiteStore{db: db, historyLimit: limit}, nil
}

// OpenSQLiteStore opens (creating if needed) a SQLite database file and
// returns a store backed by it.
func OpenSQLiteStore(path string, limit int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "open sqlite database", err)
	}
	return NewSQLiteStore(db, limit)
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func ensureSchedulerSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + taskTable + ` (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			agent_description TEXT,
			schedule_json TEXT NOT NULL,
			graph_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ` + executionTable + ` (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_text TEXT,
			inputs_json TEXT,
			outputs_json TEXT,
			logs_json TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + executionTable + `_task ON ` + executionTable + `(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_` + executionTable + `_start ON ` + executionTable + `(start_time);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveTask inserts or replaces a task.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return errors.New(errors.CodeInvalidInput, "task must have an id", nil)
	}
	scheduleJSON, err := json.Marshal(task.Schedule)
	if err != nil {
		return errors.New(errors.CodeStoreError, "encode schedule", err)
	}
	graphJSON, err := json.Marshal(task.Graph)
	if err != nil {
		return errors.New(errors.CodeStoreError, "encode graph", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+taskTable+` (id, agent_name, agent_description, schedule_json, graph_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_name = excluded.agent_name,
			agent_description = excluded.agent_description,
			schedule_json = excluded.schedule_json,
			graph_json = excluded.graph_json,
			updated_at = excluded.updated_at
	`, task.ID, task.AgentName, task.AgentDescription, string(scheduleJSON), string(graphJSON),
		task.CreatedAt.UTC(), task.UpdatedAt.UTC())
	if err != nil {
		return errors.New(errors.CodeStoreError, "save task", err)
	}
	return nil
}

// GetTask returns the task with the given id.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_name, agent_description, schedule_json, graph_json, created_at, updated_at
		FROM `+taskTable+` WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CodeNotFound, "task %q not found", id)
	}
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "get task", err)
	}
	return task, nil
}

// ListTasks returns all tasks ordered by id.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_name, agent_description, schedule_json, graph_json, created_at, updated_at
		FROM `+taskTable+` ORDER BY id ASC
	`)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list tasks", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStoreError, "list tasks", err)
	}
	return tasks, nil
}

// DeleteTask removes a task and its execution history.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+taskTable+` WHERE id = ?`, id)
	if err != nil {
		return errors.New(errors.CodeStoreError, "delete task", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Newf(errors.CodeNotFound, "task %q not found", id)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+executionTable+` WHERE task_id = ?`, id); err != nil {
		return errors.New(errors.CodeStoreError, "delete task executions", err)
	}
	return nil
}

// AppendExecution records a new execution and prunes the oldest records
// past the store's history bound.
func (s *SQLiteStore) AppendExecution(ctx context.Context, execution *Execution) error {
	if execution == nil || execution.ID == "" || execution.TaskID == "" {
		return errors.New(errors.CodeInvalidInput, "execution must have id and task id", nil)
	}
	if err := s.writeExecution(ctx, execution, true); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM `+executionTable+` WHERE task_id = ? AND id NOT IN (
			SELECT id FROM `+executionTable+` WHERE task_id = ?
			ORDER BY start_time DESC LIMIT ?
		)
	`, execution.TaskID, execution.TaskID, s.historyLimit)
	if err != nil {
		return errors.New(errors.CodeStoreError, "prune executions", err)
	}
	return nil
}

// SealExecution updates the stored record with its sealed form.
func (s *SQLiteStore) SealExecution(ctx context.Context, execution *Execution) error {
	return s.writeExecution(ctx, execution, false)
}

func (s *SQLiteStore) writeExecution(ctx context.Context, execution *Execution, insert bool) error {
	inputsJSON, err := json.Marshal(execution.Inputs)
	if err != nil {
		return errors.New(errors.CodeStoreError, "encode inputs", err)
	}
	outputsJSON, err := json.Marshal(execution.Outputs)
	if err != nil {
		return errors.New(errors.CodeStoreError, "encode outputs", err)
	}
	logsJSON, err := json.Marshal(execution.Logs)
	if err != nil {
		return errors.New(errors.CodeStoreError, "encode logs", err)
	}
	var endTime any
	if execution.EndTime != nil {
		endTime = execution.EndTime.UTC()
	}

	if insert {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO `+executionTable+` (id, task_id, start_time, end_time, duration_ms, status, error_text, inputs_json, outputs_json, logs_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, execution.ID, execution.TaskID, execution.StartTime.UTC(), endTime,
			execution.Duration.Milliseconds(), string(execution.Status), execution.Error,
			string(inputsJSON), string(outputsJSON), string(logsJSON))
	} else {
		var result sql.Result
		result, err = s.db.ExecContext(ctx, `
			UPDATE `+executionTable+`
			SET end_time = ?, duration_ms = ?, status = ?, error_text = ?, inputs_json = ?, outputs_json = ?, logs_json = ?
			WHERE id = ?
		`, endTime, execution.Duration.Milliseconds(), string(execution.Status), execution.Error,
			string(inputsJSON), string(outputsJSON), string(logsJSON), execution.ID)
		if err == nil {
			if affected, _ := result.RowsAffected(); affected == 0 {
				return errors.Newf(errors.CodeNotFound, "execution %q not found", execution.ID)
			}
		}
	}
	if err != nil {
		return errors.New(errors.CodeStoreError, "write execution", err)
	}
	return nil
}

// ListExecutions returns a task's history, oldest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, taskID string) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, start_time, end_time, duration_ms, status, error_text, inputs_json, outputs_json, logs_json
		FROM `+executionTable+` WHERE task_id = ? ORDER BY start_time ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list executions", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var (
			execution   Execution
			endTime     sql.NullTime
			durationMs  int64
			inputsJSON  sql.NullString
			outputsJSON sql.NullString
			logsJSON    sql.NullString
		)
		if err := rows.Scan(
			&execution.ID,
			&execution.TaskID,
			&execution.StartTime,
			&endTime,
			&durationMs,
			&execution.Status,
			&execution.Error,
			&inputsJSON,
			&outputsJSON,
			&logsJSON,
		); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan execution", err)
		}
		if endTime.Valid {
			end := endTime.Time
			execution.EndTime = &end
		}
		execution.Duration = time.Duration(durationMs) * time.Millisecond
		decodeJSON(inputsJSON, &execution.Inputs, execution.ID, "inputs")
		decodeJSON(outputsJSON, &execution.Outputs, execution.ID, "outputs")
		decodeJSON(logsJSON, &execution.Logs, execution.ID, "logs")
		executions = append(executions, &execution)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStoreError, "list executions", err)
	}
	return executions, nil
}

// DeleteExecution removes a single execution record.
func (s *SQLiteStore) DeleteExecution(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+executionTable+` WHERE id = ?`, id)
	if err != nil {
		return errors.New(errors.CodeStoreError, "delete execution", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errors.Newf(errors.CodeNotFound, "execution %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task         Task
		scheduleJSON string
		graphJSON    string
	)
	if err := row.Scan(&task.ID, &task.AgentName, &task.AgentDescription,
		&scheduleJSON, &graphJSON, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scheduleJSON), &task.Schedule); err != nil {
		return nil, err
	}
	var graph flow.Graph
	if err := json.Unmarshal([]byte(graphJSON), &graph); err != nil {
		return nil, err
	}
	task.Graph = &graph
	return &task, nil
}

// decodeJSON fills target from a nullable JSON column. A corrupt value
// is logged and left zero rather than failing the whole listing.
func decodeJSON[T any](raw sql.NullString, target *T, executionID, field string) {
	if !raw.Valid || raw.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw.String), target); err != nil {
		slog.Default().Warn("scheduler.store.decode",
			slog.String("execution_id", executionID),
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
	}
}
