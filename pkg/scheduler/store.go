package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/claraverse/agentflow/pkg/errors"
)

// Store persists scheduled tasks and their execution history.
// History is append-only and bounded: stores prune the oldest records
// past their configured limit, not the scheduler.
type Store interface {
	SaveTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	DeleteTask(ctx context.Context, id string) error

	AppendExecution(ctx context.Context, execution *Execution) error
	SealExecution(ctx context.Context, execution *Execution) error
	ListExecutions(ctx context.Context, taskID string) ([]*Execution, error)
	DeleteExecution(ctx context.Context, id string) error
}

// DefaultHistoryLimit bounds per-task execution history when the caller
// sets no limit.
const DefaultHistoryLimit = 50

// MemoryStore keeps tasks and executions in memory.
type MemoryStore struct {
	mu           sync.Mutex
	tasks        map[string]*Task
	executions   map[string][]*Execution // by task id, oldest first
	historyLimit int
}

// NewMemoryStore returns an in-memory store with the given per-task
// history bound; limit <= 0 means DefaultHistoryLimit.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryStore{
		tasks:        make(map[string]*Task),
		executions:   make(map[string][]*Execution),
		historyLimit: limit,
	}
}

// SaveTask inserts or replaces a task.
func (s *MemoryStore) SaveTask(_ context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return errors.New(errors.CodeInvalidInput, "task must have an id", nil)
	}
	s.mu.Lock()
	copied := *task
	s.tasks[task.ID] = &copied
	s.mu.Unlock()
	return nil
}

// GetTask returns the task with the given id.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "task %q not found", id)
	}
	copied := *task
	return &copied, nil
}

// ListTasks returns all tasks ordered by id.
func (s *MemoryStore) ListTasks(_ context.Context) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		copied := *task
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteTask removes a task and its execution history.
func (s *MemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errors.Newf(errors.CodeNotFound, "task %q not found", id)
	}
	delete(s.tasks, id)
	delete(s.executions, id)
	return nil
}

// AppendExecution records a new execution and prunes history past the
// store's bound.
func (s *MemoryStore) AppendExecution(_ context.Context, execution *Execution) error {
	if execution == nil || execution.ID == "" || execution.TaskID == "" {
		return errors.New(errors.CodeInvalidInput, "execution must have id and task id", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *execution
	history := append(s.executions[execution.TaskID], &copied)
	if overflow := len(history) - s.historyLimit; overflow > 0 {
		history = history[overflow:]
	}
	s.executions[execution.TaskID] = history
	return nil
}

// SealExecution replaces the stored record with its sealed form.
func (s *MemoryStore) SealExecution(_ context.Context, execution *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.executions[execution.TaskID]
	for i, stored := range history {
		if stored.ID == execution.ID {
			copied := *execution
			history[i] = &copied
			return nil
		}
	}
	return errors.Newf(errors.CodeNotFound, "execution %q not found", execution.ID)
}

// ListExecutions returns a task's history, oldest first.
func (s *MemoryStore) ListExecutions(_ context.Context, taskID string) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.executions[taskID]
	out := make([]*Execution, 0, len(history))
	for _, execution := range history {
		copied := *execution
		out = append(out, &copied)
	}
	return out, nil
}

// DeleteExecution removes a single execution record.
func (s *MemoryStore) DeleteExecution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for taskID, history := range s.executions {
		for i, stored := range history {
			if stored.ID == id {
				s.executions[taskID] = append(history[:i], history[i+1:]...)
				return nil
			}
		}
	}
	return errors.Newf(errors.CodeNotFound, "execution %q not found", id)
}
