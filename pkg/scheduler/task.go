// Package scheduler owns recurring task definitions: it computes
// next-run times, triggers the execution engine at due times and
// persists a bounded history of past runs.
package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/claraverse/agentflow/pkg/flow"
)

// TaskStatus describes the live state of a scheduled task.
type TaskStatus string

const (
	TaskIdle    TaskStatus = "idle"
	TaskRunning TaskStatus = "running"
	TaskError   TaskStatus = "error"
)

// Task is a persistent binding of a workflow graph to a recurring
// trigger schedule.
type Task struct {
	ID               string       `json:"id"`
	AgentName        string       `json:"agentName"`
	AgentDescription string       `json:"agentDescription,omitempty"`
	Schedule         ScheduleSpec `json:"schedule"`
	Graph            *flow.Graph  `json:"graph"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// NewTask creates a disabled task with a generated id.
func NewTask(name, description string, graph *flow.Graph) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:               uuid.NewString(),
		AgentName:        name,
		AgentDescription: description,
		Graph:            graph,
		Schedule:         ScheduleSpec{Status: TaskIdle},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Enable turns the schedule on and computes the next trigger from now.
func (t *Task) Enable(now time.Time) error {
	next, err := t.Schedule.NextAfter(now)
	if err != nil {
		return err
	}
	t.Schedule.Enabled = true
	t.Schedule.NextRun = &next
	t.UpdatedAt = now.UTC()
	return nil
}

// Disable turns the schedule off. NextRun is defined iff the task is
// enabled, so it is cleared here.
func (t *Task) Disable(now time.Time) {
	t.Schedule.Enabled = false
	t.Schedule.NextRun = nil
	t.UpdatedAt = now.UTC()
}

// ExecutionStatus classifies one recorded run of a task.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionError     ExecutionStatus = "error"
)

// LogEntry is one line of a recorded execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// InputRecord captures the value an entry node produced at run start.
type InputRecord struct {
	NodeName string `json:"nodeName"`
	Value    any    `json:"value"`
}

// Execution is the immutable record of one run of a scheduled task.
// It is created with status running and sealed exactly once.
type Execution struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"taskId"`
	StartTime time.Time       `json:"startTime"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
	Status    ExecutionStatus `json:"status"`
	Inputs    []InputRecord   `json:"inputs,omitempty"`
	Outputs   map[string]any  `json:"outputs,omitempty"`
	Error     string          `json:"error,omitempty"`
	Logs      []LogEntry      `json:"logs,omitempty"`
}

// newExecution opens a run record for a task.
func newExecution(taskID string, start time.Time) *Execution {
	return &Execution{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		StartTime: start.UTC(),
		Status:    ExecutionRunning,
		Outputs:   make(map[string]any),
	}
}

// seal closes the record. Sealing an already-sealed execution is a
// programming error and is ignored.
func (e *Execution) seal(status ExecutionStatus, end time.Time, errMsg string) {
	if e.EndTime != nil {
		return
	}
	end = end.UTC()
	e.EndTime = &end
	e.Duration = end.Sub(e.StartTime)
	e.Status = status
	e.Error = errMsg
}
