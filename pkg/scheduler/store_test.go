package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

func testGraph() *flow.Graph {
	return &flow.Graph{
		ID:   "g1",
		Name: "test graph",
		Nodes: []flow.Node{
			{ID: "src", Type: "textSource", Outputs: []flow.PortType{"text"}},
			{ID: "out", Type: "output", Inputs: []flow.PortType{"text"}},
		},
		Edges: []flow.Edge{
			{Source: "src", SourceOutput: "text", Target: "out", TargetInput: "text"},
		},
	}
}

// storeUnderTest runs the same contract checks against every Store
// implementation.
func storeUnderTest(t *testing.T, name string, open func(t *testing.T, limit int) Store) {
	ctx := context.Background()

	t.Run(name+"/task crud", func(t *testing.T) {
		store := open(t, 0)
		task := NewTask("reporter", "daily report", testGraph())
		task.Schedule.Interval = Hourly

		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}
		loaded, err := store.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if loaded.AgentName != "reporter" || loaded.Schedule.Interval != Hourly {
			t.Fatalf("loaded task mismatch: %+v", loaded)
		}
		if loaded.Graph == nil || len(loaded.Graph.Nodes) != 2 {
			t.Fatalf("graph not round-tripped: %+v", loaded.Graph)
		}

		task.AgentName = "renamed"
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask update: %v", err)
		}
		loaded, err = store.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask after update: %v", err)
		}
		if loaded.AgentName != "renamed" {
			t.Fatalf("update not persisted, got %q", loaded.AgentName)
		}

		tasks, err := store.ListTasks(ctx)
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if len(tasks) != 1 {
			t.Fatalf("ListTasks returned %d tasks, want 1", len(tasks))
		}

		if err := store.DeleteTask(ctx, task.ID); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}
		if _, err := store.GetTask(ctx, task.ID); !errors.Is(err, errors.CodeNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
		if err := store.DeleteTask(ctx, task.ID); !errors.Is(err, errors.CodeNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
	})

	t.Run(name+"/execution lifecycle", func(t *testing.T) {
		store := open(t, 0)
		task := NewTask("reporter", "", testGraph())
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}

		execution := newExecution(task.ID, time.Now())
		if err := store.AppendExecution(ctx, execution); err != nil {
			t.Fatalf("AppendExecution: %v", err)
		}

		execution.Outputs["out"] = "hello"
		execution.Logs = []LogEntry{{Timestamp: time.Now().UTC(), Level: "info", Message: "run.started"}}
		execution.seal(ExecutionCompleted, time.Now().Add(time.Second), "")
		if err := store.SealExecution(ctx, execution); err != nil {
			t.Fatalf("SealExecution: %v", err)
		}

		history, err := store.ListExecutions(ctx, task.ID)
		if err != nil {
			t.Fatalf("ListExecutions: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("history length = %d, want 1", len(history))
		}
		got := history[0]
		if got.Status != ExecutionCompleted {
			t.Fatalf("status = %q, want completed", got.Status)
		}
		if got.EndTime == nil || got.Duration <= 0 {
			t.Fatalf("sealed execution missing end time or duration: %+v", got)
		}
		if got.Outputs["out"] != "hello" {
			t.Fatalf("outputs not persisted: %+v", got.Outputs)
		}
		if len(got.Logs) != 1 || got.Logs[0].Message != "run.started" {
			t.Fatalf("logs not persisted: %+v", got.Logs)
		}

		if err := store.DeleteExecution(ctx, got.ID); err != nil {
			t.Fatalf("DeleteExecution: %v", err)
		}
		if err := store.DeleteExecution(ctx, got.ID); !errors.Is(err, errors.CodeNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
	})

	t.Run(name+"/history pruned oldest first", func(t *testing.T) {
		store := open(t, 3)
		task := NewTask("reporter", "", testGraph())
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}

		base := time.Now().Add(-time.Hour)
		var ids []string
		for i := 0; i < 5; i++ {
			execution := newExecution(task.ID, base.Add(time.Duration(i)*time.Minute))
			ids = append(ids, execution.ID)
			if err := store.AppendExecution(ctx, execution); err != nil {
				t.Fatalf("AppendExecution %d: %v", i, err)
			}
		}

		history, err := store.ListExecutions(ctx, task.ID)
		if err != nil {
			t.Fatalf("ListExecutions: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("history length = %d, want 3", len(history))
		}
		for i, execution := range history {
			if want := ids[i+2]; execution.ID != want {
				t.Fatalf("history[%d] = %s, want %s (newest kept, oldest pruned)", i, execution.ID, want)
			}
		}
	})

	t.Run(name+"/seal unknown execution", func(t *testing.T) {
		store := open(t, 0)
		execution := newExecution("no-such-task", time.Now())
		execution.seal(ExecutionError, time.Now(), "boom")
		if err := store.SealExecution(ctx, execution); !errors.Is(err, errors.CodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, "memory", func(t *testing.T, limit int) Store {
		return NewMemoryStore(limit)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeUnderTest(t, "sqlite", func(t *testing.T, limit int) Store {
		path := filepath.Join(t.TempDir(), "scheduler.db")
		store, err := OpenSQLiteStore(path, limit)
		if err != nil {
			t.Fatalf("OpenSQLiteStore: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestMemoryStoreListTasksSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	for _, id := range []string{"c", "a", "b"} {
		task := NewTask("agent-"+id, "", testGraph())
		task.ID = id
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask %s: %v", id, err)
		}
	}
	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	got := fmt.Sprintf("%s%s%s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	if got != "abc" {
		t.Fatalf("ListTasks order = %q, want abc", got)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	task := NewTask("reporter", "", testGraph())
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	loaded, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	loaded.AgentName = "mutated"
	again, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask again: %v", err)
	}
	if again.AgentName != "reporter" {
		t.Fatal("store returned a shared reference, not a copy")
	}
}

func TestSQLiteStoreToleratesCorruptRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	store, err := OpenSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	task := NewTask("reporter", "", testGraph())
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	execution := newExecution(task.ID, time.Now())
	execution.Outputs["out"] = "hello"
	if err := store.AppendExecution(ctx, execution); err != nil {
		t.Fatalf("AppendExecution: %v", err)
	}
	execution.seal(ExecutionCompleted, time.Now(), "")
	if err := store.SealExecution(ctx, execution); err != nil {
		t.Fatalf("SealExecution: %v", err)
	}

	if _, err := store.db.ExecContext(ctx,
		`UPDATE task_executions SET outputs_json = 'not-json' WHERE id = ?`,
		execution.ID,
	); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	history, err := store.ListExecutions(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("listed %d executions, want 1", len(history))
	}
	if len(history[0].Outputs) != 0 {
		t.Fatalf("outputs decoded from corrupt column: %+v", history[0].Outputs)
	}
	if history[0].Status != ExecutionCompleted {
		t.Fatalf("execution status = %q, want completed", history[0].Status)
	}
}
