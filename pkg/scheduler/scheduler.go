package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

// DefaultTickInterval is how often the scheduler checks for due tasks
// when the caller sets no interval.
const DefaultTickInterval = 500 * time.Millisecond

// Config wires a scheduler to its store and execution engine.
type Config struct {
	Store    Store
	Executor *engine.Executor
	// TickInterval is the due-task polling cadence. Zero means
	// DefaultTickInterval.
	TickInterval time.Duration
	// RunTimeout bounds each triggered run. Zero means the engine
	// default; negative disables the bound.
	RunTimeout time.Duration
}

// Status is a point-in-time snapshot of the scheduler loop.
type Status struct {
	IsRunning        bool   `json:"isRunning"`
	ActiveExecutions int    `json:"activeExecutions"`
	Error            string `json:"error,omitempty"`
}

// Scheduler triggers task runs at their due times. One run per task at
// a time: a task whose previous run is still in flight is skipped, not
// queued.
type Scheduler struct {
	store      Store
	executor   *engine.Executor
	tick       time.Duration
	runTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]string // task id -> execution id
	lastErr  string
	cancel   context.CancelFunc
	done     chan struct{}
	runs     sync.WaitGroup
}

// New creates a scheduler from the given config.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New(errors.CodeInvalidInput, "scheduler requires a store", nil)
	}
	if cfg.Executor == nil {
		return nil, errors.New(errors.CodeInvalidInput, "scheduler requires an executor", nil)
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Scheduler{
		store:      cfg.Store,
		executor:   cfg.Executor,
		tick:       tick,
		runTimeout: cfg.RunTimeout,
		inflight:   make(map[string]string),
	}, nil
}

// Start launches the tick loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	initSchedulerMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		log := slog.Default()
		log.Info("scheduler.start", slog.Duration("tick", s.tick))
		for {
			select {
			case <-ctx.Done():
				log.Info("scheduler.stop")
				return
			case <-ticker.C:
				s.sweep(ctx, time.Now())
			}
		}
	}()
}

// Stop halts the tick loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.runs.Wait()
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Status reports the current loop state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		IsRunning:        s.cancel != nil,
		ActiveExecutions: len(s.inflight),
		Error:            s.lastErr,
	}
}

// sweep checks every task and triggers the due ones. Storage errors are
// recorded on the status, never fatal to the loop.
func (s *Scheduler) sweep(ctx context.Context, now time.Time) {
	sweepStart := time.Now()
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.recordErr("scheduler.sweep.list", err)
		return
	}
	log := slog.Default()
	for _, task := range tasks {
		spec := task.Schedule
		if !spec.Enabled || spec.NextRun == nil || spec.NextRun.After(now) {
			continue
		}
		execution := newExecution(task.ID, now)
		if !s.reserve(task.ID, execution.ID) {
			log.Info("scheduler.tick.skip",
				slog.String("task_id", task.ID),
				slog.String("reason", "previous run still in flight"),
			)
			skipCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("task_id", task.ID),
			))
			continue
		}
		s.trigger(ctx, task, execution)
	}
	tickLatencyMs.Record(ctx, float64(time.Since(sweepStart).Seconds()*1000), metric.WithAttributes(
		attribute.Int("tasks", len(tasks)),
	))
}

// RunNow triggers a task immediately, outside its schedule, and waits
// for the run to finish. The execution is recorded like a scheduled one.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) (*Execution, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	execution := newExecution(task.ID, time.Now())
	if !s.reserve(task.ID, execution.ID) {
		return nil, errors.Newf(errors.CodeInvalidInput, "task %q already running", task.ID)
	}
	initSchedulerMetrics()
	return s.runTask(ctx, task, execution), nil
}

// reserve claims the task's single-flight slot. Claiming happens before
// the run goroutine launches, so two ticks (or a tick and RunNow)
// observing the same due task cannot both pass the guard.
func (s *Scheduler) reserve(taskID, executionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[taskID]; busy {
		return false
	}
	s.inflight[taskID] = executionID
	return true
}

// trigger launches a reserved run in its own goroutine so one slow task
// never stalls the tick loop.
func (s *Scheduler) trigger(ctx context.Context, task *Task, execution *Execution) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.runTask(ctx, task, execution)
	}()
}

// runTask executes a run whose single-flight slot is already reserved
// under the execution's id; the slot is released when the run finishes.
func (s *Scheduler) runTask(ctx context.Context, task *Task, execution *Execution) *Execution {
	log := slog.Default()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, task.ID)
		s.mu.Unlock()
	}()

	// Advance the schedule before running so a crash mid-run cannot
	// cause a tight refire loop on restart.
	fireTime := execution.StartTime
	task.Schedule.LastRun = &fireTime
	task.Schedule.Status = TaskRunning
	if next, err := task.Schedule.NextAfter(fireTime); err != nil {
		s.recordErr("scheduler.run.next", err)
		task.Schedule.Enabled = false
		task.Schedule.NextRun = nil
	} else {
		task.Schedule.NextRun = &next
	}
	task.UpdatedAt = fireTime
	if err := s.store.SaveTask(ctx, task); err != nil {
		s.recordErr("scheduler.run.save", err)
	}
	if err := s.store.AppendExecution(ctx, execution); err != nil {
		s.recordErr("scheduler.run.append", err)
	}

	log.Info("scheduler.run.start",
		slog.String("task_id", task.ID),
		slog.String("execution_id", execution.ID),
		slog.String("agent", task.AgentName),
	)

	result, runErr := s.executeGraph(ctx, task, execution)

	finalStatus := ExecutionCompleted
	taskStatus := TaskIdle
	errMsg := ""
	switch {
	case runErr != nil:
		finalStatus = ExecutionError
		taskStatus = TaskError
		errMsg = runErr.Error()
	case result != nil && result.Status != engine.RunCompleted:
		finalStatus = ExecutionError
		taskStatus = TaskError
		errMsg = result.Err().Error()
	}
	execution.seal(finalStatus, time.Now(), errMsg)

	// Seal on a context detached from the run's: a cancelled run must
	// still land its end time and final status in the store.
	sealCtx, cancelSeal := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelSeal()
	if err := s.store.SealExecution(sealCtx, execution); err != nil {
		s.recordErr("scheduler.run.seal", err)
	}
	task.Schedule.Status = taskStatus
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveTask(sealCtx, task); err != nil {
		s.recordErr("scheduler.run.save", err)
	}

	runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_id", task.ID),
		attribute.String("status", string(finalStatus)),
	))
	runLatencyMs.Record(ctx, float64(execution.Duration.Seconds()*1000), metric.WithAttributes(
		attribute.String("task_id", task.ID),
	))
	if finalStatus == ExecutionError {
		runErrorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("task_id", task.ID),
		))
		log.Warn("scheduler.run.error",
			slog.String("task_id", task.ID),
			slog.String("execution_id", execution.ID),
			slog.String("error", errMsg),
		)
		return execution
	}
	log.Info("scheduler.run.complete",
		slog.String("task_id", task.ID),
		slog.String("execution_id", execution.ID),
		slog.Duration("duration", execution.Duration),
	)
	return execution
}

// executeGraph compiles and runs the task's graph, recording entry-node
// inputs, sink outputs and an event log onto the execution.
func (s *Scheduler) executeGraph(ctx context.Context, task *Task, execution *Execution) (*engine.RunResult, error) {
	if task.Graph == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "task %q has no graph", task.ID)
	}
	plan, err := flow.Compile(task.Graph)
	if err != nil {
		return nil, err
	}

	emitter := &engine.CollectingEmitter{}
	var outputsMu sync.Mutex
	opts := engine.Options{
		Timeout: s.runTimeout,
		Emitter: emitter,
		Callbacks: engine.Callbacks{
			OnOutput: func(nodeID string, value any) {
				outputsMu.Lock()
				execution.Outputs[nodeID] = value
				outputsMu.Unlock()
			},
		},
	}
	result, err := s.executor.Execute(ctx, plan, opts)
	if result != nil {
		execution.Inputs = entryInputs(plan, result)
		execution.Logs = eventLogs(emitter.Events())
	}
	return result, err
}

// entryInputs snapshots the values the graph's entry stage produced.
func entryInputs(plan *flow.Plan, result *engine.RunResult) []InputRecord {
	stages := plan.Stages
	if len(stages) == 0 {
		return nil
	}
	var records []InputRecord
	for _, id := range stages[0].Nodes {
		value, ok := result.Outputs[id]
		if !ok {
			continue
		}
		name := id
		if node, ok := plan.Node(id); ok && node.Type != "" {
			name = fmt.Sprintf("%s (%s)", id, node.Type)
		}
		records = append(records, InputRecord{NodeName: name, Value: value})
	}
	return records
}

// eventLogs renders the run's event stream as execution log lines.
func eventLogs(events []engine.Event) []LogEntry {
	logs := make([]LogEntry, 0, len(events))
	for _, event := range events {
		level := "info"
		message := string(event.Type)
		if event.NodeID != "" {
			message = fmt.Sprintf("%s %s", event.Type, event.NodeID)
		}
		switch event.Type {
		case engine.EventNodeError:
			level = "error"
			if msg, ok := event.Payload["error"].(string); ok {
				message = fmt.Sprintf("%s %s: %s", event.Type, event.NodeID, msg)
			}
		case engine.EventNodeSkipped:
			level = "warning"
			if reason, ok := event.Payload["reason"].(string); ok {
				message = fmt.Sprintf("%s %s: %s", event.Type, event.NodeID, reason)
			}
		case engine.EventRunFinished:
			if status, ok := event.Payload["status"].(string); ok {
				message = fmt.Sprintf("%s: %s", event.Type, status)
			}
		}
		logs = append(logs, LogEntry{
			Timestamp: event.Timestamp,
			Level:     level,
			Message:   message,
		})
	}
	return logs
}

func (s *Scheduler) recordErr(event string, err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	slog.Default().Error(event, slog.String("error", err.Error()))
	loopErrorCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

var (
	schedulerMetricsOnce sync.Once
	runCounter           metric.Int64Counter
	runErrorCounter      metric.Int64Counter
	skipCounter          metric.Int64Counter
	loopErrorCounter     metric.Int64Counter
	runLatencyMs         metric.Float64Histogram
	tickLatencyMs        metric.Float64Histogram
)

func initSchedulerMetrics() {
	schedulerMetricsOnce.Do(func() {
		meter := otel.Meter("agentflow/scheduler")
		runCounter, _ = meter.Int64Counter("agentflow.scheduler.run.count")
		runErrorCounter, _ = meter.Int64Counter("agentflow.scheduler.run.error.count")
		skipCounter, _ = meter.Int64Counter("agentflow.scheduler.tick.skip.count")
		loopErrorCounter, _ = meter.Int64Counter("agentflow.scheduler.loop.error.count")
		runLatencyMs, _ = meter.Float64Histogram("agentflow.scheduler.run.latency_ms")
		tickLatencyMs, _ = meter.Float64Histogram("agentflow.scheduler.tick.latency_ms")
	})
}
