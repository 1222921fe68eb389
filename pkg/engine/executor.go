package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/claraverse/agentflow/pkg/flow"
)

// DefaultRunTimeout bounds a run when the caller sets no timeout.
const DefaultRunTimeout = 60 * time.Second

// Options configure a single run.
type Options struct {
	// Timeout is the wall-clock budget for the whole run. Zero means
	// DefaultRunTimeout; negative disables the timeout.
	Timeout   time.Duration
	Callbacks Callbacks
	Emitter   EventEmitter
}

// Executor walks a compiled plan stage by stage, invoking node handlers
// and propagating values along edges.
type Executor struct {
	registry *Registry
	tracer   trace.Tracer
}

// New creates an executor backed by the given handler registry.
func New(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		tracer:   otel.Tracer("agentflow/engine"),
	}
}

// ExecuteGraph compiles the graph and runs the resulting plan once.
// Compile errors are returned before any node runs.
func (e *Executor) ExecuteGraph(ctx context.Context, graph *flow.Graph, opts Options) (*RunResult, error) {
	plan, err := flow.Compile(graph)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, plan, opts)
}

// Execute runs a compiled plan once. Node-level failures never surface
// as an error return: they are recorded in the result's States and
// NodeErrors and propagate as skips to transitive dependents. Only
// infrastructure problems (nil plan) return an error.
func (e *Executor) Execute(ctx context.Context, plan *flow.Plan, opts Options) (*RunResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	initEngineMetrics()

	emitter := opts.Emitter
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultRunTimeout
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	var ids []string
	for _, stage := range plan.Stages {
		ids = append(ids, stage.Nodes...)
	}
	rs := newRunState(ids)

	runCtx, runSpan := e.tracer.Start(runCtx, "Engine.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("graph.id", plan.GraphID),
			attribute.Int("graph.nodes", plan.NodeCount()),
			attribute.Int("plan.stages", len(plan.Stages)),
		),
	)
	defer runSpan.End()

	emitter.Emit(runCtx, newEvent(EventRunStarted, runID, "", map[string]any{
		"graph": plan.GraphID,
		"nodes": plan.NodeCount(),
	}))

	interrupted := false
	for _, stage := range plan.Stages {
		if runCtx.Err() != nil {
			interrupted = true
			break
		}

		var wg sync.WaitGroup
		for _, id := range stage.Nodes {
			if reason, skip := e.skipReason(plan, rs, id); skip {
				if rs.transition(id, StatePending, StateSkipped) {
					opts.Callbacks.status(id, StateSkipped)
					emitter.Emit(runCtx, newEvent(EventNodeSkipped, runID, id, map[string]any{
						"reason": reason,
					}))
					nodeCounter.Add(runCtx, 1, metric.WithAttributes(
						attribute.String("state", string(StateSkipped)),
					))
				}
				continue
			}
			if !rs.transition(id, StatePending, StateRunning) {
				continue
			}
			opts.Callbacks.status(id, StateRunning)
			emitter.Emit(runCtx, newEvent(EventNodeStarted, runID, id, nil))

			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				e.runNode(runCtx, plan, rs, runID, id, opts.Callbacks, emitter)
			}(id)
		}

		// Stage boundary is a join point, but an expired run abandons
		// in-flight nodes rather than waiting on them.
		stageDone := make(chan struct{})
		go func() {
			wg.Wait()
			close(stageDone)
		}()
		select {
		case <-stageDone:
		case <-runCtx.Done():
			interrupted = true
		}
		if interrupted {
			break
		}
	}

	finishedAt := time.Now().UTC()
	states, outputs, errs := rs.snapshot()

	status := RunCompleted
	switch {
	case interrupted && ctx.Err() != nil:
		status = RunCancelled
	case interrupted:
		status = RunTimedOut
	case len(errs) > 0:
		status = RunError
	}

	runSpan.SetAttributes(attribute.String("run.status", string(status)))
	runDurationMs.Record(ctx, float64(finishedAt.Sub(startedAt).Seconds()*1000), metric.WithAttributes(
		attribute.String("status", string(status)),
	))
	emitter.Emit(ctx, newEvent(EventRunFinished, runID, "", map[string]any{
		"status":   string(status),
		"duration": finishedAt.Sub(startedAt).String(),
	}))
	slog.Default().Debug("engine.run.finished",
		slog.String("run_id", runID),
		slog.String("status", string(status)),
		slog.Int("nodes", len(states)),
		slog.Int("errors", len(errs)),
	)

	return &RunResult{
		RunID:      runID,
		GraphID:    plan.GraphID,
		Status:     status,
		States:     states,
		Outputs:    outputs,
		NodeErrors: errs,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}

// skipReason decides whether a node must be skipped before it runs: any
// required predecessor in error or skipped, or an upstream conditional
// whose taken branch does not include the connecting edge.
func (e *Executor) skipReason(plan *flow.Plan, rs *runState, id string) (string, bool) {
	for _, edge := range plan.Predecessors(id) {
		switch rs.state(edge.Source) {
		case StateCompleted:
		default:
			return fmt.Sprintf("predecessor %q did not complete", edge.Source), true
		}
		src, _ := plan.Node(edge.Source)
		if e.registry.Kind(src.Type) == KindConditional {
			taken, ok := rs.branch(edge.Source)
			if !ok {
				return fmt.Sprintf("conditional %q produced no branch", edge.Source), true
			}
			if branchPort(taken) != edge.SourceOutput {
				return fmt.Sprintf("conditional %q took the %s branch", edge.Source, branchPort(taken)), true
			}
		}
	}
	return "", false
}

func (e *Executor) runNode(ctx context.Context, plan *flow.Plan, rs *runState, runID, id string, cb Callbacks, emitter EventEmitter) {
	// A handler panic must not take down a scheduled run.
	defer func() {
		if r := recover(); r != nil {
			e.markError(ctx, rs, runID, id, fmt.Sprintf("handler panic: %v", r), cb, emitter)
		}
	}()

	node, _ := plan.Node(id)
	handler, kind, err := e.registry.Resolve(node.Type)
	if err != nil {
		e.markError(ctx, rs, runID, id, err.Error(), cb, emitter)
		return
	}

	inputs := make(map[flow.PortType]any)
	for port, binding := range plan.Bindings(id) {
		if value, ok := rs.output(binding.Source); ok {
			inputs[port] = value
		}
	}

	nodeCtx, span := e.tracer.Start(ctx, "Engine.Node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", node.Type),
		),
	)
	value, err := handler(nodeCtx, node, inputs)
	if err != nil {
		span.RecordError(err)
		span.End()
		e.markError(ctx, rs, runID, id, err.Error(), cb, emitter)
		return
	}
	span.End()

	switch kind {
	case KindConditional:
		taken, ok := value.(bool)
		if !ok {
			e.markError(ctx, rs, runID, id,
				fmt.Sprintf("conditional handler returned %T, want bool", value), cb, emitter)
			return
		}
		rs.setBranch(id, taken)
		// The taken branch carries the node's primary input through.
		rs.setOutput(id, primaryInput(node, inputs, taken))
	case KindSink:
		rs.setOutput(id, value)
		cb.output(id, value)
		cb.uiEvent("output", id, value)
		emitter.Emit(ctx, newEvent(EventNodeOutput, runID, id, map[string]any{"value": value}))
	default:
		rs.setOutput(id, value)
	}

	if rs.transition(id, StateRunning, StateCompleted) {
		cb.status(id, StateCompleted)
		emitter.Emit(ctx, newEvent(EventNodeCompleted, runID, id, nil))
		nodeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(StateCompleted)),
		))
	}
}

func (e *Executor) markError(ctx context.Context, rs *runState, runID, id, msg string, cb Callbacks, emitter EventEmitter) {
	rs.setErr(id, msg)
	if rs.transition(id, StateRunning, StateError) {
		cb.status(id, StateError)
		emitter.Emit(ctx, newEvent(EventNodeError, runID, id, map[string]any{"error": msg}))
		nodeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(StateError)),
		))
		slog.Default().Warn("engine.node.error",
			slog.String("run_id", runID),
			slog.String("node_id", id),
			slog.String("error", msg),
		)
	}
}

// branchPort maps a conditional result to its output port name.
func branchPort(taken bool) flow.PortType {
	if taken {
		return "true"
	}
	return "false"
}

// primaryInput picks the value the taken branch propagates: the first
// declared input port that resolved, otherwise the boolean itself.
func primaryInput(node flow.Node, inputs map[flow.PortType]any, taken bool) any {
	for _, port := range node.Inputs {
		if value, ok := inputs[port]; ok {
			return value
		}
	}
	return taken
}

var (
	engineMetricsOnce sync.Once
	nodeCounter       metric.Int64Counter
	runDurationMs     metric.Float64Histogram
)

func initEngineMetrics() {
	engineMetricsOnce.Do(func() {
		meter := otel.Meter("agentflow/engine")
		nodeCounter, _ = meter.Int64Counter("agentflow.engine.node.count")
		runDurationMs, _ = meter.Float64Histogram("agentflow.engine.run.duration_ms")
	})
}
