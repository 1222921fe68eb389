package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/claraverse/agentflow/pkg/errors"
)

// NodeState is the lifecycle state of one node within a single run.
// Transitions: pending -> running -> completed|error, or pending ->
// skipped. States are write-once after running begins.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateRunning   NodeState = "running"
	StateCompleted NodeState = "completed"
	StateError     NodeState = "error"
	StateSkipped   NodeState = "skipped"
)

// Terminal reports whether the state is final for the run.
func (s NodeState) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateSkipped
}

// RunStatus classifies the outcome of a whole run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
	RunTimedOut  RunStatus = "timed_out"
	RunCancelled RunStatus = "cancelled"
)

// RunResult is the sealed outcome of one run. A failed node never aborts
// the result: callers inspect States and NodeErrors to see which node
// failed and which were skipped as a consequence.
type RunResult struct {
	RunID      string
	GraphID    string
	Status     RunStatus
	States     map[string]NodeState
	Outputs    map[string]any
	NodeErrors map[string]string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Err translates a non-completed run into a coded error: CodeTimeout,
// CodeCancelled, or CodeHandlerFailure naming the first failed node.
// A completed run returns nil.
func (r *RunResult) Err() error {
	switch r.Status {
	case RunCompleted:
		return nil
	case RunTimedOut:
		return errors.New(errors.CodeTimeout, "run timed out", nil)
	case RunCancelled:
		return errors.New(errors.CodeCancelled, "run cancelled", nil)
	}
	ids := make([]string, 0, len(r.NodeErrors))
	for id := range r.NodeErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return errors.New(errors.CodeHandlerFailure, "run failed", nil)
	}
	return errors.Newf(errors.CodeHandlerFailure, "node %s failed: %s", ids[0], r.NodeErrors[ids[0]])
}

// runState is the only mutable structure shared between node goroutines.
// Each node's entry is written by exactly one evaluation step; the mutex
// guards the maps themselves, not any per-node ordering.
type runState struct {
	mu       sync.Mutex
	states   map[string]NodeState
	outputs  map[string]any
	branches map[string]bool
	errs     map[string]string
}

func newRunState(ids []string) *runState {
	rs := &runState{
		states:   make(map[string]NodeState, len(ids)),
		outputs:  make(map[string]any, len(ids)),
		branches: make(map[string]bool),
		errs:     make(map[string]string),
	}
	for _, id := range ids {
		rs.states[id] = StatePending
	}
	return rs
}

// transition moves a node from one state to another; it refuses any move
// that would violate write-once semantics and reports whether the write
// happened.
func (rs *runState) transition(id string, from, to NodeState) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.states[id] != from {
		return false
	}
	rs.states[id] = to
	return true
}

func (rs *runState) state(id string) NodeState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.states[id]
}

func (rs *runState) setOutput(id string, value any) {
	rs.mu.Lock()
	rs.outputs[id] = value
	rs.mu.Unlock()
}

func (rs *runState) output(id string) (any, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	v, ok := rs.outputs[id]
	return v, ok
}

func (rs *runState) setBranch(id string, taken bool) {
	rs.mu.Lock()
	rs.branches[id] = taken
	rs.mu.Unlock()
}

func (rs *runState) branch(id string) (bool, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	taken, ok := rs.branches[id]
	return taken, ok
}

func (rs *runState) setErr(id string, msg string) {
	rs.mu.Lock()
	rs.errs[id] = msg
	rs.mu.Unlock()
}

func (rs *runState) snapshot() (map[string]NodeState, map[string]any, map[string]string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	states := make(map[string]NodeState, len(rs.states))
	for id, s := range rs.states {
		states[id] = s
	}
	outputs := make(map[string]any, len(rs.outputs))
	for id, v := range rs.outputs {
		outputs[id] = v
	}
	errs := make(map[string]string, len(rs.errs))
	for id, msg := range rs.errs {
		errs[id] = msg
	}
	return states, outputs, errs
}
