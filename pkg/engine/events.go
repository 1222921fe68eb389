package engine

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a semantic event emitted during a run.
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunFinished   EventType = "run.finished"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeError     EventType = "node.error"
	EventNodeSkipped   EventType = "node.skipped"
	EventNodeOutput    EventType = "node.output"
)

// Event captures one step of a run as a consumable record. The caller
// (UI, CLI, or the scheduler writing execution logs) drains the stream;
// the engine has no display coupling of its own.
type Event struct {
	Type      EventType
	RunID     string
	NodeID    string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives run events. Implementations must be safe for
// concurrent use: nodes in the same stage emit from separate goroutines.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(context.Context, Event) {}

// CollectingEmitter buffers events in memory, in arrival order.
type CollectingEmitter struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements EventEmitter.
func (c *CollectingEmitter) Emit(_ context.Context, event Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Events returns a snapshot of the collected events.
func (c *CollectingEmitter) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func newEvent(eventType EventType, runID, nodeID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Callbacks are the per-run notification hooks. Any field may be nil.
type Callbacks struct {
	// OnOutput receives the rendered payload of sink nodes.
	OnOutput func(nodeID string, value any)
	// OnUIEvent receives display events for terminal node types.
	OnUIEvent func(kind string, nodeID string, payload any)
	// OnStatus receives every node state transition.
	OnStatus func(nodeID string, state NodeState)
}

func (c Callbacks) output(nodeID string, value any) {
	if c.OnOutput != nil {
		c.OnOutput(nodeID, value)
	}
}

func (c Callbacks) uiEvent(kind, nodeID string, payload any) {
	if c.OnUIEvent != nil {
		c.OnUIEvent(kind, nodeID, payload)
	}
}

func (c Callbacks) status(nodeID string, state NodeState) {
	if c.OnStatus != nil {
		c.OnStatus(nodeID, state)
	}
}
