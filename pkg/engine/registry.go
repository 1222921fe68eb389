// Package engine executes compiled workflow plans: it resolves node
// handlers, propagates values along edges, tracks the per-node state
// machine and honors run-level timeout and cancellation.
package engine

import (
	"context"
	"sync"

	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

// Handler evaluates one node. It receives the node (whose Config it
// alone interprets) and the resolved input values keyed by input port,
// and returns the node's output value.
type Handler func(ctx context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error)

// Kind is the structural category of a node type. The engine treats all
// types as opaque except sinks (whose output goes to the caller) and
// conditionals (whose output selects a branch).
type Kind int

const (
	KindDefault Kind = iota
	KindSink
	KindConditional
)

type registration struct {
	handler Handler
	kind    Kind
}

// Registry maps node types to handlers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// RegisterOption customizes a handler registration.
type RegisterOption func(*registration)

// AsSink marks the node type as a terminal display node: its output is
// delivered through the OnOutput callback.
func AsSink() RegisterOption {
	return func(r *registration) { r.kind = KindSink }
}

// AsConditional marks the node type as a branch selector: its boolean
// result decides which outgoing branch propagates.
func AsConditional() RegisterOption {
	return func(r *registration) { r.kind = KindConditional }
}

// Register binds a handler to a node type, replacing any previous
// binding for that type.
func (r *Registry) Register(nodeType string, handler Handler, opts ...RegisterOption) {
	reg := registration{handler: handler}
	for _, opt := range opts {
		opt(&reg)
	}
	r.mu.Lock()
	r.entries[nodeType] = reg
	r.mu.Unlock()
}

// Resolve returns the handler and kind bound to a node type.
func (r *Registry) Resolve(nodeType string) (Handler, Kind, error) {
	r.mu.RLock()
	reg, ok := r.entries[nodeType]
	r.mu.RUnlock()
	if !ok {
		return nil, KindDefault, errors.Newf(errors.CodeNotFound, "no handler for node type %q", nodeType)
	}
	return reg.handler, reg.kind, nil
}

// Kind returns the structural category of a node type without resolving
// its handler. Unregistered types report KindDefault.
func (r *Registry) Kind(nodeType string) Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[nodeType].kind
}

// Types returns the registered node type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.entries))
	for name := range r.entries {
		types = append(types, name)
	}
	return types
}
