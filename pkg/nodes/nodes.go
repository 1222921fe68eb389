// Package nodes provides the builtin node handler catalog: text sources
// and transforms, conditionals, output sinks, JSON extraction, file and
// clipboard I/O, HTTP fetches and LLM calls.
package nodes

import (
	"fmt"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/flow"
	"github.com/claraverse/agentflow/pkg/llm"
)

// Options configure the builtin handlers.
type Options struct {
	// Provider backs the llm node type. Nil disables it.
	Provider llm.Provider
	// DefaultModel is used when a node's config names no model.
	DefaultModel string
}

// Register binds every builtin handler to the registry.
func Register(reg *engine.Registry, opts Options) {
	registerText(reg)
	registerConditional(reg)
	registerOutputs(reg)
	registerJSON(reg)
	registerFile(reg)
	registerClipboard(reg)
	registerHTTP(reg)
	if opts.Provider != nil {
		registerLLM(reg, opts)
	}
}

func stringConfig(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	s, _ := config[key].(string)
	return s
}

func boolConfig(config map[string]any, key string) bool {
	if config == nil {
		return false
	}
	b, _ := config[key].(bool)
	return b
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// inputString reads the named port, falling back to the sole input when
// the node is wired through a differently named port. Conditional
// branches deliver values on ports named "true" and "false", so the
// fallback keeps single-input handlers usable downstream of a branch.
func inputString(inputs map[flow.PortType]any, port flow.PortType) string {
	if value, ok := inputs[port]; ok {
		return asString(value)
	}
	if len(inputs) == 1 {
		for _, value := range inputs {
			return asString(value)
		}
	}
	return ""
}
