package nodes

import (
	"context"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/flow"
)

// output and preview are terminal sink types: their value is handed to
// the caller's OnOutput callback rather than propagated further.
func registerOutputs(reg *engine.Registry) {
	passthrough := func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		for _, port := range node.Inputs {
			if value, ok := inputs[port]; ok {
				return value, nil
			}
		}
		return nil, nil
	}
	reg.Register("output", passthrough, engine.AsSink())
	reg.Register("preview", passthrough, engine.AsSink())
}
