package nodes

import (
	"context"
	"strings"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

func registerText(reg *engine.Registry) {
	// textSource emits the configured text verbatim.
	reg.Register("textSource", func(_ context.Context, node flow.Node, _ map[flow.PortType]any) (any, error) {
		return stringConfig(node.Config, "text"), nil
	})

	// combine joins the "text" and "suffix" inputs; topFirst controls order.
	reg.Register("combine", func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		top := asString(inputs["text"])
		bottom := asString(inputs["suffix"])
		separator := stringConfig(node.Config, "separator")
		topFirst := true
		if node.Config != nil {
			if v, ok := node.Config["topFirst"].(bool); ok {
				topFirst = v
			}
		}
		if topFirst {
			return joinNonEmpty(top, bottom, separator), nil
		}
		return joinNonEmpty(bottom, top, separator), nil
	})

	// textTransform applies a named transformation to its input.
	reg.Register("textTransform", func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		text := inputString(inputs, "text")
		switch op := stringConfig(node.Config, "operation"); op {
		case "", "none":
			return text, nil
		case "uppercase":
			return strings.ToUpper(text), nil
		case "lowercase":
			return strings.ToLower(text), nil
		case "trim":
			return strings.TrimSpace(text), nil
		case "replace":
			return strings.ReplaceAll(text,
				stringConfig(node.Config, "search"),
				stringConfig(node.Config, "replace")), nil
		default:
			return nil, errors.Newf(errors.CodeInvalidInput, "unknown text operation %q", op)
		}
	})
}

func joinNonEmpty(first, second, separator string) string {
	if first == "" {
		return second
	}
	if second == "" {
		return first
	}
	return first + separator + second
}
