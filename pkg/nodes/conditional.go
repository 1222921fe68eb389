package nodes

import (
	"context"
	"strconv"
	"strings"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

// ifElse evaluates its configured predicate against the "value" input and
// returns the boolean the engine uses to pick a branch.
func registerConditional(reg *engine.Registry) {
	reg.Register("ifElse", func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		value := inputString(inputs, "value")
		expected := stringConfig(node.Config, "value")
		switch op := stringConfig(node.Config, "operator"); op {
		case "", "equals":
			return value == expected, nil
		case "notEquals":
			return value != expected, nil
		case "contains":
			return strings.Contains(value, expected), nil
		case "startsWith":
			return strings.HasPrefix(value, expected), nil
		case "isEmpty":
			return strings.TrimSpace(value) == "", nil
		case "isNotEmpty":
			return strings.TrimSpace(value) != "", nil
		case "greaterThan", "lessThan":
			left, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, errors.Newf(errors.CodeInvalidInput, "input %q is not numeric", value)
			}
			right, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
			if err != nil {
				return nil, errors.Newf(errors.CodeInvalidInput, "comparison value %q is not numeric", expected)
			}
			if op == "greaterThan" {
				return left > right, nil
			}
			return left < right, nil
		default:
			return nil, errors.Newf(errors.CodeInvalidInput, "unknown operator %q", op)
		}
	}, engine.AsConditional())
}
