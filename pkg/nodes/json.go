package nodes

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

// jsonPath extracts a field from a JSON document using gjson path syntax.
func registerJSON(reg *engine.Registry) {
	reg.Register("jsonPath", func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		document := inputString(inputs, "json")
		path := stringConfig(node.Config, "path")
		if path == "" {
			return nil, errors.New(errors.CodeInvalidInput, "jsonPath node requires a path", nil)
		}
		if !gjson.Valid(document) {
			return nil, errors.New(errors.CodeInvalidInput, "input is not valid JSON", nil)
		}
		result := gjson.Get(document, path)
		if !result.Exists() {
			if boolConfig(node.Config, "strict") {
				return nil, errors.Newf(errors.CodeInvalidInput, "path %q matched nothing", path)
			}
			return "", nil
		}
		return result.Value(), nil
	})
}
