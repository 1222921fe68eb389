package nodes

import (
	"context"
	"os"
	"path/filepath"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

func registerFile(reg *engine.Registry) {
	// fileRead loads a file's contents as text.
	reg.Register("fileRead", func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		path := stringConfig(node.Config, "path")
		if path == "" {
			path = asString(inputs["path"])
		}
		if path == "" {
			return nil, errors.New(errors.CodeInvalidInput, "fileRead node requires a path", nil)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "read file", err)
		}
		return string(data), nil
	})

	// fileWrite writes its text input to the configured path and returns
	// the path written.
	reg.Register("fileWrite", func(_ context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		path := stringConfig(node.Config, "path")
		if path == "" {
			return nil, errors.New(errors.CodeInvalidInput, "fileWrite node requires a path", nil)
		}
		text := inputString(inputs, "text")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "create parent directory", err)
		}
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if boolConfig(node.Config, "append") {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "open file", err)
		}
		defer f.Close()
		if _, err := f.WriteString(text); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "write file", err)
		}
		return path, nil
	})
}
