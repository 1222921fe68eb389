package nodes

import (
	"context"

	"github.com/atotto/clipboard"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

func registerClipboard(reg *engine.Registry) {
	// clipboardRead emits the current system clipboard contents.
	reg.Register("clipboardRead", func(_ context.Context, _ flow.Node, _ map[flow.PortType]any) (any, error) {
		text, err := clipboard.ReadAll()
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "read clipboard", err)
		}
		return text, nil
	})

	// clipboardWrite places its text input on the system clipboard and
	// passes the text through.
	reg.Register("clipboardWrite", func(_ context.Context, _ flow.Node, inputs map[flow.PortType]any) (any, error) {
		text := inputString(inputs, "text")
		if err := clipboard.WriteAll(text); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "write clipboard", err)
		}
		return text, nil
	})
}
