package nodes

import (
	"context"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
	"github.com/claraverse/agentflow/pkg/llm"
)

// llm sends its prompt input (or configured prompt) to the model backend
// and emits the completion text.
func registerLLM(reg *engine.Registry, opts Options) {
	reg.Register("llm", func(ctx context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		prompt := inputString(inputs, "prompt")
		if prompt == "" {
			prompt = stringConfig(node.Config, "prompt")
		}
		if prompt == "" {
			return nil, errors.New(errors.CodeInvalidInput, "llm node requires a prompt", nil)
		}

		model := stringConfig(node.Config, "model")
		if model == "" {
			model = opts.DefaultModel
		}
		if model == "" {
			return nil, errors.New(errors.CodeInvalidInput, "llm node requires a model", nil)
		}

		messages := []llm.Message{}
		if system := stringConfig(node.Config, "system"); system != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

		temperature := 0.0
		if node.Config != nil {
			if v, ok := node.Config["temperature"].(float64); ok {
				temperature = v
			}
		}

		resp, err := opts.Provider.Chat(ctx, llm.ChatRequest{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
		})
		if err != nil {
			return nil, err
		}
		return resp.Content, nil
	})
}
