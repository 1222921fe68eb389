// Copyright 2026 © The agentflow Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/claraverse/agentflow/pkg/config"
	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/flow"
)

type runResult struct {
	File     string                      `json:"file"`
	RunID    string                      `json:"run_id"`
	Status   engine.RunStatus            `json:"status"`
	Duration string                      `json:"duration"`
	States   map[string]engine.NodeState `json:"states"`
	Outputs  map[string]any              `json:"outputs,omitempty"`
	Errors   map[string]string           `json:"errors,omitempty"`
}

func runRun(ctx context.Context, flags globalFlags, cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow run <flow file>"))
	}
	path := args[0]

	graph, err := flow.Load(path)
	if err != nil {
		fatal(err)
	}

	executor := buildExecutor(cfg)
	timeout := cfg.Engine.RunTimeout()
	if flags.Timeout != 0 {
		timeout = flags.Timeout
	}

	isTTY := isatty.IsTerminal(os.Stdout.Fd()) && !flags.JSON

	var outputsMu sync.Mutex
	sinkOutputs := make(map[string]any)
	opts := engine.Options{
		Timeout: timeout,
		Callbacks: engine.Callbacks{
			OnOutput: func(nodeID string, value any) {
				outputsMu.Lock()
				sinkOutputs[nodeID] = value
				outputsMu.Unlock()
			},
			OnStatus: func(nodeID string, state engine.NodeState) {
				if isTTY {
					fmt.Printf("%s %s %s\n", statusMark(state), nodeID, state)
				}
			},
		},
	}

	result, err := executor.ExecuteGraph(ctx, graph, opts)
	if err != nil {
		fatal(err)
	}

	if flags.JSON {
		printJSON(runResult{
			File:     path,
			RunID:    result.RunID,
			Status:   result.Status,
			Duration: result.FinishedAt.Sub(result.StartedAt).String(),
			States:   result.States,
			Outputs:  sinkOutputs,
			Errors:   result.NodeErrors,
		})
	} else {
		printRunSummary(result, sinkOutputs)
	}

	if result.Status != engine.RunCompleted {
		os.Exit(1)
	}
}

func printRunSummary(result *engine.RunResult, outputs map[string]any) {
	fmt.Printf("run %s: %s in %s\n",
		result.RunID, result.Status, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for id, msg := range result.NodeErrors {
		fmt.Printf("  error %s: %s\n", id, msg)
	}
	for id, value := range outputs {
		fmt.Printf("  %s: %v\n", id, value)
	}
}

func statusMark(state engine.NodeState) string {
	switch state {
	case engine.StateCompleted:
		return "✓"
	case engine.StateError:
		return "✗"
	case engine.StateSkipped:
		return "-"
	case engine.StateRunning:
		return "•"
	default:
		return " "
	}
}
