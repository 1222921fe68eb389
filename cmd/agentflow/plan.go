package main

import (
	"fmt"
	"strings"

	"github.com/claraverse/agentflow/pkg/flow"
)

type planResult struct {
	File    string      `json:"file"`
	GraphID string      `json:"graph_id"`
	Stages  []planStage `json:"stages"`
}

type planStage struct {
	Index int      `json:"index"`
	Nodes []string `json:"nodes"`
}

func runPlan(flags globalFlags, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow plan <flow file>"))
	}
	path := args[0]

	graph, err := flow.Load(path)
	if err != nil {
		fatal(err)
	}
	plan, err := flow.Compile(graph)
	if err != nil {
		fatal(err)
	}

	result := planResult{File: path, GraphID: plan.GraphID}
	for i, stage := range plan.Stages {
		result.Stages = append(result.Stages, planStage{Index: i, Nodes: stage.Nodes})
	}

	if flags.JSON {
		printJSON(result)
		return
	}

	writer := newTabWriter()
	writeRow(writer, "STAGE", "NODES", "TYPES")
	for i, stage := range plan.Stages {
		types := make([]string, 0, len(stage.Nodes))
		for _, id := range stage.Nodes {
			if node, ok := plan.Node(id); ok {
				types = append(types, node.Type)
			}
		}
		writeRow(writer, fmt.Sprintf("%d", i), strings.Join(stage.Nodes, ","), strings.Join(types, ","))
	}
	writer.Flush()
}
