package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

type validateResult struct {
	File    string   `json:"file"`
	Valid   bool     `json:"valid"`
	Nodes   int      `json:"nodes"`
	Edges   int      `json:"edges"`
	Stages  int      `json:"stages,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Cycle   []string `json:"cycle,omitempty"`
}

func runValidate(flags globalFlags, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow validate <flow file>"))
	}
	path := args[0]

	result := validateResult{File: path}
	graph, err := flow.Load(path)
	if err != nil {
		reportInvalid(flags, result, err)
		return
	}
	result.Nodes = len(graph.Nodes)
	result.Edges = len(graph.Edges)

	plan, err := flow.Compile(graph)
	if err != nil {
		reportInvalid(flags, result, err)
		return
	}
	result.Valid = true
	result.Stages = len(plan.Stages)

	if flags.JSON {
		printJSON(result)
		return
	}
	fmt.Printf("%s: valid (%d nodes, %d edges, %d stages)\n",
		path, result.Nodes, result.Edges, result.Stages)
}

func reportInvalid(flags globalFlags, result validateResult, err error) {
	result.Valid = false
	result.Code = string(errors.CodeOf(err))
	result.Message = err.Error()
	if fe := errors.AsFlowError(err); fe != nil {
		if nodes, ok := fe.Context["nodes"].([]string); ok {
			result.Cycle = append([]string{}, nodes...)
			sort.Strings(result.Cycle)
		}
	}
	if flags.JSON {
		printJSON(result)
	} else {
		fmt.Printf("%s: invalid [%s] %s\n", result.File, result.Code, result.Message)
	}
	os.Exit(1)
}
