package flow

import (
	"strings"
	"testing"
)

const sampleJSON = `{
  "id": "sample",
  "name": "Sample Flow",
  "nodes": [
    {"id": "src", "type": "textSource", "config": {"text": "hi"}, "outputs": ["text"]},
    {"id": "out", "type": "output", "inputs": ["text"]}
  ],
  "edges": [
    {"source": "src", "sourceOutput": "text", "target": "out", "targetInput": "text"}
  ]
}`

const sampleYAML = `
id: sample
name: Sample Flow
nodes:
  - id: src
    type: textSource
    config:
      text: hi
    outputs: [text]
  - id: out
    type: output
    inputs: [text]
edges:
  - source: src
    sourceOutput: text
    target: out
    targetInput: text
`

func TestParseJSON(t *testing.T) {
	graph, err := ParseJSON([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if len(graph.Nodes) != 2 || len(graph.Edges) != 1 {
		t.Fatalf("unexpected graph shape: %d nodes, %d edges", len(graph.Nodes), len(graph.Edges))
	}
	src, ok := graph.NodeByID("src")
	if !ok {
		t.Fatalf("node src not found")
	}
	if src.Config["text"] != "hi" {
		t.Fatalf("unexpected config: %v", src.Config)
	}
}

func TestParseYAML(t *testing.T) {
	graph, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if graph.Name != "Sample Flow" {
		t.Fatalf("unexpected name %q", graph.Name)
	}
	if !graph.Nodes[0].HasOutput("text") {
		t.Fatalf("expected src to declare text output")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := ParseJSON(nil); err == nil {
		t.Fatalf("expected error for empty JSON")
	}
	if _, err := ParseYAML(nil); err == nil {
		t.Fatalf("expected error for empty YAML")
	}
}

func TestParseRejectsInvalidGraph(t *testing.T) {
	bad := strings.Replace(sampleJSON, `"target": "out"`, `"target": "nowhere"`, 1)
	if _, err := ParseJSON([]byte(bad)); err == nil {
		t.Fatalf("expected validation error for dangling edge")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	graph, err := ParseJSON([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := MarshalYAML(graph)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	again, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if again.ID != graph.ID || len(again.Edges) != len(graph.Edges) {
		t.Fatalf("round trip lost data: %+v", again)
	}
}
