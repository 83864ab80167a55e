package bundle

import (
	"bytes"

	"github.com/rendis/bpmnforms/internal/bpmn"
	"github.com/rendis/bpmnforms/internal/graph"
)

// GraphFile returns the file name a bundle's enriched graph is written to.
func GraphFile(serialized []byte) string {
	if isXML(serialized) {
		return "process.bpmn"
	}
	return "graph.json"
}

// ParseGraph reads a serialized graph: BPMN XML when the data starts with
// markup, the JSON form of graph.Graph otherwise.
func ParseGraph(data []byte) (graph.Provider, error) {
	if isXML(data) {
		return bpmn.ParseBytes(data)
	}
	return graph.Parse(data)
}

func isXML(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '<'
}
