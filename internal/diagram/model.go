// Package diagram renders a process graph for preview: Mermaid text, a
// plain-text level layout and PNG images.
package diagram

// NodeKind classifies a diagram node by its BPMN element.
type NodeKind string

const (
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
	NodeKindTask      NodeKind = "task"
	NodeKindCall      NodeKind = "call"
	NodeKindExclusive NodeKind = "exclusive"
	NodeKindInclusive NodeKind = "inclusive"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindOther     NodeKind = "other"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single flow element in the diagram.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	// FormID is the generated form bound to the node, if any.
	FormID string
}

// Edge represents a sequence flow between two nodes.
type Edge struct {
	From    string
	To      string
	Label   string
	Default bool
}

// IsGateway reports whether k is a gateway kind.
func (k NodeKind) IsGateway() bool {
	return k == NodeKindExclusive || k == NodeKindInclusive || k == NodeKindParallel
}
