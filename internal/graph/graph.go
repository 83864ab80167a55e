package graph

import (
	"encoding/json"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// Graph is an in-memory Provider. Node and edge order is insertion order.
type Graph struct {
	nodes     []*Node
	nodeIndex map[string]*Node
	edges     []*Edge
	edgeIndex map[string]*Edge
	out       map[string][]*Edge
	in        map[string][]*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodeIndex: make(map[string]*Node),
		edgeIndex: make(map[string]*Edge),
		out:       make(map[string][]*Edge),
		in:        make(map[string][]*Edge),
	}
}

// AddNode appends a node. Node ids must be unique.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return schema.NewError(schema.ErrCodeGraph, "node id is required")
	}
	if _, exists := g.nodeIndex[n.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeGraph, "duplicate node id %q", n.ID)
	}
	g.nodes = append(g.nodes, n)
	g.nodeIndex[n.ID] = n
	return nil
}

// AddEdge appends an edge between two existing nodes.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil || e.ID == "" {
		return schema.NewError(schema.ErrCodeGraph, "edge id is required")
	}
	if _, exists := g.edgeIndex[e.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeGraph, "duplicate edge id %q", e.ID)
	}
	if g.nodeIndex[e.Source] == nil {
		return schema.NewErrorf(schema.ErrCodeGraph, "edge %q: unknown source %q", e.ID, e.Source)
	}
	if g.nodeIndex[e.Target] == nil {
		return schema.NewErrorf(schema.ErrCodeGraph, "edge %q: unknown target %q", e.ID, e.Target)
	}
	g.edges = append(g.edges, e)
	g.edgeIndex[e.ID] = e
	g.out[e.Source] = append(g.out[e.Source], e)
	g.in[e.Target] = append(g.in[e.Target], e)
	if src := g.nodeIndex[e.Source]; src.Default == e.ID {
		e.Default = true
	}
	return nil
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node { return g.nodeIndex[id] }

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []*Edge { return g.edges }

// Edge returns the edge with the given id, or nil.
func (g *Graph) Edge(id string) *Edge { return g.edgeIndex[id] }

// Outgoing returns the edges leaving id in declaration order.
func (g *Graph) Outgoing(id string) []*Edge { return g.out[id] }

// Incoming returns the edges entering id in declaration order.
func (g *Graph) Incoming(id string) []*Edge { return g.in[id] }

// NewCondition creates a condition with the given FEEL body.
func (g *Graph) NewCondition(body string) *Condition {
	return &Condition{Body: body}
}

// SetCondition sets or clears the condition of an edge.
func (g *Graph) SetCondition(edgeID string, cond *Condition) error {
	e := g.edgeIndex[edgeID]
	if e == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "edge %q not found", edgeID)
	}
	if cond != nil && cond.Body == "" {
		cond = nil
	}
	e.Condition = cond
	return nil
}

// SetDefault marks edgeID as the default flow of gatewayID.
func (g *Graph) SetDefault(gatewayID, edgeID string) error {
	gw := g.nodeIndex[gatewayID]
	if gw == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", gatewayID)
	}
	if edgeID != "" {
		e := g.edgeIndex[edgeID]
		if e == nil || e.Source != gatewayID {
			return schema.NewErrorf(schema.ErrCodeGraph, "edge %q is not an outgoing flow of %q", edgeID, gatewayID)
		}
	}
	for _, e := range g.out[gatewayID] {
		e.Default = e.ID == edgeID
	}
	gw.Default = edgeID
	return nil
}

// SetFormBinding attaches or replaces the form bound to a node.
func (g *Graph) SetFormBinding(nodeID string, binding FormBinding) error {
	n := g.nodeIndex[nodeID]
	if n == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	if binding.Mode == "" {
		binding.Mode = BindingLinked
	}
	b := binding
	n.Form = &b
	return nil
}

// Serialize renders the graph as JSON.
func (g *Graph) Serialize() ([]byte, error) {
	doc := struct {
		Nodes []*Node `json:"nodes"`
		Edges []*Edge `json:"edges"`
	}{Nodes: g.nodes, Edges: g.edges}
	if doc.Nodes == nil {
		doc.Nodes = []*Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []*Edge{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

var _ Provider = (*Graph)(nil)

// Parse rebuilds a graph from the JSON produced by Serialize.
func Parse(data []byte) (*Graph, error) {
	var doc struct {
		Nodes []*Node `json:"nodes"`
		Edges []*Edge `json:"edges"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "invalid graph document").WithCause(err)
	}
	g := New()
	for _, n := range doc.Nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range doc.Edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}
