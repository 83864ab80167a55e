// Package graphtest builds process graphs for tests.
package graphtest

import (
	"fmt"

	"github.com/rendis/bpmnforms/internal/graph"
)

// Builder assembles a graph.Graph fluently. Nodes are laid out left to
// right in the order they are added unless At is used. Any error panics.
type Builder struct {
	g     *graph.Graph
	x     float64
	flows int
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{g: graph.New()}
}

// Node adds a node of the given kind.
func (b *Builder) Node(id string, kind graph.Kind, name string) *Builder {
	b.x += 100
	return b.At(id, kind, name, b.x, 100)
}

// At adds a node at an explicit position.
func (b *Builder) At(id string, kind graph.Kind, name string, x, y float64) *Builder {
	must(b.g.AddNode(&graph.Node{ID: id, Kind: kind, Name: name, X: x, Y: y}))
	return b
}

// Start adds a start event.
func (b *Builder) Start(id string) *Builder { return b.Node(id, graph.KindStartEvent, "") }

// Task adds a user task.
func (b *Builder) Task(id, name string) *Builder { return b.Node(id, graph.KindUserTask, name) }

// Call adds a call activity.
func (b *Builder) Call(id, name string) *Builder { return b.Node(id, graph.KindCallActivity, name) }

// End adds an end event.
func (b *Builder) End(id string) *Builder { return b.Node(id, graph.KindEndEvent, "") }

// XOR adds an exclusive gateway.
func (b *Builder) XOR(id, name string) *Builder {
	return b.Node(id, graph.KindExclusiveGateway, name)
}

// OR adds an inclusive gateway.
func (b *Builder) OR(id, name string) *Builder {
	return b.Node(id, graph.KindInclusiveGateway, name)
}

// AND adds a parallel gateway.
func (b *Builder) AND(id string) *Builder {
	return b.Node(id, graph.KindParallelGateway, "")
}

// Flow adds a sequence flow named "Flow_<n>".
func (b *Builder) Flow(source, target string) *Builder {
	b.flows++
	must(b.g.AddEdge(&graph.Edge{ID: fmt.Sprintf("Flow_%d", b.flows), Source: source, Target: target}))
	return b
}

// Chain adds flows between consecutive ids.
func (b *Builder) Chain(ids ...string) *Builder {
	for i := 1; i < len(ids); i++ {
		b.Flow(ids[i-1], ids[i])
	}
	return b
}

// Fan adds flows from source to every target, in order.
func (b *Builder) Fan(source string, targets ...string) *Builder {
	for _, t := range targets {
		b.Flow(source, t)
	}
	return b
}

// Build returns the graph.
func (b *Builder) Build() *graph.Graph { return b.g }

// EdgeTo returns the first flow from source to target, or nil.
func EdgeTo(g graph.Reader, source, target string) *graph.Edge {
	for _, e := range g.Outgoing(source) {
		if e.Target == target {
			return e
		}
	}
	return nil
}

// Body returns the condition body of the flow from source to target.
func Body(g graph.Reader, source, target string) string {
	e := EdgeTo(g, source, target)
	if e == nil || e.Condition == nil {
		return ""
	}
	return e.Condition.Body
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
