package diagram

import (
	"github.com/rendis/bpmnforms/internal/graph"
)

// Build constructs a DiagramModel from a process graph. Edges are labelled
// with their routing expression, default flows with "default". Levels are
// the BFS distance from the nodes without incoming flows; nodes only
// reachable through a cycle land on the level after their first visit.
func Build(g graph.Reader, title string) *DiagramModel {
	if title == "" {
		title = "Process"
	}
	model := &DiagramModel{Title: title}
	for _, n := range g.Nodes() {
		model.Nodes = append(model.Nodes, toNode(n))
		for _, e := range g.Outgoing(n.ID) {
			model.Edges = append(model.Edges, Edge{
				From:    e.Source,
				To:      e.Target,
				Label:   edgeLabel(e),
				Default: e.Default,
			})
		}
	}
	model.Levels = buildLevels(g)
	return model
}

func toNode(n *graph.Node) *Node {
	node := &Node{ID: n.ID, Label: n.DisplayName(), Kind: kindOf(n.Kind)}
	if n.Form != nil {
		node.FormID = n.Form.FormID
	}
	return node
}

// kindOf converts a graph kind to a NodeKind.
func kindOf(k graph.Kind) NodeKind {
	switch k {
	case graph.KindStartEvent:
		return NodeKindStart
	case graph.KindEndEvent:
		return NodeKindEnd
	case graph.KindUserTask, graph.KindTask, graph.KindSubProcess:
		return NodeKindTask
	case graph.KindCallActivity:
		return NodeKindCall
	case graph.KindExclusiveGateway, graph.KindEventBasedGateway:
		return NodeKindExclusive
	case graph.KindInclusiveGateway:
		return NodeKindInclusive
	case graph.KindParallelGateway:
		return NodeKindParallel
	default:
		return NodeKindOther
	}
}

func edgeLabel(e *graph.Edge) string {
	switch {
	case e.Condition != nil && e.Condition.Body != "":
		return e.Condition.Body
	case e.Default:
		return "default"
	default:
		return e.Name
	}
}

// buildLevels groups node ids by BFS distance from the roots, keeping
// document order inside a level. A graph without roots (a pure cycle)
// starts from its first node.
func buildLevels(g graph.Reader) [][]string {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	level := make(map[string]int, len(nodes))
	var queue []string
	for _, n := range nodes {
		if len(g.Incoming(n.ID)) == 0 {
			level[n.ID] = 0
			queue = append(queue, n.ID)
		}
	}

	depth := 0
	for len(level) < len(nodes) {
		if len(queue) == 0 {
			// Seed the first unvisited node one level below everything seen.
			for _, n := range nodes {
				if _, ok := level[n.ID]; !ok {
					level[n.ID] = depth + 1
					queue = append(queue, n.ID)
					break
				}
			}
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, e := range g.Outgoing(id) {
				if _, seen := level[e.Target]; seen {
					continue
				}
				level[e.Target] = level[id] + 1
				if level[e.Target] > depth {
					depth = level[e.Target]
				}
				queue = append(queue, e.Target)
			}
		}
	}

	levels := make([][]string, depth+2)
	for _, n := range nodes {
		levels[level[n.ID]] = append(levels[level[n.ID]], n.ID)
	}
	out := levels[:0]
	for _, l := range levels {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}
