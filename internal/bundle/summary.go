package bundle

import (
	"github.com/rendis/bpmnforms/internal/chooser"
	"github.com/rendis/bpmnforms/internal/classify"
	"github.com/rendis/bpmnforms/internal/forms"
	"github.com/rendis/bpmnforms/internal/graph"
)

// NextTaskSummary names the steps that follow a node: the chooser's leaf
// options for a decision, every branch task for a plain parallel split, or
// the next task(s) on a straight path.
func NextTaskSummary(g graph.Reader, nodeID string, c classify.Classification, choice chooser.Result) string {
	if c.Root == nil {
		return forms.Summary(forms.SummaryParallel, names(firstTasks(g, nodeID)))
	}
	style := forms.SummaryExclusive
	switch c.Root.Kind {
	case graph.KindInclusiveGateway:
		style = forms.SummaryInclusive
	case graph.KindParallelGateway:
		style = forms.SummaryParallel
		if !c.FansOut() {
			return forms.Summary(style, names(classify.LeafTasks(g, c.Root.ID)))
		}
	}
	labels := make([]string, 0, len(choice.Options))
	for _, o := range choice.Options {
		if n := g.Node(o.Value); n != nil {
			labels = append(labels, n.DisplayName())
		}
	}
	return forms.Summary(style, labels)
}

// firstTasks walks forward from nodeID and returns the first task on every
// path, not looking past tasks.
func firstTasks(g graph.Reader, nodeID string) []*graph.Node {
	var out []*graph.Node
	visited := map[string]bool{nodeID: true}
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(id) {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			n := g.Node(e.Target)
			switch {
			case n == nil:
			case n.Kind.IsTask():
				out = append(out, n)
			default:
				queue = append(queue, n.ID)
			}
		}
	}
	return out
}

func names(nodes []*graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.DisplayName())
	}
	return out
}
