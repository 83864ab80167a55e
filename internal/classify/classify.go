// Package classify locates the gateways whose choices a node's form must
// collect.
package classify

import "github.com/rendis/bpmnforms/internal/graph"

// Target is a gateway that needs a chooser (or unconditioned routing) in a
// node's form. Branch is the 1-based index of the parallel branch the
// gateway was found on, or 0 when it is not behind a parallel fan-out.
type Target struct {
	Gateway *graph.Node
	Branch  int
}

// Classification is the routing picture downstream of one node.
type Classification struct {
	// Root is the nearest splitting gateway, nil when there is none.
	Root *graph.Node
	// Targets are the gateways to build choosers for and enrich.
	Targets []Target
}

// Gateways returns the target gateways without branch annotations.
func (c Classification) Gateways() []*graph.Node {
	out := make([]*graph.Node, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = t.Gateway
	}
	return out
}

// FansOut reports whether the root is a parallel gateway whose branches
// carry their own decision gateways.
func (c Classification) FansOut() bool {
	return c.Root != nil && c.Root.Kind == graph.KindParallelGateway &&
		len(c.Targets) > 0 && c.Targets[0].Gateway.ID != c.Root.ID
}

// IsSplitting reports whether n is a gateway with more than one outgoing edge.
func IsSplitting(g graph.Reader, n *graph.Node) bool {
	return n != nil && n.Kind.IsGateway() && len(g.Outgoing(n.ID)) > 1
}

// NearestSplittingGateway walks breadth-first from the direct successors of
// nodeID and returns the first splitting gateway. Merge gateways with a
// single outgoing edge are walked through. Returns nil when none is found.
func NearestSplittingGateway(g graph.Reader, nodeID string) *graph.Node {
	var starts []string
	for _, e := range g.Outgoing(nodeID) {
		starts = append(starts, e.Target)
	}
	return nearestFrom(g, starts, map[string]bool{nodeID: true})
}

// nearestFrom runs the breadth-first search seeded with starts. Seeds are
// candidates themselves.
func nearestFrom(g graph.Reader, starts []string, visited map[string]bool) *graph.Node {
	queue := make([]string, 0, len(starts))
	for _, id := range starts {
		if !visited[id] {
			visited[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		n := g.Node(id)
		if n == nil {
			continue
		}
		if IsSplitting(g, n) {
			return n
		}
		for _, e := range g.Outgoing(id) {
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return nil
}

// BranchGateways inspects each outgoing branch of a parallel gateway and
// returns the nearest exclusive or inclusive gateway on each. Branches that
// reach no gateway, or reach another parallel gateway first, are skipped.
func BranchGateways(g graph.Reader, parallelID string) []Target {
	var out []Target
	seen := make(map[string]bool)
	for i, e := range g.Outgoing(parallelID) {
		gw := nearestFrom(g, []string{e.Target}, map[string]bool{parallelID: true})
		if gw == nil || seen[gw.ID] {
			continue
		}
		switch gw.Kind {
		case graph.KindExclusiveGateway, graph.KindInclusiveGateway:
			seen[gw.ID] = true
			out = append(out, Target{Gateway: gw, Branch: i + 1})
		}
	}
	return out
}

// ParallelFanOut returns the gateways a node's form has to account for.
// For a parallel nearest gateway these are the decision gateways on its
// branches, or the parallel gateway itself when no branch decides anything.
// Any other nearest gateway is returned alone. No gateway yields nil.
func ParallelFanOut(g graph.Reader, nodeID string) []*graph.Node {
	return Classify(g, nodeID).Gateways()
}

// Classify is ParallelFanOut with branch annotations and the root gateway.
func Classify(g graph.Reader, nodeID string) Classification {
	root := NearestSplittingGateway(g, nodeID)
	if root == nil {
		return Classification{}
	}
	if root.Kind != graph.KindParallelGateway {
		return Classification{Root: root, Targets: []Target{{Gateway: root}}}
	}
	if branches := BranchGateways(g, root.ID); len(branches) > 0 {
		return Classification{Root: root, Targets: branches}
	}
	return Classification{Root: root, Targets: []Target{{Gateway: root}}}
}

// LeafTasks returns every task reachable from the gateway's outgoing edges,
// descending depth-first through intermediate gateways. Results are unique
// and in discovery order.
func LeafTasks(g graph.Reader, gatewayID string) []*graph.Node {
	var out []*graph.Node
	visited := map[string]bool{gatewayID: true}
	var walk func(id string)
	walk = func(id string) {
		for _, e := range g.Outgoing(id) {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			n := g.Node(e.Target)
			switch {
			case n == nil:
			case n.Kind.IsGateway():
				walk(n.ID)
			case n.Kind.IsTask():
				out = append(out, n)
			}
		}
	}
	walk(gatewayID)
	return out
}
