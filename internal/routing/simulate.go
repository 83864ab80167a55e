package routing

import (
	"context"

	"github.com/rendis/bpmnforms/internal/expressions"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// Simulator decides which outgoing flows of a gateway fire for a set of
// submitted form variables, the way the workflow engine would.
type Simulator struct {
	g    graph.Reader
	feel *expressions.FEELEngine
}

// NewSimulator creates a Simulator over g.
func NewSimulator(g graph.Reader) *Simulator {
	return &Simulator{g: g, feel: expressions.NewFEELEngine()}
}

// Simulate returns the flows leaving gatewayID that fire for vars.
//   - exclusive: the first conditioned flow that holds, else the default
//   - inclusive: every conditioned flow that holds, else the default
//   - parallel: every flow
//
// An exclusive or inclusive gateway with nothing to take is an error.
func (s *Simulator) Simulate(ctx context.Context, gatewayID string, vars map[string]any) ([]*graph.Edge, error) {
	gw := s.g.Node(gatewayID)
	if gw == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "gateway %q not found", gatewayID)
	}
	out := s.g.Outgoing(gatewayID)

	switch gw.Kind {
	case graph.KindParallelGateway:
		return out, nil
	case graph.KindExclusiveGateway, graph.KindInclusiveGateway:
	default:
		if len(out) <= 1 {
			return out, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "cannot simulate %s", gw.Kind).WithNode(gatewayID)
	}

	var fired []*graph.Edge
	var def *graph.Edge
	for _, e := range out {
		if e.ID == gw.Default {
			def = e
			continue
		}
		if e.Condition == nil {
			if len(out) == 1 {
				return out, nil
			}
			continue
		}
		ok, err := s.feel.EvaluateBool(ctx, e.Condition.Expression(), vars)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "flow %s: %s", e.ID, err.Error()).
				WithNode(gatewayID).WithCause(err)
		}
		if !ok {
			continue
		}
		fired = append(fired, e)
		if gw.Kind == graph.KindExclusiveGateway {
			return fired, nil
		}
	}
	if len(fired) > 0 {
		return fired, nil
	}
	if def != nil {
		return []*graph.Edge{def}, nil
	}
	return nil, schema.NewError(schema.ErrCodeExecution, "no outgoing flow can be taken").WithNode(gatewayID)
}

// Targets is Simulate reduced to target node ids.
func (s *Simulator) Targets(ctx context.Context, gatewayID string, vars map[string]any) ([]string, error) {
	edges, err := s.Simulate(ctx, gatewayID, vars)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Target
	}
	return out, nil
}

// Route follows the flows leaving nodeID through every gateway on the way
// and returns the non-gateway nodes the process would reach next, in
// visiting order without duplicates.
func (s *Simulator) Route(ctx context.Context, nodeID string, vars map[string]any) ([]string, error) {
	if s.g.Node(nodeID) == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	var out []string
	seen := map[string]bool{nodeID: true}
	queue := append([]*graph.Edge(nil), s.g.Outgoing(nodeID)...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if seen[e.Target] {
			continue
		}
		seen[e.Target] = true
		target := s.g.Node(e.Target)
		if target == nil {
			continue
		}
		if !target.Kind.IsGateway() {
			out = append(out, target.ID)
			continue
		}
		fired, err := s.Simulate(ctx, target.ID, vars)
		if err != nil {
			return nil, err
		}
		queue = append(queue, fired...)
	}
	return out, nil
}
