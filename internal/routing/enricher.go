// Package routing writes FEEL routing expressions onto the outgoing flows of
// gateways so that they agree with the chooser variables of the forms.
package routing

import (
	"fmt"
	"strings"

	"github.com/rendis/bpmnforms/internal/chooser"
	"github.com/rendis/bpmnforms/internal/classify"
	"github.com/rendis/bpmnforms/internal/graph"
)

// SingleExpression is the condition selecting target through a single-select variable.
func SingleExpression(variable, targetID string) string {
	return fmt.Sprintf(`%s = "%s"`, variable, targetID)
}

// ContainsExpression is the condition selecting target through a multi-select variable.
func ContainsExpression(variable, targetID string) string {
	return fmt.Sprintf(`list contains(%s, "%s")`, variable, targetID)
}

// Enricher writes routing for the gateways of one form. Variables must hold
// the chooser bindings of the pass so that both sides use the same names.
// Exclusive gateways missing from it fall back to chooser.VariableName;
// inclusive gateways missing from it had no chooser and are left
// unconditioned.
type Enricher struct {
	p         graph.Provider
	variables map[string]string
	visited   map[string]bool
}

// NewEnricher creates an Enricher writing into p.
func NewEnricher(p graph.Provider, variables map[string]string) *Enricher {
	return &Enricher{
		p:         p,
		variables: variables,
		visited:   make(map[string]bool),
	}
}

// Enrich writes routing for one classified gateway, recursing into nested
// gateways.
func (e *Enricher) Enrich(t classify.Target) error {
	if t.Gateway == nil {
		return nil
	}
	switch t.Gateway.Kind {
	case graph.KindExclusiveGateway:
		return e.exclusive(t.Gateway, t.Branch, 1)
	case graph.KindInclusiveGateway:
		return e.inclusive(t.Gateway, t.Branch, 1)
	case graph.KindParallelGateway:
		return e.parallel(t.Gateway, 1)
	}
	return nil
}

// EnrichAll enriches every target in order.
func (e *Enricher) EnrichAll(targets []classify.Target) error {
	for _, t := range targets {
		if err := e.Enrich(t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enricher) variable(gatewayID, base string, branch, level int) string {
	if v, ok := e.variables[gatewayID]; ok {
		return v
	}
	return chooser.VariableName(base, branch, level)
}

// exclusive makes the last outgoing flow the default and conditions the rest
// on the gateway's single-select variable.
func (e *Enricher) exclusive(gw *graph.Node, branch, level int) error {
	if e.visited[gw.ID] {
		return nil
	}
	e.visited[gw.ID] = true

	out := e.p.Outgoing(gw.ID)
	if len(out) == 0 {
		return nil
	}
	variable := e.variable(gw.ID, chooser.SingleVariable, branch, level)
	def := out[len(out)-1]
	for _, edge := range out {
		var cond *graph.Condition
		if edge.ID != def.ID {
			cond = e.p.NewCondition(SingleExpression(variable, edge.Target))
		}
		if err := e.p.SetCondition(edge.ID, cond); err != nil {
			return err
		}
	}
	if err := e.p.SetDefault(gw.ID, def.ID); err != nil {
		return err
	}

	for _, target := range e.splittingTargets(gw.ID) {
		var err error
		switch target.Kind {
		case graph.KindExclusiveGateway:
			err = e.exclusive(target, branch, level+1)
		case graph.KindInclusiveGateway:
			err = e.inclusive(target, branch, level+1)
		case graph.KindParallelGateway:
			err = e.parallel(target, level+1)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Enricher) inclusive(gw *graph.Node, branch, level int) error {
	if e.visited[gw.ID] {
		return nil
	}
	e.visited[gw.ID] = true
	variable, ok := e.variables[gw.ID]
	if !ok {
		return e.clear(gw)
	}
	return e.membership(gw, variable)
}

// membership conditions every outgoing flow of gw on the multi-select
// variable containing a task reachable through it. Gateways below an
// inclusive gateway are routed by the same variable.
func (e *Enricher) membership(gw *graph.Node, variable string) error {
	out := e.p.Outgoing(gw.ID)
	var def string
	if gw.Kind == graph.KindExclusiveGateway && len(out) > 0 {
		def = out[len(out)-1].ID
	}
	for _, edge := range out {
		var cond *graph.Condition
		switch {
		case gw.Kind == graph.KindParallelGateway, edge.ID == def:
		default:
			cond = e.p.NewCondition(e.memberCondition(variable, edge.Target))
		}
		if err := e.p.SetCondition(edge.ID, cond); err != nil {
			return err
		}
	}
	if err := e.p.SetDefault(gw.ID, def); err != nil {
		return err
	}

	for _, target := range e.splittingTargets(gw.ID) {
		if e.visited[target.ID] {
			continue
		}
		e.visited[target.ID] = true
		if err := e.membership(target, variable); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enricher) memberCondition(variable, targetID string) string {
	target := e.p.Node(targetID)
	if target == nil || !target.Kind.IsGateway() {
		return ContainsExpression(variable, targetID)
	}
	leaves := classify.LeafTasks(e.p, targetID)
	if len(leaves) == 0 {
		return ContainsExpression(variable, targetID)
	}
	parts := make([]string, len(leaves))
	for i, n := range leaves {
		parts[i] = ContainsExpression(variable, n.ID)
	}
	return strings.Join(parts, " or ")
}

// parallel clears every condition on the gateway's flows and enriches the
// decision gateways found on its branches.
func (e *Enricher) parallel(gw *graph.Node, level int) error {
	if e.visited[gw.ID] {
		return nil
	}
	e.visited[gw.ID] = true

	if err := e.clear(gw); err != nil {
		return err
	}
	for _, t := range classify.BranchGateways(e.p, gw.ID) {
		var err error
		switch t.Gateway.Kind {
		case graph.KindExclusiveGateway:
			err = e.exclusive(t.Gateway, t.Branch, level)
		case graph.KindInclusiveGateway:
			err = e.inclusive(t.Gateway, t.Branch, level)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// clear removes every condition and the default flow of gw.
func (e *Enricher) clear(gw *graph.Node) error {
	for _, edge := range e.p.Outgoing(gw.ID) {
		if err := e.p.SetCondition(edge.ID, nil); err != nil {
			return err
		}
	}
	if gw.Default != "" {
		return e.p.SetDefault(gw.ID, "")
	}
	return nil
}

// splittingTargets returns the distinct splitting gateways directly behind gw.
func (e *Enricher) splittingTargets(gatewayID string) []*graph.Node {
	var out []*graph.Node
	seen := make(map[string]bool)
	for _, edge := range e.p.Outgoing(gatewayID) {
		if seen[edge.Target] {
			continue
		}
		seen[edge.Target] = true
		if n := e.p.Node(edge.Target); classify.IsSplitting(e.p, n) {
			out = append(out, n)
		}
	}
	return out
}
