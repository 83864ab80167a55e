// Package chooser turns classified gateways into the form components that
// let a user pick the next step(s).
package chooser

import (
	"fmt"
	"maps"
	"strings"

	"github.com/rendis/bpmnforms/internal/classify"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// Variable name bases.
const (
	SingleVariable = "nextTask"
	MultiVariable  = "nextTasks"
)

// Fallback option labels for unnamed targets.
const (
	LabelNextDecision = "Next decision"
	LabelNextTask     = "Next task"
)

// Result is the chooser UI for one node plus the leaf options it offers.
// Variables maps every gateway that received a chooser to the form variable
// its routing expressions must test.
type Result struct {
	Components []*schema.Component
	Options    []schema.Option
	Variables  map[string]string
}

// Empty reports whether no component was produced.
func (r Result) Empty() bool { return len(r.Components) == 0 }

// Variable returns the variable assigned to gatewayID.
func (r Result) Variable(gatewayID string) (string, bool) {
	v, ok := r.Variables[gatewayID]
	return v, ok
}

func (r *Result) merge(other Result) {
	r.Components = append(r.Components, other.Components...)
	r.Options = append(r.Options, other.Options...)
	for k, v := range other.Variables {
		if r.Variables == nil {
			r.Variables = make(map[string]string)
		}
		r.Variables[k] = v
	}
}

// VariableName is the unallocated name for a variable: base, then "b<i>"
// for parallel branch i, then the nesting level when above 1.
func VariableName(base string, branch, level int) string {
	parts := []string{base}
	if branch > 0 {
		parts = append(parts, fmt.Sprintf("b%d", branch))
	}
	if level > 1 {
		parts = append(parts, fmt.Sprintf("%d", level))
	}
	return strings.Join(parts, "_")
}

// Allocation binds form variables to gateways for a whole generation pass.
// A gateway keeps the variable it was first bound to, so every form that
// reaches it and every routing expression written for it use the same name.
// No two gateways share a variable.
type Allocation struct {
	byGateway map[string]string
	owner     map[string]string
}

// NewAllocation creates an empty Allocation.
func NewAllocation() *Allocation {
	return &Allocation{
		byGateway: make(map[string]string),
		owner:     make(map[string]string),
	}
}

// Variable returns the variable bound to gatewayID, if any.
func (a *Allocation) Variable(gatewayID string) (string, bool) {
	v, ok := a.byGateway[gatewayID]
	return v, ok
}

// Variables returns a copy of the gateway to variable bindings.
func (a *Allocation) Variables() map[string]string {
	return maps.Clone(a.byGateway)
}

// bind returns the variable of gatewayID, binding a fresh one derived from
// VariableName when the gateway has none yet. Names taken by another gateway
// get a letter suffix.
func (a *Allocation) bind(gatewayID, base string, branch, level int) string {
	if v, ok := a.byGateway[gatewayID]; ok {
		return v
	}
	name := a.free(VariableName(base, branch, level))
	a.byGateway[gatewayID] = name
	a.owner[name] = gatewayID
	return name
}

func (a *Allocation) free(name string) string {
	if _, taken := a.owner[name]; !taken {
		return name
	}
	for c := 'b'; c <= 'z'; c++ {
		candidate := name + string(c)
		if _, taken := a.owner[candidate]; !taken {
			return candidate
		}
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_x%d", name, i)
		if _, taken := a.owner[candidate]; !taken {
			return candidate
		}
	}
}

// Builder builds the chooser of a single form. Use a fresh Builder per form:
// the set of expanded gateways is form-scoped. Variables come from the
// Builder's Allocation, which may be shared by every form of a pass.
type Builder struct {
	g        graph.Reader
	alloc    *Allocation
	expanded map[string]bool
}

// NewBuilder creates a Builder over g with its own Allocation.
func NewBuilder(g graph.Reader) *Builder {
	return NewPassBuilder(g, NewAllocation())
}

// NewPassBuilder creates a Builder over g binding variables in alloc.
func NewPassBuilder(g graph.Reader, alloc *Allocation) *Builder {
	return &Builder{
		g:        g,
		alloc:    alloc,
		expanded: make(map[string]bool),
	}
}

// Build dispatches on the gateway kind: exclusive gateways start a cascade
// at level 1, inclusive gateways get a multi-select, anything else yields an
// empty result.
func (b *Builder) Build(t classify.Target) Result {
	if t.Gateway == nil {
		return Result{}
	}
	switch t.Gateway.Kind {
	case graph.KindExclusiveGateway:
		return b.exclusive(t.Gateway, t.Branch, 1)
	case graph.KindInclusiveGateway:
		return b.inclusive(t.Gateway, t.Branch, 1)
	default:
		return Result{}
	}
}

// BuildAll builds every target and concatenates the results in order.
func (b *Builder) BuildAll(targets []classify.Target) Result {
	var res Result
	for _, t := range targets {
		res.merge(b.Build(t))
	}
	return res
}

// Build is a one-shot Builder for a single gateway outside a parallel branch.
func Build(g graph.Reader, gateway *graph.Node) Result {
	return NewBuilder(g).Build(classify.Target{Gateway: gateway})
}

func (b *Builder) exclusive(gw *graph.Node, branch, level int) Result {
	if b.expanded[gw.ID] {
		return Result{}
	}
	b.expanded[gw.ID] = true

	variable := b.alloc.bind(gw.ID, SingleVariable, branch, level)
	res := Result{Variables: map[string]string{gw.ID: variable}}
	sel := &schema.Component{
		ID:       componentID(variable),
		Type:     schema.ComponentSelect,
		Key:      variable,
		Label:    labelOr(gw, "Next step"),
		Validate: map[string]any{"required": true},
	}

	var nested []*schema.Component
	seen := make(map[string]bool)
	for _, e := range b.g.Outgoing(gw.ID) {
		if seen[e.Target] {
			continue
		}
		seen[e.Target] = true
		target := b.g.Node(e.Target)
		if target == nil {
			continue
		}
		opt := schema.Option{Label: optionLabel(target), Value: target.ID}
		sel.Values = append(sel.Values, opt)

		if !classify.IsSplitting(b.g, target) {
			res.Options = append(res.Options, opt)
			continue
		}

		var sub Result
		switch target.Kind {
		case graph.KindExclusiveGateway:
			sub = b.exclusive(target, branch, level+1)
		case graph.KindInclusiveGateway:
			sub = b.inclusive(target, branch, level+1)
		case graph.KindParallelGateway:
			sub = b.parallel(target, level+1)
		}
		hide := fmt.Sprintf(`%s != "%s"`, variable, target.ID)
		for _, c := range sub.Components {
			addHide(c, hide)
		}
		nested = append(nested, sub.Components...)
		res.Options = append(res.Options, sub.Options...)
		for k, v := range sub.Variables {
			res.Variables[k] = v
		}
	}

	res.Components = append([]*schema.Component{sel}, nested...)
	return res
}

func (b *Builder) inclusive(gw *graph.Node, branch, level int) Result {
	if b.expanded[gw.ID] {
		return Result{}
	}
	b.expanded[gw.ID] = true

	leaves := classify.LeafTasks(b.g, gw.ID)
	if len(leaves) == 0 {
		return Result{}
	}
	variable := b.alloc.bind(gw.ID, MultiVariable, branch, level)
	opts := make([]schema.Option, 0, len(leaves))
	for _, n := range leaves {
		opts = append(opts, schema.Option{Label: optionLabel(n), Value: n.ID})
	}
	checklist := &schema.Component{
		ID:       componentID(variable),
		Type:     schema.ComponentChecklist,
		Key:      variable,
		Label:    labelOr(gw, "Next steps"),
		Values:   append([]schema.Option(nil), opts...),
		Validate: map[string]any{"required": true},
	}
	return Result{
		Components: []*schema.Component{checklist},
		Options:    opts,
		Variables:  map[string]string{gw.ID: variable},
	}
}

// parallel expands a parallel gateway met inside a cascade: each branch
// decision gateway gets its own chooser, all revealed together.
func (b *Builder) parallel(gw *graph.Node, level int) Result {
	if b.expanded[gw.ID] {
		return Result{}
	}
	b.expanded[gw.ID] = true

	var res Result
	for _, t := range classify.BranchGateways(b.g, gw.ID) {
		switch t.Gateway.Kind {
		case graph.KindExclusiveGateway:
			res.merge(b.exclusive(t.Gateway, t.Branch, level))
		case graph.KindInclusiveGateway:
			res.merge(b.inclusive(t.Gateway, t.Branch, level))
		}
	}
	return res
}

// addHide hides c unless cond is false, keeping any existing hide rule.
func addHide(c *schema.Component, cond string) {
	if c.Conditional == nil || c.Conditional.Hide == "" {
		c.Conditional = &schema.Conditional{Hide: "=" + cond}
		return
	}
	existing := strings.TrimPrefix(c.Conditional.Hide, "=")
	c.Conditional.Hide = "=" + cond + " or " + existing
}

func componentID(variable string) string {
	return "Field_" + variable
}

func labelOr(n *graph.Node, fallback string) string {
	if n.Name != "" {
		return n.Name
	}
	return fallback
}

func optionLabel(n *graph.Node) string {
	if n.Name != "" {
		return n.Name
	}
	if n.Kind.IsGateway() {
		return LabelNextDecision
	}
	return LabelNextTask
}
