package validation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/classify"
	"github.com/rendis/bpmnforms/internal/expressions"
	"github.com/rendis/bpmnforms/internal/forms"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// jq queries run over each form document.
const (
	chooserKeysQuery = `[.. | objects | select(.type == "select" or .type == "checklist") | .key | strings]`
	hideRulesQuery   = `[.. | objects | select(.conditional.hide? | type == "string" and . != "") | {id: (.id // ""), hide: .conditional.hide}]`
)

// Verifier re-checks a generated bundle against its enriched graph.
// It is safe for concurrent use.
type Verifier struct {
	forms      *FormSchemaValidator
	feel       *expressions.FEELEngine
	visibility *expressions.VisibilityEngine
	jq         *expressions.GoJQEngine
}

// NewVerifier creates a Verifier with the form schema pre-compiled.
func NewVerifier() (*Verifier, error) {
	fsv, err := NewFormSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Verifier{
		forms:      fsv,
		feel:       expressions.NewFEELEngine(),
		visibility: expressions.NewVisibilityEngine(),
		jq:         expressions.NewGoJQEngine(),
	}, nil
}

// Forms returns the form schema validator.
func (v *Verifier) Forms() *FormSchemaValidator { return v.forms }

// Verify parses the bundle's serialized graph and verifies the bundle
// against it.
func (v *Verifier) Verify(ctx context.Context, b *schema.Bundle) (*schema.ValidationResult, error) {
	if b == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "bundle is nil")
	}
	g, err := bundle.ParseGraph([]byte(b.Graph))
	if err != nil {
		return nil, err
	}
	return v.VerifyBundle(ctx, b, g), nil
}

// VerifyBundle runs every bundle check and aggregates the issues. Form
// checks run first; graph checks only cover the gateways reachable from a
// generated form without passing a task.
func (v *Verifier) VerifyBundle(ctx context.Context, b *schema.Bundle, g graph.Reader) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if b == nil || g == nil {
		result.AddError("/", schema.ErrCodeValidation, "bundle and graph are required")
		return result
	}

	formKeys := make(map[string]map[string]bool, len(b.Forms))
	for i, f := range b.Forms {
		path := fmt.Sprintf("forms[%d]", i)
		keys := make(map[string]bool)
		formKeys[f.NodeID] = keys
		result.Merge(v.verifyForm(ctx, path, f, keys))
	}
	result.Merge(verifyBinding(b, g))
	result.Merge(verifyCoverage(b, g))
	result.Merge(verifyManifest(b))

	gateways := reachableGateways(g, b)
	result.Merge(verifyRouting(g, gateways))
	result.Merge(v.verifyExpressions(g))
	result.Merge(verifyVariables(g, b, formKeys))
	return result
}

// verifyForm checks one document: schema, placeholder closure and hide rule
// syntax. Chooser keys found in the form are added to keys.
func (v *Verifier) verifyForm(ctx context.Context, path string, f schema.GeneratedForm, keys map[string]bool) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if f.Document == nil {
		result.AddError(path, schema.IssueFormSchema, "form document is missing")
		return result
	}

	if err := v.forms.ValidateForm(f.Document); err != nil {
		for _, msg := range violationMessages(err) {
			result.AddError(path, schema.IssueFormSchema, msg)
		}
	}

	for _, field := range forms.Unresolved(f.Document) {
		result.AddError(path+"."+field, schema.IssuePlaceholder, "placeholder left unresolved")
	}

	found, err := v.queryStrings(ctx, chooserKeysQuery, f.Document)
	if err != nil {
		result.AddError(path, schema.IssueFormSchema, err.Error())
	}
	for _, k := range found {
		keys[k] = true
	}

	rules, err := v.jq.Query(ctx, hideRulesQuery, f.Document)
	if err != nil {
		result.AddError(path, schema.IssueFormSchema, err.Error())
		return result
	}
	for _, rule := range firstList(rules) {
		m, _ := rule.(map[string]any)
		hide, _ := m["hide"].(string)
		id, _ := m["id"].(string)
		if err := v.visibility.Check(hide); err != nil {
			result.AddError(fmt.Sprintf("%s.%s.conditional", path, id), schema.IssueExpression, err.Error())
		}
	}
	return result
}

// HiddenFields returns the ids of the components of doc that their hide
// rules hide for vars, in document order.
func (v *Verifier) HiddenFields(ctx context.Context, doc *schema.Form, vars map[string]any) ([]string, error) {
	rules, err := v.jq.Query(ctx, hideRulesQuery, doc)
	if err != nil {
		return nil, err
	}
	hidden := []string{}
	for _, rule := range firstList(rules) {
		m, _ := rule.(map[string]any)
		hide, _ := m["hide"].(string)
		id, _ := m["id"].(string)
		ok, err := v.visibility.Hidden(ctx, hide, vars)
		if err != nil {
			return nil, err
		}
		if ok {
			hidden = append(hidden, id)
		}
	}
	return hidden, nil
}

// queryStrings runs a query producing one list of strings.
func (v *Verifier) queryStrings(ctx context.Context, query string, doc any) ([]string, error) {
	out, err := v.jq.Query(ctx, query, doc)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, item := range firstList(out) {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values, nil
}

func firstList(outputs []any) []any {
	if len(outputs) == 0 {
		return nil
	}
	list, _ := outputs[0].([]any)
	return list
}

func violationMessages(err error) []string {
	var e *schema.Error
	if !errors.As(err, &e) {
		return []string{err.Error()}
	}
	if violations, ok := e.Details["violations"].([]string); ok {
		return violations
	}
	return []string{e.Message}
}

// verifyBinding checks that every form id matches its document and the
// binding on its node.
func verifyBinding(b *schema.Bundle, g graph.Reader) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for i, f := range b.Forms {
		path := fmt.Sprintf("forms[%d]", i)
		if f.Document != nil && f.Document.ID != f.FormID {
			result.AddError(path, schema.IssueFormBinding,
				fmt.Sprintf("document id %q does not match form id %q", f.Document.ID, f.FormID))
		}
		node := g.Node(f.NodeID)
		switch {
		case node == nil:
			result.AddError(path, schema.IssueFormBinding, fmt.Sprintf("node %q not found in graph", f.NodeID))
		case node.Form == nil:
			result.AddError(path, schema.IssueFormBinding, fmt.Sprintf("node %q has no form binding", f.NodeID))
		case node.Form.FormID != f.FormID:
			result.AddError(path, schema.IssueFormBinding,
				fmt.Sprintf("node %q is bound to %q, want %q", f.NodeID, node.Form.FormID, f.FormID))
		}
	}
	return result
}

// verifyCoverage checks that every qualifying node has exactly one form and
// that filenames are unique.
func verifyCoverage(b *schema.Bundle, g graph.Reader) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	perNode := make(map[string]int, len(b.Forms))
	filenames := make(map[string]bool, len(b.Forms))
	for i, f := range b.Forms {
		perNode[f.NodeID]++
		if filenames[f.Filename] {
			result.AddError(fmt.Sprintf("forms[%d]", i), schema.IssueCoverage,
				fmt.Sprintf("duplicate filename %q", f.Filename))
		}
		filenames[f.Filename] = true
	}
	for _, n := range bundle.QualifyingNodes(g) {
		switch perNode[n.ID] {
		case 1:
		case 0:
			result.AddError("nodes."+n.ID, schema.IssueCoverage, "qualifying node has no generated form")
		default:
			result.AddError("nodes."+n.ID, schema.IssueCoverage,
				fmt.Sprintf("node has %d generated forms", perNode[n.ID]))
		}
	}
	return result
}

// verifyManifest checks that the manifest lists every form with its checksum.
func verifyManifest(b *schema.Bundle) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(b.Manifest.Forms) != len(b.Forms) {
		result.AddError("manifest", schema.IssueChecksum,
			fmt.Sprintf("manifest lists %d forms, bundle has %d", len(b.Manifest.Forms), len(b.Forms)))
		return result
	}
	for i, entry := range b.Manifest.Forms {
		f := b.Forms[i]
		path := fmt.Sprintf("manifest.forms[%d]", i)
		if entry.Filename != f.Filename || entry.FormID != f.FormID {
			result.AddError(path, schema.IssueChecksum, fmt.Sprintf("entry does not describe %s", f.Filename))
			continue
		}
		if f.Document == nil {
			continue
		}
		sum, err := bundle.FormChecksum(f.Document)
		if err != nil {
			result.AddError(path, schema.IssueChecksum, err.Error())
			continue
		}
		if sum != entry.Checksum {
			result.AddError(path, schema.IssueChecksum, fmt.Sprintf("checksum mismatch for %s", f.Filename))
		}
	}
	return result
}

// reachableGateways returns the splitting gateways reachable from the
// bundle's form nodes without passing a non-gateway node, in discovery order.
func reachableGateways(g graph.Reader, b *schema.Bundle) []*graph.Node {
	var out []*graph.Node
	visited := make(map[string]bool)
	for _, f := range b.Forms {
		out = append(out, gatewaysFrom(g, f.NodeID, visited)...)
	}
	return out
}

// gatewaysFrom walks the gateways behind nodeID, skipping those already in
// visited, and returns the splitting ones.
func gatewaysFrom(g graph.Reader, nodeID string, visited map[string]bool) []*graph.Node {
	var out []*graph.Node
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(id) {
			n := g.Node(e.Target)
			if n == nil || !n.Kind.IsGateway() || visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			if len(g.Outgoing(n.ID)) > 1 {
				out = append(out, n)
			}
			queue = append(queue, n.ID)
		}
	}
	return out
}

// formGateways returns the splitting gateways routed by the chooser of the
// form on nodeID: its classified gateways and those cascading behind them.
func formGateways(g graph.Reader, nodeID string) []*graph.Node {
	var out, queue []*graph.Node
	visited := make(map[string]bool)
	for _, t := range classify.Classify(g, nodeID).Targets {
		if !visited[t.Gateway.ID] {
			visited[t.Gateway.ID] = true
			queue = append(queue, t.Gateway)
		}
	}
	for len(queue) > 0 {
		gw := queue[0]
		queue = queue[1:]
		out = append(out, gw)
		for _, e := range g.Outgoing(gw.ID) {
			n := g.Node(e.Target)
			if n == nil || visited[n.ID] || !classify.IsSplitting(g, n) {
				continue
			}
			visited[n.ID] = true
			queue = append(queue, n)
		}
	}
	return out
}

// verifyRouting checks the default flow and condition shape of every gateway.
func verifyRouting(g graph.Reader, gateways []*graph.Node) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for _, gw := range gateways {
		path := "gateways." + gw.ID
		out := g.Outgoing(gw.ID)
		switch gw.Kind {
		case graph.KindExclusiveGateway:
			var defaults []*graph.Edge
			for _, e := range out {
				if e.Default {
					defaults = append(defaults, e)
					if e.Condition != nil {
						result.AddError(path, schema.IssueDefaultEdge,
							fmt.Sprintf("default flow %q carries a routing expression", e.ID))
					}
					continue
				}
				if e.Condition == nil {
					result.AddError(path, schema.IssueDefaultEdge,
						fmt.Sprintf("flow %q has no routing expression", e.ID))
				}
			}
			switch {
			case len(defaults) != 1:
				result.AddError(path, schema.IssueDefaultEdge,
					fmt.Sprintf("gateway has %d default flows, want 1", len(defaults)))
			case gw.Default != defaults[0].ID:
				result.AddError(path, schema.IssueDefaultEdge,
					fmt.Sprintf("gateway default %q does not match flagged flow %q", gw.Default, defaults[0].ID))
			}
		case graph.KindInclusiveGateway:
			if gw.Default != "" {
				result.AddError(path, schema.IssueInclusive, "inclusive gateway has a default flow")
			}
			// Without tasks behind it there is nothing to choose.
			offered := len(classify.LeafTasks(g, gw.ID)) > 0
			for _, e := range out {
				if e.Default {
					result.AddError(path, schema.IssueInclusive, fmt.Sprintf("flow %q is marked default", e.ID))
				}
				if !offered {
					if e.Condition != nil {
						result.AddError(path, schema.IssueInclusive,
							fmt.Sprintf("flow %q carries a routing expression but no task can be chosen", e.ID))
					}
					continue
				}
				if !isMembership(e.Condition) {
					result.AddError(path, schema.IssueInclusive,
						fmt.Sprintf("flow %q has no list membership expression", e.ID))
				}
			}
		case graph.KindParallelGateway:
			if gw.Default != "" {
				result.AddError(path, schema.IssueParallel, "parallel gateway has a default flow")
			}
			for _, e := range out {
				if e.Condition != nil {
					result.AddError(path, schema.IssueParallel,
						fmt.Sprintf("flow %q carries a routing expression", e.ID))
				}
			}
		}
	}
	return result
}

func isMembership(c *graph.Condition) bool {
	if c == nil || c.Body == "" {
		return false
	}
	parsed, err := expressions.ParseFEEL(c.Body)
	if err != nil {
		return false
	}
	return len(parsed.ListIdentifiers()) > 0
}

// verifyExpressions checks the syntax of every routing expression in g.
func (v *Verifier) verifyExpressions(g graph.Reader) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for _, n := range g.Nodes() {
		for _, e := range g.Outgoing(n.ID) {
			if e.Condition == nil || e.Condition.Body == "" {
				continue
			}
			if err := v.feel.Check(e.Condition.Body); err != nil {
				result.AddError("flows."+e.ID, schema.IssueExpression, err.Error())
			}
		}
	}
	return result
}

// verifyVariables checks, form by form, that the routing expressions of the
// gateways behind a form only read variables that form sets, and warns about
// chooser variables nothing reads.
func verifyVariables(g graph.Reader, b *schema.Bundle, formKeys map[string]map[string]bool) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	read := make(map[string]bool)
	for _, f := range b.Forms {
		keys := formKeys[f.NodeID]
		for _, gw := range formGateways(g, f.NodeID) {
			for _, e := range g.Outgoing(gw.ID) {
				if e.Condition == nil || e.Condition.Body == "" {
					continue
				}
				parsed, err := expressions.ParseFEEL(e.Condition.Body)
				if err != nil {
					continue
				}
				for _, ident := range parsed.Identifiers() {
					read[ident] = true
					if !keys[ident] {
						result.AddError("flows."+e.ID, schema.IssueVariable,
							fmt.Sprintf("expression reads %q, which form %s does not set", ident, f.Filename))
					}
				}
			}
		}
	}
	var unread []string
	for _, keys := range formKeys {
		for k := range keys {
			if !read[k] && !slices.Contains(unread, k) {
				unread = append(unread, k)
			}
		}
	}
	sort.Strings(unread)
	for _, k := range unread {
		result.AddWarning("forms", schema.IssueVariable,
			fmt.Sprintf("chooser variable %q is not read by any routing expression", k))
	}
	return result
}
