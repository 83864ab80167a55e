package bpmn

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// Namespaces understood by the adapter.
const (
	NSModel = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	NSDI    = "http://www.omg.org/spec/BPMN/20100524/DI"
	NSDC    = "http://www.omg.org/spec/DD/20100524/DC"
	NSZeebe = "http://camunda.org/schema/zeebe/1.0"
	NSXSI   = "http://www.w3.org/2001/XMLSchema-instance"
)

var kindByElement = map[string]graph.Kind{
	"startEvent":             graph.KindStartEvent,
	"userTask":               graph.KindUserTask,
	"callActivity":           graph.KindCallActivity,
	"subProcess":             graph.KindSubProcess,
	"transaction":            graph.KindSubProcess,
	"adHocSubProcess":        graph.KindSubProcess,
	"task":                   graph.KindTask,
	"serviceTask":            graph.KindTask,
	"scriptTask":             graph.KindTask,
	"manualTask":             graph.KindTask,
	"businessRuleTask":       graph.KindTask,
	"sendTask":               graph.KindTask,
	"receiveTask":            graph.KindTask,
	"endEvent":               graph.KindEndEvent,
	"exclusiveGateway":       graph.KindExclusiveGateway,
	"inclusiveGateway":       graph.KindInclusiveGateway,
	"parallelGateway":        graph.KindParallelGateway,
	"eventBasedGateway":      graph.KindEventBasedGateway,
	"complexGateway":         graph.KindOther,
	"intermediateCatchEvent": graph.KindOther,
	"intermediateThrowEvent": graph.KindOther,
	"boundaryEvent":          graph.KindOther,
}

// Document is a BPMN 2.0 XML document exposed as a graph.Provider.
// Mutations go to the embedded graph and are written back into the XML
// tree on Serialize, so everything the adapter does not model survives.
type Document struct {
	*graph.Graph

	tree    *tree
	nodeEls map[string]*element
	edgeEls map[string]*element
}

// Parse reads a BPMN 2.0 XML document.
func Parse(r io.Reader) (*Document, error) {
	t, err := parseTree(r)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "malformed BPMN XML").WithCause(err)
	}
	if !t.root.is(NSModel, "definitions") {
		return nil, schema.NewErrorf(schema.ErrCodeParse,
			"root element %q is not bpmn:definitions", t.root.name.Local)
	}

	d := &Document{
		Graph:   graph.New(),
		tree:    t,
		nodeEls: make(map[string]*element),
		edgeEls: make(map[string]*element),
	}

	var flows []*element
	for _, proc := range t.root.elements() {
		if proc.is(NSModel, "process") {
			if err := d.collect(proc, &flows); err != nil {
				return nil, err
			}
		}
	}
	d.applyPositions()

	// Flows are added after all nodes so that edge declaration order is the
	// document order of the sequenceFlow elements.
	for _, fl := range flows {
		e := &graph.Edge{
			ID:     fl.attr("id"),
			Source: fl.attr("sourceRef"),
			Target: fl.attr("targetRef"),
			Name:   fl.attr("name"),
		}
		if ce := fl.child(NSModel, "conditionExpression"); ce != nil {
			if body := stripFEEL(ce.text()); body != "" {
				e.Condition = &graph.Condition{Body: body}
			}
		}
		if err := d.AddEdge(e); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "sequence flow %q", e.ID).WithCause(err)
		}
		d.edgeEls[e.ID] = fl
	}
	return d, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

func (d *Document) collect(container *element, flows *[]*element) error {
	for _, el := range container.elements() {
		if el.uri != NSModel {
			continue
		}
		if el.name.Local == "sequenceFlow" {
			*flows = append(*flows, el)
			continue
		}
		kind, ok := kindByElement[el.name.Local]
		if !ok {
			continue // artifacts, lanes, data objects
		}
		n := &graph.Node{
			ID:      el.attr("id"),
			Kind:    kind,
			Name:    el.attr("name"),
			Default: el.attr("default"),
			Form:    readFormBinding(el),
		}
		if err := d.AddNode(n); err != nil {
			return schema.NewErrorf(schema.ErrCodeParse, "flow node <%s>", el.name.Local).WithCause(err)
		}
		d.nodeEls[n.ID] = el
		if kind == graph.KindSubProcess {
			if err := d.collect(el, flows); err != nil {
				return err
			}
		}
	}
	return nil
}

func readFormBinding(el *element) *graph.FormBinding {
	ext := el.child(NSModel, "extensionElements")
	if ext == nil {
		return nil
	}
	fd := ext.child(NSZeebe, "formDefinition")
	if fd == nil {
		return nil
	}
	if id := fd.attr("formId"); id != "" {
		return &graph.FormBinding{FormID: id, Mode: graph.BindingLinked}
	}
	if key := fd.attr("formKey"); key != "" {
		return &graph.FormBinding{FormID: key, Mode: graph.BindingKey}
	}
	return nil
}

// applyPositions copies BPMNShape bounds onto nodes.
func (d *Document) applyPositions() {
	for _, diagram := range d.tree.root.elements() {
		if !diagram.is(NSDI, "BPMNDiagram") {
			continue
		}
		for _, plane := range diagram.elements() {
			if !plane.is(NSDI, "BPMNPlane") {
				continue
			}
			for _, shape := range plane.elements() {
				if !shape.is(NSDI, "BPMNShape") {
					continue
				}
				n := d.Node(shape.attr("bpmnElement"))
				bounds := shape.child(NSDC, "Bounds")
				if n == nil || bounds == nil {
					continue
				}
				n.X, _ = strconv.ParseFloat(bounds.attr("x"), 64)
				n.Y, _ = strconv.ParseFloat(bounds.attr("y"), 64)
			}
		}
	}
}

// Serialize writes the graph state back into the XML tree and renders it.
func (d *Document) Serialize() ([]byte, error) {
	root := d.tree.root
	for _, e := range d.Edges() {
		el := d.edgeEls[e.ID]
		if el == nil {
			continue
		}
		d.syncCondition(root, el, e)
	}
	for _, n := range d.Nodes() {
		el := d.nodeEls[n.ID]
		if el == nil {
			continue
		}
		if n.Kind.IsGateway() {
			if n.Default != "" {
				el.setAttr("", "default", n.Default)
			} else {
				el.removeAttr("", "default")
			}
		}
		if n.Form != nil {
			d.syncFormBinding(root, el, n.Form)
		}
	}

	var buf bytes.Buffer
	if err := d.tree.write(&buf); err != nil {
		return nil, schema.NewError(schema.ErrCodeGraph, "serialize BPMN XML").WithCause(err)
	}
	return buf.Bytes(), nil
}

func (d *Document) syncCondition(root, el *element, e *graph.Edge) {
	ce := el.child(NSModel, "conditionExpression")
	if e.Condition == nil || e.Condition.Body == "" {
		if ce != nil {
			el.removeChild(ce)
		}
		return
	}
	if ce == nil {
		ce = el.newChild(NSModel, "conditionExpression")
	}
	xsi := root.declare("xsi", NSXSI)
	modelPrefix, _ := ce.prefixFor(NSModel)
	typeName := "tFormalExpression"
	if modelPrefix != "" {
		typeName = modelPrefix + ":" + typeName
	}
	ce.setAttr(xsi, "type", typeName)
	ce.setText(e.Condition.Expression())
}

func (d *Document) syncFormBinding(root, el *element, b *graph.FormBinding) {
	zeebe := root.declare("zeebe", NSZeebe)
	ext := el.child(NSModel, "extensionElements")
	if ext == nil {
		ext = el.newChild(NSModel, "extensionElements", "documentation")
	}
	fd := ext.child(NSZeebe, "formDefinition")
	if fd == nil {
		fd = ext.newChild(NSZeebe, "formDefinition")
		fd.name.Space = zeebe
	}
	if b.Mode == graph.BindingKey {
		fd.removeAttr("", "formId")
		fd.setAttr("", "formKey", b.FormID)
		return
	}
	fd.removeAttr("", "formKey")
	fd.setAttr("", "formId", b.FormID)
}

func stripFEEL(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimPrefix(s, "="))
}

var _ graph.Provider = (*Document)(nil)
