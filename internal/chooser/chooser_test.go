package chooser

import (
	"testing"

	"github.com/rendis/bpmnforms/internal/classify"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/graph/graphtest"
	"github.com/rendis/bpmnforms/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(components []*schema.Component) []string {
	out := make([]string, len(components))
	for i, c := range components {
		out[i] = c.Key
	}
	return out
}

func hide(c *schema.Component) string {
	if c.Conditional == nil {
		return ""
	}
	return c.Conditional.Hide
}

func TestVariableName(t *testing.T) {
	assert.Equal(t, "nextTask", VariableName(SingleVariable, 0, 1))
	assert.Equal(t, "nextTask_2", VariableName(SingleVariable, 0, 2))
	assert.Equal(t, "nextTasks", VariableName(MultiVariable, 0, 1))
	assert.Equal(t, "nextTask_b1", VariableName(SingleVariable, 1, 1))
	assert.Equal(t, "nextTask_b2_2", VariableName(SingleVariable, 2, 2))
}

func TestBuild_Exclusive(t *testing.T) {
	g := graphtest.New().
		Task("N", "").XOR("G", "Outcome").Task("A", "Approve").Task("B", "").
		Chain("N", "G").Fan("G", "A", "B").
		Build()

	res := Build(g, g.Node("G"))

	require.Len(t, res.Components, 1)
	sel := res.Components[0]
	assert.Equal(t, schema.ComponentSelect, sel.Type)
	assert.Equal(t, "nextTask", sel.Key)
	assert.Equal(t, "Field_nextTask", sel.ID)
	assert.Equal(t, "Outcome", sel.Label)
	assert.Equal(t, map[string]any{"required": true}, sel.Validate)
	assert.Equal(t, []schema.Option{{Label: "Approve", Value: "A"}, {Label: LabelNextTask, Value: "B"}}, sel.Values)
	assert.Equal(t, sel.Values, res.Options)
	assert.Equal(t, map[string]string{"G": "nextTask"}, res.Variables)
	assert.Nil(t, sel.Conditional)
}

func TestBuild_ExclusiveDeduplicatesTargets(t *testing.T) {
	g := graphtest.New().
		XOR("G", "").Task("A", "").Task("B", "").
		Fan("G", "A", "B", "A").
		Build()

	res := Build(g, g.Node("G"))
	require.Len(t, res.Components, 1)
	assert.Len(t, res.Components[0].Values, 2)
}

func TestBuild_Inclusive(t *testing.T) {
	g := graphtest.New().
		OR("O", "").Task("T1", "One").Task("T2", "Two").Call("T3", "Three").
		Fan("O", "T1", "T2", "T3").
		Build()

	res := Build(g, g.Node("O"))
	require.Len(t, res.Components, 1)
	cl := res.Components[0]
	assert.Equal(t, schema.ComponentChecklist, cl.Type)
	assert.Equal(t, "nextTasks", cl.Key)
	assert.Equal(t, "Next steps", cl.Label)
	assert.Equal(t, map[string]any{"required": true}, cl.Validate)
	assert.Equal(t, []schema.Option{{Label: "One", Value: "T1"}, {Label: "Two", Value: "T2"}, {Label: "Three", Value: "T3"}}, cl.Values)
	assert.Len(t, res.Options, 3)
}

func TestBuild_InclusiveDescendsGateways(t *testing.T) {
	g := graphtest.New().
		OR("O", "").Task("T1", "").XOR("X", "").Task("T2", "").Task("T3", "").
		Fan("O", "T1", "X").Fan("X", "T2", "T3").
		Build()

	res := Build(g, g.Node("O"))
	require.Len(t, res.Components, 1)
	assert.Equal(t, []string{"T1", "T2", "T3"}, values(res.Components[0].Values))
}

func TestBuild_ParallelAndUnknown(t *testing.T) {
	g := graphtest.New().
		AND("P").Task("a", "").Task("b", "").
		Node("E", graph.KindEventBasedGateway, "").
		Fan("P", "a", "b").Fan("E", "a", "b").
		Build()

	assert.True(t, Build(g, g.Node("P")).Empty())
	assert.True(t, Build(g, g.Node("E")).Empty())
	assert.True(t, NewBuilder(g).Build(classify.Target{}).Empty())
}

func TestBuild_ParallelFanOut(t *testing.T) {
	g := graphtest.New().
		Start("S").AND("P").
		XOR("X1", "Left").XOR("X2", "Right").
		Task("a", "").Task("b", "").Task("c", "").Task("d", "").
		Chain("S", "P").Fan("P", "X1", "X2").
		Fan("X1", "a", "b").Fan("X2", "c", "d").
		Build()

	c := classify.Classify(g, "S")
	res := NewBuilder(g).BuildAll(c.Targets)

	assert.Equal(t, []string{"nextTask_b1", "nextTask_b2"}, keys(res.Components))
	assert.Equal(t, map[string]string{"X1": "nextTask_b1", "X2": "nextTask_b2"}, res.Variables)
	assert.Equal(t, []string{"a", "b", "c", "d"}, values(res.Options))
	for _, comp := range res.Components {
		assert.Nil(t, comp.Conditional, "sibling choosers are always visible")
	}
}

func TestBuild_Cascade(t *testing.T) {
	g := graphtest.New().
		XOR("G1", "").XOR("G2", "Escalate").XOR("G3", "").
		Task("A", "").Task("B", "").Task("C", "").Task("D", "").
		Fan("G1", "A", "G2").Fan("G2", "B", "G3").Fan("G3", "C", "D").
		Build()

	res := Build(g, g.Node("G1"))

	require.Equal(t, []string{"nextTask", "nextTask_2", "nextTask_3"}, keys(res.Components))
	first, second, third := res.Components[0], res.Components[1], res.Components[2]

	assert.Equal(t, []schema.Option{{Label: LabelNextTask, Value: "A"}, {Label: "Escalate", Value: "G2"}}, first.Values)
	assert.Equal(t, "", hide(first))
	assert.Equal(t, `=nextTask != "G2"`, hide(second))
	assert.Equal(t, `=nextTask != "G2" or nextTask_2 != "G3"`, hide(third))
	assert.Equal(t, LabelNextDecision, second.Values[1].Label)
	assert.Equal(t, []string{"A", "B", "C", "D"}, values(res.Options))
	assert.Equal(t, map[string]string{"G1": "nextTask", "G2": "nextTask_2", "G3": "nextTask_3"}, res.Variables)
}

func TestBuild_SiblingCollision(t *testing.T) {
	g := graphtest.New().
		XOR("G1", "").XOR("G2", "").XOR("G3", "").
		Task("a", "").Task("b", "").Task("c", "").Task("d", "").
		Fan("G1", "G2", "G3").Fan("G2", "a", "b").Fan("G3", "c", "d").
		Build()

	res := Build(g, g.Node("G1"))
	assert.Equal(t, []string{"nextTask", "nextTask_2", "nextTask_2b"}, keys(res.Components))
	assert.Equal(t, `=nextTask != "G3"`, hide(res.Components[2]))
}

func TestBuild_InclusiveInsideCascade(t *testing.T) {
	g := graphtest.New().
		XOR("G", "").Task("A", "").OR("O", "Extras").Task("B", "").Task("C", "").
		Fan("G", "A", "O").Fan("O", "B", "C").
		Build()

	res := Build(g, g.Node("G"))
	require.Equal(t, []string{"nextTask", "nextTasks_2"}, keys(res.Components))
	assert.Equal(t, schema.ComponentChecklist, res.Components[1].Type)
	assert.Equal(t, `=nextTask != "O"`, hide(res.Components[1]))
	assert.Equal(t, []string{"A", "B", "C"}, values(res.Options))
}

func TestBuild_ParallelInsideCascade(t *testing.T) {
	g := graphtest.New().
		XOR("G", "").Task("A", "").AND("P").
		XOR("X1", "").XOR("X2", "").
		Task("a", "").Task("b", "").Task("c", "").Task("d", "").
		Fan("G", "A", "P").Fan("P", "X1", "X2").
		Fan("X1", "a", "b").Fan("X2", "c", "d").
		Build()

	res := Build(g, g.Node("G"))
	require.Equal(t, []string{"nextTask", "nextTask_b1_2", "nextTask_b2_2"}, keys(res.Components))
	assert.Equal(t, `=nextTask != "P"`, hide(res.Components[1]))
	assert.Equal(t, `=nextTask != "P"`, hide(res.Components[2]))
}

func TestBuild_EmptyInclusiveDegrades(t *testing.T) {
	g := graphtest.New().
		XOR("G", "").Task("A", "").OR("O", "").End("E1").End("E2").
		Fan("G", "A", "O").Fan("O", "E1", "E2").
		Build()

	res := Build(g, g.Node("G"))
	require.Equal(t, []string{"nextTask"}, keys(res.Components))
	assert.Equal(t, []string{"A", "O"}, values(res.Components[0].Values))
	assert.Equal(t, []string{"A"}, values(res.Options))
}

func TestBuild_CycleTerminates(t *testing.T) {
	g := graphtest.New().
		XOR("G1", "").XOR("G2", "").Task("A", "").Task("B", "").
		Fan("G1", "A", "G2").Fan("G2", "B", "G1").
		Build()

	res := Build(g, g.Node("G1"))
	assert.Equal(t, []string{"nextTask", "nextTask_2"}, keys(res.Components))
}

func TestAddHide_KeepsExisting(t *testing.T) {
	c := &schema.Component{Conditional: &schema.Conditional{Hide: "=flag = true"}}
	addHide(c, `nextTask != "X"`)
	assert.Equal(t, `=nextTask != "X" or flag = true`, c.Conditional.Hide)
}

func values(opts []schema.Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out
}

func TestPassBuilder_ReusesGatewayVariable(t *testing.T) {
	g := graphtest.New().
		XOR("G1", "").XOR("G2", "").Task("T", "").Task("Q", "").
		Task("X", "").Task("Y", "").
		Fan("G1", "G2", "T").Chain("T", "Q", "G2").Fan("G2", "X", "Y").
		Build()
	alloc := NewAllocation()

	first := NewPassBuilder(g, alloc).Build(classify.Target{Gateway: g.Node("G1")})
	second := NewPassBuilder(g, alloc).Build(classify.Target{Gateway: g.Node("G2")})

	assert.Equal(t, []string{"nextTask", "nextTask_2"}, keys(first.Components))
	assert.Equal(t, []string{"nextTask_2"}, keys(second.Components))
	assert.Equal(t, map[string]string{"G2": "nextTask_2"}, second.Variables)
	assert.Equal(t, map[string]string{"G1": "nextTask", "G2": "nextTask_2"}, alloc.Variables())
}

func TestPassBuilder_DistinctGatewaysNeverShareVariable(t *testing.T) {
	g := graphtest.New().
		XOR("G1", "").XOR("G2", "").
		Task("a", "").Task("b", "").Task("c", "").Task("d", "").
		Fan("G1", "a", "b").Fan("G2", "c", "d").
		Build()
	alloc := NewAllocation()

	first := NewPassBuilder(g, alloc).Build(classify.Target{Gateway: g.Node("G1")})
	second := NewPassBuilder(g, alloc).Build(classify.Target{Gateway: g.Node("G2")})

	assert.Equal(t, []string{"nextTask"}, keys(first.Components))
	assert.Equal(t, []string{"nextTaskb"}, keys(second.Components))
	v, ok := alloc.Variable("G2")
	require.True(t, ok)
	assert.Equal(t, "nextTaskb", v)
}
