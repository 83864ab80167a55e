package graph

import (
	"testing"

	"github.com/rendis/bpmnforms/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, n := range []*Node{
		{ID: "S", Kind: KindStartEvent},
		{ID: "G", Kind: KindExclusiveGateway, Name: "Decide"},
		{ID: "A", Kind: KindUserTask, Name: "Approve"},
		{ID: "B", Kind: KindUserTask},
	} {
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range []*Edge{
		{ID: "f1", Source: "S", Target: "G"},
		{ID: "f2", Source: "G", Target: "A"},
		{ID: "f3", Source: "G", Target: "B"},
	} {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

func TestGraph_AddErrors(t *testing.T) {
	g := sample(t)

	err := g.AddNode(&Node{ID: "A"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeGraph))
	err = g.AddNode(&Node{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeGraph))

	err = g.AddEdge(&Edge{ID: "f1", Source: "S", Target: "A"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeGraph))
	err = g.AddEdge(&Edge{ID: "f9", Source: "X", Target: "A"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeGraph))
	err = g.AddEdge(&Edge{ID: "f9", Source: "S", Target: "X"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeGraph))
}

func TestGraph_Order(t *testing.T) {
	g := sample(t)
	out := g.Outgoing("G")
	require.Len(t, out, 2)
	assert.Equal(t, "f2", out[0].ID)
	assert.Equal(t, "f3", out[1].ID)
	assert.Len(t, g.Incoming("G"), 1)
	assert.Nil(t, g.Node("missing"))
	assert.Equal(t, "B", g.Node("B").DisplayName())
	assert.Equal(t, "Approve", g.Node("A").DisplayName())
}

func TestGraph_SetCondition(t *testing.T) {
	g := sample(t)

	require.NoError(t, g.SetCondition("f2", g.NewCondition(`nextTask = "A"`)))
	assert.Equal(t, `=nextTask = "A"`, g.Edge("f2").Condition.Expression())

	require.NoError(t, g.SetCondition("f2", g.NewCondition("")))
	assert.Nil(t, g.Edge("f2").Condition)
	assert.Equal(t, "", g.Edge("f2").Condition.Expression())

	err := g.SetCondition("nope", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestGraph_SetDefault(t *testing.T) {
	g := sample(t)

	require.NoError(t, g.SetDefault("G", "f3"))
	assert.Equal(t, "f3", g.Node("G").Default)
	assert.True(t, g.Edge("f3").Default)
	assert.False(t, g.Edge("f2").Default)

	require.NoError(t, g.SetDefault("G", "f2"))
	assert.True(t, g.Edge("f2").Default)
	assert.False(t, g.Edge("f3").Default)

	require.NoError(t, g.SetDefault("G", ""))
	assert.Equal(t, "", g.Node("G").Default)
	assert.False(t, g.Edge("f2").Default)

	err := g.SetDefault("G", "f1")
	assert.True(t, schema.HasCode(err, schema.ErrCodeGraph))
	err = g.SetDefault("X", "")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestGraph_SetFormBinding(t *testing.T) {
	g := sample(t)
	require.NoError(t, g.SetFormBinding("A", FormBinding{FormID: "001-approve-x"}))
	assert.Equal(t, &FormBinding{FormID: "001-approve-x", Mode: BindingLinked}, g.Node("A").Form)

	require.NoError(t, g.SetFormBinding("A", FormBinding{FormID: "k", Mode: BindingKey}))
	assert.Equal(t, BindingKey, g.Node("A").Form.Mode)

	err := g.SetFormBinding("Z", FormBinding{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestGraph_SerializeParse(t *testing.T) {
	g := sample(t)
	require.NoError(t, g.SetCondition("f2", g.NewCondition(`nextTask = "A"`)))
	require.NoError(t, g.SetDefault("G", "f3"))
	require.NoError(t, g.SetFormBinding("A", FormBinding{FormID: "form-a"}))

	data, err := g.Serialize()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "f3", back.Node("G").Default)
	assert.True(t, back.Edge("f3").Default)
	assert.Equal(t, `nextTask = "A"`, back.Edge("f2").Condition.Body)
	assert.Equal(t, "form-a", back.Node("A").Form.FormID)

	again, err := back.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	_, err = Parse([]byte("{"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))
}

func TestGraph_SerializeEmpty(t *testing.T) {
	data, err := New().Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(data))
}

func TestKind(t *testing.T) {
	assert.True(t, KindInclusiveGateway.IsGateway())
	assert.False(t, KindUserTask.IsGateway())
	assert.True(t, KindCallActivity.IsTask())
	assert.True(t, KindSubProcess.IsTask())
	assert.False(t, KindEndEvent.IsTask())
}
