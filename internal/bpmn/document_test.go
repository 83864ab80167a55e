package bpmn

import (
	"os"
	"strings"
	"testing"

	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *Document {
	t.Helper()
	data, err := os.ReadFile("testdata/review.bpmn")
	require.NoError(t, err)
	doc, err := ParseBytes(data)
	require.NoError(t, err)
	return doc
}

func TestParse_Nodes(t *testing.T) {
	doc := loadFixture(t)

	kinds := map[string]graph.Kind{}
	for _, n := range doc.Nodes() {
		kinds[n.ID] = n.Kind
	}
	assert.Equal(t, map[string]graph.Kind{
		"StartEvent_1":     graph.KindStartEvent,
		"Task_Review":      graph.KindUserTask,
		"Gateway_Decision": graph.KindExclusiveGateway,
		"Task_Approve":     graph.KindUserTask,
		"Call_Reject":      graph.KindCallActivity,
		"End_1":            graph.KindEndEvent,
	}, kinds, "text annotations are not flow nodes")

	review := doc.Node("Task_Review")
	assert.Equal(t, "Review request", review.Name)
	assert.Equal(t, 240.0, review.X)
	assert.Equal(t, 80.0, review.Y)
	assert.Equal(t, "Flow_3", doc.Node("Gateway_Decision").Default)
}

func TestParse_Edges(t *testing.T) {
	doc := loadFixture(t)

	out := doc.Outgoing("Gateway_Decision")
	require.Len(t, out, 2)
	assert.Equal(t, "Flow_3", out[0].ID)
	assert.Equal(t, "ok", out[0].Name)
	assert.True(t, out[0].Default)
	assert.Equal(t, "Flow_4", out[1].ID)
	require.NotNil(t, out[1].Condition)
	assert.Equal(t, "stale = true", out[1].Condition.Body)
}

func TestParse_Errors(t *testing.T) {
	_, err := ParseBytes([]byte("<bpmn:definitions"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))

	_, err = ParseBytes([]byte(`<definitions xmlns="urn:other"/>`))
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))

	_, err = ParseBytes([]byte(""))
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))

	dangling := `<bpmn:definitions xmlns:bpmn="` + NSModel + `"><bpmn:process id="P">` +
		`<bpmn:startEvent id="S"/><bpmn:sequenceFlow id="F" sourceRef="S" targetRef="Nope"/>` +
		`</bpmn:process></bpmn:definitions>`
	_, err = ParseBytes([]byte(dangling))
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))
}

func TestSerialize_Unchanged(t *testing.T) {
	doc := loadFixture(t)
	out, err := doc.Serialize()
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, s, "<!-- intake -->")
	assert.Contains(t, s, `name="Permit &amp; Review"`)
	assert.Contains(t, s, "Check the request &lt;carefully&gt;")
	assert.Contains(t, s, `<bpmn:textAnnotation id="Note_1">`)
	assert.Contains(t, s, `isMarkerVisible="true"`)
	assert.Contains(t, s, `<bpmn:conditionExpression xsi:type="bpmn:tFormalExpression">=stale = true</bpmn:conditionExpression>`)
	assert.NotContains(t, s, "zeebe")

	again, err := ParseBytes(out)
	require.NoError(t, err)
	second, err := again.Serialize()
	require.NoError(t, err)
	assert.Equal(t, s, string(second))
}

func TestSerialize_Mutations(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, doc.SetCondition("Flow_3", doc.NewCondition(`nextTask = "Task_Approve"`)))
	require.NoError(t, doc.SetCondition("Flow_4", nil))
	require.NoError(t, doc.SetDefault("Gateway_Decision", "Flow_4"))
	require.NoError(t, doc.SetFormBinding("Task_Review", graph.FormBinding{FormID: "001-review-request-20260101T000000Z"}))
	require.NoError(t, doc.SetFormBinding("Task_Approve", graph.FormBinding{FormID: "approve", Mode: graph.BindingKey}))

	out, err := doc.Serialize()
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `xmlns:zeebe="`+NSZeebe+`"`)
	assert.Contains(t, s, `<bpmn:conditionExpression xsi:type="bpmn:tFormalExpression">=nextTask = "Task_Approve"</bpmn:conditionExpression>`)
	assert.NotContains(t, s, "stale")
	assert.Contains(t, s, `default="Flow_4"`)
	assert.Contains(t, s, `<zeebe:formDefinition formId="001-review-request-20260101T000000Z"/>`)
	assert.Contains(t, s, `<zeebe:formDefinition formKey="approve"/>`)

	// extensionElements goes right after documentation.
	review := s[strings.Index(s, `<bpmn:userTask id="Task_Review"`):]
	assert.Less(t, strings.Index(review, "</bpmn:documentation>"), strings.Index(review, "<bpmn:extensionElements>"))
	assert.Less(t, strings.Index(review, "<bpmn:extensionElements>"), strings.Index(review, "<bpmn:incoming>"))

	back, err := ParseBytes(out)
	require.NoError(t, err)
	assert.Equal(t, "Flow_4", back.Node("Gateway_Decision").Default)
	assert.Equal(t, `nextTask = "Task_Approve"`, back.Edge("Flow_3").Condition.Body)
	assert.Nil(t, back.Edge("Flow_4").Condition)
	assert.Equal(t, &graph.FormBinding{FormID: "001-review-request-20260101T000000Z", Mode: graph.BindingLinked}, back.Node("Task_Review").Form)
	assert.Equal(t, graph.BindingKey, back.Node("Task_Approve").Form.Mode)

	// Rebinding replaces the existing definition.
	require.NoError(t, back.SetFormBinding("Task_Approve", graph.FormBinding{FormID: "approve-2"}))
	out2, err := back.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(out2), `<zeebe:formDefinition formId="approve-2"/>`)
	assert.NotContains(t, string(out2), `formKey="approve"`)
	assert.Equal(t, 1, strings.Count(string(out2), "xmlns:zeebe="))
}

func TestSerialize_DeclaresXSI(t *testing.T) {
	src := `<?xml version="1.0"?>` +
		`<definitions xmlns="` + NSModel + `" id="D"><process id="P">` +
		`<exclusiveGateway id="G"/><task id="A"/><task id="B"/>` +
		`<sequenceFlow id="F1" sourceRef="G" targetRef="A"/>` +
		`<sequenceFlow id="F2" sourceRef="G" targetRef="B"/>` +
		`</process></definitions>`
	doc, err := ParseBytes([]byte(src))
	require.NoError(t, err)
	require.NoError(t, doc.SetCondition("F1", doc.NewCondition(`nextTask = "A"`)))

	out, err := doc.Serialize()
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `xmlns:xsi="`+NSXSI+`"`)
	assert.Contains(t, s, `<conditionExpression xsi:type="tFormalExpression">=nextTask = "A"</conditionExpression>`)
}
