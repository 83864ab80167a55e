package forms

import (
	"testing"

	"github.com/rendis/bpmnforms/pkg/schema"
	"github.com/stretchr/testify/require"
)

const nextStepTemplate = `{
  "id": "template-next",
  "type": "default",
  "schemaVersion": 16,
  "components": [
    {"id": "Text_title", "type": "text", "text": "# STEP_NAME_PLACEHOLDER for service_name_placeholder"},
    {"id": "Text_desc", "type": "text", "text": "STEP_DESCRIPTION_PLACEHOLDER"},
    {"id": "Group_main", "type": "group", "label": "Decision", "components": [
      {"id": "Field_chooser", "type": "textfield", "key": "NEXT_TASK_CHOOSER_PLACEHOLDER", "label": "Next"},
      {"id": "Text_next", "type": "text", "text": "Next: NEXT_TASKS_PLACEHOLDER"}
    ]},
    {"id": "Group_refs", "type": "group", "label": "Links", "components": [
      {"id": "Text_refs", "type": "text", "text": "REFERENCES_PLACEHOLDER"}
    ]},
    {"id": "Field_notes", "type": "textarea", "key": "notes", "label": "Notes", "properties": {"hint": "About STEP_NAME_PLACEHOLDER"}}
  ]
}`

const plainTemplate = `{
  "id": "template-plain",
  "type": "default",
  "schemaVersion": 16,
  "components": [
    {"id": "Text_title", "type": "text", "text": "STEP_NAME_PLACEHOLDER"},
    {"id": "Field_notes", "type": "textarea", "key": "notes", "label": "Notes"}
  ]
}`

func parseTemplate(t *testing.T, doc string) *schema.Form {
	t.Helper()
	f, err := schema.ParseForm([]byte(doc))
	require.NoError(t, err)
	return f
}

func chooserComponents() []*schema.Component {
	return []*schema.Component{
		{
			ID:       "Field_nextTask",
			Type:     schema.ComponentSelect,
			Key:      "nextTask",
			Label:    "Route",
			Values:   []schema.Option{{Label: "A", Value: "Task_A"}, {Label: "B", Value: "Task_B"}},
			Validate: map[string]any{"required": true},
		},
	}
}
