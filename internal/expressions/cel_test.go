package expressions

import (
	"context"
	"testing"

	"github.com/rendis/bpmnforms/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibilityEngine_Hidden(t *testing.T) {
	e := NewVisibilityEngine()
	ctx := context.Background()

	tests := []struct {
		name string
		hide string
		data map[string]any
		want bool
	}{
		{"empty rule", "", nil, false},
		{"selected branch shows", `=nextTask != "GW_2"`, map[string]any{"nextTask": "GW_2"}, false},
		{"other branch hides", `=nextTask != "GW_2"`, map[string]any{"nextTask": "T1"}, true},
		{"unset hides", `=nextTask != "GW_2"`, nil, true},
		{"combined rule", `=nextTask_2 != "GW_3" or nextTask != "GW_2"`,
			map[string]any{"nextTask": "GW_2", "nextTask_2": "GW_3"}, false},
		{"combined rule outer miss", `=nextTask_2 != "GW_3" or nextTask != "GW_2"`,
			map[string]any{"nextTask": "T1", "nextTask_2": "GW_3"}, true},
		{"list membership", `=not(list contains(tags, "vip"))`, map[string]any{"tags": []any{"vip"}}, false},
		{"list unset", `=not(list contains(tags, "vip"))`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Hidden(ctx, tt.hide, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVisibilityEngine_Errors(t *testing.T) {
	e := NewVisibilityEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	assert.Error(t, e.Check(`=nextTask !=`))

	_, err = e.Hidden(context.Background(), `="x"`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))
}

func TestVisibilityEngine_CachesPrograms(t *testing.T) {
	e := NewVisibilityEngine()
	require.NoError(t, e.Check(`=a = "x"`))
	require.NoError(t, e.Check(`=a = "x"`))
	assert.Len(t, e.cache, 1)
}
