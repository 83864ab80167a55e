package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderImage(t *testing.T) {
	for name, model := range map[string]*DiagramModel{
		"decision": Build(decisionGraph(), "Permits"),
		"parallel": Build(parallelGraph(), ""),
	} {
		t.Run(name, func(t *testing.T) {
			png, err := RenderImage(context.Background(), model)
			require.NoError(t, err)
			require.True(t, len(png) > 8, "PNG should be larger than header")

			// PNG magic bytes.
			assert.Equal(t, byte(0x89), png[0])
			assert.Equal(t, byte('P'), png[1])
			assert.Equal(t, byte('N'), png[2])
			assert.Equal(t, byte('G'), png[3])
		})
	}
}
