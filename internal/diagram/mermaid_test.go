package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMermaidSequential(t *testing.T) {
	model, err := Build(sequentialWorkflow(), nil)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "%% deploy")
	assert.Contains(t, out, `__start__(("Start"))`)
	assert.Contains(t, out, `cmd_1["1. make build"]`)
	assert.Contains(t, out, "cmd_1 -->|ok| cmd_2")
	assert.Contains(t, out, "cmd_3 --> __end__")
	assert.NotContains(t, out, "class cmd_1")
}

func TestRenderMermaidWithStatus(t *testing.T) {
	model, err := Build(sequentialWorkflow(), haltedRun())
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, "classDef success")
	assert.Contains(t, out, "class cmd_1 success")
	assert.Contains(t, out, "class cmd_2 failed")
	assert.Contains(t, out, "class cmd_3 skipped")
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "echo #quot;hi#quot; #gt; out", mermaidEscapeLabel(`echo "hi" > out`))
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}
