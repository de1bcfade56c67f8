package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderASCIISequential(t *testing.T) {
	model, err := Build(sequentialWorkflow(), nil)
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.True(t, strings.HasPrefix(out, "=== deploy ===\n"))
	assert.Contains(t, out, "│ 1. make build │")
	assert.Contains(t, out, "│ ok")
	assert.Equal(t, 5, strings.Count(out, "┌"), "one box per node")
}

func TestRenderASCIIParallelSharesRow(t *testing.T) {
	model, err := Build(parallelWorkflow(), nil)
	require.NoError(t, err)

	out := RenderASCII(model)
	var row string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "1. go vet") {
			row = line
		}
	}
	require.NotEmpty(t, row)
	assert.Contains(t, row, "2. golangci-lint run")
	assert.Contains(t, row, "3. go test ./...")
	assert.NotContains(t, out, "│ ok")
}

func TestRenderASCIIWithStatus(t *testing.T) {
	model, err := Build(sequentialWorkflow(), haltedRun())
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.Contains(t, out, "[OK] 1200ms")
	assert.Contains(t, out, "[FAIL] 300ms")
	assert.Contains(t, out, "FAIL pkg/x")
	assert.Contains(t, out, "[SKIP]")
}

func TestMakeBoxAlignsMultibyte(t *testing.T) {
	box := makeBox(&Node{ID: "cmd_1", Label: "1. echo café", Kind: NodeKindCommand})
	require.Len(t, box.lines, 3)
	for _, line := range box.lines {
		assert.Equal(t, box.width, len([]rune(line)))
	}
}
