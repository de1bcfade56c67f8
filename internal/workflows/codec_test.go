package workflows

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/pkg/schema"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatJSON},
		{"json", FormatJSON},
		{"YAML", FormatYAML},
		{" yml ", FormatYAML},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseFormat("toml")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	assert.Equal(t, FormatYAML, FormatFromPath("deploy.yml"))
	assert.Equal(t, FormatJSON, FormatFromPath("deploy.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("deploy"))
}

func TestExport_JSON(t *testing.T) {
	f := newFixture(t)
	f.create(t, deployWorkflow())

	data, err := f.svc.Export(context.Background(), "deploy", FormatJSON)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "deploy", doc["name"])
	assert.Equal(t, "1.0", doc["version"])
	assert.Equal(t, "2026-10-17T09:30:00Z", doc["exported"])
	assert.Equal(t, map[string]any{"env": "staging"}, doc["variables"])
	assert.NotContains(t, doc, "executionCount")
	assert.NoError(t, f.svc.validator.Schema().ValidateExportJSON(data))
}

func TestExport_YAML(t *testing.T) {
	f := newFixture(t)
	f.create(t, deployWorkflow())

	data, err := f.svc.Export(context.Background(), "deploy", FormatYAML)
	require.NoError(t, err)

	var exp schema.WorkflowExport
	require.NoError(t, yaml.Unmarshal(data, &exp))
	assert.Equal(t, deployWorkflow().Commands, exp.Commands)
	assert.Equal(t, "build and ship", exp.Description)
}

func TestExport_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Export(context.Background(), "ghost", FormatJSON)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			src := newFixture(t)
			src.create(t, deployWorkflow())
			data, err := src.svc.Export(context.Background(), "deploy", format)
			require.NoError(t, err)

			dst := newFixture(t)
			wf, err := dst.svc.Import(context.Background(), data, format, false)
			require.NoError(t, err)
			assert.Equal(t, "deploy", wf.Name)

			got, err := dst.svc.Get(context.Background(), "deploy")
			require.NoError(t, err)
			assert.Equal(t, deployWorkflow().Commands, got.Commands)
			assert.Equal(t, deployWorkflow().Variables, got.Variables)
			assert.Zero(t, got.ExecutionCount)
		})
	}
}

func TestImport_ConflictAndOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, deployWorkflow())
	_, err := f.svc.Run(ctx, "deploy", nil, store.TriggerCLI)
	require.NoError(t, err)

	doc := []byte(`{"name": "deploy", "commands": ["echo v2"], "parallel": true}`)

	_, err = f.svc.Import(ctx, doc, FormatJSON, false)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
	assert.Contains(t, err.Error(), "--overwrite")

	wf, err := f.svc.Import(ctx, doc, FormatJSON, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo v2"}, wf.Commands)
	assert.True(t, wf.Parallel)
	assert.Empty(t, wf.Variables)
	assert.Empty(t, wf.Description)
	assert.Equal(t, int64(1), wf.ExecutionCount)
}

func TestImport_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"empty", "  \n", FormatJSON},
		{"not json", "{name: deploy", FormatJSON},
		{"missing commands", `{"name": "deploy"}`, FormatJSON},
		{"empty commands", `{"name": "deploy", "commands": []}`, FormatJSON},
		{"unknown field", `{"name": "deploy", "commands": ["ls"], "steps": 1}`, FormatJSON},
		{"bad version", `{"name": "deploy", "commands": ["ls"], "version": "2.0"}`, FormatJSON},
		{"not yaml", "name: [deploy", FormatYAML},
		{"numeric variable", "name: deploy\ncommands: [\"echo ${n}\"]\nvariables:\n  n: 3\n", FormatYAML},
		{"blank command", `{"name": "deploy", "commands": ["  "]}`, FormatJSON},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Import(ctx, []byte(tc.data), tc.format, false)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeValidation), err.Error())
		})
	}

	list, err := f.svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
