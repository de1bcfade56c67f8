package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewCorrelationHandler(inner))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestScope_LayersWithoutMutatingParent(t *testing.T) {
	root := context.Background()
	assert.Equal(t, Scope{}, ScopeFrom(root))

	run := WithTrigger(WithRun(root, "run-123", "deploy"), "schedule")
	cmd := WithCommandIndex(run, 0)

	_, ok := ScopeFrom(run).Index()
	assert.False(t, ok, "parent context keeps its scope")

	s := ScopeFrom(cmd)
	assert.Equal(t, "run-123", s.RunID)
	assert.Equal(t, "deploy", s.Workflow)
	assert.Equal(t, "schedule", s.Trigger)
	idx, ok := s.Index()
	assert.True(t, ok)
	assert.Zero(t, idx)
}

func TestScope_Attrs(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want []string
	}{
		{"empty", context.Background(), nil},
		{"run", WithRun(context.Background(), "r", "wf"), []string{"run_id", "workflow"}},
		{"source only", WithSource(context.Background(), "k8s.debug"), []string{"source"}},
		{
			"everything",
			WithCommandIndex(WithSource(WithTrigger(WithRun(context.Background(), "r", "wf"), "cli"), "lint"), 2),
			[]string{"run_id", "workflow", "trigger", "source", "command_index"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var keys []string
			for _, a := range ScopeFrom(tc.ctx).Attrs() {
				keys = append(keys, a.Key)
			}
			assert.Equal(t, tc.want, keys)
		})
	}
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithCommandIndex(WithRun(context.Background(), "run-abc", "backup"), 2)
	LogWith(ctx, logger).Info("test message")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-abc")
	assert.Contains(t, out, "workflow=backup")
	assert.Contains(t, out, "command_index=2")
	assert.NotContains(t, out, "trigger=")

	assert.Same(t, logger, LogWith(context.Background(), logger))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithCommandIndex(WithRun(context.Background(), "run-auto", "nightly"), 1)
	jsonLogger(&buf).InfoContext(ctx, "auto inject")

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "run-auto", rec["run_id"])
	assert.Equal(t, "nightly", rec["workflow"])
	assert.Equal(t, float64(1), rec["command_index"])
}

func TestCorrelationHandler_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf).InfoContext(context.Background(), "bare log")

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "bare log", rec["msg"])
	assert.NotContains(t, rec, "run_id")
	assert.NotContains(t, rec, "command_index")
}

func TestCorrelationHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf).With("component", "engine")

	logger.InfoContext(WithSource(context.Background(), "lint"), "with attrs")
	rec := decodeRecord(t, &buf)
	assert.Equal(t, "lint", rec["source"])
	assert.Equal(t, "engine", rec["component"])

	buf.Reset()
	jsonLogger(&buf).WithGroup("skill").InfoContext(context.Background(), "grouped", "name", "k8s.debug")
	rec = decodeRecord(t, &buf)
	assert.Equal(t, map[string]any{"name": "k8s.debug"}, rec["skill"])
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	require.NoError(t, err)

	logger.DebugContext(WithRun(context.Background(), "run-new", "wf"), "hello")
	rec := decodeRecord(t, &buf)
	assert.Equal(t, "run-new", rec["run_id"])
	assert.Equal(t, "DEBUG", rec["level"])

	_, err = New("loud", "text", &buf)
	assert.ErrorContains(t, err, "unknown log level")
	_, err = New("info", "xml", &buf)
	assert.ErrorContains(t, err, "unknown log format")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
