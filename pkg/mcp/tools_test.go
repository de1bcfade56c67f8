package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cmdkit/internal/commands"
	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/process"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/internal/streaming"
	"github.com/rendis/cmdkit/internal/validation"
	"github.com/rendis/cmdkit/internal/workflows"
	"github.com/rendis/cmdkit/pkg/schema"
)

// fakeRunner fails commands starting with "fail" and echoes the rest.
type fakeRunner struct{}

func (fakeRunner) Run(_ context.Context, req process.Request) (*process.Result, error) {
	if strings.HasPrefix(req.Command, "fail") {
		return &process.Result{ExitCode: 3, Stderr: "nope"}, nil
	}
	return &process.Result{Stdout: req.Command}, nil
}

type testEnv struct {
	server *Server
	store  *store.LibSQLStore
	wf     *workflows.Service
	cmds   *commands.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "cmdkit.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	v, err := validation.NewWorkflowValidator()
	require.NoError(t, err)

	hub := streaming.NewMemoryHub()
	exec := engine.NewExecutor(fakeRunner{}, hub, nil, engine.Config{})
	wf := workflows.NewService(s, exec, v, nil)
	cmds := commands.NewService(s, fakeRunner{}, nil)

	srv := NewServer(ServerDeps{Workflows: wf, Commands: cmds, Store: s, Hub: hub})
	return &testEnv{server: srv, store: s, wf: wf, cmds: cmds}
}

func (e *testEnv) seedWorkflow(t *testing.T, wf *schema.Workflow) {
	t.Helper()
	_, err := e.wf.Create(context.Background(), wf)
	require.NoError(t, err)
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- cmdkit.workflow_run ---

func TestWorkflowRunTool(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorkflow(t, &schema.Workflow{
		Name:      "deploy",
		Commands:  []string{"echo build ${env}", "echo ship ${env}"},
		Variables: map[string]string{"env": "staging"},
	})

	req := buildRequest("cmdkit.workflow_run", map[string]any{
		"name": "deploy",
		"vars": map[string]any{"env": "prod"},
	})
	result, err := env.server.handleWorkflowRun(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out struct {
		Report engine.Report `json:"report"`
		Error  string        `json:"error"`
	}
	unmarshalResult(t, result, &out)
	assert.Empty(t, out.Error)
	assert.Equal(t, schema.RunStatusSuccess, out.Report.Status)
	require.Len(t, out.Report.Outcomes, 2)
	assert.Equal(t, "echo build prod", out.Report.Outcomes[0].ResolvedCommand)

	runs, err := env.store.ListRuns(context.Background(), store.RunFilter{Workflow: "deploy"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.TriggerMCP, runs[0].Trigger)
}

func TestWorkflowRunTool_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorkflow(t, &schema.Workflow{
		Name:     "checks",
		Commands: []string{"echo ok", "fail lint"},
		Parallel: true,
	})

	result, err := env.server.handleWorkflowRun(context.Background(),
		buildRequest("cmdkit.workflow_run", map[string]any{"name": "checks"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out runResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.RunStatusPartialFailure, out.Report.Status)
	assert.Equal(t, "nope", out.Report.Outcomes[1].ErrorDetail)
}

func TestWorkflowRunTool_Errors(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.server.handleWorkflowRun(context.Background(), buildRequest("cmdkit.workflow_run", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = env.server.handleWorkflowRun(context.Background(),
		buildRequest("cmdkit.workflow_run", map[string]any{"name": "ghost"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "NOT_FOUND")
}

// --- cmdkit.workflow_list / workflow_show ---

func TestWorkflowListTool(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorkflow(t, &schema.Workflow{Name: "a", Commands: []string{"echo a"}})
	env.seedWorkflow(t, &schema.Workflow{Name: "b", Commands: []string{"echo b", "echo c"}, Parallel: true})

	result, err := env.server.handleWorkflowList(context.Background(), buildRequest("cmdkit.workflow_list", nil))
	require.NoError(t, err)
	var out struct {
		Workflows []schema.Workflow `json:"workflows"`
		Total     int               `json:"total"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, 2, out.Total)

	result, err = env.server.handleWorkflowList(context.Background(), buildRequest("cmdkit.workflow_list", map[string]any{
		"filter": "item.parallel",
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "b", out.Workflows[0].Name)

	result, err = env.server.handleWorkflowList(context.Background(), buildRequest("cmdkit.workflow_list", map[string]any{
		"limit": float64(1),
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.Equal(t, 1, out.Total)
}

func TestWorkflowListTool_BadFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorkflow(t, &schema.Workflow{Name: "a", Commands: []string{"echo a"}})

	result, err := env.server.handleWorkflowList(context.Background(), buildRequest("cmdkit.workflow_list", map[string]any{
		"filter": "item.name",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestWorkflowShowTool(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorkflow(t, &schema.Workflow{Name: "deploy", Commands: []string{"echo hi"}})
	_, err := env.wf.Run(context.Background(), "deploy", nil, store.TriggerCLI)
	require.NoError(t, err)

	result, err := env.server.handleWorkflowShow(context.Background(),
		buildRequest("cmdkit.workflow_show", map[string]any{"name": "deploy"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Workflow schema.Workflow `json:"workflow"`
		Runs     []store.Run     `json:"runs"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, "deploy", out.Workflow.Name)
	assert.Equal(t, int64(1), out.Workflow.ExecutionCount)
	assert.Len(t, out.Runs, 1)

	result, err = env.server.handleWorkflowShow(context.Background(),
		buildRequest("cmdkit.workflow_show", map[string]any{"name": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- cmdkit.command_search ---

func TestCommandSearchTool(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cmds.Save(context.Background(), &store.Command{Name: "pods", Command: "kubectl get pods"}))
	require.NoError(t, env.cmds.Save(context.Background(), &store.Command{Name: "ps", Command: "docker ps"}))

	result, err := env.server.handleCommandSearch(context.Background(),
		buildRequest("cmdkit.command_search", map[string]any{"query": "kubectl"}))
	require.NoError(t, err)

	var out struct {
		Commands []store.Command `json:"commands"`
		Total    int             `json:"total"`
	}
	unmarshalResult(t, result, &out)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "pods", out.Commands[0].Name)

	result, err = env.server.handleCommandSearch(context.Background(), buildRequest("cmdkit.command_search", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- cmdkit.task_add / task_list ---

func TestTaskTools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.server.handleTaskAdd(ctx, buildRequest("cmdkit.task_add", map[string]any{
		"title":    "rotate certs",
		"priority": float64(1),
		"due":      "2026-11-01T09:00:00Z",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var task store.Task
	unmarshalResult(t, result, &task)
	assert.NotZero(t, task.ID)
	assert.Equal(t, 1, task.Priority)
	require.NotNil(t, task.DueAt)

	result, err = env.server.handleTaskAdd(ctx, buildRequest("cmdkit.task_add", map[string]any{"title": "tidy docs"}))
	require.NoError(t, err)
	var second store.Task
	unmarshalResult(t, result, &second)
	assert.Equal(t, store.DefaultPriority, second.Priority)

	done := true
	require.NoError(t, env.store.UpdateTask(ctx, second.ID, store.TaskUpdate{Done: &done}))

	result, err = env.server.handleTaskList(ctx, buildRequest("cmdkit.task_list", nil))
	require.NoError(t, err)
	var out struct {
		Tasks []store.Task `json:"tasks"`
		Total int          `json:"total"`
	}
	unmarshalResult(t, result, &out)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "rotate certs", out.Tasks[0].Title)

	result, err = env.server.handleTaskList(ctx, buildRequest("cmdkit.task_list", map[string]any{"include_done": true}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.Equal(t, 2, out.Total)
}

func TestTaskAddTool_Invalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.server.handleTaskAdd(ctx, buildRequest("cmdkit.task_add", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = env.server.handleTaskAdd(ctx, buildRequest("cmdkit.task_add", map[string]any{"title": "x", "priority": float64(9)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = env.server.handleTaskAdd(ctx, buildRequest("cmdkit.task_add", map[string]any{"title": "x", "due": "tomorrow"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- helpers ---

func TestExtractInt(t *testing.T) {
	args := map[string]any{"f": float64(7), "i": 3, "s": "9"}
	assert.Equal(t, 7, extractInt(args, "f", 0))
	assert.Equal(t, 3, extractInt(args, "i", 0))
	assert.Equal(t, 5, extractInt(args, "s", 5))
	assert.Equal(t, 1, extractInt(args, "missing", 1))
}

func TestStringMap(t *testing.T) {
	assert.Nil(t, stringMap(nil))
	assert.Equal(t, map[string]string{"a": "x", "n": "2", "b": "true"},
		stringMap(map[string]any{"a": "x", "n": float64(2), "b": true}))
}

func TestProgressNotifier_NilHub(t *testing.T) {
	n := NewProgressNotifier(nil, nil, nil)
	stop := n.Forward(context.Background(), "deploy")
	stop()
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
