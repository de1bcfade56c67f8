package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/internal/workflows"
	"github.com/rendis/cmdkit/pkg/schema"
)

const defaultShowHistory = 5

// runResult is the payload of cmdkit.workflow_run. Error is set when the run
// was interrupted or its history could not be saved.
type runResult struct {
	Report *engine.Report `json:"report"`
	Error  string         `json:"error,omitempty"`
}

// handleWorkflowRun runs a stored workflow with optional overrides.
func (s *Server) handleWorkflowRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	vars := stringMap(mcp.ParseStringMap(req, "vars", nil))

	stop := s.notifier.Forward(ctx, name)
	report, runErr := s.workflows.Run(ctx, name, vars, store.TriggerMCP)
	stop()

	if report == nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow run failed: %v", runErr)), nil
	}
	out := runResult{Report: report}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	return marshalResult(out)
}

// handleWorkflowList lists workflows, optionally through a filter expression.
func (s *Server) handleWorkflowList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(req)
	opts := workflows.ListOptions{
		Filter: req.GetString("filter", ""),
		Lang:   req.GetString("lang", ""),
		Limit:  extractInt(args, "limit", 0),
	}
	list, err := s.workflows.List(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list workflows: %v", err)), nil
	}
	if list == nil {
		list = []*schema.Workflow{}
	}
	return marshalResult(map[string]any{
		"workflows": list,
		"total":     len(list),
	})
}

// handleWorkflowShow returns one workflow plus its most recent runs.
func (s *Server) handleWorkflowShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	wf, err := s.workflows.Get(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", err)), nil
	}
	runs, err := s.workflows.History(ctx, name, extractInt(getArgs(req), "history", defaultShowHistory))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history lookup failed: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return marshalResult(map[string]any{
		"workflow": wf,
		"runs":     runs,
	})
}

func (s *Server) handleCommandSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	found, err := s.commands.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search commands: %v", err)), nil
	}
	if found == nil {
		found = []*store.Command{}
	}
	return marshalResult(map[string]any{
		"commands": found,
		"total":    len(found),
	})
}

func (s *Server) handleTaskList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(req)
	filter := store.TaskFilter{
		MaxPriority: extractInt(args, "max_priority", 0),
		Limit:       extractInt(args, "limit", 0),
	}
	if done, _ := args["include_done"].(bool); !done {
		pending := false
		filter.Done = &pending
	}
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list tasks: %v", err)), nil
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return marshalResult(map[string]any{
		"tasks": tasks,
		"total": len(tasks),
	})
}

func (s *Server) handleTaskAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required"), nil
	}
	task := &store.Task{
		Title:       title,
		Description: req.GetString("description", ""),
		Priority:    extractInt(getArgs(req), "priority", store.DefaultPriority),
	}
	if due := req.GetString("due", ""); due != "" {
		t, err := time.Parse(time.RFC3339, due)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("due must be RFC 3339: %v", err)), nil
		}
		t = t.UTC()
		task.DueAt = &t
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add task: %v", err)), nil
	}
	return marshalResult(task)
}

// getArgs extracts arguments from request as map[string]any.
func getArgs(req mcp.CallToolRequest) map[string]any {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		return args
	}
	return map[string]any{}
}

// extractInt reads a JSON number argument, which arrives as float64.
func extractInt(args map[string]any, key string, defaultVal int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return defaultVal
	}
}

// stringMap converts an object argument to variable overrides.
func stringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
