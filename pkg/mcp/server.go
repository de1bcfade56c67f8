package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/cmdkit/internal/commands"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/internal/streaming"
	"github.com/rendis/cmdkit/internal/workflows"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Workflows *workflows.Service
	Commands  *commands.Service
	Store     store.Store
	Hub       streaming.Hub
	Logger    *slog.Logger
	Version   string
}

// Server wraps an MCP server with cmdkit tool handlers.
type Server struct {
	workflows *workflows.Service
	commands  *commands.Service
	store     store.Store
	notifier  *ProgressNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		workflows: deps.Workflows,
		commands:  deps.Commands,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"cmdkit",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions("cmdkit runs saved shell workflows on this machine. Use cmdkit.workflow_list and cmdkit.workflow_show to discover workflows, cmdkit.workflow_run to execute one with variable overrides, cmdkit.command_search to find saved one-line commands, and cmdkit.task_list / cmdkit.task_add to manage the to-do list."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewProgressNotifier(mcpSrv, deps.Hub, logger)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: workflowRunTool(), Handler: s.handleWorkflowRun},
		{Tool: workflowListTool(), Handler: s.handleWorkflowList},
		{Tool: workflowShowTool(), Handler: s.handleWorkflowShow},
		{Tool: commandSearchTool(), Handler: s.handleCommandSearch},
		{Tool: taskListTool(), Handler: s.handleTaskList},
		{Tool: taskAddTool(), Handler: s.handleTaskAdd},
	}
}

// --- Tool definitions ---

func workflowRunTool() mcp.Tool {
	return mcp.NewTool("cmdkit.workflow_run",
		mcp.WithDescription("Run a saved workflow and return its report"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithObject("vars", mcp.Description("Variable overrides merged over the workflow defaults")),
	)
}

func workflowListTool() mcp.Tool {
	return mcp.NewTool("cmdkit.workflow_list",
		mcp.WithDescription("List saved workflows"),
		mcp.WithString("filter", mcp.Description("Boolean expression over `item`, e.g. item.parallel")),
		mcp.WithString("lang", mcp.Enum("expr", "cel", "jq"), mcp.Description("Filter language (default expr)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of workflows")),
	)
}

func workflowShowTool() mcp.Tool {
	return mcp.NewTool("cmdkit.workflow_show",
		mcp.WithDescription("Show a workflow definition and its recent runs"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithNumber("history", mcp.Description("Number of recent runs to include (default 5)")),
	)
}

func commandSearchTool() mcp.Tool {
	return mcp.NewTool("cmdkit.command_search",
		mcp.WithDescription("Search saved commands by name, text or description"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive search text")),
	)
}

func taskListTool() mcp.Tool {
	return mcp.NewTool("cmdkit.task_list",
		mcp.WithDescription("List tasks ordered by priority"),
		mcp.WithBoolean("include_done", mcp.Description("Include completed tasks")),
		mcp.WithNumber("max_priority", mcp.Description("Only tasks at this priority or higher (1-5)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks")),
	)
}

func taskAddTool() mcp.Tool {
	return mcp.NewTool("cmdkit.task_add",
		mcp.WithDescription("Add a task to the to-do list"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task details")),
		mcp.WithNumber("priority", mcp.Description("1 (highest) to 5, default 3")),
		mcp.WithString("due", mcp.Description("Due time, RFC 3339")),
	)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
