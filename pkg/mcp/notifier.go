package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/cmdkit/internal/streaming"
)

// ProgressNotifier relays run events to the MCP client that started a run
// as notifications/message log entries. Best-effort: delivery failures are
// logged at debug level and dropped.
type ProgressNotifier struct {
	mcpServer *server.MCPServer
	hub       streaming.Hub
	logger    *slog.Logger
}

// NewProgressNotifier creates a notifier. hub may be nil, which disables it.
func NewProgressNotifier(mcpServer *server.MCPServer, hub streaming.Hub, logger *slog.Logger) *ProgressNotifier {
	return &ProgressNotifier{mcpServer: mcpServer, hub: hub, logger: logger}
}

// Forward relays events of the named workflow until stop is called.
// stop blocks until the relay goroutine has exited.
func (n *ProgressNotifier) Forward(ctx context.Context, workflow string) (stop func()) {
	if n == nil || n.hub == nil {
		return func() {}
	}
	events, cancel, err := n.hub.Subscribe(ctx, streaming.Filter{Workflow: workflow})
	if err != nil {
		n.logger.Debug("progress subscription failed", "workflow", workflow, "error", err)
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			payload := map[string]any{
				"level":  "info",
				"logger": "cmdkit",
				"data":   ev,
			}
			if err := n.mcpServer.SendNotificationToClient(ctx, "notifications/message", payload); err != nil {
				n.logger.Debug("progress notification dropped", "event", ev.Type, "error", err)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
