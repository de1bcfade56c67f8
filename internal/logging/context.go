package logging

import (
	"context"
	"log/slog"
)

type scopeKey struct{}

// Scope correlates log lines of one execution: a workflow run, a saved
// command or a skill invocation. Zero fields are omitted from records.
type Scope struct {
	RunID    string
	Workflow string
	Trigger  string
	// Source names a saved command or skill run outside a workflow.
	Source       string
	CommandIndex int
	hasIndex     bool
}

// ScopeFrom returns the scope carried by ctx, or the zero scope.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

func withScope(ctx context.Context, update func(*Scope)) context.Context {
	s := ScopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithRun scopes ctx to one workflow run.
func WithRun(ctx context.Context, runID, workflow string) context.Context {
	return withScope(ctx, func(s *Scope) { s.RunID, s.Workflow = runID, workflow })
}

// WithTrigger records what started the execution: cli, mcp or schedule.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return withScope(ctx, func(s *Scope) { s.Trigger = trigger })
}

func WithSource(ctx context.Context, source string) context.Context {
	return withScope(ctx, func(s *Scope) { s.Source = source })
}

// WithCommandIndex scopes ctx to the zero-based command of a run.
func WithCommandIndex(ctx context.Context, index int) context.Context {
	return withScope(ctx, func(s *Scope) { s.CommandIndex, s.hasIndex = index, true })
}

// Index returns the command index and whether one is set; 0 is valid.
func (s Scope) Index() (int, bool) {
	return s.CommandIndex, s.hasIndex
}

// Attrs returns the non-zero fields as log attributes.
func (s Scope) Attrs() []slog.Attr {
	var attrs []slog.Attr
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("run_id", s.RunID)
	add("workflow", s.Workflow)
	add("trigger", s.Trigger)
	add("source", s.Source)
	if s.hasIndex {
		attrs = append(attrs, slog.Int("command_index", s.CommandIndex))
	}
	return attrs
}

// LogWith returns logger with the scope of ctx attached. Useful for
// loggers whose handler is not a CorrelationHandler.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := ScopeFrom(ctx).Attrs()
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// CorrelationHandler adds the scope of the record's context to every
// record, so logger.InfoContext(ctx, ...) carries run IDs.
type CorrelationHandler struct {
	inner slog.Handler
}

func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(ScopeFrom(ctx).Attrs()...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
