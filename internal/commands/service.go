// Package commands manages the library of saved one-line shell commands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/expressions"
	"github.com/rendis/cmdkit/internal/logging"
	"github.com/rendis/cmdkit/internal/process"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/pkg/schema"
)

// ListOptions narrows List. Filter is a boolean expression over each
// command exposed as `item`.
type ListOptions struct {
	Tag    string
	Limit  int
	Filter string
	Lang   string
}

// RunResult is the outcome of running a saved command.
type RunResult struct {
	Name            string `json:"name"`
	ResolvedCommand string `json:"resolved_command"`
	*process.Result
}

// Service manages saved commands.
type Service struct {
	store  store.Store
	runner engine.Runner
	logger *slog.Logger
	strict bool
}

// Option configures a Service.
type Option func(*Service)

// WithStrictVars rejects runs that leave ${name} placeholders unresolved.
func WithStrictVars(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// NewService creates a Service. logger may be nil.
func NewService(s store.Store, runner engine.Runner, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	svc := &Service{store: s, runner: runner, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Save stores cmd, replacing an existing command with the same name.
func (s *Service) Save(ctx context.Context, cmd *store.Command) error {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Tags = normalizeTags(cmd.Tags)
	if err := s.store.SaveCommand(ctx, cmd); err != nil {
		return err
	}
	s.logger.Info("command saved", "command", cmd.Name)
	return nil
}

func (s *Service) Get(ctx context.Context, name string) (*store.Command, error) {
	return s.store.GetCommand(ctx, name)
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]*store.Command, error) {
	if opts.Filter == "" {
		return s.store.ListCommands(ctx, store.CommandFilter{Tag: opts.Tag, Limit: opts.Limit})
	}
	eng, err := expressions.NewEngine(opts.Lang)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListCommands(ctx, store.CommandFilter{Tag: opts.Tag})
	if err != nil {
		return nil, err
	}
	kept, err := expressions.Filter(ctx, eng, opts.Filter, all)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && opts.Limit < len(kept) {
		kept = kept[:opts.Limit]
	}
	return kept, nil
}

func (s *Service) Search(ctx context.Context, query string) ([]*store.Command, error) {
	if strings.TrimSpace(query) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "search query is required")
	}
	return s.store.SearchCommands(ctx, query)
}

func (s *Service) Remove(ctx context.Context, name string) error {
	return s.store.DeleteCommand(ctx, name)
}

// Run resolves the named command with vars, executes it and bumps its usage
// counter. A non-zero exit is reported in the result, not as an error.
func (s *Service) Run(ctx context.Context, name string, vars map[string]string, tee io.Writer) (*RunResult, error) {
	cmd, err := s.store.GetCommand(ctx, name)
	if err != nil {
		return nil, err
	}

	resolved := expressions.Substitute(cmd.Command, vars)
	if s.strict {
		if resolved, err = expressions.SubstituteStrict(cmd.Command, vars); err != nil {
			return nil, err
		}
	}

	ctx = logging.WithSource(ctx, name)
	log := logging.LogWith(ctx, s.logger)
	log.Debug("running saved command", "command", name, "resolved", resolved)

	res, err := s.runner.Run(ctx, process.Request{Command: resolved, Tee: tee})
	if err != nil {
		return nil, err
	}

	if err := s.store.RecordCommandUse(context.WithoutCancel(ctx), name, time.Now().UTC()); err != nil {
		log.Warn("record command use failed", "command", name, "error", err)
	}
	if !res.Success() {
		log.Info("saved command failed", "command", name, "exit_code", res.ExitCode)
	}
	return &RunResult{Name: name, ResolvedCommand: resolved, Result: res}, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
