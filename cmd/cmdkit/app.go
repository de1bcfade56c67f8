package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/cmdkit/internal/commands"
	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/logging"
	"github.com/rendis/cmdkit/internal/process"
	"github.com/rendis/cmdkit/internal/skills"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/internal/streaming"
	"github.com/rendis/cmdkit/internal/validation"
	"github.com/rendis/cmdkit/internal/workflows"
)

// application is the wired set of services a command works with.
type application struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	hub       *streaming.MemoryHub
	runner    *process.ShellRunner
	workflows *workflows.Service
	commands  *commands.Service
	skills    *skills.Runner
}

// newApplication opens the store and wires the services. liveOutput, when
// non-nil, receives stdout of sequential workflow runs.
func newApplication(ctx context.Context, cfg Config, liveOutput io.Writer) (*application, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	runner := process.NewShellRunner(process.Config{
		Shell:          cfg.Shell,
		DefaultTimeout: cfg.CommandTimeout,
		MaxOutputSize:  cfg.MaxOutputBytes,
	})
	hub := streaming.NewMemoryHub()

	execCfg := engine.Config{
		MaxParallel: cfg.MaxParallel,
		Strict:      cfg.StrictVars,
	}
	if cfg.LiveOutput {
		execCfg.LiveOutput = liveOutput
	}
	executor := engine.NewExecutor(runner, hub, logger, execCfg)

	reg := skills.NewRegistry()
	if err := skills.RegisterBuiltins(reg); err != nil {
		_ = s.Close()
		return nil, err
	}

	return &application{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		hub:       hub,
		runner:    runner,
		workflows: workflows.NewService(s, executor, validator, logger),
		commands:  commands.NewService(s, runner, logger, commands.WithStrictVars(cfg.StrictVars)),
		skills:    skills.NewRunner(reg, runner, validator.Schema(), logger),
	}, nil
}

func (a *application) Close() error {
	a.hub.Close()
	return a.store.Close()
}
