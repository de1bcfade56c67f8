package skills

import (
	"context"
	"io"
	"log/slog"
	"os/exec"

	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/logging"
	"github.com/rendis/cmdkit/internal/process"
	"github.com/rendis/cmdkit/internal/validation"
	"github.com/rendis/cmdkit/pkg/schema"
)

// Invocation is the result of running a skill.
type Invocation struct {
	Skill   string `json:"skill"`
	Command string `json:"command"`
	*process.Result
}

// Runner resolves skills and runs them through the process runner.
type Runner struct {
	registry  *Registry
	runner    engine.Runner
	validator *validation.JSONSchemaValidator
	logger    *slog.Logger
	lookPath  func(string) (string, error)
}

// NewRunner creates a Runner. logger may be nil.
func NewRunner(reg *Registry, runner engine.Runner, v *validation.JSONSchemaValidator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{registry: reg, runner: runner, validator: v, logger: logger, lookPath: exec.LookPath}
}

// Registry returns the skills the runner can resolve.
func (r *Runner) Registry() *Registry { return r.registry }

// Resolve validates params against the skill and returns the command line
// without running it.
func (r *Runner) Resolve(name string, params map[string]string) (*Skill, string, error) {
	s, err := r.registry.Get(name)
	if err != nil {
		return nil, "", err
	}

	input := make(map[string]any, len(params))
	for k, v := range params {
		input[k] = v
	}
	if err := r.validator.ValidateInput(input, s.InputSchema()); err != nil {
		return nil, "", err
	}

	cmd, err := s.Resolve(params)
	if err != nil {
		return nil, "", err
	}
	return s, cmd, nil
}

// Run resolves the skill and executes it. The skill's tool must be on PATH.
func (r *Runner) Run(ctx context.Context, name string, params map[string]string, tee io.Writer) (*Invocation, error) {
	s, cmd, err := r.Resolve(name, params)
	if err != nil {
		return nil, err
	}
	if _, err := r.lookPath(s.Tool); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "skill %s needs %s on PATH", s.Name, s.Tool).WithCause(err)
	}

	ctx = logging.WithSource(ctx, s.Name)
	log := logging.LogWith(ctx, r.logger)
	log.Info("running skill", "skill", s.Name, "command", cmd)

	res, err := r.runner.Run(ctx, process.Request{Command: cmd, Tee: tee})
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		log.Warn("skill failed", "skill", s.Name, "exit_code", res.ExitCode)
	}
	return &Invocation{Skill: s.Name, Command: cmd, Result: res}, nil
}
