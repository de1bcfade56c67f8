// Package process launches workflow commands through the user's shell.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/rendis/cmdkit/pkg/schema"
)

const (
	DefaultShell         = "/bin/sh"
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxOutputSize = 10 * 1024 * 1024 // 10MB
	DefaultWaitDelay     = 5 * time.Second
)

// Request is one shell command to run.
type Request struct {
	Command string
	// Tee, when set, receives stdout as it is produced in addition to capture.
	Tee io.Writer
	// Timeout overrides the runner default for this request.
	Timeout time.Duration
}

// Result is what a finished process produced. A non-zero exit is a Result,
// not an error.
type Result struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
	Killed     bool   `json:"killed"`
}

// Success reports whether the process exited with status 0.
func (r *Result) Success() bool { return r.ExitCode == 0 && !r.Killed }

// Config configures a ShellRunner. Zero values fall back to defaults.
type Config struct {
	Shell          string
	DefaultTimeout time.Duration
	MaxOutputSize  int64
	// WaitDelay bounds how long a finished or killed shell may hold the
	// run open while a leftover child still has its output pipes.
	WaitDelay time.Duration
}

// ShellRunner runs commands as `shell -c command`, inheriting the caller's
// environment and working directory.
type ShellRunner struct {
	cfg Config
}

// NewShellRunner creates a runner with defaults applied.
func NewShellRunner(cfg Config) *ShellRunner {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = DefaultMaxOutputSize
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &ShellRunner{cfg: cfg}
}

// Run executes req and waits for it. Only failures to launch the shell are
// returned as errors. Cancelling ctx kills the process.
func (r *ShellRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Command == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeCancelled, "context cancelled before launch").WithCause(err)
	}

	timeout := r.cfg.DefaultTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.cfg.Shell, "-c", req.Command)
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.cfg.WaitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	var stdout io.Writer = &limitedWriter{w: &stdoutBuf, limit: r.cfg.MaxOutputSize}
	if req.Tee != nil {
		stdout = io.MultiWriter(stdout, req.Tee)
	}
	cmd.Stdout = stdout
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: r.cfg.MaxOutputSize}

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	// The shell exited but a background child kept stdout or stderr open
	// past WaitDelay. The pipes were closed under it.
	if errors.Is(runErr, exec.ErrWaitDelay) {
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
		}
		res.Killed = true
		return res, nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "launch %s: %v", r.cfg.Shell, runErr).WithCause(runErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if execCtx.Err() != nil {
			res.Killed = true
		}
	}
	return res, nil
}

// limitedWriter wraps a writer and silently discards bytes beyond the limit.
// Write always reports the full len(p) consumed to prevent the subprocess from
// blocking on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}
