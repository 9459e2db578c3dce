// Package toolrun is the execution layer for external tooling. The probe
// and installer go through it so tests can substitute a fake Runner.
package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "python").
	Binary string

	// Arguments are the command-line arguments.
	Arguments []string

	// WorkingDirectory is the directory to execute in.
	// If empty, the process inherits the runner's working directory.
	WorkingDirectory string

	// Environment variables in KEY=VALUE form. Nil inherits the
	// launcher's environment.
	Environment []string

	// Timeout bounds execution. Zero means the runner's default.
	Timeout time.Duration
}

// CommandString returns the full command as a string for logging.
func (c Command) CommandString() string {
	result := c.Binary
	for _, arg := range c.Arguments {
		result += " " + arg
	}
	return result
}

// Result holds the outcome of a completed command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Success reports whether the command exited zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner executes commands.
type Runner interface {
	// Run executes a command to completion. A non-zero exit is reported
	// in the Result, not as an error; the error return is reserved for
	// failures to execute at all (missing binary, bad working dir).
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands directly on the host via os/exec.
type ExecRunner struct {
	// DefaultTimeout applies when a command does not set its own.
	DefaultTimeout time.Duration
}

// NewExecRunner creates an ExecRunner with a 30 second default timeout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{DefaultTimeout: 30 * time.Second}
}

// Run executes the command and captures its output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = r.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Arguments...)
	c.Dir = cmd.WorkingDirectory
	c.Env = cmd.Environment

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if result.TimedOut {
			result.ExitCode = -1
			return result, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Binary, err)
	}

	return result, nil
}
