// Package installer performs the conditional dependency install.
package installer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"qclaunch/internal/toolrun"
)

// PipInstaller installs the gateway's packages with pip. It mirrors the
// original launcher: upgrade pip itself first, then install the fixed
// package list unpinned, one attempt, no rollback.
type PipInstaller struct {
	runner   toolrun.Runner
	python   string
	environ  []string
	packages []string
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a PipInstaller for the given interpreter and package list.
func New(runner toolrun.Runner, python string, environ []string, packages []string, timeout time.Duration, logger *zap.Logger) *PipInstaller {
	return &PipInstaller{
		runner:   runner,
		python:   python,
		environ:  environ,
		packages: packages,
		timeout:  timeout,
		logger:   logger,
	}
}

// Install runs the pip self-upgrade followed by the package install.
// A failed self-upgrade is logged and does not stop the install attempt;
// a failed install returns an error for the caller's strict/lenient
// policy to act on.
func (i *PipInstaller) Install(ctx context.Context) error {
	if res, err := i.pip(ctx, "install", "--upgrade", "pip"); err != nil {
		i.logger.Warn("pip self-upgrade could not run", zap.Error(err))
	} else if !res.Success() {
		i.logger.Warn("pip self-upgrade failed",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", tail(res.Stderr)))
	}

	args := append([]string{"install"}, i.packages...)
	res, err := i.pip(ctx, args...)
	if err != nil {
		return fmt.Errorf("pip install could not run: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("pip install exited %d: %s", res.ExitCode, tail(res.Stderr))
	}

	i.logger.Info("installed gateway dependencies",
		zap.Strings("packages", i.packages),
		zap.Duration("duration", res.Duration))
	return nil
}

func (i *PipInstaller) pip(ctx context.Context, args ...string) (*toolrun.Result, error) {
	cmd := toolrun.Command{
		Binary:      i.python,
		Arguments:   append([]string{"-m", "pip"}, args...),
		Environment: i.environ,
		Timeout:     i.timeout,
	}
	i.logger.Debug("running pip", zap.String("command", cmd.CommandString()))
	return i.runner.Run(ctx, cmd)
}

// tail returns the last few lines of pip output, enough to diagnose
// without flooding the log.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
