// Package launcher runs the gateway server process in the foreground.
//
// Reload-on-change is the launcher's responsibility: with reload enabled
// the source tree is watched and the child is restarted when .py files
// settle after a change. There is no restart-on-crash; a child that exits
// on its own ends the launcher with the child's exit code.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// shutdownTimeout is the grace period before forcing child exit.
const shutdownTimeout = 10 * time.Second

// Spec is the fixed launch configuration handed to the launcher.
type Spec struct {
	// Python is the interpreter running the server (venv-resolved).
	Python string

	// App is the ASGI application reference, e.g. "server:app".
	App string

	Host   string
	Port   int
	Reload bool

	// Dir is the working directory for the server process.
	Dir string

	// Environ is the child environment; nil inherits the launcher's.
	Environ []string

	// WatchDir is the source tree watched for reload. Defaults to Dir.
	WatchDir string

	// HealthWait bounds the post-start readiness poll. Zero disables it.
	HealthWait time.Duration
}

// Launcher supervises the gateway server process.
type Launcher struct {
	logger   *zap.Logger
	debounce time.Duration

	// commandFunc overrides child construction in tests.
	commandFunc func(Spec) *exec.Cmd
}

// New creates a Launcher.
func New(logger *zap.Logger) *Launcher {
	return &Launcher{logger: logger, debounce: defaultDebounce}
}

// Run starts the server and blocks until it exits or ctx is cancelled.
// The returned code is the child's exit code; an operator-initiated
// shutdown (ctx cancellation) terminates the child and returns zero.
func (l *Launcher) Run(ctx context.Context, spec Spec) (int, error) {
	if spec.Python == "" || spec.App == "" {
		return 1, fmt.Errorf("launch spec incomplete: python=%q app=%q", spec.Python, spec.App)
	}
	if spec.WatchDir == "" {
		spec.WatchDir = spec.Dir
	}

	launchID := uuid.NewString()[:8]
	logger := l.logger.With(zap.String("launch_id", launchID))

	var changes <-chan struct{}
	if spec.Reload {
		w, err := NewWatcher(spec.WatchDir, l.debounce, logger)
		if err != nil {
			logger.Warn("reload watcher unavailable, continuing without reload", zap.Error(err))
		} else {
			if err := w.Start(ctx); err != nil {
				logger.Warn("reload watcher failed to start", zap.Error(err))
			} else {
				defer w.Stop()
				changes = w.Changes()
			}
		}
	}

	for {
		cmd := l.command(spec)
		logger.Info("starting gateway server",
			zap.String("app", spec.App),
			zap.String("host", spec.Host),
			zap.Int("port", spec.Port),
			zap.Bool("reload", spec.Reload))

		if err := cmd.Start(); err != nil {
			return 1, fmt.Errorf("failed to start server: %w", err)
		}

		healthCtx, healthDone := context.WithCancel(ctx)
		if spec.HealthWait > 0 {
			go l.waitHealthy(healthCtx, spec, logger)
		}

		exitCh := make(chan error, 1)
		go func() { exitCh <- cmd.Wait() }()

		select {
		case err := <-exitCh:
			healthDone()
			code := exitCode(err)
			logger.Info("server exited", zap.Int("exit_code", code))
			return code, nil

		case <-ctx.Done():
			healthDone()
			logger.Info("shutdown signal received")
			terminate(cmd)
			awaitExit(exitCh, cmd)
			return 0, nil

		case <-changes:
			healthDone()
			logger.Info("source change detected, restarting server")
			terminate(cmd)
			awaitExit(exitCh, cmd)
		}
	}
}

// command builds the uvicorn invocation for the spec. Reload is handled
// by the launcher's own watcher, so the child never gets uvicorn's
// --reload flag; two watchers fighting over restarts would double-fire.
func (l *Launcher) command(spec Spec) *exec.Cmd {
	if l.commandFunc != nil {
		return l.commandFunc(spec)
	}

	cmd := exec.Command(spec.Python,
		"-m", "uvicorn", spec.App,
		"--host", spec.Host,
		"--port", strconv.Itoa(spec.Port),
	)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Environ
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// waitHealthy polls the gateway's /health endpoint until it answers or
// the budget runs out. Purely informational; launch outcome never
// depends on it.
func (l *Launcher) waitHealthy(ctx context.Context, spec Spec, logger *zap.Logger) {
	url := fmt.Sprintf("http://127.0.0.1:%d/health", spec.Port)
	client := &http.Client{Timeout: time.Second}

	deadline := time.Now().Add(spec.HealthWait)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				logger.Info("gateway is ready", zap.String("url", url))
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
	logger.Warn("gateway did not report healthy in time",
		zap.String("url", url), zap.Duration("waited", spec.HealthWait))
}

// terminate asks the child to shut down.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
}

// awaitExit waits for the child to exit, forcing a kill after the grace
// period.
func awaitExit(exitCh <-chan error, cmd *exec.Cmd) {
	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-exitCh:
	case <-timer.C:
		if cmd.Process != nil && cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
		}
		<-exitCh
	}
}

// exitCode derives a process exit code from a wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 1
}
