// Package bootstrap sequences the gateway startup: ensure directories,
// resolve the Python environment, probe dependencies, install them when
// missing, launch the server. The sequence is strictly linear with no
// retries; each step either continues or aborts.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"qclaunch/internal/config"
	"qclaunch/internal/installer"
	"qclaunch/internal/launcher"
	"qclaunch/internal/probe"
	"qclaunch/internal/pyenv"
	"qclaunch/internal/toolrun"
	"qclaunch/internal/workspace"
)

// Prober reports whether the gateway's dependencies import.
type Prober interface {
	Check(ctx context.Context) (ok bool, detail string, err error)
}

// Installer installs the gateway's dependencies.
type Installer interface {
	Install(ctx context.Context) error
}

// Server runs the gateway server in the foreground.
type Server interface {
	Run(ctx context.Context, spec launcher.Spec) (int, error)
}

// Bootstrapper runs the launch sequence.
type Bootstrapper struct {
	cfg    *config.Config
	logger *zap.Logger
	runner toolrun.Runner

	// Collaborator overrides; nil builds the real implementations once
	// the Python environment is resolved.
	prober    Prober
	installer Installer
	server    Server

	chdir func(string) error
}

// New creates a Bootstrapper with the real collaborators.
func New(cfg *config.Config, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		cfg:    cfg,
		logger: logger,
		runner: toolrun.NewExecRunner(),
		server: launcher.New(logger),
		chdir:  os.Chdir,
	}
}

// Run executes the full sequence and blocks for the server's lifetime.
// The returned code is the process exit code to propagate.
func (b *Bootstrapper) Run(ctx context.Context) (int, error) {
	cfg := b.cfg

	// Step 1: directories, created idempotently. The only fatal
	// filesystem condition in the whole sequence.
	evidence, temp := cfg.EvidencePath(), cfg.TempPath()
	if err := workspace.EnsureDirs(evidence, temp); err != nil {
		return 1, err
	}
	b.logger.Debug("directories ready",
		zap.String("evidence", evidence), zap.String("temp", temp))

	if _, err := workspace.PruneTemp(temp, cfg.GetTempTTL(), b.logger); err != nil {
		b.logger.Warn("temp prune skipped", zap.Error(err))
	}

	// Step 2: optional virtual environment.
	env, err := pyenv.Detect(cfg.VenvPath())
	if err != nil {
		b.logger.Warn("venv detection failed, using ambient environment", zap.Error(err))
		env = pyenv.System()
	}
	if env.Activated {
		b.logger.Info("virtual environment activated",
			zap.String("venv", env.VenvDir), zap.String("python", env.Python))
	} else {
		b.logger.Debug("no virtual environment, using ambient interpreter",
			zap.String("python", env.Python))
	}

	// Step 3: single combined dependency probe.
	prb := b.prober
	if prb == nil {
		prb = probe.New(b.runner, env.Python, env.Environ(), cfg.Probe.Modules, cfg.GetProbeTimeout())
	}
	ok, detail, err := prb.Check(ctx)
	if err != nil {
		b.logger.Warn("dependency probe could not run", zap.Error(err))
		ok = false
	}

	// Step 4: conditional install. Best-effort unless strict.
	if ok {
		b.logger.Debug("dependencies present, skipping install",
			zap.Strings("modules", cfg.Probe.Modules))
	} else {
		b.logger.Info("dependencies missing, installing",
			zap.Strings("packages", cfg.Install.Packages),
			zap.String("detail", detail))

		inst := b.installer
		if inst == nil {
			inst = installer.New(b.runner, env.Python, env.Environ(), cfg.Install.Packages, cfg.GetInstallTimeout(), b.logger)
		}
		if err := inst.Install(ctx); err != nil {
			if cfg.Install.Strict {
				return 1, fmt.Errorf("dependency install failed: %w", err)
			}
			// Accepted risk, matching the original launcher: the
			// server start will surface any truly missing imports.
			b.logger.Warn("dependency install failed, continuing anyway", zap.Error(err))
		}
	}

	// Step 5: launch. The working directory changes once, for good;
	// the launcher's lifecycle is the server's from here on.
	if err := b.chdir(cfg.BaseDir); err != nil {
		return 1, fmt.Errorf("failed to enter base dir %s: %w", cfg.BaseDir, err)
	}

	return b.server.Run(ctx, launcher.Spec{
		Python:     env.Python,
		App:        cfg.Server.App,
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Reload:     cfg.Server.Reload,
		Dir:        cfg.BaseDir,
		Environ:    env.Environ(),
		HealthWait: cfg.GetHealthWait(),
	})
}
