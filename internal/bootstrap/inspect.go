package bootstrap

import (
	"context"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"qclaunch/internal/pyenv"
	"qclaunch/internal/toolrun"
)

// Report is a read-only view of the environment the bootstrap would run
// in. Nothing is created, installed, or launched to produce it.
type Report struct {
	BaseDir        string
	EvidenceDir    string
	EvidenceExists bool
	TempDir        string
	TempExists     bool

	VenvDir       string
	VenvActivated bool
	Python        string

	Modules []ModuleStatus
}

// ModuleStatus is the importability of a single dependency.
type ModuleStatus struct {
	Name   string
	OK     bool
	Detail string
}

// AllModulesOK reports whether every dependency imported.
func (r *Report) AllModulesOK() bool {
	for _, m := range r.Modules {
		if !m.OK {
			return false
		}
	}
	return true
}

// Inspect gathers the doctor report. Unlike the launch-path probe, which
// is a single combined pass/fail, modules are checked one by one here so
// the operator sees exactly which imports are broken. The per-module
// probes run concurrently; each is its own interpreter start.
func (b *Bootstrapper) Inspect(ctx context.Context) (*Report, error) {
	cfg := b.cfg

	r := &Report{
		BaseDir:     cfg.BaseDir,
		EvidenceDir: cfg.EvidencePath(),
		TempDir:     cfg.TempPath(),
		VenvDir:     cfg.VenvPath(),
	}
	r.EvidenceExists = dirExists(r.EvidenceDir)
	r.TempExists = dirExists(r.TempDir)

	env, err := pyenv.Detect(r.VenvDir)
	if err != nil {
		env = pyenv.System()
	}
	r.VenvActivated = env.Activated
	r.Python = env.Python

	r.Modules = make([]ModuleStatus, len(cfg.Probe.Modules))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range cfg.Probe.Modules {
		i, name := i, name
		g.Go(func() error {
			status := ModuleStatus{Name: name}
			res, err := b.runner.Run(gctx, toolrun.Command{
				Binary:      env.Python,
				Arguments:   []string{"-c", "import " + name},
				Environment: env.Environ(),
				Timeout:     cfg.GetProbeTimeout(),
			})
			if err != nil {
				status.Detail = err.Error()
			} else if res.Success() {
				status.OK = true
			} else {
				status.Detail = lastLine(res.Stderr)
			}
			r.Modules[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return r, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
