// Package probe checks that the gateway's Python dependencies import.
package probe

import (
	"context"
	"strings"
	"time"

	"qclaunch/internal/toolrun"
)

// ImportProbe verifies a fixed module set with a single combined import.
// The check is pass/fail for the whole set; there is no per-module
// granularity, matching the original launcher.
type ImportProbe struct {
	runner  toolrun.Runner
	python  string
	environ []string
	modules []string
	timeout time.Duration
}

// New creates an ImportProbe for the given interpreter and module set.
func New(runner toolrun.Runner, python string, environ []string, modules []string, timeout time.Duration) *ImportProbe {
	return &ImportProbe{
		runner:  runner,
		python:  python,
		environ: environ,
		modules: modules,
		timeout: timeout,
	}
}

// Statement returns the combined import statement the probe executes.
func (p *ImportProbe) Statement() string {
	return "import " + strings.Join(p.modules, ", ")
}

// Check runs the probe. It returns whether all modules imported, plus the
// interpreter's stderr for diagnostics when they did not. An error means
// the probe could not run at all (e.g. no interpreter); callers treat
// that the same as a failed probe.
func (p *ImportProbe) Check(ctx context.Context) (bool, string, error) {
	res, err := p.runner.Run(ctx, toolrun.Command{
		Binary:      p.python,
		Arguments:   []string{"-c", p.Statement()},
		Environment: p.environ,
		Timeout:     p.timeout,
	})
	if err != nil {
		return false, "", err
	}
	return res.Success(), strings.TrimSpace(res.Stderr), nil
}
