package bootstrap

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qclaunch/internal/config"
	"qclaunch/internal/toolrun"
)

// importRunner fakes per-module import probes: modules in missing fail.
type importRunner struct {
	mu      sync.Mutex
	missing map[string]bool
	calls   int
}

func (r *importRunner) Run(ctx context.Context, cmd toolrun.Command) (*toolrun.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	module := strings.TrimPrefix(cmd.Arguments[len(cmd.Arguments)-1], "import ")
	if r.missing[module] {
		return &toolrun.Result{
			ExitCode: 1,
			Stderr:   "ModuleNotFoundError: No module named '" + module + "'\n",
		}, nil
	}
	return &toolrun.Result{ExitCode: 0}, nil
}

func TestInspect(t *testing.T) {
	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.BaseDir = base
	require.NoError(t, os.MkdirAll(cfg.TempPath(), 0755))

	b := New(cfg, zap.NewNop())
	b.runner = &importRunner{missing: map[string]bool{"uvicorn": true}}

	r, err := b.Inspect(context.Background())
	require.NoError(t, err)

	assert.False(t, r.EvidenceExists, "evidencia was not created")
	assert.True(t, r.TempExists)
	assert.False(t, r.VenvActivated)

	require.Len(t, r.Modules, 3)
	byName := map[string]ModuleStatus{}
	for _, m := range r.Modules {
		byName[m.Name] = m
	}
	assert.True(t, byName["fastapi"].OK)
	assert.False(t, byName["uvicorn"].OK)
	assert.Contains(t, byName["uvicorn"].Detail, "No module named 'uvicorn'")
	assert.True(t, byName["jinja2"].OK)
	assert.False(t, r.AllModulesOK())
}

func TestInspect_CreatesNothing(t *testing.T) {
	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.BaseDir = base

	b := New(cfg, zap.NewNop())
	b.runner = &importRunner{}

	_, err := b.Inspect(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "inspect must be read-only")
}

func TestInspect_AllOK(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseDir = t.TempDir()

	b := New(cfg, zap.NewNop())
	runner := &importRunner{}
	b.runner = runner

	r, err := b.Inspect(context.Background())
	require.NoError(t, err)
	assert.True(t, r.AllModulesOK())
	assert.Equal(t, 3, runner.calls, "one interpreter start per module")
}
