package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qclaunch/internal/config"
	"qclaunch/internal/launcher"
)

type fakeProber struct {
	ok     bool
	detail string
	err    error
	calls  int
}

func (f *fakeProber) Check(ctx context.Context) (bool, string, error) {
	f.calls++
	return f.ok, f.detail, f.err
}

type fakeInstaller struct {
	err   error
	calls int
}

func (f *fakeInstaller) Install(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeServer struct {
	specs []launcher.Spec
	code  int
	err   error
}

func (f *fakeServer) Run(ctx context.Context, spec launcher.Spec) (int, error) {
	f.specs = append(f.specs, spec)
	return f.code, f.err
}

func newTestBootstrapper(cfg *config.Config, prb Prober, inst Installer, srv Server) *Bootstrapper {
	b := New(cfg, zap.NewNop())
	b.prober = prb
	b.installer = inst
	b.server = srv
	b.chdir = func(string) error { return nil }
	return b
}

func testConfig(t *testing.T, baseDir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseDir = baseDir
	return cfg
}

func requireFixedSpec(t *testing.T, srv *fakeServer) {
	t.Helper()
	require.Len(t, srv.specs, 1, "server must be launched exactly once")
	spec := srv.specs[0]
	assert.Equal(t, "0.0.0.0", spec.Host)
	assert.Equal(t, 8000, spec.Port)
	assert.True(t, spec.Reload)
	assert.Equal(t, "server:app", spec.App)
}

// Scenario A: nothing exists yet. Both directories are created and the
// server is launched once with the fixed configuration.
func TestRun_FreshBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "qcalt")
	cfg := testConfig(t, base)

	srv := &fakeServer{}
	inst := &fakeInstaller{}
	b := newTestBootstrapper(cfg, &fakeProber{ok: true}, inst, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	for _, dir := range []string{cfg.EvidencePath(), cfg.TempPath()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, "expected %s to exist", dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, 0, inst.calls, "no install when the probe passes")
	requireFixedSpec(t, srv)
}

// Scenario B: everything already in place and the probe passes. The
// install primitive is never invoked.
func TestRun_EverythingPresent(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(t, base)
	require.NoError(t, os.MkdirAll(cfg.EvidencePath(), 0755))
	require.NoError(t, os.MkdirAll(cfg.TempPath(), 0755))

	srv := &fakeServer{}
	inst := &fakeInstaller{}
	prb := &fakeProber{ok: true}
	b := newTestBootstrapper(cfg, prb, inst, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, prb.calls, "exactly one combined probe")
	assert.Equal(t, 0, inst.calls)
	requireFixedSpec(t, srv)
}

// Scenario C: probe reports missing. Install runs exactly once and the
// launch still happens regardless of the install outcome.
func TestRun_ProbeMissingTriggersInstall(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	srv := &fakeServer{}
	inst := &fakeInstaller{}
	b := newTestBootstrapper(cfg, &fakeProber{ok: false, detail: "No module named 'fastapi'"}, inst, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, inst.calls, "install must run exactly once")
	requireFixedSpec(t, srv)
}

func TestRun_InstallFailureContinuesByDefault(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	srv := &fakeServer{}
	inst := &fakeInstaller{err: errors.New("pip install exited 1")}
	b := newTestBootstrapper(cfg, &fakeProber{ok: false}, inst, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, inst.calls)
	requireFixedSpec(t, srv)
}

func TestRun_StrictInstallFailureAborts(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Install.Strict = true

	srv := &fakeServer{}
	inst := &fakeInstaller{err: errors.New("pip install exited 1")}
	b := newTestBootstrapper(cfg, &fakeProber{ok: false}, inst, srv)

	code, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Empty(t, srv.specs, "strict install failure must abort before launch")
}

func TestRun_ProbeErrorTreatedAsMissing(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	srv := &fakeServer{}
	inst := &fakeInstaller{}
	b := newTestBootstrapper(cfg, &fakeProber{err: errors.New("no interpreter")}, inst, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, inst.calls, "an unrunnable probe behaves like a failed probe")
	requireFixedSpec(t, srv)
}

func TestRun_VenvInterpreterUsed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("venv layout differs on windows")
	}
	base := t.TempDir()
	cfg := testConfig(t, base)

	venvBin := filepath.Join(base, "venv", "bin")
	require.NoError(t, os.MkdirAll(venvBin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(venvBin, "activate"), []byte("# activate"), 0755))

	srv := &fakeServer{}
	b := newTestBootstrapper(cfg, &fakeProber{ok: true}, &fakeInstaller{}, srv)

	_, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, srv.specs, 1)
	assert.Equal(t, filepath.Join(venvBin, "python"), srv.specs[0].Python)
	assert.NotNil(t, srv.specs[0].Environ, "venv launch must carry the explicit environment")
}

func TestRun_AbsentVenvStillLaunches(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	srv := &fakeServer{}
	prb := &fakeProber{ok: true}
	b := newTestBootstrapper(cfg, prb, &fakeInstaller{}, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, prb.calls, "a missing venv must still reach the probe")
	requireFixedSpec(t, srv)
}

func TestRun_DirectoryDenialIsFatal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are meaningless as root")
	}
	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0500))
	defer os.Chmod(parent, 0755)

	cfg := testConfig(t, filepath.Join(parent, "qcalt"))
	srv := &fakeServer{}
	b := newTestBootstrapper(cfg, &fakeProber{ok: true}, &fakeInstaller{}, srv)

	code, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Empty(t, srv.specs, "filesystem denial must abort before launch")
}

func TestRun_ServerExitCodePropagates(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	srv := &fakeServer{code: 3}
	b := newTestBootstrapper(cfg, &fakeProber{ok: true}, &fakeInstaller{}, srv)

	code, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

// Running the sequence twice leaves exactly the same directories behind
// and errors on neither pass.
func TestRun_Idempotent(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	for i := 0; i < 2; i++ {
		srv := &fakeServer{}
		b := newTestBootstrapper(cfg, &fakeProber{ok: true}, &fakeInstaller{}, srv)
		code, err := b.Run(context.Background())
		require.NoError(t, err, "run %d", i+1)
		assert.Equal(t, 0, code)
	}

	entries, err := os.ReadDir(cfg.BaseDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
