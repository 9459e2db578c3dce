// Package pyenv resolves the Python runtime the gateway runs under.
//
// Activation is an explicit environment construction, not a shell-side
// effect: when a virtual environment is present, child processes get a
// PATH with the venv bin directory prepended and VIRTUAL_ENV set, so
// interpreter and library lookups resolve inside the venv. When absent,
// the ambient environment is used unchanged.
package pyenv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment describes the resolved Python runtime.
type Environment struct {
	// VenvDir is the virtual environment directory that was checked.
	VenvDir string

	// Activated reports whether the venv's activation script was found.
	Activated bool

	// Python is the interpreter to invoke. Inside a venv this is an
	// absolute path; otherwise the bare command resolved via PATH at
	// exec time, exactly as the original launcher did.
	Python string

	environ []string
}

// System returns the ambient, non-activated environment.
func System() *Environment {
	return &Environment{Python: pythonName()}
}

// Detect checks venvDir for an activation script and builds the runtime
// environment accordingly. Absence of the venv is a normal branch, not
// an error.
func Detect(venvDir string) (*Environment, error) {
	env := &Environment{
		VenvDir: venvDir,
		Python:  pythonName(),
	}

	script := activationScript(venvDir)
	info, err := os.Stat(script)
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, fmt.Errorf("failed to check activation script %s: %w", script, err)
	}
	if info.IsDir() {
		return env, nil
	}

	env.Activated = true
	env.Python = filepath.Join(binDir(venvDir), pythonName())
	env.environ = buildEnviron(venvDir)
	return env, nil
}

// Environ returns the environment for child processes. Nil means inherit
// the launcher's environment unchanged.
func (e *Environment) Environ() []string {
	return e.environ
}

// activationScript returns the venv activation entry for this platform.
func activationScript(venvDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvDir, "Scripts", "activate.bat")
	}
	return filepath.Join(venvDir, "bin", "activate")
}

// binDir returns the venv's executable directory for this platform.
func binDir(venvDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvDir, "Scripts")
	}
	return filepath.Join(venvDir, "bin")
}

func pythonName() string {
	if runtime.GOOS == "windows" {
		return "python.exe"
	}
	return "python"
}

// buildEnviron starts from the ambient environment and rewires lookups
// into the venv: bin dir first on PATH, VIRTUAL_ENV set, PYTHONHOME
// dropped (it would defeat the venv's interpreter isolation).
func buildEnviron(venvDir string) []string {
	bin := binDir(venvDir)

	out := make([]string, 0, len(os.Environ())+2)
	pathSeen := false
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(key, "PATH"):
			out = append(out, key+"="+bin+string(os.PathListSeparator)+value)
			pathSeen = true
		case strings.EqualFold(key, "PYTHONHOME"), strings.EqualFold(key, "VIRTUAL_ENV"):
			// dropped; VIRTUAL_ENV re-added below
		default:
			out = append(out, kv)
		}
	}
	if !pathSeen {
		out = append(out, "PATH="+bin)
	}
	out = append(out, "VIRTUAL_ENV="+venvDir)
	return out
}
