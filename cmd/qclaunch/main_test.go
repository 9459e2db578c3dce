package main

import (
	"bytes"
	"testing"
)

func TestRootCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"doctor", "version"} {
		if !names[want] {
			t.Errorf("expected %q subcommand to be registered", want)
		}
	}

	for _, flag := range []string{"config", "base-dir", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag %q", flag)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if got := buf.String(); got != "qclaunch "+version+"\n" {
		t.Errorf("unexpected version output: %q", got)
	}
}
