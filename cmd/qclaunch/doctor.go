package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qclaunch/internal/bootstrap"
)

// doctorCmd reports on the gateway environment without changing it.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the gateway environment without launching",
	Long: `Inspects the directories, virtual environment, and Python
dependencies the gateway needs and reports each finding. Nothing is
created, installed, or launched. Exits non-zero when something is
missing.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	r, err := bootstrap.New(cfg, logger).Inspect(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "base dir:      %s\n", r.BaseDir)
	fmt.Fprintf(out, "evidence dir:  %s %s\n", r.EvidenceDir, mark(r.EvidenceExists))
	fmt.Fprintf(out, "temp dir:      %s %s\n", r.TempDir, mark(r.TempExists))
	if r.VenvActivated {
		fmt.Fprintf(out, "venv:          %s [active]\n", r.VenvDir)
	} else {
		fmt.Fprintf(out, "venv:          %s [absent, using ambient environment]\n", r.VenvDir)
	}
	fmt.Fprintf(out, "python:        %s\n", r.Python)

	healthy := r.EvidenceExists && r.TempExists
	for _, m := range r.Modules {
		if m.OK {
			fmt.Fprintf(out, "module:        %s [ok]\n", m.Name)
			continue
		}
		healthy = false
		fmt.Fprintf(out, "module:        %s [missing] %s\n", m.Name, m.Detail)
	}

	if !healthy {
		exitCode = 1
		fmt.Fprintln(out, "\nenvironment not ready; run qclaunch to bootstrap and launch")
	} else {
		fmt.Fprintln(out, "\nenvironment ready")
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "[ok]"
	}
	return "[missing]"
}
