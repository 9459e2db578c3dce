package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qclaunch/internal/bootstrap"
	"qclaunch/internal/config"
	"qclaunch/internal/logging"
)

var (
	// Global flags
	cfgFile string
	baseDir string
	verbose bool

	// Resolved per invocation
	cfg    *config.Config
	logger *zap.Logger

	// exitCode propagates the gateway's exit status through main.
	exitCode int
)

// rootCmd represents the base command; running it without a subcommand
// performs the full bootstrap and launch.
var rootCmd = &cobra.Command{
	Use:   "qclaunch",
	Short: "qclaunch - bootstrapper for the QC ALT video gateway",
	Long: `qclaunch prepares the QC ALT video gateway's runtime and runs the
gateway server in the foreground.

Startup sequence:
  1. Ensure the evidencia/ and temp/ directories exist
  2. Use the venv under the base directory when present
  3. Probe the Python dependencies (fastapi, uvicorn, jinja2)
  4. Install them when the probe reports them missing
  5. Launch the gateway on 0.0.0.0:8000 with reload enabled

The launcher's exit code is the gateway's. Interrupting the launcher
stops the gateway with it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runUp,
}

// initRuntime loads configuration and builds the logger. Flag > env >
// config file > defaults, with the gateway's own config.json adopted for
// directory paths when it exists.
func initRuntime() error {
	base := baseDir
	if base == "" {
		if env := os.Getenv("QCALT_BASE_DIR"); env != "" {
			base = env
		} else {
			base = config.DefaultBaseDir()
		}
	}

	path := cfgFile
	if path == "" {
		path = filepath.Join(base, config.ConfigFileName)
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if baseDir != "" {
		c.BaseDir = baseDir
	}
	if err := c.MergeGatewayConfig(); err != nil {
		return err
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = logging.New(c.Logging.Level, c.Logging.JSON)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// runUp executes the bootstrap sequence and blocks for the gateway's
// lifetime.
func runUp(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := bootstrap.New(cfg, logger).Run(ctx)
	if err != nil {
		return err
	}
	exitCode = code
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: <base-dir>/"+config.ConfigFileName+")")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Gateway base directory (default: "+config.DefaultBaseDir()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
	os.Exit(exitCode)
}
