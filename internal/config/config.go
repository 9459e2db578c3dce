// Package config holds the qclaunch configuration.
// All defaults mirror the original launcher constants; a config file is
// optional and absence of one leaves behavior identical to the original.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional launcher config file, resolved under the base directory.
const ConfigFileName = "qclaunch.yaml"

// GatewayConfigFileName is the gateway's own config file. When present the
// launcher reads its directory settings so both processes agree on paths.
const GatewayConfigFileName = "config.json"

// Config holds all qclaunch configuration.
type Config struct {
	// BaseDir is the gateway installation root. Everything else resolves under it.
	BaseDir string `yaml:"base_dir"`

	// Workspace configures the directories prepared before launch.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Venv configures the optional isolated Python environment.
	Venv VenvConfig `yaml:"venv"`

	// Probe configures the dependency import check.
	Probe ProbeConfig `yaml:"probe"`

	// Install configures the conditional dependency install.
	Install InstallConfig `yaml:"install"`

	// Server configures the gateway server launch.
	Server ServerConfig `yaml:"server"`

	// Logging configures launcher log output.
	Logging LoggingConfig `yaml:"logging"`
}

// WorkspaceConfig configures the directories the gateway expects.
type WorkspaceConfig struct {
	// EvidenceDir and TempDir may be absolute or relative to BaseDir.
	EvidenceDir string `yaml:"evidence_dir"`
	TempDir     string `yaml:"temp_dir"`

	// TempTTL is the age past which stale temp entries are pruned at boot.
	// Empty or "0s" disables pruning.
	TempTTL string `yaml:"temp_ttl"`
}

// VenvConfig configures virtual environment detection.
type VenvConfig struct {
	// Dir is the venv directory, relative to BaseDir unless absolute.
	Dir string `yaml:"dir"`
}

// ProbeConfig configures the dependency probe.
type ProbeConfig struct {
	// Modules are import names checked in a single combined probe.
	Modules []string `yaml:"modules"`
	Timeout string   `yaml:"timeout"`
}

// InstallConfig configures the conditional install step.
type InstallConfig struct {
	// Packages are installed (unpinned) when the probe reports missing modules.
	Packages []string `yaml:"packages"`

	// Strict makes an install failure abort the launch. The original
	// launcher continued regardless; false preserves that behavior.
	Strict  bool   `yaml:"strict"`
	Timeout string `yaml:"timeout"`
}

// ServerConfig configures the gateway server process.
type ServerConfig struct {
	// App is the ASGI application reference passed to the server runner.
	App    string `yaml:"app"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Reload bool   `yaml:"reload"`

	// HealthWait bounds the post-start readiness poll of /health.
	// Empty or "0s" disables the poll.
	HealthWait string `yaml:"health_wait"`
}

// LoggingConfig configures the launcher's own logging.
type LoggingConfig struct {
	Level string `yaml:"level"`  // debug, info, warn, error
	JSON  bool   `yaml:"json"`   // false = console encoding
}

// DefaultBaseDir returns the gateway root the original launcher assumed.
func DefaultBaseDir() string {
	if runtime.GOOS == "windows" {
		return "C:/qcalt"
	}
	return "/srv/qcalt"
}

// DefaultConfig returns the default configuration. Values match the
// original launcher exactly: evidencia and temp under the base directory,
// venv activation when present, fastapi/uvicorn/jinja2 as the dependency
// set, and the server bound to 0.0.0.0:8000 with reload enabled.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: DefaultBaseDir(),

		Workspace: WorkspaceConfig{
			EvidenceDir: "evidencia",
			TempDir:     "temp",
			TempTTL:     "30m",
		},

		Venv: VenvConfig{
			Dir: "venv",
		},

		Probe: ProbeConfig{
			Modules: []string{"fastapi", "uvicorn", "jinja2"},
			Timeout: "30s",
		},

		Install: InstallConfig{
			Packages: []string{"fastapi", "uvicorn", "jinja2"},
			Strict:   false,
			Timeout:  "10m",
		},

		Server: ServerConfig{
			App:        "server:app",
			Host:       "0.0.0.0",
			Port:       8000,
			Reload:     true,
			HealthWait: "0s",
		},

		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load loads configuration from a YAML file, applies the gateway config
// bridge and environment overrides, and returns defaults when the file
// does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// gatewayConfig mirrors the directory settings of the gateway's config.json.
type gatewayConfig struct {
	EvidenceDir string `json:"evidence_dir"`
	TempDir     string `json:"temp_dir"`
	TTLMinutes  int    `json:"ttl_minutes"`
}

// MergeGatewayConfig reads the gateway's config.json under BaseDir, when
// present, and adopts its evidence/temp directories and temp TTL so the
// launcher prepares exactly the tree the gateway will use. A missing file
// is not an error.
func (c *Config) MergeGatewayConfig() error {
	path := filepath.Join(c.BaseDir, GatewayConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read gateway config: %w", err)
	}

	var gw gatewayConfig
	if err := json.Unmarshal(data, &gw); err != nil {
		return fmt.Errorf("failed to parse gateway config %s: %w", path, err)
	}

	if gw.EvidenceDir != "" {
		c.Workspace.EvidenceDir = gw.EvidenceDir
	}
	if gw.TempDir != "" {
		c.Workspace.TempDir = gw.TempDir
	}
	if gw.TTLMinutes > 0 {
		c.Workspace.TempTTL = fmt.Sprintf("%dm", gw.TTLMinutes)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("QCALT_BASE_DIR"); dir != "" {
		c.BaseDir = dir
	}
	if host := os.Getenv("QCALT_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("QCALT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if reload := os.Getenv("QCALT_RELOAD"); reload != "" {
		if b, err := strconv.ParseBool(reload); err == nil {
			c.Server.Reload = b
		}
	}
	if level := os.Getenv("QCALT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// EvidencePath returns the absolute evidence directory.
func (c *Config) EvidencePath() string {
	return c.resolve(c.Workspace.EvidenceDir)
}

// TempPath returns the absolute temp directory.
func (c *Config) TempPath() string {
	return c.resolve(c.Workspace.TempDir)
}

// VenvPath returns the absolute venv directory.
func (c *Config) VenvPath() string {
	return c.resolve(c.Venv.Dir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// GetTempTTL returns the temp prune TTL as a duration.
func (c *Config) GetTempTTL() time.Duration {
	d, err := time.ParseDuration(c.Workspace.TempTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetProbeTimeout returns the dependency probe timeout as a duration.
func (c *Config) GetProbeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Probe.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetInstallTimeout returns the install timeout as a duration.
func (c *Config) GetInstallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Install.Timeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetHealthWait returns the readiness poll budget as a duration.
func (c *Config) GetHealthWait() time.Duration {
	d, err := time.ParseDuration(c.Server.HealthWait)
	if err != nil {
		return 0
	}
	return d
}

// ValidLogLevels lists accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}
	if c.Server.App == "" {
		return fmt.Errorf("server.app must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if len(c.Probe.Modules) == 0 {
		return fmt.Errorf("probe.modules must not be empty")
	}
	if len(c.Install.Packages) == 0 {
		return fmt.Errorf("install.packages must not be empty")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}
