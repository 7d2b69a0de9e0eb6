// Package config handles the layered ocmt configuration: defaults, the user
// file, the repository's .ocmt/config.yaml and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvServerURL = "OPENCODE_SERVER_URL"
	EnvModel     = "OCMT_MODEL"
	EnvAgent     = "OCMT_AGENT"
)

// Config is the top-level structure of config.yaml.
type Config struct {
	Version   int             `yaml:"version"`
	Model     string          `yaml:"model"` // provider/model; empty uses the backend default
	Agent     string          `yaml:"agent"`
	Backend   BackendConfig   `yaml:"backend"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Commit    CommitConfig    `yaml:"commit"`
	Branch    BranchConfig    `yaml:"branch"`
	Changelog ChangelogConfig `yaml:"changelog"`
	PR        PRConfig        `yaml:"pr"`
	Deslop    DeslopConfig    `yaml:"deslop"`
}

// BackendConfig controls how the AI backend is reached.
type BackendConfig struct {
	URL            string `yaml:"url"`             // probed before the default endpoint
	Binary         string `yaml:"binary"`          // spawned when nothing answers
	ProbeTimeout   int    `yaml:"probe_timeout"`   // ms
	StartupTimeout int    `yaml:"startup_timeout"` // seconds
}

// TimeoutsConfig holds the two independent deadlines of a run.
type TimeoutsConfig struct {
	Operation  int `yaml:"operation"`  // seconds
	Permission int `yaml:"permission"` // seconds
}

// CommitConfig controls commit message generation.
type CommitConfig struct {
	Conventional bool   `yaml:"conventional"`
	Instructions string `yaml:"instructions"`
	MaxDiffBytes int    `yaml:"max_diff_bytes"` // larger diffs are sent as an attachment
}

// BranchConfig controls branch name generation.
type BranchConfig struct {
	Prefix string `yaml:"prefix"`
}

// ChangelogConfig controls changelog generation.
type ChangelogConfig struct {
	File string `yaml:"file"`
}

// PRConfig controls pull request creation.
type PRConfig struct {
	Base  string `yaml:"base"`
	Draft bool   `yaml:"draft"`
}

// DeslopConfig controls the deslop edit pass.
type DeslopConfig struct {
	Model    string `yaml:"model"`     // overrides Model for deslop
	DiffTool string `yaml:"diff_tool"` // git difftool --tool; empty uses git's default
}

const (
	configDir  = ".ocmt"
	configFile = "config.yaml"
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Backend: BackendConfig{
			Binary:         "opencode",
			ProbeTimeout:   1000,
			StartupTimeout: 10,
		},
		Timeouts: TimeoutsConfig{
			Operation:  300,
			Permission: 60,
		},
		Commit: CommitConfig{
			Conventional: true,
			MaxDiffBytes: 32 * 1024,
		},
		Changelog: ChangelogConfig{
			File: "CHANGELOG.md",
		},
	}
}

// RepoPath returns the repository config path under root.
func RepoPath(root string) string {
	return filepath.Join(root, configDir, configFile)
}

// UserPath returns <user config dir>/ocmt/config.yaml.
func UserPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, "ocmt", configFile), nil
}

// ReadConfig reads .ocmt/config.yaml from the given repository root.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	cfg := &Config{}
	if err := readInto(RepoPath(dir), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig writes cfg to .ocmt/config.yaml in the given repository root.
func WriteConfig(dir string, cfg *Config) error {
	return WriteFile(RepoPath(dir), cfg)
}

// WriteFile writes cfg to path, creating parent directories.
func WriteFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// readInto overlays the YAML at path onto cfg. Keys absent from the file keep
// their current values.
func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Load returns the effective configuration for the repository at root (may be
// empty outside a repository).
func Load(root string) (*Config, error) {
	userPath, err := UserPath()
	if err != nil {
		userPath = ""
	}
	return load(root, userPath, os.Getenv)
}

func load(root, userPath string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	var paths []string
	if userPath != "" {
		paths = append(paths, userPath)
	}
	if root != "" {
		paths = append(paths, RepoPath(root))
	}
	for _, path := range paths {
		if err := readInto(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if v := getenv(EnvServerURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := getenv(EnvAgent); v != "" {
		cfg.Agent = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no command can work with.
func (c *Config) Validate() error {
	switch {
	case c.Timeouts.Operation < 0:
		return fmt.Errorf("config: timeouts.operation must not be negative")
	case c.Timeouts.Permission < 0:
		return fmt.Errorf("config: timeouts.permission must not be negative")
	case c.Backend.ProbeTimeout < 0 || c.Backend.StartupTimeout < 0:
		return fmt.Errorf("config: backend timeouts must not be negative")
	case c.Commit.MaxDiffBytes < 0:
		return fmt.Errorf("config: commit.max_diff_bytes must not be negative")
	}
	return nil
}

// OperationTimeout is the overall deadline of one generation.
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.Timeouts.Operation) * time.Second
}

// PermissionTimeout bounds one permission prompt.
func (c *Config) PermissionTimeout() time.Duration {
	return time.Duration(c.Timeouts.Permission) * time.Second
}

// ProbeTimeout bounds one backend liveness check.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Backend.ProbeTimeout) * time.Millisecond
}

// StartupTimeout bounds waiting for a spawned backend.
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.Backend.StartupTimeout) * time.Second
}

// DeslopModel returns the model to use for deslop.
func (c *Config) DeslopModel() string {
	if c.Deslop.Model != "" {
		return c.Deslop.Model
	}
	return c.Model
}
