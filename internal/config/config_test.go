package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func noEnv(string) string { return "" }

func TestConfigYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Model = "anthropic/claude-sonnet-4"
	cfg.Deslop.DiffTool = "vimdiff"

	if err := WriteConfig(tmpDir, cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	loaded, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if loaded.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("Model: got %q, want %q", loaded.Model, "anthropic/claude-sonnet-4")
	}
	if loaded.Deslop.DiffTool != "vimdiff" {
		t.Errorf("Deslop.DiffTool: got %q, want %q", loaded.Deslop.DiffTool, "vimdiff")
	}
}

func TestReadConfigMissing(t *testing.T) {
	if _, err := ReadConfig(t.TempDir()); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t.TempDir(), "", noEnv)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.OperationTimeout() != 5*time.Minute {
		t.Errorf("OperationTimeout: got %s, want 5m", cfg.OperationTimeout())
	}
	if cfg.PermissionTimeout() != time.Minute {
		t.Errorf("PermissionTimeout: got %s, want 1m", cfg.PermissionTimeout())
	}
	if cfg.Changelog.File != "CHANGELOG.md" {
		t.Errorf("Changelog.File: got %q", cfg.Changelog.File)
	}
}

func TestLoadLayers(t *testing.T) {
	root := t.TempDir()
	userPath := filepath.Join(t.TempDir(), "ocmt", "config.yaml")

	writeFile(t, userPath, `model: openai/gpt-5
agent: build
timeouts:
  permission: 30
`)
	writeFile(t, RepoPath(root), `model: anthropic/claude-sonnet-4
branch:
  prefix: feature/
`)

	cfg, err := load(root, userPath, noEnv)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("repo file should override user file: got %q", cfg.Model)
	}
	if cfg.Agent != "build" {
		t.Errorf("Agent from user file: got %q", cfg.Agent)
	}
	if cfg.Timeouts.Permission != 30 {
		t.Errorf("Timeouts.Permission: got %d, want 30", cfg.Timeouts.Permission)
	}
	if cfg.Timeouts.Operation != 300 {
		t.Errorf("unset keys keep defaults: got %d, want 300", cfg.Timeouts.Operation)
	}
	if cfg.Branch.Prefix != "feature/" {
		t.Errorf("Branch.Prefix: got %q", cfg.Branch.Prefix)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, RepoPath(root), "model: openai/gpt-5\n")

	env := map[string]string{
		EnvServerURL: "http://10.0.0.2:4096",
		EnvModel:     "anthropic/claude-haiku-4",
		EnvAgent:     "plan",
	}
	cfg, err := load(root, "", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.URL != "http://10.0.0.2:4096" {
		t.Errorf("Backend.URL: got %q", cfg.Backend.URL)
	}
	if cfg.Model != "anthropic/claude-haiku-4" {
		t.Errorf("Model: got %q", cfg.Model)
	}
	if cfg.Agent != "plan" {
		t.Errorf("Agent: got %q", cfg.Agent)
	}
}

func TestLoadMalformed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, RepoPath(root), "model: [unterminated\n")

	if _, err := load(root, "", noEnv); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadRejectsNegativeTimeout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, RepoPath(root), "timeouts:\n  operation: -1\n")

	if _, err := load(root, "", noEnv); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestDeslopModelFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "a/b"
	if got := cfg.DeslopModel(); got != "a/b" {
		t.Errorf("DeslopModel: got %q, want a/b", got)
	}
	cfg.Deslop.Model = "c/d"
	if got := cfg.DeslopModel(); got != "c/d" {
		t.Errorf("DeslopModel: got %q, want c/d", got)
	}
}
