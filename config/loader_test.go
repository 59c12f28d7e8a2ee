package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_Layers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	work := filepath.Join(project, "cmd", "nested")
	if err := os.MkdirAll(work, 0755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
batch:
  concurrency: 3
  max_items: 4
graph:
  org: user-org
`)
	writeFile(t, filepath.Join(project, ProjectConfigFile), `
batch:
  max_items: 7
`)
	explicit := filepath.Join(t.TempDir(), "run.yaml")
	writeFile(t, explicit, `
graph:
  project: weekly
`)

	loader := NewLoader(slog.Default(), WithHomeDir(home), WithWorkDir(work))
	cfg, err := loader.Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Batch.Concurrency != 3 {
		t.Errorf("expected user concurrency 3, got %d", cfg.Batch.Concurrency)
	}
	if cfg.Batch.MaxItems != 7 {
		t.Errorf("expected project max items 7, got %d", cfg.Batch.MaxItems)
	}
	if cfg.Graph.Org != "user-org" || cfg.Graph.Project != "weekly" {
		t.Errorf("unexpected graph %+v", cfg.Graph)
	}
	// Untouched by every layer
	if cfg.Batch.RequestsPerMinute != 20 {
		t.Errorf("expected default requests per minute, got %d", cfg.Batch.RequestsPerMinute)
	}
}

func TestLoader_EnvFile(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, ProjectConfigFile), "batch:\n  concurrency: 1\n")
	writeFile(t, filepath.Join(project, EnvFile), "NEWSDESK_TEST_KEY=from-dotenv\n")

	t.Setenv("NEWSDESK_TEST_KEY", "")
	os.Unsetenv("NEWSDESK_TEST_KEY")

	loader := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkDir(project))
	if _, err := loader.Load(""); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := os.Getenv("NEWSDESK_TEST_KEY"); got != "from-dotenv" {
		t.Errorf("expected key from .env, got %q", got)
	}
}

func TestLoader_InvalidExplicitConfig(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, explicit, "store:\n  backend: mongo\n")

	loader := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkDir(t.TempDir()))
	if _, err := loader.Load(explicit); err == nil {
		t.Error("expected validation error")
	}
	if _, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoader_EnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	loader := NewLoader(nil, WithHomeDir(home), WithWorkDir(t.TempDir()))

	path, err := loader.EnsureUserConfig()
	if err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	if path != filepath.Join(home, UserConfigDir, UserConfigFile) {
		t.Errorf("unexpected path %s", path)
	}
	if _, err := LoadFromFile(path); err != nil {
		t.Errorf("created config does not load: %v", err)
	}

	// Second call keeps the existing file
	if _, err := loader.EnsureUserConfig(); err != nil {
		t.Errorf("second EnsureUserConfig() error = %v", err)
	}
}
