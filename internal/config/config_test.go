package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
default_model: primary
models:
  primary:
    provider: anthropic
    model: claude-sonnet-4-5
    api_key_env: ANTHROPIC_API_KEY
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.HeartbeatModel) != 1 || cfg.HeartbeatModel[0] != "primary" {
		t.Fatalf("HeartbeatModel should fall back to DefaultModel, got %v", cfg.HeartbeatModel)
	}
	if cfg.HeartbeatTiming.IdleMinutes != 4 {
		t.Fatalf("HeartbeatTiming.IdleMinutes = %d, want 4", cfg.HeartbeatTiming.IdleMinutes)
	}
	if cfg.HeartbeatTiming.CheckSeconds != 60 {
		t.Fatalf("HeartbeatTiming.CheckSeconds = %d, want 60", cfg.HeartbeatTiming.CheckSeconds)
	}
	if cfg.Reflection.IdleMinutes != 4 {
		t.Fatalf("Reflection.IdleMinutes = %d, want 4", cfg.Reflection.IdleMinutes)
	}
	if cfg.Models["primary"].ContextWindow != 128_000 {
		t.Fatalf("Models[primary].ContextWindow = %d, want 128000", cfg.Models["primary"].ContextWindow)
	}
}

func TestLoadModelChainAcceptsListOrScalar(t *testing.T) {
	path := writeTempConfig(t, `
default_model: [primary, backup]
models:
  primary:
    provider: anthropic
    model: claude-sonnet-4-5
  backup:
    provider: openai_compatible
    model: gpt-4o
    base_url: https://api.openai.com/v1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.DefaultModel) != 2 || cfg.DefaultModel[1] != "backup" {
		t.Fatalf("DefaultModel = %v, want [primary backup]", cfg.DefaultModel)
	}
}

func TestLoadRejectsUnknownModelAlias(t *testing.T) {
	path := writeTempConfig(t, `
default_model: ghost-alias
models:
  primary:
    provider: anthropic
    model: claude-sonnet-4-5
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown alias")
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeTempConfig(t, `
default_model: primary
models:
  primary:
    provider: openai_compatible
    model: gpt-4o
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing base_url")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("GATEWAY_TEST_DB_URL", "postgres://test")
	path := writeTempConfig(t, `
default_model: primary
models:
  primary:
    provider: anthropic
    model: claude-sonnet-4-5
database:
  url: ${GATEWAY_TEST_DB_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://test" {
		t.Fatalf("Database.URL = %q, want expanded env value", cfg.Database.URL)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(basePath, []byte(`
models:
  primary:
    provider: anthropic
    model: claude-sonnet-4-5
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mainPath := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: models.yaml
default_model: primary
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cfg.Models["primary"]; !ok {
		t.Fatal("expected included models.primary to merge into config")
	}
}
