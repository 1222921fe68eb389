package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Scheduler.HistoryLimit != 50 {
		t.Errorf("expected default history limit 50, got %d", cfg.Scheduler.HistoryLimit)
	}
	if cfg.Scheduler.TickInterval() != 500*time.Millisecond {
		t.Errorf("expected default tick 500ms, got %v", cfg.Scheduler.TickInterval())
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("expected default exporter stdout, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
log:
  level: "debug"
  format: "json"
engine:
  timeout: "2m"
scheduler:
  tick: "100ms"
  history_limit: 10
  db_path: "/var/lib/agentflow/scheduler.db"
llm:
  model: "qwen2.5"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("file values not applied: %+v", cfg.Log)
	}
	if cfg.Engine.RunTimeout() != 2*time.Minute {
		t.Errorf("engine timeout = %v, want 2m", cfg.Engine.RunTimeout())
	}
	if cfg.Scheduler.TickInterval() != 100*time.Millisecond {
		t.Errorf("tick = %v, want 100ms", cfg.Scheduler.TickInterval())
	}
	if cfg.Scheduler.HistoryLimit != 10 {
		t.Errorf("history limit = %d, want 10", cfg.Scheduler.HistoryLimit)
	}
	if cfg.Scheduler.DBPath != "/var/lib/agentflow/scheduler.db" {
		t.Errorf("db path not applied: %q", cfg.Scheduler.DBPath)
	}
	if cfg.LLM.Model != "qwen2.5" {
		t.Errorf("llm model = %q, want qwen2.5", cfg.LLM.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("llm provider = %q, want default ollama", cfg.LLM.Provider)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	content := `
llm:
  provider: "ollama"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AGENTFLOW_LLM_PROVIDER", "mock")
	t.Setenv("AGENTFLOW_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("env did not override file: got %q", cfg.LLM.Provider)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("env did not override default: got %q", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDurationHelpers(t *testing.T) {
	if got := (EngineConfig{Timeout: ""}).RunTimeout(); got != 0 {
		t.Errorf("empty timeout = %v, want 0", got)
	}
	if got := (EngineConfig{Timeout: "0"}).RunTimeout(); got >= 0 {
		t.Errorf("zero timeout should disable the bound, got %v", got)
	}
	if got := (EngineConfig{Timeout: "90s"}).RunTimeout(); got != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", got)
	}
	if got := (EngineConfig{Timeout: "garbage"}).RunTimeout(); got != 0 {
		t.Errorf("invalid timeout = %v, want 0", got)
	}
	if got := (SchedulerConfig{Tick: "0"}).TickInterval(); got != 0 {
		t.Errorf("zero tick = %v, want 0 (scheduler default)", got)
	}
}
