// Package config loads runtime configuration from defaults, an
// optional YAML file and AGENTFLOW_ environment variables, in that
// order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Engine    EngineConfig    `koanf:"engine"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	LLM       LLMConfig       `koanf:"llm"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type EngineConfig struct {
	// Timeout is the per-run wall-clock budget as a Go duration
	// string. Empty means the engine default; "0" disables the bound.
	Timeout string `koanf:"timeout"`
}

type SchedulerConfig struct {
	Tick         string `koanf:"tick"` // due-task polling cadence
	HistoryLimit int    `koanf:"history_limit"`
	DBPath       string `koanf:"db_path"` // empty means in-memory
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// RunTimeout resolves the engine timeout string. Zero means use the
// engine default; negative disables the bound.
func (c EngineConfig) RunTimeout() time.Duration {
	return parseDuration(c.Timeout)
}

// TickInterval resolves the scheduler polling cadence. Zero means use
// the scheduler default.
func (c SchedulerConfig) TickInterval() time.Duration {
	d := parseDuration(c.Tick)
	if d < 0 {
		return 0
	}
	return d
}

func parseDuration(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if raw == "0" {
		return -1
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("engine.timeout", "")

	k.Set("scheduler.tick", "500ms")
	k.Set("scheduler.history_limit", 50)
	k.Set("scheduler.db_path", "")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "llama3.1")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("telemetry.exporter", "stdout")
}

// Load reads configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// AGENTFLOW_LLM_PROVIDER -> llm.provider
	if err := k.Load(env.Provider("AGENTFLOW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AGENTFLOW_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
