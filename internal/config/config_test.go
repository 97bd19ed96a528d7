package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "models:\n  default: qwen3:8b\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("listen.port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Agent.MaxIterations != 5 || cfg.Agent.HistoryLimit != 20 {
		t.Errorf("agent = %+v, want 5 iterations and 20 turns", cfg.Agent)
	}
	if cfg.Agent.LLMTimeout() != 60*time.Second || cfg.Agent.ToolTimeout() != 15*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.Agent.LLMTimeout(), cfg.Agent.ToolTimeout())
	}
	if cfg.Memory.SimilarityThreshold != 0.5 || cfg.Memory.MaxResults != 5 {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if cfg.Store.Driver != "sqlite3" {
		t.Errorf("store.driver = %q, want sqlite3", cfg.Store.Driver)
	}
	if cfg.Embeddings.BaseURL != cfg.Models.OllamaURL {
		t.Errorf("embeddings.baseurl = %q, want ollama url %q", cfg.Embeddings.BaseURL, cfg.Models.OllamaURL)
	}
	if cfg.MQTT.Configured() {
		t.Error("mqtt should be unconfigured without a broker")
	}
	if cfg.LogFormat != "text" {
		t.Errorf("log_format = %q, want text", cfg.LogFormat)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ASSISTENTE_TEST_KEY", "secret123")
	path := writeConfig(t, "models:\n  default: m\nanthropic:\n  api_key: ${ASSISTENTE_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Anthropic.APIKey, "secret123")
	}
}

func TestLoad_ProviderDefaultsToOllama(t *testing.T) {
	cfg, err := Load(writeConfig(t, "models:\n  default: m\n  available:\n    - name: m\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Models.Available[0].Provider; got != "ollama" {
		t.Errorf("provider = %q, want ollama", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing default model", func(c *Config) { c.Models.Default = "" }, "models.default"},
		{"anthropic without key", func(c *Config) {
			c.Models.Available = append(c.Models.Available, ModelConfig{Name: "claude", Provider: "anthropic"})
		}, "anthropic.api_key"},
		{"unknown provider", func(c *Config) {
			c.Models.Available = append(c.Models.Available, ModelConfig{Name: "x", Provider: "openai"})
		}, "unknown provider"},
		{"bad offset", func(c *Config) { c.Locale.UTCOffset = "Brasilia" }, "locale.utc_offset"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"threshold above one", func(c *Config) { c.Memory.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"port out of range", func(c *Config) { c.Listen.Port = 70000 }, "listen.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Models.Default = ""
	cfg.Store.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"models.default", "store.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	_, offset := time.Date(2025, 12, 3, 12, 0, 0, 0, loc).Zone()
	if offset != -3*60*60 {
		t.Errorf("offset = %d, want %d", offset, -3*60*60)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "json")
	logger.Log(t.Context(), LevelTrace, "payload")

	out := buf.String()
	if !strings.Contains(out, `"level":"TRACE"`) {
		t.Errorf("output %q should name the trace level", out)
	}

	buf.Reset()
	logger = NewLogger(&buf, slog.LevelInfo, "text")
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text output = %q", buf.String())
	}
}
