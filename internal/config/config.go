// Package config handles assistente configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/assistente/internal/temporal"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/assistente/config.yaml, /etc/assistente/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "assistente", "config.yaml"))
	}

	paths = append(paths, "/etc/assistente/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all assistente configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Models     ModelsConfig     `yaml:"models"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	Locale     LocaleConfig     `yaml:"locale"`
	Store      StoreConfig      `yaml:"store"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`

	// AllowedOrigins lists browser origins that may call the API and
	// open the chat socket. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns the host:port the API server binds to.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to the provider serving it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is present.
func (a AnthropicConfig) Configured() bool {
	return a.APIKey != ""
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to models.ollama_url)
}

// MemoryConfig tunes semantic recall.
type MemoryConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxResults          int     `yaml:"max_results"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	HistoryLimit   int `yaml:"history_limit"`
	LLMTimeoutSec  int `yaml:"llm_timeout_sec"`
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// LLMTimeout returns the per-call model deadline.
func (a AgentConfig) LLMTimeout() time.Duration {
	return time.Duration(a.LLMTimeoutSec) * time.Second
}

// ToolTimeout returns the per-call tool deadline.
func (a AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(a.ToolTimeoutSec) * time.Second
}

// LocaleConfig fixes the civil offset all user times are read in.
type LocaleConfig struct {
	UTCOffset string `yaml:"utc_offset"` // e.g. "-03:00"
}

// StoreConfig selects the SQLite driver and database file.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `yaml:"path"`
}

// MQTTConfig defines the broker reminder notifications are published to.
// Notifications go to the log when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. mqtt://localhost:1883
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// Configured reports whether a broker is set.
func (m MQTTConfig) Configured() bool {
	return m.Broker != ""
}

// RemindersConfig tunes the due-reminder poller.
type RemindersConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

// PollInterval returns the poll period.
func (r RemindersConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSec) * time.Second
}

// Load reads configuration from a YAML file. Missing values take the
// defaults from [Default] and the result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Models: ModelsConfig{
			Default: "qwen3:8b",
			Available: []ModelConfig{
				{Name: "qwen3:8b", Provider: "ollama"},
			},
		},
		Embeddings: EmbeddingsConfig{Model: "nomic-embed-text"},
		Locale:     LocaleConfig{UTCOffset: "-03:00"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.Models.OllamaURL
	}
	if c.Memory.SimilarityThreshold == 0 {
		c.Memory.SimilarityThreshold = 0.5
	}
	if c.Memory.MaxResults == 0 {
		c.Memory.MaxResults = 5
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 5
	}
	if c.Agent.HistoryLimit == 0 {
		c.Agent.HistoryLimit = 20
	}
	if c.Agent.LLMTimeoutSec == 0 {
		c.Agent.LLMTimeoutSec = 60
	}
	if c.Agent.ToolTimeoutSec == 0 {
		c.Agent.ToolTimeoutSec = 15
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite3"
	}
	if c.Store.Path == "" {
		c.Store.Path = "assistente.db"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "assistente"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "assistente/reminders"
	}
	if c.Reminders.PollIntervalSec == 0 {
		c.Reminders.PollIntervalSec = 30
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if strings.TrimSpace(c.Models.Default) == "" {
		errs = append(errs, errors.New("models.default is required"))
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama":
		case "anthropic":
			if !c.Anthropic.Configured() {
				errs = append(errs, fmt.Errorf("model %s uses anthropic but anthropic.api_key is empty", m.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider))
		}
	}
	if t := c.Memory.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("memory.similarity_threshold %v must be within [0, 1]", t))
	}
	if c.Memory.MaxResults < 0 {
		errs = append(errs, errors.New("memory.max_results must not be negative"))
	}
	if c.Agent.MaxIterations < 0 {
		errs = append(errs, errors.New("agent.max_iterations must not be negative"))
	}
	if c.Agent.LLMTimeoutSec < 0 || c.Agent.ToolTimeoutSec < 0 {
		errs = append(errs, errors.New("agent timeouts must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("locale.utc_offset: %w", err))
	}
	if c.Store.Driver != "sqlite3" && c.Store.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("store.driver %q (valid: sqlite3, sqlite)", c.Store.Driver))
	}
	if c.Reminders.PollIntervalSec < 0 {
		errs = append(errs, errors.New("reminders.poll_interval_sec must not be negative"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q (valid: text, json)", c.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the fixed zone named by locale.utc_offset.
func (c *Config) Location() (*time.Location, error) {
	return temporal.ParseOffset(c.Locale.UTCOffset)
}
