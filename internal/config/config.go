// Package config loads the gateway's non-secret settings. Secrets (API
// keys, bot tokens) are read from environment variables named by
// ModelConfig.APIKeyEnv and friends, never from the config file itself.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's full configuration surface.
type Config struct {
	// DefaultModel is the primary chat chain: a single alias, or an
	// ordered list of aliases tried in turn on failover.
	DefaultModel ModelChain `yaml:"default_model"`

	// HeartbeatModel is the chain used for heartbeat/reflection jobs.
	// Falls back to DefaultModel when empty.
	HeartbeatModel ModelChain `yaml:"heartbeat_model"`

	// Models maps an alias (referenced by DefaultModel/HeartbeatModel and
	// by breaker cooldown keys) to its provider binding.
	Models map[string]ModelConfig `yaml:"models"`

	HeartbeatTiming HeartbeatTiming `yaml:"heartbeat_timing"`
	Reflection      ReflectionTiming `yaml:"reflection"`
	Tools           ToolsConfig      `yaml:"tools"`

	Workspace WorkspaceConfig `yaml:"workspace"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ModelChain is a single model alias or an ordered fallback list. It
// accepts either YAML shape so `default_model: primary` and
// `default_model: [primary, backup]` both parse.
type ModelChain []string

// UnmarshalYAML implements yaml.Unmarshaler, accepting a scalar or a
// sequence.
func (c *ModelChain) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*c = nil
			return nil
		}
		*c = ModelChain{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = ModelChain(list)
		return nil
	case 0:
		*c = nil
		return nil
	default:
		return fmt.Errorf("model chain must be a string or list of strings")
	}
}

// ModelConfig binds an alias to a concrete provider and model.
type ModelConfig struct {
	// Provider selects the adapter: "anthropic", "openrouter",
	// "openai_compatible", "gemini", "bedrock", or "ollama". OpenRouter,
	// Gemini, and Kimi are all instances of the OpenAI-compatible adapter
	// distinguished by BaseURL.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// BaseURL is required for openai_compatible, openrouter, gemini, and
	// ollama; ignored by anthropic and bedrock.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the credential.
	// Never set the credential itself in the config file.
	APIKeyEnv string `yaml:"api_key_env"`

	// Routing lists ordered provider preference; OpenRouter only.
	Routing []string `yaml:"routing"`

	// ContextWindow is the model's token budget; drives the history
	// assembler's compaction threshold.
	ContextWindow int `yaml:"context_window"`

	// Region is used by the bedrock provider.
	Region string `yaml:"region"`
}

// HeartbeatTiming controls the background heartbeat job's cadence.
type HeartbeatTiming struct {
	IdleMinutes     int `yaml:"idle_minutes"`
	CheckSeconds    int `yaml:"check_seconds"`
	ContinueMinutes int `yaml:"continue_minutes"`
}

// ReflectionTiming controls the background reflection job's cadence.
type ReflectionTiming struct {
	IdleMinutes int `yaml:"idle_minutes"`
}

// ToolsConfig groups per-tool configuration. Only the web tools carry
// settings today; the rest of the roster has none.
type ToolsConfig struct {
	Web WebToolConfig `yaml:"web"`
}

// WebToolConfig configures the web_search and web_fetch tools.
type WebToolConfig struct {
	Search WebSearchConfig `yaml:"search"`
	Fetch  WebFetchConfig  `yaml:"fetch"`
}

type WebSearchConfig struct {
	MinIntervalMS   int `yaml:"min_interval_ms"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

type WebFetchConfig struct {
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

// WorkspaceConfig controls the per-ghost filesystem tree.
type WorkspaceConfig struct {
	Root     string `yaml:"root"`
	MaxChars int    `yaml:"max_chars"`
}

// DatabaseConfig points at the central and per-ghost stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig configures the operator-facing request limiter.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
}

// Load reads, expands, decodes, defaults, and validates the config file at
// path. Environment variables referenced with ${VAR} syntax are expanded
// before parsing; $include directives are resolved relative to the
// including file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.DefaultModel) == 0 {
		cfg.DefaultModel = ModelChain{"primary"}
	}
	if len(cfg.HeartbeatModel) == 0 {
		cfg.HeartbeatModel = cfg.DefaultModel
	}

	if cfg.HeartbeatTiming.IdleMinutes == 0 {
		cfg.HeartbeatTiming.IdleMinutes = 4
	}
	if cfg.HeartbeatTiming.CheckSeconds == 0 {
		cfg.HeartbeatTiming.CheckSeconds = 60
	}
	if cfg.HeartbeatTiming.ContinueMinutes == 0 {
		cfg.HeartbeatTiming.ContinueMinutes = 30
	}
	if cfg.Reflection.IdleMinutes == 0 {
		cfg.Reflection.IdleMinutes = 4
	}

	if cfg.Tools.Web.Search.CacheTTLMinutes == 0 {
		cfg.Tools.Web.Search.CacheTTLMinutes = 15
	}
	if cfg.Tools.Web.Fetch.CacheTTLMinutes == 0 {
		cfg.Tools.Web.Fetch.CacheTTLMinutes = 15
	}

	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "./workspaces"
	}
	if cfg.Workspace.MaxChars == 0 {
		cfg.Workspace.MaxChars = 200_000
	}

	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.RateLimit.PerMinute == 0 {
		cfg.RateLimit.PerMinute = 20
	}
	if cfg.RateLimit.PerHour == 0 {
		cfg.RateLimit.PerHour = 200
	}

	for alias, model := range cfg.Models {
		if model.ContextWindow == 0 {
			model.ContextWindow = 128_000
			cfg.Models[alias] = model
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("GATEWAY_DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("GATEWAY_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("GATEWAY_WORKSPACE_ROOT")); value != "" {
		cfg.Workspace.Root = value
	}
}

func validateConfig(cfg *Config) error {
	var issues []string

	for _, alias := range cfg.DefaultModel {
		if _, ok := cfg.Models[alias]; !ok {
			issues = append(issues, fmt.Sprintf("default_model references unknown alias %q", alias))
		}
	}
	for _, alias := range cfg.HeartbeatModel {
		if _, ok := cfg.Models[alias]; !ok {
			issues = append(issues, fmt.Sprintf("heartbeat_model references unknown alias %q", alias))
		}
	}

	for alias, model := range cfg.Models {
		if !validProvider(model.Provider) {
			issues = append(issues, fmt.Sprintf("models.%s.provider %q is not recognized", alias, model.Provider))
		}
		if model.Model == "" {
			issues = append(issues, fmt.Sprintf("models.%s.model is required", alias))
		}
		if requiresBaseURL(model.Provider) && model.BaseURL == "" && model.Provider != "openrouter" {
			issues = append(issues, fmt.Sprintf("models.%s.base_url is required for provider %q", alias, model.Provider))
		}
		if model.ContextWindow < 0 {
			issues = append(issues, fmt.Sprintf("models.%s.context_window must be >= 0", alias))
		}
	}

	if cfg.HeartbeatTiming.IdleMinutes < 0 {
		issues = append(issues, "heartbeat_timing.idle_minutes must be >= 0")
	}
	if cfg.HeartbeatTiming.CheckSeconds <= 0 {
		issues = append(issues, "heartbeat_timing.check_seconds must be > 0")
	}
	if cfg.Reflection.IdleMinutes < 0 {
		issues = append(issues, "reflection.idle_minutes must be >= 0")
	}
	if cfg.Tools.Web.Search.MinIntervalMS < 0 {
		issues = append(issues, "tools.web.search.min_interval_ms must be >= 0")
	}
	if cfg.Workspace.MaxChars < 0 {
		issues = append(issues, "workspace.max_chars must be >= 0")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validProvider(p string) bool {
	switch p {
	case "anthropic", "openrouter", "openai_compatible", "gemini", "bedrock", "ollama":
		return true
	default:
		return false
	}
}

func requiresBaseURL(p string) bool {
	switch p {
	case "openai_compatible", "gemini", "ollama":
		return true
	default:
		return false
	}
}

// ValidationError reports every config problem found, not just the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// ErrConfig wraps file-read and decode failures.
var ErrConfig = fmt.Errorf("config error")
