// Package config loads process-wide settings (spec.md §6.5) from an
// optional YAML file with environment variable overrides, following the
// teacher's cmd/registry startup pattern: every setting has a sane default,
// an environment variable always wins over the file, and a malformed value
// fails the process at start rather than degrading silently at request time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of process-wide settings a running server needs.
type Config struct {
	// MaxHandoffs is the configured cap on inter-agent transfers per request
	// (spec.md §3, §6.5); it is loaded and validated here only. cmd/server
	// does not pass it to the executor, so every conversation is capped at
	// state.DefaultMaxHandoffs whatever this field holds.
	MaxHandoffs int `yaml:"max_handoffs"`

	LLM           LLMConfig           `yaml:"llm"`
	Checkpoint    CheckpointConfig    `yaml:"checkpoint"`
	Agents        AgentsConfig        `yaml:"agents"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig configures the default chat-completion provider and the
// classification call the Router Node makes.
type LLMConfig struct {
	ModelName    string  `yaml:"model_name"`
	Temperature  float64 `yaml:"temperature"`
	AnthropicKey string  `yaml:"anthropic_api_key"`
	// RateLimitTokensPerMinute caps outbound token throughput to the
	// provider (spec.md §6.5); 0 disables client-side rate limiting
	// entirely, leaving only the provider's own 429s as backpressure.
	RateLimitTokensPerMinute int `yaml:"rate_limit_tokens_per_minute"`
}

// CheckpointConfig selects and configures the Checkpoint Store backend
// (spec.md §6.5 "checkpoint connection string; enable flag").
type CheckpointConfig struct {
	// Enabled toggles durable (Redis) persistence; false uses the in-memory
	// store, appropriate for local development only (checkpoints do not
	// survive a restart).
	Enabled          bool   `yaml:"enabled"`
	ConnectionString string `yaml:"connection_string"`
	KeyPrefix        string `yaml:"key_prefix"`
}

// AgentsConfig carries per-agent enable flags and credentials for the
// external collaborators each manager talks to (spec.md §6.5).
type AgentsConfig struct {
	IoT       IoTAgentConfig       `yaml:"iot"`
	Memory    MemoryAgentConfig    `yaml:"memory"`
	Search    SearchAgentConfig    `yaml:"search"`
	Calendar  CalendarAgentConfig  `yaml:"calendar"`
	Delegator DelegatorAgentConfig `yaml:"delegator"`
}

// IoTAgentConfig configures manager_i's home automation collaborator.
type IoTAgentConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

// MemoryAgentConfig configures manager_m's vector store collaborator.
type MemoryAgentConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ConnectionString string `yaml:"connection_string"`
	KeyPrefix        string `yaml:"key_prefix"`
}

// SearchAgentConfig configures manager_s's web search collaborator.
type SearchAgentConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// CalendarAgentConfig configures manager_t's calendar collaborator.
type CalendarAgentConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

// DelegatorAgentConfig configures manager_d's summarization threshold.
type DelegatorAgentConfig struct {
	Enabled              bool `yaml:"enabled"`
	SummarizeAfterTokens int  `yaml:"summarize_after_tokens"`
}

// ObservabilityConfig carries optional credentials for the telemetry
// backend (spec.md §6.5 "Observability credentials (optional)").
type ObservabilityConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPAPIKey   string `yaml:"otlp_api_key"`
}

// Default returns the zero-config baseline: in-memory checkpointing, no
// agents enabled, default handoff cap and model temperature.
func Default() Config {
	return Config{
		MaxHandoffs: 5,
		LLM: LLMConfig{
			ModelName:                "claude-sonnet-4-5",
			Temperature:              0.2,
			RateLimitTokensPerMinute: 40000,
		},
	}
}

// Load reads path (if non-empty and present) as YAML into Default(), then
// applies environment variable overrides, then validates. A missing path is
// not an error — environment variables and defaults alone are a valid
// configuration for container deployments that inject everything via env.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %q: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env/defaults only
		default:
			return Config{}, fmt.Errorf("config: reading %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on a configuration that would misconfigure the graph
// at construction time rather than at first request (spec.md §7).
func (c Config) Validate() error {
	if c.MaxHandoffs < 0 {
		return fmt.Errorf("config: max_handoffs must be >= 0, got %d", c.MaxHandoffs)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.RateLimitTokensPerMinute < 0 {
		return fmt.Errorf("config: llm.rate_limit_tokens_per_minute must be >= 0, got %d", c.LLM.RateLimitTokensPerMinute)
	}
	if c.Checkpoint.Enabled && c.Checkpoint.ConnectionString == "" {
		return fmt.Errorf("config: checkpoint.enabled requires checkpoint.connection_string")
	}
	if c.Agents.Memory.Enabled && c.Agents.Memory.ConnectionString == "" {
		return fmt.Errorf("config: agents.memory.enabled requires agents.memory.connection_string")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var err error
	cfg.MaxHandoffs, err = envIntOr("MAX_HANDOFFS", cfg.MaxHandoffs)
	if err != nil {
		return err
	}
	cfg.LLM.ModelName = envOr("LLM_MODEL_NAME", cfg.LLM.ModelName)
	cfg.LLM.Temperature, err = envFloatOr("LLM_TEMPERATURE", cfg.LLM.Temperature)
	if err != nil {
		return err
	}
	cfg.LLM.AnthropicKey = envOr("ANTHROPIC_API_KEY", cfg.LLM.AnthropicKey)
	cfg.LLM.RateLimitTokensPerMinute, err = envIntOr("LLM_RATE_LIMIT_TOKENS_PER_MINUTE", cfg.LLM.RateLimitTokensPerMinute)
	if err != nil {
		return err
	}

	cfg.Checkpoint.Enabled, err = envBoolOr("CHECKPOINT_ENABLED", cfg.Checkpoint.Enabled)
	if err != nil {
		return err
	}
	cfg.Checkpoint.ConnectionString = envOr("CHECKPOINT_CONNECTION_STRING", cfg.Checkpoint.ConnectionString)
	cfg.Checkpoint.KeyPrefix = envOr("CHECKPOINT_KEY_PREFIX", cfg.Checkpoint.KeyPrefix)

	cfg.Agents.IoT.Enabled, err = envBoolOr("AGENT_IOT_ENABLED", cfg.Agents.IoT.Enabled)
	if err != nil {
		return err
	}
	cfg.Agents.IoT.BaseURL = envOr("HOMEASSISTANT_BASE_URL", cfg.Agents.IoT.BaseURL)
	cfg.Agents.IoT.APIToken = envOr("HOMEASSISTANT_API_TOKEN", cfg.Agents.IoT.APIToken)

	cfg.Agents.Memory.Enabled, err = envBoolOr("AGENT_MEMORY_ENABLED", cfg.Agents.Memory.Enabled)
	if err != nil {
		return err
	}
	cfg.Agents.Memory.ConnectionString = envOr("VECTORSTORE_CONNECTION_STRING", cfg.Agents.Memory.ConnectionString)
	cfg.Agents.Memory.KeyPrefix = envOr("VECTORSTORE_KEY_PREFIX", cfg.Agents.Memory.KeyPrefix)

	cfg.Agents.Search.Enabled, err = envBoolOr("AGENT_SEARCH_ENABLED", cfg.Agents.Search.Enabled)
	if err != nil {
		return err
	}
	cfg.Agents.Search.BaseURL = envOr("WEBSEARCH_BASE_URL", cfg.Agents.Search.BaseURL)
	cfg.Agents.Search.APIKey = envOr("WEBSEARCH_API_KEY", cfg.Agents.Search.APIKey)

	cfg.Agents.Calendar.Enabled, err = envBoolOr("AGENT_CALENDAR_ENABLED", cfg.Agents.Calendar.Enabled)
	if err != nil {
		return err
	}
	cfg.Agents.Calendar.BaseURL = envOr("CALENDAR_BASE_URL", cfg.Agents.Calendar.BaseURL)
	cfg.Agents.Calendar.APIToken = envOr("CALENDAR_API_TOKEN", cfg.Agents.Calendar.APIToken)

	cfg.Agents.Delegator.Enabled, err = envBoolOr("AGENT_DELEGATOR_ENABLED", cfg.Agents.Delegator.Enabled)
	if err != nil {
		return err
	}
	cfg.Agents.Delegator.SummarizeAfterTokens, err = envIntOr("DELEGATOR_SUMMARIZE_AFTER_TOKENS", cfg.Agents.Delegator.SummarizeAfterTokens)
	if err != nil {
		return err
	}

	cfg.Observability.OTLPEndpoint = envOr("OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)
	cfg.Observability.OTLPAPIKey = envOr("OTLP_API_KEY", cfg.Observability.OTLPAPIKey)

	return nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid integer: %w", key, v, err)
	}
	return i, nil
}

func envFloatOr(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid float: %w", key, v, err)
	}
	return f, nil
}

func envBoolOr(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a valid bool: %w", key, v, err)
	}
	return b, nil
}

// EnvDurationOr returns the environment variable parsed as a duration, or
// defaultVal if unset (grounded on the teacher's cmd/registry envDurationOr).
func EnvDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
