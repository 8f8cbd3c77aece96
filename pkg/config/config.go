// Package config resolves the process configuration: the current model,
// provider credentials, and server options. Values come from an optional
// YAML file, the environment, and CLI flags, in increasing precedence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// EnvModel selects the process-wide default model as "provider/name".
	EnvModel = "ALUMNIUM_MODEL"
	// EnvLogLevel sets the log level (debug, info, warn, error).
	EnvLogLevel = "ALUMNIUM_LOG_LEVEL"
	// EnvCachePath points at the sqlite file backing the response cache.
	EnvCachePath = "ALUMNIUM_CACHE_PATH"
)

// LLMConfig carries everything needed to construct a provider client.
type LLMConfig struct {
	Model       Model   `yaml:"model" json:"model"`
	Host        string  `yaml:"host,omitempty" json:"host,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	APIVersion  string  `yaml:"api_version,omitempty" json:"api_version,omitempty"` // Azure OpenAI only
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TimeoutSecs int     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ServerConfig carries HTTP server options.
type ServerConfig struct {
	Addr      string `yaml:"addr,omitempty" json:"addr,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty" json:"log_format,omitempty"`
	CachePath string `yaml:"cache_path,omitempty" json:"cache_path,omitempty"`
}

// Config is the root configuration object resolved once at startup.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	LLM    LLMConfig    `yaml:"llm" json:"llm"`
}

// envAPIKeys maps providers to the environment variable carrying their key.
var envAPIKeys = map[Provider]string{
	ProviderAnthropic:   "ANTHROPIC_API_KEY",
	ProviderOpenAI:      "OPENAI_API_KEY",
	ProviderAzureOpenAI: "AZURE_OPENAI_API_KEY",
	ProviderGoogle:      "GOOGLE_API_KEY",
	ProviderDeepSeek:    "DEEPSEEK_API_KEY",
	ProviderMistralAI:   "MISTRAL_API_KEY",
	ProviderXAI:         "XAI_API_KEY",
}

// Load resolves the configuration from an optional YAML file plus the
// environment. Pass an empty path to skip the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if spec := os.Getenv(EnvModel); spec != "" && cfg.LLM.Model.Provider == "" {
		model, err := ParseModel(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvModel, err)
		}
		cfg.LLM.Model = model
	}
	if level := os.Getenv(EnvLogLevel); level != "" && cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = level
	}
	if cache := os.Getenv(EnvCachePath); cache != "" && cfg.Server.CachePath == "" {
		cfg.Server.CachePath = cache
	}

	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills unset fields with defaults and resolves provider
// credentials from their canonical environment variables.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8013"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "simple"
	}
	if c.LLM.Model.Provider == "" {
		c.LLM.Model = NewModel(ProviderOpenAI, "")
	}
	if c.LLM.Model.Name == "" {
		c.LLM.Model = NewModel(c.LLM.Model.Provider, "")
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.TimeoutSecs == 0 {
		c.LLM.TimeoutSecs = 120
	}
	if c.LLM.APIKey == "" {
		if envVar, ok := envAPIKeys[c.LLM.Model.Provider]; ok {
			c.LLM.APIKey = os.Getenv(envVar)
		}
	}
	if c.LLM.Host == "" && c.LLM.Model.Provider == ProviderAzureOpenAI {
		c.LLM.Host = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if c.LLM.APIVersion == "" && c.LLM.Model.Provider == ProviderAzureOpenAI {
		c.LLM.APIVersion = "2024-10-21"
	}
}

// Validate reports configuration problems that would only surface later as
// opaque provider errors.
func (c *Config) Validate() error {
	if _, err := ParseProvider(string(c.LLM.Model.Provider)); err != nil {
		return err
	}
	if envVar, ok := envAPIKeys[c.LLM.Model.Provider]; ok && c.LLM.APIKey == "" {
		return fmt.Errorf("provider %s requires an API key (set %s)", c.LLM.Model.Provider, envVar)
	}
	if c.LLM.Model.Provider == ProviderAzureOpenAI && c.LLM.Host == "" {
		return fmt.Errorf("provider azure_openai requires an endpoint (set AZURE_OPENAI_ENDPOINT)")
	}
	return nil
}

// ForModel derives an LLMConfig for a per-session model override, keeping
// the process-level tuning. Credentials, host, and API version belong to
// the provider, so they are re-resolved only when the provider changes;
// a different model name on the same provider keeps them.
func (c *Config) ForModel(model Model) LLMConfig {
	llm := c.LLM
	if model.Provider != llm.Model.Provider {
		llm.APIKey = ""
		llm.Host = ""
		llm.APIVersion = ""
		if envVar, ok := envAPIKeys[model.Provider]; ok {
			llm.APIKey = os.Getenv(envVar)
		}
		if model.Provider == ProviderAzureOpenAI {
			llm.Host = os.Getenv("AZURE_OPENAI_ENDPOINT")
			llm.APIVersion = "2024-10-21"
		}
	}
	llm.Model = model
	return llm
}
