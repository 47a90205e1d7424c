package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Relay     RelayConfig     `mapstructure:"relay"`
	World     WorldConfig     `mapstructure:"world"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Client    ClientConfig    `mapstructure:"client"`
	Image     ImageConfig     `mapstructure:"image"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// ProviderConfig selects and parameterises the upstream model. An empty
// APIKey is valid and puts the relay in mock mode.
type ProviderConfig struct {
	Name         string        `mapstructure:"name"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type RelayConfig struct {
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
	SimulateDelay time.Duration `mapstructure:"simulate_delay"`
	MaxHistory    int           `mapstructure:"max_history"`
}

type WorldConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DataDir       string `mapstructure:"data_dir"`
	OverviewLimit int    `mapstructure:"overview_limit"`
	MaxCharacters int    `mapstructure:"max_characters"`
	MaxLocations  int    `mapstructure:"max_locations"`
	MaxItems      int    `mapstructure:"max_items"`
	RecentTurns   int    `mapstructure:"recent_turns"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// ClientConfig is read by the terminal client only.
type ClientConfig struct {
	RelayURL          string        `mapstructure:"relay_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SimulateStreaming bool          `mapstructure:"simulate_streaming"`
	SimulateDelay     time.Duration `mapstructure:"simulate_delay"`
}

// ImageConfig controls the scene illustration attached to JSON chat
// replies. Without an API key a placeholder image is returned.
type ImageConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Size    string        `mapstructure:"size"`
	Quality string        `mapstructure:"quality"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// providerKeyEnv lists the environment variables consulted, in order, when
// the config file carries no credential for the selected provider.
var providerKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"ark":       {"ARK_API_KEY", "DOUBAO_API_KEY"},
	"qwen":      {"DASHSCOPE_API_KEY", "QWEN_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// providerModel is used when provider.model is left empty. Ark and Qwen
// need an explicit endpoint or model id.
var providerModel = map[string]string{
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.0-flash",
	"anthropic": "claude-3-5-haiku-20241022",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("provider.name", "openai")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.max_tokens", 200)
	v.SetDefault("provider.temperature", 0.8)
	v.SetDefault("provider.top_p", 1.0)
	v.SetDefault("provider.timeout", 60*time.Second)

	v.SetDefault("relay.stream_timeout", 60*time.Second)
	v.SetDefault("relay.simulate_delay", 0)
	v.SetDefault("relay.max_history", 20)

	v.SetDefault("world.enabled", false)
	v.SetDefault("world.data_dir", "./world")
	v.SetDefault("world.overview_limit", 1500)
	v.SetDefault("world.max_characters", 2)
	v.SetDefault("world.max_locations", 1)
	v.SetDefault("world.max_items", 2)
	v.SetDefault("world.recent_turns", 6)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type"})
	v.SetDefault("cors.max_age", 86400)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("client.relay_url", "http://localhost:8080/api/chat/stream")
	v.SetDefault("client.timeout", 2*time.Minute)
	v.SetDefault("client.simulate_streaming", true)
	v.SetDefault("client.simulate_delay", 50*time.Millisecond)

	v.SetDefault("image.enabled", false)
	v.SetDefault("image.api_key", "")
	v.SetDefault("image.base_url", "")
	v.SetDefault("image.model", "dall-e-3")
	v.SetDefault("image.size", "1024x1024")
	v.SetDefault("image.quality", "standard")
	v.SetDefault("image.timeout", 60*time.Second)
}

// Load reads configuration from configPath. A missing file is not an error:
// defaults and environment variables (prefix RELAY_) are used instead.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Provider.Model == "" {
		cfg.Provider.Model = providerModel[cfg.Provider.Name]
	}

	// The file wins; provider-specific variables only fill an empty key.
	if cfg.Provider.APIKey == "" {
		for _, name := range providerKeyEnv[cfg.Provider.Name] {
			if apiKey := os.Getenv(name); apiKey != "" {
				cfg.Provider.APIKey = apiKey
				break
			}
		}
	}

	if cfg.Image.APIKey == "" {
		cfg.Image.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

// HasCredential reports whether the relay can call the live provider.
func (c *Config) HasCredential() bool {
	return c.Provider.APIKey != ""
}
