package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	LLM         LLMConfig      `mapstructure:"llm"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Ingest      IngestConfig   `mapstructure:"ingest"`
	Vapi        VapiConfig     `mapstructure:"vapi"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ImageDir       string        `mapstructure:"image_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds the Postgres DSN. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LLMConfig struct {
	// Provider is one of "gemini", "local" or "none".
	Provider         string        `mapstructure:"provider"`
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	GeminiModel      string        `mapstructure:"gemini_model"`
	LocalURL         string        `mapstructure:"local_url"`
	LocalModel       string        `mapstructure:"local_model"`
	Temperature      float32       `mapstructure:"temperature"`
	MaxOutputTokens  int32         `mapstructure:"max_output_tokens"`
	MaxMenuItems     int           `mapstructure:"max_menu_items"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type IngestConfig struct {
	Dir string `mapstructure:"dir"`
}

// VapiConfig configures the voice-assistant tool endpoints. Secret is
// matched against the X-Vapi-Secret header; empty disables the check.
type VapiConfig struct {
	Secret string `mapstructure:"secret"`
}

// DefaultJWTSecret is the development signing secret. Production refuses it.
const DefaultJWTSecret = "change-me-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.image_dir", "images")
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "gemini-1.5-flash")
	v.SetDefault("llm.local_url", "http://localhost:1234/v1/chat/completions")
	v.SetDefault("llm.local_model", "gemma-3-12b-it:2")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_output_tokens", 500)
	v.SetDefault("llm.max_menu_items", 75)
	v.SetDefault("llm.timeout", 20*time.Second)
	v.SetDefault("llm.failure_threshold", 5)
	v.SetDefault("llm.open_timeout", 30*time.Second)
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.token_ttl", 30*time.Minute)
	v.SetDefault("ingest.dir", "data/processed")
	v.SetDefault("vapi.secret", "")
}

// Load reads config.json (or cfgFile when set), applies defaults and
// environment overrides. A missing config file is not an error.
//
// Environment variables use the TASTEBUD_ prefix with dots replaced by
// underscores (TASTEBUD_LLM_PROVIDER). GEMINI_API_KEY and DATABASE_URL are
// honoured for compatibility with existing deployments.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("tastebud")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.gemini_api_key", "TASTEBUD_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "TASTEBUD_DATABASE_URL", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "gemini", "local", "none":
	default:
		return fmt.Errorf("invalid llm.provider %q: want gemini, local or none", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("server.allowed_origins must not be empty")
	}
	if c.LLM.MaxMenuItems <= 0 {
		return fmt.Errorf("llm.max_menu_items must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.IsProduction() && c.Auth.JWTSecret == DefaultJWTSecret {
		return fmt.Errorf("auth.jwt_secret must be set in production")
	}
	return nil
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
