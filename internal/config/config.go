// Package config loads application settings from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "gemchat"

// Defaults
const (
	DefaultModel         = "gemini-2.5-flash"
	DefaultFallbackModel = "gemini-2.5-flash-lite"
)

// ErrMissingAPIKey is returned when no API key is configured anywhere
var ErrMissingAPIKey = errors.New("no API key configured, set GEMINI_API_KEY or GEMCHAT_API_KEY")

// Config is the resolved application configuration
type Config struct {
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	FallbackModel   string        `mapstructure:"fallback_model"`
	SystemPrompt    string        `mapstructure:"system_prompt"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	QuotaBytes      int64         `mapstructure:"quota_bytes"`
	Debug           bool          `mapstructure:"debug"`
}

// Load reads config.toml from dataDir (when present), merges GEMCHAT_*
// environment variables and defaults, and resolves the API key. The file and
// every setting are optional except the key.
func Load(dataDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dataDir)
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.AutomaticEnv()

	v.SetDefault("api_key", "")
	v.SetDefault("model", DefaultModel)
	v.SetDefault("fallback_model", DefaultFallbackModel)
	v.SetDefault("system_prompt", "")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_output_tokens", 8192)
	v.SetDefault("max_retries", 3)
	v.SetDefault("base_delay", "1s")
	v.SetDefault("max_delay", "30s")
	v.SetDefault("quota_bytes", 5*1024*1024)
	v.SetDefault("debug", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &cfg, nil
}
