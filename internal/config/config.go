// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DBURL           string        `mapstructure:"DB_URL"`
	GithubToken     string        `mapstructure:"GITHUB_TOKEN"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
	DefaultLookback time.Duration `mapstructure:"DEFAULT_LOOKBACK"`
	FanoutLimit     int           `mapstructure:"FANOUT_LIMIT"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("REFRESH_INTERVAL", "1h")
	viper.SetDefault("DEFAULT_LOOKBACK", "48h")
	viper.SetDefault("FANOUT_LIMIT", 10)

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, errors.New("REFRESH_INTERVAL must be a positive duration")
	}
	if cfg.FanoutLimit <= 0 {
		return nil, errors.New("FANOUT_LIMIT must be a positive integer")
	}

	return &cfg, nil
}
