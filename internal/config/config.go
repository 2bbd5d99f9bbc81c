package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	FeedsFile      string `mapstructure:"feeds_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`

	EnrichEndpoint       string        `mapstructure:"enrich_endpoint"`
	EnrichModel          string        `mapstructure:"enrich_model"`
	EnrichAPIKey         string        `mapstructure:"enrich_api_key"`
	EnrichTimeoutSeconds int64         `mapstructure:"enrich_timeout_seconds"`
	EnrichTimeout        time.Duration `mapstructure:"-"`

	PageWaitSeconds     int64         `mapstructure:"page_wait_seconds"`
	CycleBackoffSeconds int64         `mapstructure:"cycle_backoff_seconds"`
	PageWaitTimeout     time.Duration `mapstructure:"-"`
	CycleBackoff        time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "diralist-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("feeds_file", "./configs/feeds.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/harvester.db")
	v.SetDefault("enrich_endpoint", "https://api.deepseek.com/chat/completions")
	v.SetDefault("enrich_model", "deepseek-chat")
	v.SetDefault("enrich_api_key", "")
	v.SetDefault("enrich_timeout_seconds", 120)
	v.SetDefault("page_wait_seconds", 30)
	v.SetDefault("cycle_backoff_seconds", 10)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.EnrichTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid enrich_timeout_seconds (must be positive seconds)")
	}
	if cfg.PageWaitSeconds <= 0 {
		return nil, fmt.Errorf("invalid page_wait_seconds (must be positive seconds)")
	}
	if cfg.CycleBackoffSeconds <= 0 {
		return nil, fmt.Errorf("invalid cycle_backoff_seconds (must be positive seconds)")
	}
	cfg.EnrichTimeout = time.Duration(cfg.EnrichTimeoutSeconds) * time.Second
	cfg.PageWaitTimeout = time.Duration(cfg.PageWaitSeconds) * time.Second
	cfg.CycleBackoff = time.Duration(cfg.CycleBackoffSeconds) * time.Second

	return &cfg, nil
}
