package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name"`
	Env           string `mapstructure:"app_env"`
	LogLevel      string `mapstructure:"log_level"`
	FeedsFile     string `mapstructure:"feeds_file"`
	NotifiersFile string `mapstructure:"notifiers_file"`

	StoreType string `mapstructure:"store_type"`
	BBoltPath string `mapstructure:"bbolt_path"`

	BrowserBin      string        `mapstructure:"browser_bin"`
	BrowserHeadless bool          `mapstructure:"browser_headless"`
	ScrapeSpacingMs int64         `mapstructure:"scrape_spacing_ms"`
	ScrapeSpacing   time.Duration `mapstructure:"-"`

	ReplayURL          string `mapstructure:"replay_url"`
	ReplaySelector     string `mapstructure:"replay_selector"`
	ReplayScrollTarget string `mapstructure:"replay_scroll_target"`
	ReplayScrollCount  int    `mapstructure:"replay_scroll_count"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "pointfeed")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("feeds_file", "./configs/feeds.yaml")
	v.SetDefault("notifiers_file", "./configs/notifiers.yaml")
	v.SetDefault("store_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/feeds.db")
	v.SetDefault("browser_bin", "")
	v.SetDefault("browser_headless", true)
	v.SetDefault("scrape_spacing_ms", int64(2000))
	v.SetDefault("replay_url", "")
	v.SetDefault("replay_selector", "")
	v.SetDefault("replay_scroll_target", "")
	v.SetDefault("replay_scroll_count", 0)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ScrapeSpacingMs < 0 {
		return nil, fmt.Errorf("invalid scrape_spacing_ms (must be >= 0)")
	}
	cfg.ScrapeSpacing = time.Duration(cfg.ScrapeSpacingMs) * time.Millisecond

	return &cfg, nil
}
