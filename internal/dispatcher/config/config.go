package config

import (
	"jetpredict-notifier/pkg/config"
)

// Dispatcher holds dispatcher-specific configuration.
type Dispatcher struct {
	Schedule           string `mapstructure:"schedule"`
	TimeZone           string `mapstructure:"time_zone"`
	WindowOffset       string `mapstructure:"window_offset"`
	WindowWidth        string `mapstructure:"window_width"`
	RunTimeout         string `mapstructure:"run_timeout"`
	MaxConcurrentSends int    `mapstructure:"max_concurrent_sends"`
	SendsPerSecond     int    `mapstructure:"sends_per_second"`
	MarkerTTL          string `mapstructure:"marker_ttl"`
	AlertTitle         string `mapstructure:"alert_title"`
	AlertSound         string `mapstructure:"alert_sound"`
}

// Config holds the full configuration for the dispatcher service.
type Config struct {
	App        config.App      `mapstructure:"app"`
	Logger     config.Logger   `mapstructure:"logger"`
	Database   config.Database `mapstructure:"database"`
	Redis      config.Redis    `mapstructure:"redis"`
	API        config.API      `mapstructure:"api"`
	Telegram   config.Telegram `mapstructure:"telegram"`
	Push       config.Push     `mapstructure:"push"`
	Dispatcher Dispatcher      `mapstructure:"dispatcher"`
}

// Load loads the dispatcher configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
