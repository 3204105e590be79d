package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spreadwatch/internal/venue/binance"
	"spreadwatch/internal/venue/bybit"
	"spreadwatch/internal/venue/kucoin"
	"spreadwatch/internal/venue/okx"
)

type Config struct {
	Spreadwatch SpreadwatchConfig `yaml:"spreadwatch"`
	Server      ServerConfig      `yaml:"server"`
	Watch       WatchConfig       `yaml:"watch"`
	Venues      VenuesConfig      `yaml:"venues"`
	Stream      StreamConfig      `yaml:"stream"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type SpreadwatchConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WatchConfig struct {
	DefaultBookA string `yaml:"default_book_a"`
	DefaultBookB string `yaml:"default_book_b"`
}

type VenuesConfig struct {
	Binance binance.Config `yaml:"binance"`
	Bybit   bybit.Config   `yaml:"bybit"`
	Kucoin  kucoin.Config  `yaml:"kucoin"`
	Okx     okx.Config     `yaml:"okx"`
}

type StreamConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Topics        []string      `yaml:"topics"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	RenewInterval time.Duration `yaml:"renew_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveConfigPath(path)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Watch: WatchConfig{
			DefaultBookA: "binance-spot",
			DefaultBookB: "binance-swap",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override exchange credentials from environment variables if available
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Venues.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.Venues.Binance.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		config.Venues.Bybit.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		config.Venues.Bybit.APISecret = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Spreadwatch.Name == "" {
		return fmt.Errorf("spreadwatch.name is required")
	}

	if cfg.Spreadwatch.Version == "" {
		return fmt.Errorf("spreadwatch.version is required")
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if cfg.Watch.DefaultBookA == "" || cfg.Watch.DefaultBookB == "" {
		return fmt.Errorf("watch.default_book_a and watch.default_book_b are required")
	}
	if strings.EqualFold(cfg.Watch.DefaultBookA, cfg.Watch.DefaultBookB) {
		return fmt.Errorf("watch.default_book_a and watch.default_book_b must differ")
	}

	if cfg.Stream.Heartbeat < 0 {
		return fmt.Errorf("stream.heartbeat must not be negative")
	}
	if cfg.Stream.RenewInterval < 0 {
		return fmt.Errorf("stream.renew_interval must not be negative")
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		if os.Getenv("AWS_REGION") == "" {
			return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
		}
	}

	return nil
}
