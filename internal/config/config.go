// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Backend BackendConfig `mapstructure:"backend"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	ListingTimeoutSeconds int    `mapstructure:"listing_timeout_seconds"`
	ArticleTimeoutSeconds int    `mapstructure:"article_timeout_seconds"`
	PacingDelayMs         int    `mapstructure:"pacing_delay_ms"`
	ScrollRetries         int    `mapstructure:"scroll_retries"`
	ScrollPauseMs         int    `mapstructure:"scroll_pause_ms"`
	Workers               int    `mapstructure:"workers"`
	Backlog               int    `mapstructure:"backlog"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`
}

// QueueConfig holds AMQP connection settings. An empty URL disables the
// queue worker.
type QueueConfig struct {
	URL string `mapstructure:"url"`
}

// BackendConfig points at the downstream service whose liveness the
// health checker probes.
type BackendConfig struct {
	URL             string `mapstructure:"url"`
	HealthPath      string `mapstructure:"health_path"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
}

// ArchiveConfig selects where finished session snapshots are persisted.
// Backend is one of "fs", "postgres", "redis" or "none".
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
	RedisA  string `mapstructure:"redis_addr"`
	TTLDays int    `mapstructure:"ttl_days"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 10)
	v.SetDefault("crawler.base_url", "https://news.naver.com/main/list.naver")
	v.SetDefault("crawler.listing_timeout_seconds", 30)
	v.SetDefault("crawler.article_timeout_seconds", 15)
	v.SetDefault("crawler.pacing_delay_ms", 500)
	v.SetDefault("crawler.scroll_retries", 5)
	v.SetDefault("crawler.scroll_pause_ms", 2000)
	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.backlog", 16)
	v.SetDefault("browser.headless", true)
	v.SetDefault("backend.health_path", "/actuator/health")
	v.SetDefault("backend.timeout_seconds", 5)
	v.SetDefault("backend.interval_seconds", 30)
	v.SetDefault("archive.backend", "fs")
	v.SetDefault("archive.dir", "crawl_results")
	v.SetDefault("archive.table", "crawl_sessions")
	v.SetDefault("archive.ttl_days", 7)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.ListingTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.listing_timeout_seconds must be > 0")
	}
	if c.Crawler.ArticleTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.article_timeout_seconds must be > 0")
	}
	switch c.Archive.Backend {
	case "fs", "none":
	case "postgres":
		if c.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn must be set for the postgres backend")
		}
	case "redis":
		if c.Archive.RedisA == "" {
			return fmt.Errorf("archive.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("archive.backend must be one of fs, postgres, redis, none")
	}
	return nil
}

// ListingTimeout returns the listing navigation budget as a duration.
func (c CrawlerConfig) ListingTimeout() time.Duration {
	return time.Duration(c.ListingTimeoutSeconds) * time.Second
}

// ArticleTimeout returns the per-article navigation budget as a duration.
func (c CrawlerConfig) ArticleTimeout() time.Duration {
	return time.Duration(c.ArticleTimeoutSeconds) * time.Second
}

// PacingDelay returns the inter-article delay as a duration.
func (c CrawlerConfig) PacingDelay() time.Duration {
	return time.Duration(c.PacingDelayMs) * time.Millisecond
}

// ScrollPause returns the wait after each scroll as a duration.
func (c CrawlerConfig) ScrollPause() time.Duration {
	return time.Duration(c.ScrollPauseMs) * time.Millisecond
}
