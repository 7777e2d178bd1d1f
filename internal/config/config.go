// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Database     DatabaseConfig     `koanf:"database"`
	Stream       StreamConfig       `koanf:"stream"`
	Ingest       IngestConfig       `koanf:"ingest"`
	Payload      PayloadConfig      `koanf:"payload"`
	Article      ArticleConfig      `koanf:"article"`
	Feeds        FeedsConfig        `koanf:"feeds"`
	Mock         MockConfig         `koanf:"mock"`
	Enrichment   EnrichmentConfig   `koanf:"enrichment"`
	Housekeeping HousekeepingConfig `koanf:"housekeeping"`
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory" validate:"required"`
	Threads   int    `koanf:"threads" validate:"min=0"` // 0 = runtime.NumCPU()
}

// StreamConfig holds broadcast hub settings.
type StreamConfig struct {
	// CacheCapacity bounds the replay cache; the oldest items are evicted first.
	CacheCapacity int `koanf:"cache_capacity" validate:"min=1"`

	// ChunkSize is the number of items per initial_batch event.
	ChunkSize int `koanf:"chunk_size" validate:"min=1"`

	// KeepAlive is the idle interval after which a comment line is sent.
	KeepAlive time.Duration `koanf:"keepalive" validate:"duration_min=1s"`

	// QueueSize bounds each subscriber's pending live events. A subscriber
	// whose queue is full is dropped.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// BackfillLimit is how many hot items are loaded into the cache at startup.
	BackfillLimit int `koanf:"backfill_limit" validate:"min=0"`
}

// IngestConfig holds settings shared by every poller's ingestion pipeline.
type IngestConfig struct {
	// SeenCapacity is the size at which the seen-id set is trimmed.
	SeenCapacity int `koanf:"seen_capacity" validate:"min=2"`

	// SeenRetain is how many of the most recent ids survive a trim.
	SeenRetain int `koanf:"seen_retain" validate:"min=1"`

	// Concurrency bounds parallel enrichment calls within one batch.
	Concurrency int `koanf:"concurrency" validate:"min=1,max=64"`
}

// PayloadConfig configures the Payload CMS poller.
type PayloadConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url" validate:"required_if=Enabled true,omitempty,http_url"`
	Collection     string        `koanf:"collection" validate:"required_if=Enabled true"`
	UserCollection string        `koanf:"user_collection"`
	Email          string        `koanf:"email" validate:"required_if=Enabled true"`
	Password       string        `koanf:"password" validate:"required_if=Enabled true"`
	PageSize       int           `koanf:"page_size" validate:"min=1,max=500"`
	Interval       time.Duration `koanf:"interval" validate:"duration_min=1s"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"duration_min=1s"`
}

// ArticleConfig configures the sequential article poller.
type ArticleConfig struct {
	Enabled        bool          `koanf:"enabled"`
	BaseURL        string        `koanf:"base_url" validate:"required_if=Enabled true,omitempty,http_url"`
	StartID        int           `koanf:"start_id" validate:"min=0"`
	Interval       time.Duration `koanf:"interval" validate:"duration_min=1s"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"duration_min=1s"`
}

// FeedsConfig configures the RSS/Atom poller.
type FeedsConfig struct {
	Enabled         bool          `koanf:"enabled"`
	URLs            []string      `koanf:"urls" validate:"required_if=Enabled true,dive,http_url"`
	Interval        time.Duration `koanf:"interval" validate:"duration_min=1s"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"duration_min=1s"`
	FetchFullText   bool          `koanf:"fetch_full_text"`
	MaxItemsPerFeed int           `koanf:"max_items_per_feed" validate:"min=1"`
}

// MockConfig configures the synthetic item generator.
type MockConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval" validate:"duration_min=1s"`
}

// EnrichmentConfig configures the language-model enricher.
type EnrichmentConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model" validate:"required_if=Enabled true"`

	// Language is the language refined titles, summaries and content are written in.
	Language string `koanf:"language" validate:"required_if=Enabled true"`

	// Timeout bounds a single model call.
	Timeout time.Duration `koanf:"timeout" validate:"duration_min=1s"`

	// RequestsPerMinute limits calls across all pollers. 0 disables limiting.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=0"`

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"min=1"`

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"duration_min=1s"`
}

// HousekeepingConfig configures retention and hot demotion.
type HousekeepingConfig struct {
	Interval      time.Duration `koanf:"interval" validate:"duration_min=1m"`
	RetentionDays int           `koanf:"retention_days" validate:"min=1"`
	HotHours      int           `koanf:"hot_hours" validate:"min=1"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"duration_min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"duration_min=1s"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"duration_min=1s"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AnySourceEnabled reports whether at least one poller is enabled.
func (c *Config) AnySourceEnabled() bool {
	return c.Payload.Enabled || c.Article.Enabled || c.Feeds.Enabled || c.Mock.Enabled
}
