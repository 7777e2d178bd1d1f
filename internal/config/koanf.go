// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/intelstream/config.yaml",
	"/etc/intelstream/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults; the file and env layers override them.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/intelstream.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Stream: StreamConfig{
			CacheCapacity: 1000,
			ChunkSize:     50,
			KeepAlive:     25 * time.Second,
			QueueSize:     256,
			BackfillLimit: 200,
		},
		Ingest: IngestConfig{
			SeenCapacity: 1000,
			SeenRetain:   500,
			Concurrency:  4,
		},
		Payload: PayloadConfig{
			Enabled:        false,
			Collection:     "intel",
			UserCollection: "users",
			PageSize:       20,
			Interval:       60 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Article: ArticleConfig{
			Enabled:        false,
			StartID:        1,
			Interval:       5 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Feeds: FeedsConfig{
			Enabled:         false,
			Interval:        5 * time.Minute,
			RequestTimeout:  30 * time.Second,
			FetchFullText:   true,
			MaxItemsPerFeed: 30,
		},
		Mock: MockConfig{
			Enabled:  false,
			Interval: 10 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			Enabled:           false,
			Model:             "gemini-2.5-flash",
			Language:          "Simplified Chinese",
			Timeout:           45 * time.Second,
			RequestsPerMinute: 30,
			BreakerFailures:   5,
			BreakerTimeout:    time.Minute,
		},
		Housekeeping: HousekeepingConfig{
			Interval:      24 * time.Hour,
			RetentionDays: 30,
			HotHours:      24,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceConfigPaths are keys whose env values are comma separated lists.
var sliceConfigPaths = []string{
	"feeds.urls",
	"server.cors_origins",
}

// LoadWithKoanf loads, merges and validates configuration.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// processSliceFields splits comma separated env values into lists. Values
// that came from YAML are already lists and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf keys.
// Unlisted variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"stream_cache_capacity": "stream.cache_capacity",
	"stream_chunk_size":     "stream.chunk_size",
	"stream_keepalive":      "stream.keepalive",
	"stream_queue_size":     "stream.queue_size",
	"stream_backfill_limit": "stream.backfill_limit",

	"ingest_seen_capacity": "ingest.seen_capacity",
	"ingest_seen_retain":   "ingest.seen_retain",
	"ingest_concurrency":   "ingest.concurrency",

	"enable_payload_poller":   "payload.enabled",
	"payload_url":             "payload.url",
	"payload_collection":      "payload.collection",
	"payload_user_collection": "payload.user_collection",
	"payload_email":           "payload.email",
	"payload_password":        "payload.password",
	"payload_page_size":       "payload.page_size",
	"payload_poll_interval":   "payload.interval",

	"enable_article_poller": "article.enabled",
	"article_base_url":      "article.base_url",
	"article_start_id":      "article.start_id",
	"article_poll_interval": "article.interval",

	"enable_feed_poller":    "feeds.enabled",
	"feed_urls":             "feeds.urls",
	"feed_poll_interval":    "feeds.interval",
	"feed_fetch_full_text":  "feeds.fetch_full_text",
	"feed_max_items":        "feeds.max_items_per_feed",
	"enable_mock_poller":    "mock.enabled",
	"mock_poll_interval":    "mock.interval",

	"enable_enrichment":              "enrichment.enabled",
	"gemini_api_key":                 "enrichment.api_key",
	"google_api_key":                 "enrichment.api_key",
	"enrichment_model":               "enrichment.model",
	"enrichment_language":            "enrichment.language",
	"enrichment_timeout":             "enrichment.timeout",
	"enrichment_requests_per_minute": "enrichment.requests_per_minute",

	"housekeeping_interval": "housekeeping.interval",
	"retention_days":        "housekeeping.retention_days",
	"hot_hours":             "housekeeping.hot_hours",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_reqs":       "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
