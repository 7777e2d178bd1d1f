// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

/*
Package config loads and validates Intelstream configuration.

Configuration is layered with koanf, later layers overriding earlier ones:

 1. built-in defaults (defaultConfig)
 2. an optional YAML file: $CONFIG_PATH, ./config.yaml, ./config.yml,
    /etc/intelstream/config.yaml
 3. environment variables, mapped explicitly in envTransformFunc

Example file:

	payload:
	  enabled: true
	  url: https://cms.example.org
	  collection: intel
	  email: ingest@example.org
	  password: s3cret
	feeds:
	  enabled: true
	  urls:
	    - https://example.org/rss.xml
	enrichment:
	  enabled: true
	  model: gemini-2.5-flash
	housekeeping:
	  retention_days: 30
	  hot_hours: 24

Common environment variables:

  - DUCKDB_PATH, DUCKDB_MAX_MEMORY
  - STREAM_CACHE_CAPACITY, STREAM_KEEPALIVE
  - PAYLOAD_URL, PAYLOAD_EMAIL, PAYLOAD_PASSWORD, PAYLOAD_COLLECTION
  - ARTICLE_BASE_URL, ARTICLE_START_ID
  - FEED_URLS (comma separated)
  - ENABLE_MOCK_POLLER
  - GEMINI_API_KEY, ENRICHMENT_MODEL
  - RETENTION_DAYS, HOT_HOURS
  - HTTP_HOST, HTTP_PORT, CORS_ORIGINS
  - LOG_LEVEL, LOG_FORMAT

Validation runs go-playground/validator tags first, then the cross-field
checks in config_validate.go. An invalid configuration is fatal at startup.
*/
package config
