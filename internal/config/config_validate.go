// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/validation"
)

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validatePayloadCredentials(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateIngest() error {
	if c.Ingest.SeenRetain >= c.Ingest.SeenCapacity {
		return fmt.Errorf("ingest.seen_retain (%d) must be smaller than ingest.seen_capacity (%d)",
			c.Ingest.SeenRetain, c.Ingest.SeenCapacity)
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.BackfillLimit > c.Stream.CacheCapacity {
		return fmt.Errorf("stream.backfill_limit (%d) must not exceed stream.cache_capacity (%d)",
			c.Stream.BackfillLimit, c.Stream.CacheCapacity)
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if !c.Enrichment.Enabled {
		return nil
	}
	if c.Enrichment.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when enrichment is enabled")
	}
	if containsPlaceholder(c.Enrichment.APIKey) {
		return fmt.Errorf("GEMINI_API_KEY looks like a placeholder value")
	}
	return nil
}

func (c *Config) validatePayloadCredentials() error {
	if !c.Payload.Enabled {
		return nil
	}
	if containsPlaceholder(c.Payload.Password) {
		return fmt.Errorf("PAYLOAD_PASSWORD looks like a placeholder value")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	return nil
}

// placeholderPatterns catch values copied from an example file without edits.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_API_KEY",
	"YOUR_PASSWORD",
	"PLACEHOLDER",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
