// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package main

import (
	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/database"
	"github.com/tomtom215/intelstream/internal/enrich"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/poller"
)

// buildPollers creates one poller per enabled source. Every poller gets its
// own ingestor, so seen-id tracking stays per source, and all of them share
// one housekeeper, so retention runs once per window process-wide.
func buildPollers(cfg *config.Config, db *database.DB, hub *broadcast.Hub, enricher enrich.Enricher) []*poller.Poller {
	housekeeper := poller.NewHousekeeper(db, cfg.Housekeeping)
	newIngestor := func(name string) *poller.Ingestor {
		return poller.NewIngestor(name, db, hub, enricher, cfg.Ingest)
	}

	var pollers []*poller.Poller
	if cfg.Payload.Enabled {
		source := poller.NewPayloadSource(cfg.Payload, newIngestor("payload"))
		pollers = append(pollers, poller.New(source, poller.Options{
			Interval:    cfg.Payload.Interval,
			Housekeeper: housekeeper,
		}))
	}
	if cfg.Article.Enabled {
		source := poller.NewArticleSource(cfg.Article, newIngestor("article"))
		pollers = append(pollers, poller.New(source, poller.Options{
			Interval:    cfg.Article.Interval,
			Housekeeper: housekeeper,
		}))
	}
	if cfg.Feeds.Enabled {
		source := poller.NewFeedSource(cfg.Feeds, newIngestor("feeds"))
		pollers = append(pollers, poller.New(source, poller.Options{
			Interval:    cfg.Feeds.Interval,
			Housekeeper: housekeeper,
		}))
	}
	if cfg.Mock.Enabled {
		source := poller.NewMockSource(newIngestor("mock"))
		pollers = append(pollers, poller.New(source, poller.Options{
			Interval:    cfg.Mock.Interval,
			Housekeeper: housekeeper,
		}))
	}

	for _, p := range pollers {
		logging.Info().Str("poller", p.Name()).Msg("Poller configured")
	}
	return pollers
}
