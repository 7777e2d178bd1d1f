// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/models"
)

const (
	feedSourceName         = "feeds"
	defaultMaxItemsPerFeed = 20

	// minExtractedRunes is the shortest extraction accepted as article text.
	minExtractedRunes = 100
)

// FeedSource polls RSS and Atom feeds. Entries that carry no body can have
// their linked page fetched and reduced to readable text.
type FeedSource struct {
	ingest *Ingestor
	cfg    config.FeedsConfig
	client *http.Client
	parser *gofeed.Parser
}

// NewFeedSource creates a source for the feeds in cfg.
func NewFeedSource(cfg config.FeedsConfig, ingest *Ingestor) *FeedSource {
	client := newHTTPClient(cfg.RequestTimeout)
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &FeedSource{
		ingest: ingest,
		cfg:    cfg,
		client: client,
		parser: parser,
	}
}

// Name implements Source.
func (s *FeedSource) Name() string { return feedSourceName }

// IsConfigured implements Source.
func (s *FeedSource) IsConfigured() bool { return len(s.cfg.URLs) > 0 }

// Close releases idle connections.
func (s *FeedSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// PollStep parses every feed and ingests the entries together. A broken feed
// does not prevent the others from being ingested; its error is returned
// after the rest of the batch is processed.
func (s *FeedSource) PollStep(ctx context.Context) error {
	var raws []models.RawDocument
	var errs []error
	for _, feedURL := range s.cfg.URLs {
		docs, err := s.parseFeed(ctx, feedURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		raws = append(raws, docs...)
	}

	if len(raws) > 0 {
		if _, err := s.ingest.Ingest(ctx, raws); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FeedSource) parseFeed(ctx context.Context, feedURL string) ([]models.RawDocument, error) {
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", logging.SanitizeURL(feedURL), redactURLError(err))
	}

	limit := s.cfg.MaxItemsPerFeed
	if limit <= 0 {
		limit = defaultMaxItemsPerFeed
	}
	source := firstNonEmpty(feed.Title, hostOf(feedURL))

	docs := make([]models.RawDocument, 0, min(limit, len(feed.Items)))
	for _, item := range feed.Items {
		if len(docs) >= limit {
			break
		}
		raw, ok := feedItemToRaw(item, source)
		if !ok {
			continue
		}
		if raw.Content == "" && s.cfg.FetchFullText && !s.ingest.Seen(raw) {
			text, err := s.extract(ctx, raw.URL)
			if err != nil {
				logging.Ctx(ctx).Debug().Err(err).Str("poller", feedSourceName).Str("url", logging.SanitizeURL(raw.URL)).Msg("Full text extraction failed")
			}
			raw.Content = text
		}
		if raw.Summary == "" {
			raw.Summary = truncateRunes(raw.Content, summaryRunes)
		}
		docs = append(docs, raw)
	}
	return docs, nil
}

func feedItemToRaw(item *gofeed.Item, source string) (models.RawDocument, bool) {
	link := firstNonEmpty(item.Link)
	key := firstNonEmpty(item.GUID, link)
	title := firstNonEmpty(item.Title)
	if key == "" || title == "" {
		return models.RawDocument{}, false
	}

	raw := models.RawDocument{
		SourceID: key,
		URL:      link,
		Title:    title,
		Summary:  truncateRunes(htmlToText(item.Description), summaryRunes*2),
		Content:  htmlToText(item.Content),
		Source:   source,
		Tags:     appendTags(nil, item.Categories, models.TagGray),
	}
	if item.Author != nil && item.Author.Name != "" {
		raw.Source = item.Author.Name + " / " + source
	}
	if item.PublishedParsed != nil {
		raw.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.PublishedAt = *item.UpdatedParsed
	}
	return raw, true
}

// extract fetches link and returns its readable text, or "" when the page has
// too little text to be an article.
func (s *FeedSource) extract(ctx context.Context, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid article url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create article request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article: %w", redactURLError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", fmt.Errorf("article returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read article: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("failed to extract article: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len([]rune(text)) < minExtractedRunes {
		return "", nil
	}
	return text, nil
}

// htmlToText flattens an HTML fragment to whitespace-normalised text.
func htmlToText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
