// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/models"
)

const (
	articleSourceName    = "article"
	defaultArticleAuthor = "CMS"

	// maxArticlesPerStep bounds how far one step walks ahead so a large
	// backlog is ingested in several batches.
	maxArticlesPerStep = 20
)

// ArticleSource walks an article API by sequential id. A 200 response is
// ingested and the cursor advances; a 404 means the next article has not been
// published yet and the step ends.
type ArticleSource struct {
	ingest *Ingestor

	mu     sync.Mutex
	cfg    config.ArticleConfig
	client *http.Client
	nextID int
}

// NewArticleSource creates a source starting at cfg.StartID.
func NewArticleSource(cfg config.ArticleConfig, ingest *Ingestor) *ArticleSource {
	start := cfg.StartID
	if start <= 0 {
		start = 1
	}
	return &ArticleSource{
		ingest: ingest,
		cfg:    cfg,
		client: newHTTPClient(cfg.RequestTimeout),
		nextID: start,
	}
}

// Name implements Source.
func (s *ArticleSource) Name() string { return articleSourceName }

// IsConfigured implements Source.
func (s *ArticleSource) IsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.BaseURL != ""
}

// Close releases idle connections. The cursor is kept so a restart resumes.
func (s *ArticleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.CloseIdleConnections()
	return nil
}

// PollStep fetches consecutive articles until one is missing, then ingests
// what it found. The cursor only advances past articles that were ingested.
func (s *ArticleSource) PollStep(ctx context.Context) error {
	s.mu.Lock()
	cfg, client, id := s.cfg, s.client, s.nextID
	s.mu.Unlock()

	base := strings.TrimRight(cfg.BaseURL, "/")
	var raws []models.RawDocument
	var fetchErr error
	for i := 0; i < maxArticlesPerStep; i++ {
		doc, found, err := fetchArticle(ctx, client, base, id+i)
		if err != nil {
			fetchErr = err
			break
		}
		if !found {
			break
		}
		raws = append(raws, doc.toRaw(base, id+i))
	}

	if len(raws) == 0 {
		if fetchErr == nil {
			logging.Ctx(ctx).Debug().Str("poller", articleSourceName).Int("article_id", id).Msg("No new article")
		}
		return fetchErr
	}

	if _, err := s.ingest.Ingest(ctx, raws); err != nil {
		return err
	}

	s.mu.Lock()
	s.nextID = id + len(raws)
	s.mu.Unlock()
	return fetchErr
}

func fetchArticle(ctx context.Context, client *http.Client, base string, id int) (*articleDoc, bool, error) {
	endpoint := fmt.Sprintf("%s/api/articles/%d?depth=2&draft=false", base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create article request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch article %d: %w", id, redactURLError(err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, false, nil
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, false, fmt.Errorf("article api returned status %d for article %d", resp.StatusCode, id)
	}

	var doc articleDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode article %d: %w", id, err)
	}
	return &doc, true, nil
}

type articleDoc struct {
	Title           flexString `json:"title"`
	Summary         flexString `json:"summary"`
	Original        flexString `json:"original"`
	Content         flexString `json:"content"`
	Author          flexString `json:"author"`
	URL             flexString `json:"url"`
	PublishDate     flexString `json:"publishDate"`
	CreatedAt       flexString `json:"createdAt"`
	RegionalCountry flexList   `json:"regional_country"`
	Domain          flexList   `json:"domain"`
}

func (d *articleDoc) toRaw(base string, id int) models.RawDocument {
	original := d.Original.String()
	content := firstNonEmpty(original, d.Content.String())
	summary := firstNonEmpty(d.Summary.String(), truncateRunes(original, summaryRunes), truncateRunes(d.Content.String(), summaryRunes))

	link := d.URL.String()
	if link == "" {
		link = base + "/api/articles/" + strconv.Itoa(id)
	}

	tags := make([]models.Tag, 0, len(d.RegionalCountry)+len(d.Domain))
	tags = appendTags(tags, d.RegionalCountry, models.TagRed)
	tags = appendTags(tags, d.Domain, models.TagBlue)

	return models.RawDocument{
		SourceID:    "article:" + strconv.Itoa(id),
		URL:         link,
		Title:       firstNonEmpty(d.Title.String(), fmt.Sprintf("Article %d", id)),
		Summary:     summary,
		Content:     content,
		Source:      firstNonEmpty(d.Author.String(), defaultArticleAuthor),
		PublishedAt: parseTime(firstNonEmpty(d.PublishDate.String(), d.CreatedAt.String())),
		Tags:        tags,
	}
}
