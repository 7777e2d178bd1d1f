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
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/models"
)

const (
	payloadSourceName      = "payload"
	defaultPayloadAuthor   = "PayloadCMS"
	defaultUserCollection  = "users"
	defaultPayloadPageSize = 50
)

// errUnauthorized marks a request the CMS rejected with 401 or 403.
var errUnauthorized = errors.New("payload cms rejected the credentials")

// PayloadSource polls a Payload CMS collection, newest documents first.
type PayloadSource struct {
	ingest *Ingestor

	mu     sync.Mutex
	cfg    config.PayloadConfig
	client *http.Client
	token  string
}

// NewPayloadSource creates a source for cfg feeding ingest.
func NewPayloadSource(cfg config.PayloadConfig, ingest *Ingestor) *PayloadSource {
	return &PayloadSource{
		ingest: ingest,
		cfg:    cfg,
		client: newHTTPClient(cfg.RequestTimeout),
	}
}

// Name implements Source.
func (s *PayloadSource) Name() string { return payloadSourceName }

// IsConfigured implements Source.
func (s *PayloadSource) IsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.URL != "" && s.cfg.Collection != "" && s.cfg.Email != "" && s.cfg.Password != ""
}

// Configure replaces the connection settings and forgets the current token.
// Call it through Poller.Configure.
func (s *PayloadSource) Configure(cfg config.PayloadConfig) error {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return fmt.Errorf("invalid payload url: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.token = ""
	s.client.CloseIdleConnections()
	s.client = newHTTPClient(cfg.RequestTimeout)
	return nil
}

// Close forgets the token and releases idle connections.
func (s *PayloadSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.client.CloseIdleConnections()
	return nil
}

// PollStep logs in if needed, fetches the newest page of the collection and
// ingests it. A rejected token triggers exactly one re-login and retry.
func (s *PayloadSource) PollStep(ctx context.Context) error {
	token, err := s.ensureToken(ctx)
	if err != nil {
		return err
	}

	docs, err := s.fetch(ctx, token)
	if errors.Is(err, errUnauthorized) {
		logging.Ctx(ctx).Warn().Str("poller", payloadSourceName).Msg("Payload token rejected, logging in again")
		s.clearToken()
		if token, err = s.ensureToken(ctx); err != nil {
			return err
		}
		docs, err = s.fetch(ctx, token)
	}
	if err != nil {
		return err
	}

	cfg := s.config()
	raws := make([]models.RawDocument, 0, len(docs))
	for i := range docs {
		raws = append(raws, docs[i].toRaw(cfg))
	}
	_, err = s.ingest.Ingest(ctx, raws)
	return err
}

func (s *PayloadSource) config() config.PayloadConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *PayloadSource) clearToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *PayloadSource) ensureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	token, cfg, client := s.token, s.cfg, s.client
	s.mu.Unlock()
	if token != "" {
		return token, nil
	}

	token, err := login(ctx, client, cfg)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	logging.Ctx(ctx).Info().
		Str("poller", payloadSourceName).
		Str("email", logging.SanitizeEmail(cfg.Email)).
		Str("token", logging.SanitizeToken(token)).
		Msg("Logged in to Payload CMS")
	return token, nil
}

func payloadBase(cfg config.PayloadConfig) string {
	return strings.TrimRight(cfg.URL, "/")
}

func login(ctx context.Context, client *http.Client, cfg config.PayloadConfig) (string, error) {
	users := cfg.UserCollection
	if users == "" {
		users = defaultUserCollection
	}
	endpoint := fmt.Sprintf("%s/api/%s/login", payloadBase(cfg), url.PathEscape(users))

	body, err := json.Marshal(map[string]string{"email": cfg.Email, "password": cfg.Password})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to log in to payload cms: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", fmt.Errorf("payload cms login returned status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("payload cms login response carried no token")
	}
	return out.Token, nil
}

func (s *PayloadSource) fetch(ctx context.Context, token string) ([]payloadDoc, error) {
	s.mu.Lock()
	cfg, client := s.cfg, s.client
	s.mu.Unlock()

	limit := cfg.PageSize
	if limit <= 0 {
		limit = defaultPayloadPageSize
	}
	query := url.Values{}
	query.Set("sort", "-createdAt")
	query.Set("limit", fmt.Sprint(limit))
	endpoint := fmt.Sprintf("%s/api/%s?%s", payloadBase(cfg), url.PathEscape(cfg.Collection), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection request: %w", err)
	}
	req.Header.Set("Authorization", "JWT "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", cfg.Collection, redactURLError(err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: status %d", errUnauthorized, resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("payload cms returned status %d for %s", resp.StatusCode, cfg.Collection)
	}

	var page struct {
		Docs []payloadDoc `json:"docs"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode %s page: %w", cfg.Collection, err)
	}
	return page.Docs, nil
}

// payloadDoc is the subset of a collection document the poller reads.
type payloadDoc struct {
	ID              flexString `json:"id"`
	Title           flexString `json:"title"`
	Summary         flexString `json:"summary"`
	Description     flexString `json:"description"`
	Original        flexString `json:"original"`
	Content         flexString `json:"content"`
	PublishDate     flexString `json:"publishDate"`
	CreatedAt       flexString `json:"createdAt"`
	Author          flexString `json:"author"`
	RegionalCountry flexList   `json:"regional_country"`
	Domain          flexList   `json:"domain"`
	TopicType       flexList   `json:"topicType"`
}

func (d *payloadDoc) toRaw(cfg config.PayloadConfig) models.RawDocument {
	id := d.ID.String()
	content := firstNonEmpty(d.Original.String(), d.Content.String())
	summary := firstNonEmpty(d.Summary.String(), d.Description.String())
	if summary == "" {
		summary = truncateRunes(content, summaryRunes)
	}

	var link string
	if id != "" {
		link = fmt.Sprintf("%s/admin/collections/%s/%s", payloadBase(cfg), url.PathEscape(cfg.Collection), url.PathEscape(id))
	}

	var topics []string
	for _, t := range d.TopicType {
		topics = append(topics, strings.Split(t, ",")...)
	}

	tags := make([]models.Tag, 0, len(d.RegionalCountry)+len(d.Domain)+len(topics))
	tags = appendTags(tags, d.RegionalCountry, models.TagRed)
	tags = appendTags(tags, d.Domain, models.TagBlue)
	tags = appendTags(tags, topics, models.TagGray)

	return models.RawDocument{
		SourceID:    id,
		NativeID:    id,
		URL:         link,
		Title:       d.Title.String(),
		Summary:     summary,
		Content:     content,
		Source:      firstNonEmpty(d.Author.String(), defaultPayloadAuthor),
		PublishedAt: parseTime(firstNonEmpty(d.PublishDate.String(), d.CreatedAt.String())),
		Tags:        tags,
	}
}
