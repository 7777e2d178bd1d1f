// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/models"
)

const (
	userAgent = "intelstream/1.0 (+https://github.com/tomtom215/intelstream)"

	// summaryRunes is the length of a summary derived from content.
	summaryRunes = 200

	// maxResponseBytes caps upstream response bodies.
	maxResponseBytes = 16 << 20
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// redactURLError strips credentials and query strings from the URL that
// net/http embeds in transport errors, so step errors can be logged as is.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = logging.SanitizeURL(uerr.URL)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime parses the timestamp formats CMS APIs commonly return. The zero
// time means "unknown"; the item then takes its ingestion time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func appendTags(tags []models.Tag, labels []string, color models.TagColor) []models.Tag {
	for _, label := range labels {
		if label = strings.TrimSpace(label); label != "" {
			tags = append(tags, models.Tag{Label: label, Color: color})
		}
	}
	return tags
}

// flexString decodes a JSON value that upstreams send as a string, a number
// or a related document with a name. Anything else decodes to "".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	label, err := decodeLabel(b)
	if err != nil {
		return err
	}
	*s = flexString(label)
	return nil
}

func (s flexString) String() string {
	return strings.TrimSpace(string(s))
}

// flexList decodes either a single label or an array of labels.
type flexList []string

func (l *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		label, err := decodeLabel(b)
		if err != nil {
			return err
		}
		if label == "" {
			*l = nil
		} else {
			*l = flexList{label}
		}
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return err
	}
	out := make(flexList, 0, len(elems))
	for _, elem := range elems {
		label, err := decodeLabel(elem)
		if err != nil {
			return err
		}
		if label != "" {
			out = append(out, label)
		}
	}
	*l = out
	return nil
}

func decodeLabel(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return "", nil
	}
	switch c := b[0]; {
	case c == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return "", err
		}
		return strings.TrimSpace(v), nil
	case c == '-' || (c >= '0' && c <= '9'):
		return string(b), nil
	case c == '{':
		var named struct {
			Name  json.RawMessage `json:"name"`
			Title json.RawMessage `json:"title"`
			Label json.RawMessage `json:"label"`
		}
		if err := json.Unmarshal(b, &named); err != nil {
			return "", err
		}
		for _, field := range []json.RawMessage{named.Name, named.Title, named.Label} {
			if len(field) > 0 && field[0] == '"' {
				var v string
				if err := json.Unmarshal(field, &v); err == nil && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v), nil
				}
			}
		}
		return "", nil
	default:
		return "", nil
	}
}
