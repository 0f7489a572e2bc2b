// Package feed reads RSS and Atom feeds as feedback candidates.
package feed

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"feedbackdesk/internal/ingest"
)

const maxPerFeed = 200

// Source is one configured feed. Entries become candidates whose source is
// the lowercased feed name.
type Source struct {
	name   string
	url    string
	parser *gofeed.Parser
	strip  *bluemonday.Policy
	log    *slog.Logger
}

func NewSource(name, feedURL string, client *http.Client, log *slog.Logger) *Source {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	return &Source{
		name:   strings.ToLower(strings.TrimSpace(name)),
		url:    feedURL,
		parser: parser,
		strip:  bluemonday.StrictPolicy(),
		log:    log,
	}
}

func (s *Source) Name() string {
	return "feed:" + s.name
}

// Fetch returns entries published at or after since. Entries without a date
// are kept.
func (s *Source) Fetch(ctx context.Context, since time.Time) ([]ingest.Candidate, error) {
	parsed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.url, err)
	}

	var out []ingest.Candidate
	for _, item := range parsed.Items {
		if len(out) >= maxPerFeed {
			break
		}
		c, ok := s.toCandidate(item)
		if !ok {
			continue
		}
		if !c.OriginalTimestamp.IsZero() && c.OriginalTimestamp.Before(since) {
			continue
		}
		out = append(out, c)
	}
	s.log.Info("feed fetch done", "feed", s.name, "entries", len(out), "total", len(parsed.Items))
	return out, nil
}

func (s *Source) toCandidate(item *gofeed.Item) (ingest.Candidate, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	if id == "" {
		return ingest.Candidate{}, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	text := strings.TrimSpace(strings.TrimSpace(item.Title) + "\n\n" + s.plain(body))
	if text == "" {
		return ingest.Candidate{}, false
	}

	var ts time.Time
	switch {
	case item.PublishedParsed != nil:
		ts = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		ts = item.UpdatedParsed.UTC()
	}
	return ingest.Candidate{
		Source:            s.name,
		ExternalID:        id,
		RawContent:        text,
		OriginalTimestamp: ingest.Timestamp{Time: ts},
	}, true
}

func (s *Source) plain(fragment string) string {
	text := html.UnescapeString(s.strip.Sanitize(fragment))
	return strings.Join(strings.Fields(text), " ")
}
