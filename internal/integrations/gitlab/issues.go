// Package gitlab fetches group issues as feedback candidates.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedbackdesk/internal/ingest"
)

const (
	DefaultBaseURL = "https://gitlab.com"
	Source         = "gitlab"

	perPage  = 100
	maxPages = 10
)

type issueResponse struct {
	ID           int64     `json:"id"`
	IID          int64     `json:"iid"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	WebURL       string    `json:"web_url"`
	Confidential bool      `json:"confidential"`
}

// GroupSource reads the issues of one GitLab group, optionally only those
// carrying a label.
type GroupSource struct {
	baseURL string
	token   string
	group   string
	label   string
	client  *http.Client
	log     *slog.Logger
}

func NewGroupSource(baseURL, token, group, label string, client *http.Client, log *slog.Logger) *GroupSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GroupSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		group:   strings.TrimSpace(group),
		label:   strings.TrimSpace(label),
		client:  client,
		log:     log,
	}
}

func (s *GroupSource) Name() string {
	return "gitlab:" + s.group
}

// Fetch returns issues created at or after since. Confidential issues are
// skipped.
func (s *GroupSource) Fetch(ctx context.Context, since time.Time) ([]ingest.Candidate, error) {
	var out []ingest.Candidate
	s.log.Debug("gitlab fetch start", "group", s.group, "since", since.UTC().Format(time.RFC3339))

	for page := 1; page <= maxPages; page++ {
		issues, err := s.page(ctx, since, page)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			if issue.Confidential || issue.CreatedAt.Before(since) {
				continue
			}
			out = append(out, toCandidate(issue))
		}
		if len(issues) < perPage {
			break
		}
	}
	s.log.Debug("gitlab fetch done", "group", s.group, "total", len(out))
	return out, nil
}

func (s *GroupSource) page(ctx context.Context, since time.Time, page int) ([]issueResponse, error) {
	q := url.Values{}
	q.Set("scope", "all")
	q.Set("created_after", since.UTC().Format(time.RFC3339))
	q.Set("order_by", "created_at")
	q.Set("sort", "asc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	if s.label != "" {
		q.Set("labels", s.label)
	}
	apiURL := fmt.Sprintf("%s/api/v4/groups/%s/issues?%s", s.baseURL, url.PathEscape(s.group), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("PRIVATE-TOKEN", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching gitlab issues: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitLab API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var issues []issueResponse
	if err := json.Unmarshal(body, &issues); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return issues, nil
}

func toCandidate(issue issueResponse) ingest.Candidate {
	content := strings.TrimSpace(issue.Title)
	if desc := strings.TrimSpace(issue.Description); desc != "" {
		content += "\n\n" + desc
	}
	return ingest.Candidate{
		Source:            Source,
		ExternalID:        strconv.FormatInt(issue.ID, 10),
		RawContent:        content,
		OriginalTimestamp: ingest.Timestamp{Time: issue.CreatedAt.UTC()},
	}
}
