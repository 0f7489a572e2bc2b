// Package github fetches repository issues as feedback candidates.
package github

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

	"golang.org/x/oauth2"

	"feedbackdesk/internal/ingest"
)

const (
	DefaultBaseURL = "https://api.github.com"
	SourceName     = "github"
	perPage        = 100
	// the search API never returns more than 1000 results
	maxPages = 10
)

type searchResponse struct {
	TotalCount int         `json:"total_count"`
	Items      []issueItem `json:"items"`
}

type issueItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CreatedAt   string    `json:"created_at"`
	PullRequest *struct{} `json:"pull_request"`
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewClient returns a search client. A non-empty token authenticates every
// request through an oauth2 static token source layered on base.
func NewClient(token, baseURL string, base *http.Client, log *slog.Logger) *Client {
	if base == nil {
		base = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := base
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		client.Timeout = base.Timeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client, log: log}
}

// IssuesSince returns issues of repo ("owner/name") created at or after
// since. Pull requests are skipped.
func (c *Client) IssuesSince(ctx context.Context, repo string, since time.Time) ([]ingest.Candidate, error) {
	query := fmt.Sprintf("repo:%s is:issue created:>=%s", repo, since.UTC().Format(time.RFC3339))
	c.log.Debug("github search", "query", query)

	var out []ingest.Candidate
	for page := 1; page <= maxPages; page++ {
		res, err := c.search(ctx, query, page)
		if err != nil {
			return nil, err
		}
		for _, item := range res.Items {
			if item.PullRequest != nil {
				continue
			}
			out = append(out, toCandidate(item))
		}
		if len(res.Items) < perPage {
			break
		}
	}
	c.log.Info("github fetch done", "repo", repo, "issues", len(out))
	return out, nil
}

func (c *Client) search(ctx context.Context, query string, page int) (searchResponse, error) {
	apiURL := fmt.Sprintf("%s/search/issues?q=%s&sort=created&order=desc&per_page=%d&page=%d",
		c.baseURL, url.QueryEscape(query), perPage, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return searchResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.http.Do(req)
	if err != nil {
		return searchResponse{}, fmt.Errorf("executing request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return searchResponse{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return searchResponse{}, fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return searchResponse{}, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

func toCandidate(item issueItem) ingest.Candidate {
	created, _ := time.Parse(time.RFC3339, item.CreatedAt)
	return ingest.Candidate{
		Source:            SourceName,
		ExternalID:        strconv.FormatInt(item.ID, 10),
		RawContent:        strings.TrimSpace(item.Title + "\n\n" + item.Body),
		OriginalTimestamp: ingest.Timestamp{Time: created},
	}
}

// RepoSource adapts one repository to the fetch runner.
type RepoSource struct {
	client *Client
	repo   string
}

func NewRepoSource(client *Client, repo string) *RepoSource {
	return &RepoSource{client: client, repo: strings.TrimSpace(repo)}
}

func (s *RepoSource) Name() string {
	return SourceName + ":" + s.repo
}

func (s *RepoSource) Fetch(ctx context.Context, since time.Time) ([]ingest.Candidate, error) {
	return s.client.IssuesSince(ctx, s.repo, since)
}
