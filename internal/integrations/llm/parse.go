package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"feedbackdesk/internal/domain"
)

const (
	maxTopics        = 10
	minSummaryLength = 5
	maxSummaryLength = 500
)

type rawResult struct {
	Sentiment *string  `json:"sentiment"`
	Severity  *float64 `json:"severity"`
	Topics    []string `json:"topics"`
	Summary   *string  `json:"summary"`
}

// stripFences removes a surrounding ``` or ```json fence that some models add
// despite being asked for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseResult decodes and validates a model reply. Every violation is
// reported as ErrInvalidResponse.
func ParseResult(text string) (Result, error) {
	var raw rawResult
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if raw.Sentiment == nil {
		return Result{}, fmt.Errorf("%w: missing sentiment", ErrInvalidResponse)
	}
	sentiment, ok := domain.ParseSentiment(*raw.Sentiment)
	if !ok {
		return Result{}, fmt.Errorf("%w: sentiment %q not allowed", ErrInvalidResponse, *raw.Sentiment)
	}

	if raw.Severity == nil {
		return Result{}, fmt.Errorf("%w: missing severity", ErrInvalidResponse)
	}
	sev := *raw.Severity
	if sev != math.Trunc(sev) || sev < domain.MinSeverity || sev > domain.MaxSeverity {
		return Result{}, fmt.Errorf("%w: severity %v must be an integer 1-5", ErrInvalidResponse, sev)
	}

	if len(raw.Topics) > maxTopics {
		return Result{}, fmt.Errorf("%w: %d topics, at most %d allowed", ErrInvalidResponse, len(raw.Topics), maxTopics)
	}
	topics := make([]string, 0, len(raw.Topics))
	for _, t := range raw.Topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			topics = append(topics, t)
		}
	}

	if raw.Summary == nil {
		return Result{}, fmt.Errorf("%w: missing summary", ErrInvalidResponse)
	}
	summary := strings.TrimSpace(*raw.Summary)
	if n := utf8.RuneCountInString(summary); n < minSummaryLength || n > maxSummaryLength {
		return Result{}, fmt.Errorf("%w: summary length %d outside %d-%d", ErrInvalidResponse, n, minSummaryLength, maxSummaryLength)
	}

	return Result{
		Sentiment: sentiment,
		Severity:  int(sev),
		Topics:    topics,
		Summary:   summary,
	}, nil
}
