package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/integrations/llm"
	"feedbackdesk/internal/logger"
	"feedbackdesk/internal/storage/sqlite"
	"feedbackdesk/internal/triage"
)

type stubAnalyzer struct {
	mu      sync.Mutex
	results map[string]llm.Result
	calls   int
}

func (s *stubAnalyzer) Analyze(_ context.Context, text string) (llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if r, ok := s.results[text]; ok {
		return r, nil
	}
	return llm.Result{}, errors.New("timeout")
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) NotifyHighSeverity(context.Context, domain.Alert) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

type harness struct {
	store    *sqlite.Store
	analyzer *stubAnalyzer
	notifier *countingNotifier
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ingest.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	h := &harness{
		store: store,
		analyzer: &stubAnalyzer{results: map[string]llm.Result{
			"Crashes on save": {Sentiment: domain.SentimentNegative, Severity: 5, Topics: []string{"crash"}, Summary: "App crashes."},
			"Love the app":    {Sentiment: domain.SentimentPositive, Severity: 1, Topics: []string{}, Summary: "Happy user."},
		}},
		notifier: &countingNotifier{},
	}
	svc := triage.NewService(store, h.analyzer, h.notifier, 1, logger.Discard())
	h.pipeline = NewPipeline(store, svc, logger.Discard())
	return h
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batch := []Candidate{{Source: "github", ExternalID: "42", RawContent: "Crashes on save"}}

	first, err := h.pipeline.Run(ctx, "cron", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Received)
	assert.Equal(t, 1, first.Ingested)
	assert.Equal(t, 0, first.Skipped)
	assert.Equal(t, 1, first.Analyzed)

	second, err := h.pipeline.Run(ctx, "cron", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Ingested)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Analyzed, "scored items are not re-analysed")
	assert.Equal(t, 1, h.analyzer.calls)

	items, total, err := h.store.ListItems(ctx, sqlite.ItemFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.StatusAcknowledged, items[0].Status)
	assert.Equal(t, 1, h.notifier.n)
}

func TestRunDropsInvalidAndNormalizes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.pipeline.Run(ctx, "cron", []Candidate{
		{Source: "  GitHub ", ExternalID: " 7 ", RawContent: " Love the app "},
		{Source: "", ExternalID: "8", RawContent: "no source"},
		{Source: "github", ExternalID: "", RawContent: "no id"},
		{Source: "github", ExternalID: "9", RawContent: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Received)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 1, res.Ingested)

	items, total, err := h.store.ListItems(ctx, sqlite.ItemFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "github", items[0].Source)
	assert.Equal(t, "7", items[0].ExternalID)
	assert.Equal(t, "Love the app", items[0].RawContent)
	assert.Equal(t, domain.StatusNew, items[0].Status)
}

func TestRunCountsAnalysisFailuresAndRetriesLater(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batch := []Candidate{
		{Source: "github", ExternalID: "1", RawContent: "Love the app"},
		{Source: "github", ExternalID: "2", RawContent: "Analyzer chokes on this"},
	}

	res, err := h.pipeline.Run(ctx, "cron", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 1, res.Analyzed)
	assert.Equal(t, 1, res.AnalysisFailed)

	logs, err := h.store.LatestIngestionLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogWarn, logs[0].Level)
	assert.Equal(t, "received=2, valid=2, ingested=2, analyzed=1, failed=1", logs[0].Message)
	assert.Equal(t, "cron", logs[0].Source)

	// the still-unscored item is picked up again on the next run
	res, err = h.pipeline.Run(ctx, "cron", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ingested)
	assert.Equal(t, 0, res.Analyzed)
	assert.Equal(t, 1, res.AnalysisFailed)
}

func TestRunWithEveryAnalysisFailingLogsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.pipeline.Run(ctx, "cron", []Candidate{
		{Source: "github", ExternalID: "1", RawContent: "Analyzer chokes on this"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Analyzed)
	assert.Equal(t, 1, res.AnalysisFailed)

	logs, err := h.store.LatestIngestionLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogError, logs[0].Level)
}

func TestRunWithNoItemsStillLogs(t *testing.T) {
	h := newHarness(t)
	res, err := h.pipeline.Run(context.Background(), "cron", nil)
	require.NoError(t, err)
	assert.Equal(t, "No items provided.", res.Message)

	logs, err := h.store.LatestIngestionLogs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogInfo, logs[0].Level)
}

func TestTimestampDecoding(t *testing.T) {
	var c struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
		C Timestamp `json:"c"`
		D Timestamp `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a":"2024-05-01T10:00:00Z","b":1714557600000,"c":"yesterday","d":null}`), &c)
	require.NoError(t, err)

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, c.A.Equal(want))
	assert.True(t, c.B.Equal(want))
	assert.True(t, c.C.IsZero())
	assert.True(t, c.D.IsZero())
}

func TestMissingTimestampDefaultsToRunStart(t *testing.T) {
	h := newHarness(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	h.pipeline.now = func() time.Time { return fixed }

	_, err := h.pipeline.Run(context.Background(), "cron", []Candidate{{Source: "web", ExternalID: "1", RawContent: "Love the app"}})
	require.NoError(t, err)

	items, _, err := h.store.ListItems(context.Background(), sqlite.ItemFilter{Page: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].OriginalTimestamp.Equal(fixed))
}
