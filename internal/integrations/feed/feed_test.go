package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbackdesk/internal/logger"
)

const rss = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Reviews</title>
<item><guid>review-1</guid><title>Great app</title>
<description>&lt;p&gt;Love the &lt;b&gt;new&lt;/b&gt; sync &amp;amp; export&lt;/p&gt;</description>
<pubDate>Mon, 06 Jan 2025 10:00:00 GMT</pubDate></item>
<item><link>https://example.com/r/2</link><title>Crashes</title>
<description>Crashes on launch</description>
<pubDate>Sun, 01 Dec 2024 10:00:00 GMT</pubDate></item>
<item><title>No id</title><description>dropped</description></item>
</channel></rss>`

func TestFetchMapsEntriesAndSkipsOld(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rss)
	}))
	defer srv.Close()

	src := NewSource(" AppStore ", srv.URL, srv.Client(), logger.Discard())
	assert.Equal(t, "feed:appstore", src.Name())

	got, err := src.Fetch(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "appstore", got[0].Source)
	assert.Equal(t, "review-1", got[0].ExternalID)
	assert.Equal(t, "Great app\n\nLove the new sync & export", got[0].RawContent)
	assert.True(t, got[0].OriginalTimestamp.Equal(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)))
}

func TestFetchFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSource("x", srv.URL, srv.Client(), logger.Discard()).Fetch(context.Background(), time.Time{})
	assert.Error(t, err)
}
