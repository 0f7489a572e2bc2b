package ingest

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Candidate is one incoming feedback item before normalisation.
type Candidate struct {
	Source            string    `json:"source"`
	ExternalID        string    `json:"externalId"`
	RawContent        string    `json:"rawContent"`
	OriginalTimestamp Timestamp `json:"originalTimestamp"`
}

// Timestamp accepts an RFC 3339 string, a date, or Unix milliseconds.
// Anything else decodes to the zero time, which normalisation replaces with
// the ingestion time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		t.Time = parseTimestamp(s)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err == nil && ms > 0 {
		t.Time = time.UnixMilli(int64(ms)).UTC()
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
