package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

func ParseSentiment(s string) (Sentiment, bool) {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(s), true
	}
	return "", false
}

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleMember:
		return Role(s), true
	}
	return "", false
}

// HighSeverity is the lowest severity that triggers auto-acknowledge and an alert.
const HighSeverity = 4

const (
	MinSeverity = 1
	MaxSeverity = 5
)

func IsHighSeverity(severity int) bool {
	return severity >= HighSeverity
}

// FeedbackItem is one unit of feedback, unique by (Source, ExternalID).
// Sentiment, Severity and Topics are a snapshot of the latest analysis;
// an empty Sentiment or a zero Severity means unscored. An empty UserID marks
// a system-ingested item.
type FeedbackItem struct {
	ID                string    `json:"id"`
	Source            string    `json:"source"`
	ExternalID        string    `json:"externalId"`
	RawContent        string    `json:"rawContent"`
	OriginalTimestamp time.Time `json:"originalTimestamp"`
	CreatedAt         time.Time `json:"createdAt"`
	Status            Status    `json:"status"`
	Sentiment         Sentiment `json:"sentiment,omitempty"`
	Severity          int       `json:"severity,omitempty"`
	Topics            []string  `json:"topics"`
	UserID            string    `json:"userId,omitempty"`
}

func (i FeedbackItem) Unscored() bool {
	return i.Sentiment == "" || i.Severity == 0
}

func (i FeedbackItem) SystemOwned() bool {
	return i.UserID == ""
}

type FeedbackAnalysis struct {
	ID             string    `json:"id"`
	FeedbackItemID string    `json:"feedbackItemId"`
	UserID         string    `json:"userId,omitempty"`
	Sentiment      Sentiment `json:"sentiment"`
	SeverityScore  int       `json:"severityScore"`
	Summary        string    `json:"summary"`
	Topics         []string  `json:"topics"`
	CreatedAt      time.Time `json:"createdAt"`
}

type TriageAction struct {
	ID             string    `json:"id"`
	FeedbackItemID string    `json:"feedbackItemId"`
	UserID         string    `json:"userId"`
	FromStatus     Status    `json:"fromStatus"`
	ToStatus       Status    `json:"toStatus"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

type IngestionLog struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	RunID     string         `json:"runId"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"createdAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Alert is the payload of a high-severity notification.
type Alert struct {
	FeedbackID string
	Source     string
	Severity   int
	Summary    string
}

// ItemKey is the natural key of a feedback item.
type ItemKey struct {
	Source     string
	ExternalID string
}

func (i FeedbackItem) Key() ItemKey {
	return ItemKey{Source: i.Source, ExternalID: i.ExternalID}
}

// AnalysisRecord is an analysis joined with the current state of its item.
type AnalysisRecord struct {
	FeedbackAnalysis
	ItemStatus Status
	ItemSource string
}

// StatusChange is a triage action resolved to the actor's email and item source.
type StatusChange struct {
	TriageAction
	ActorEmail string
	ItemSource string
}
