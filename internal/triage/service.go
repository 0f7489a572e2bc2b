// Package triage applies status changes and analysis results to feedback
// items and emits high-severity alerts.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/authz"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/integrations/llm"
)

const (
	DefaultBatchLimit = 10
	MaxBatchLimit     = 50
	ManualSource      = "manual"
)

type Store interface {
	CreateItem(ctx context.Context, item domain.FeedbackItem) (domain.FeedbackItem, error)
	GetItem(ctx context.Context, id string) (domain.FeedbackItem, error)
	ListUnscored(ctx context.Context, limit int) ([]domain.FeedbackItem, error)
	ChangeStatus(ctx context.Context, action domain.TriageAction, allow func(from domain.Status) error) (domain.TriageAction, bool, error)
	SaveAnalysis(ctx context.Context, a domain.FeedbackAnalysis) (domain.FeedbackAnalysis, bool, error)
	SetSeverity(ctx context.Context, id string, severity int) error
	SetSentiment(ctx context.Context, id string, sentiment domain.Sentiment) error
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (llm.Result, error)
}

type Notifier interface {
	NotifyHighSeverity(ctx context.Context, alert domain.Alert)
}

type Service struct {
	store       Store
	analyzer    Analyzer
	notifier    Notifier
	concurrency int
	log         *slog.Logger
}

func NewService(store Store, analyzer Analyzer, notifier Notifier, concurrency int, log *slog.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		store:       store,
		analyzer:    analyzer,
		notifier:    notifier,
		concurrency: concurrency,
		log:         log,
	}
}

// Submit stores a user-attributed item. An empty source becomes "manual" and
// an empty external id is generated.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, source, externalID, rawContent string) (domain.FeedbackItem, error) {
	rawContent = strings.TrimSpace(rawContent)
	if rawContent == "" {
		return domain.FeedbackItem{}, apperr.Validation("rawContent is required")
	}
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = ManualSource
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		externalID = "manual-" + uuid.NewString()
	}

	item, err := s.store.CreateItem(ctx, domain.FeedbackItem{
		Source:     source,
		ExternalID: externalID,
		RawContent: rawContent,
		Status:     domain.StatusNew,
		UserID:     actor.UserID,
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return domain.FeedbackItem{}, apperr.Conflict("Feedback already ingested for this source/externalId", apperr.CodeDuplicateFeedback)
	}
	if err != nil {
		return domain.FeedbackItem{}, apperr.Internal("could not create feedback", err)
	}
	s.log.Info("feedback submitted", "item_id", item.ID, "source", item.Source, "user_id", actor.UserID)
	return item, nil
}

// Get returns an item the actor may view.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (domain.FeedbackItem, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return domain.FeedbackItem{}, err
	}
	if !authz.CanView(item, actor) {
		return domain.FeedbackItem{}, apperr.Forbidden("cannot view this feedback")
	}
	return item, nil
}

type StatusResult struct {
	Item    domain.FeedbackItem
	Action  *domain.TriageAction
	Skipped bool
}

// UpdateStatus moves an item to status on behalf of actor. Requesting the
// current status is a no-op and writes no audit row.
func (s *Service) UpdateStatus(ctx context.Context, itemID string, actor domain.Actor, status domain.Status, note string) (StatusResult, error) {
	if !status.Valid() {
		return StatusResult{}, apperr.Validation("Invalid or missing status")
	}
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return StatusResult{}, err
	}
	if !authz.CanModify(item, actor) {
		return StatusResult{}, apperr.Forbidden("cannot update this feedback")
	}
	if item.Status == status {
		return StatusResult{Item: item, Skipped: true}, nil
	}
	allow := func(from domain.Status) error {
		if !authz.CanTransition(from, status, actor) {
			return apperr.Validation(
				fmt.Sprintf("Transition %s -> %s is not allowed", from, status),
			).WithCode(apperr.CodeInvalidTransition)
		}
		return nil
	}
	if err := allow(item.Status); err != nil {
		return StatusResult{}, err
	}

	// Checked again against the stored status, which another writer may have
	// changed since item was loaded.
	action, changed, err := s.store.ChangeStatus(ctx, domain.TriageAction{
		FeedbackItemID: item.ID,
		UserID:         actor.UserID,
		FromStatus:     item.Status,
		ToStatus:       status,
		Note:           strings.TrimSpace(note),
	}, allow)
	if _, isApp := apperr.As(err); isApp {
		return StatusResult{}, err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return StatusResult{}, apperr.NotFound("feedback", item.ID)
	}
	if err != nil {
		return StatusResult{}, apperr.Internal("could not update status", err)
	}
	item.Status = status
	if !changed {
		return StatusResult{Item: item, Skipped: true}, nil
	}
	s.log.Info("status changed",
		"item_id", item.ID,
		"from", action.FromStatus,
		"to", action.ToStatus,
		"user_id", actor.UserID,
	)
	return StatusResult{Item: item, Action: &action}, nil
}

// SetSeverity overrides an item's severity; nil clears it.
func (s *Service) SetSeverity(ctx context.Context, itemID string, actor domain.Actor, severity *int) error {
	value := 0
	if severity != nil {
		if *severity < domain.MinSeverity || *severity > domain.MaxSeverity {
			return apperr.Validation("Severity must be an integer 1-5 or null")
		}
		value = *severity
	}
	return s.override(ctx, itemID, actor, func() error {
		return s.store.SetSeverity(ctx, itemID, value)
	})
}

// SetSentiment overrides an item's sentiment; nil clears it.
func (s *Service) SetSentiment(ctx context.Context, itemID string, actor domain.Actor, sentiment *domain.Sentiment) error {
	var value domain.Sentiment
	if sentiment != nil {
		v, ok := domain.ParseSentiment(string(*sentiment))
		if !ok {
			return apperr.Validation("Sentiment must be POSITIVE, NEUTRAL, NEGATIVE or null")
		}
		value = v
	}
	return s.override(ctx, itemID, actor, func() error {
		return s.store.SetSentiment(ctx, itemID, value)
	})
}

func (s *Service) override(ctx context.Context, itemID string, actor domain.Actor, write func() error) error {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !authz.CanModify(item, actor) {
		return apperr.Forbidden("cannot update this feedback")
	}
	if err := write(); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("feedback", itemID)
		}
		return apperr.Internal("could not update feedback", err)
	}
	return nil
}

func (s *Service) loadItem(ctx context.Context, id string) (domain.FeedbackItem, error) {
	item, err := s.store.GetItem(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.FeedbackItem{}, apperr.NotFound("feedback", id)
	}
	if err != nil {
		return domain.FeedbackItem{}, apperr.Internal("could not load feedback", err)
	}
	return item, nil
}
