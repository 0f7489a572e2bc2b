package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/storage/sqlite"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	topTopics       = 8
)

type submitRequest struct {
	Source     string `json:"source"`
	ExternalID string `json:"externalId"`
	RawContent string `json:"rawContent" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required,feedback_status"`
	Note   string `json:"note"`
}

type severityRequest struct {
	Severity *int `json:"severity" binding:"omitempty,min=1,max=5"`
}

type sentimentRequest struct {
	Sentiment *string `json:"sentiment" binding:"omitempty,sentiment"`
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

func (s *Server) listFeedback(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	filter := sqlite.ItemFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Source: strings.TrimSpace(c.Query("source")),
		Page:   page,
		Limit:  limit,
	}
	if st, valid := domain.ParseStatus(strings.ToUpper(c.Query("status"))); valid {
		filter.Status = st
	}

	items, total, err := s.Store.ListItems(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, apperr.Internal("could not list feedback", err))
		return
	}
	if items == nil {
		items = []domain.FeedbackItem{}
	}
	ok(c, http.StatusOK, gin.H{
		"items":      items,
		"total":      total,
		"page":       page,
		"totalPages": totalPages(total, limit),
	})
}

func (s *Server) submitFeedback(c *gin.Context) {
	var req submitRequest
	if err := bindJSON(c, &req, false); err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.Triage.Submit(c.Request.Context(), mustActor(c), req.Source, req.ExternalID, req.RawContent)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"feedbackId": item.ID, "feedback": item})
}

func (s *Server) getFeedback(c *gin.Context) {
	item, err := s.Triage.Get(c.Request.Context(), mustActor(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"feedback": item})
}

func (s *Server) getAnalysis(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.Triage.Get(c.Request.Context(), mustActor(c), id); err != nil {
		s.fail(c, err)
		return
	}
	analysis, err := s.Store.LatestAnalysis(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		s.fail(c, apperr.NotFound("analysis for feedback", id))
		return
	}
	if err != nil {
		s.fail(c, apperr.Internal("could not load analysis", err))
		return
	}
	ok(c, http.StatusOK, gin.H{"analysis": analysis})
}

func (s *Server) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := bindJSON(c, &req, false); err != nil {
		s.fail(c, err)
		return
	}
	status := domain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	res, err := s.Triage.UpdateStatus(c.Request.Context(), c.Param("id"), mustActor(c), status, req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	body := gin.H{"feedback": gin.H{"id": res.Item.ID, "status": res.Item.Status}}
	if res.Skipped {
		body["skipped"] = "Status unchanged"
	}
	if res.Action != nil {
		body["action"] = res.Action
	}
	ok(c, http.StatusOK, body)
}

// updateSeverity requires the severity key; null clears the override.
func (s *Server) updateSeverity(c *gin.Context) {
	var req severityRequest
	if err := bindJSON(c, &req, false); err != nil {
		s.fail(c, err)
		return
	}
	if !hasField(c, "severity") {
		s.fail(c, apperr.Validation("Severity must be an integer 1-5 or null"))
		return
	}
	if err := s.Triage.SetSeverity(c.Request.Context(), c.Param("id"), mustActor(c), req.Severity); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

func (s *Server) updateSentiment(c *gin.Context) {
	var req sentimentRequest
	if err := bindJSON(c, &req, false); err != nil {
		s.fail(c, err)
		return
	}
	if !hasField(c, "sentiment") {
		s.fail(c, apperr.Validation("sentiment must be POSITIVE, NEUTRAL, NEGATIVE or null"))
		return
	}
	var sentiment *domain.Sentiment
	if req.Sentiment != nil {
		v := domain.Sentiment(strings.ToUpper(strings.TrimSpace(*req.Sentiment)))
		sentiment = &v
	}
	if err := s.Triage.SetSentiment(c.Request.Context(), c.Param("id"), mustActor(c), sentiment); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

func (s *Server) topics(c *gin.Context) {
	lists, err := s.Store.AllTopics(c.Request.Context())
	if err != nil {
		s.fail(c, apperr.Internal("could not load topics", err))
		return
	}
	ok(c, http.StatusOK, gin.H{"topics": domain.RankTopics(lists, topTopics)})
}

func (s *Server) sources(c *gin.Context) {
	counts, err := s.Store.SourceCounts(c.Request.Context())
	if err != nil {
		s.fail(c, apperr.Internal("could not load sources", err))
		return
	}
	if counts == nil {
		counts = []domain.SourceCount{}
	}
	ok(c, http.StatusOK, gin.H{"sources": counts})
}

func (s *Server) overview(c *gin.Context) {
	ov, err := s.Digest.Overview(c.Request.Context(), s.SlackConfigured)
	if err != nil {
		s.fail(c, apperr.Internal("could not build overview", err))
		return
	}
	ok(c, http.StatusOK, gin.H{"overview": ov})
}
