package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/triage"
)

type analyzeRequest struct {
	FeedbackID     string `json:"feedbackId"`
	FeedbackItemID string `json:"feedbackItemId"`
}

type batchRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := bindJSON(c, &req, true); err != nil {
		s.fail(c, err)
		return
	}
	id := strings.TrimSpace(req.FeedbackID)
	if id == "" {
		id = strings.TrimSpace(req.FeedbackItemID)
	}
	if id == "" {
		s.fail(c, apperr.Validation("feedbackId is required"))
		return
	}
	analysis, err := s.Triage.Analyze(c.Request.Context(), mustActor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"analysis": analysis})
}

func (s *Server) runBatch(c *gin.Context) ([]triage.Outcome, bool) {
	var req batchRequest
	if err := bindJSON(c, &req, true); err != nil {
		s.fail(c, err)
		return nil, false
	}
	outcomes, err := s.Triage.AnalyzeUnscored(c.Request.Context(), req.Limit)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return outcomes, true
}

// analyzeBatch reports counts and the failed items only.
func (s *Server) analyzeBatch(c *gin.Context) {
	outcomes, done := s.runBatch(c)
	if !done {
		return
	}
	ok(c, http.StatusOK, gin.H{
		"processed": triage.Succeeded(outcomes),
		"failed":    triage.Failed(outcomes),
		"total":     len(outcomes),
	})
}

// analyzeUnscored reports every item in the order it was analysed.
func (s *Server) analyzeUnscored(c *gin.Context) {
	outcomes, done := s.runBatch(c)
	if !done {
		return
	}
	ok(c, http.StatusOK, gin.H{
		"processed": triage.Succeeded(outcomes),
		"failed":    len(outcomes) - triage.Succeeded(outcomes),
		"items":     outcomes,
	})
}
