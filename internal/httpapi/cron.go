package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/digest"
	"feedbackdesk/internal/ingest"
)

type ingestRequest struct {
	Items []ingest.Candidate `json:"items" binding:"required"`
}

type digestRequest struct {
	Hours float64 `json:"hours"`
}

func (s *Server) cronIngest(c *gin.Context) {
	var req ingestRequest
	if err := bindJSON(c, &req, false); err != nil {
		if appErr, isApp := apperr.As(err); isApp && appErr.Type == apperr.TypeValidation {
			s.fail(c, apperr.Validation("items must be an array").WithDetails(appErr.Message))
			return
		}
		s.fail(c, err)
		return
	}
	res, err := s.Ingest.Run(c.Request.Context(), "cron", req.Items)
	if err != nil {
		s.fail(c, err)
		return
	}
	body := gin.H{
		"received":       res.Received,
		"valid":          res.Valid,
		"ingested":       res.Ingested,
		"skipped":        res.Skipped,
		"analyzed":       res.Analyzed,
		"analysisFailed": res.AnalysisFailed,
		"startedAt":      res.StartedAt,
		"finishedAt":     res.FinishedAt,
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	ok(c, http.StatusOK, body)
}

// cronDigest builds the trailing-window digest and pushes it to every
// configured channel. Delivery failures do not fail the request.
func (s *Server) cronDigest(c *gin.Context) {
	var req digestRequest
	if err := bindJSON(c, &req, true); err != nil {
		s.fail(c, err)
		return
	}
	hours := digest.ClampHours(req.Hours, s.DigestHours)
	window := s.Digest.Trailing(hours)
	report, err := s.Digest.Build(c.Request.Context(), window.From, window.To)
	if err != nil {
		s.fail(c, apperr.Internal("could not build digest", err))
		return
	}
	delivery := s.Deliverer.Deliver(c.Request.Context(), report)
	ok(c, http.StatusOK, gin.H{
		"hours":    hours,
		"digest":   report,
		"delivery": delivery,
	})
}

func (s *Server) digestPreview(c *gin.Context) {
	preview, err := s.Digest.Preview(c.Request.Context())
	if err != nil {
		s.fail(c, apperr.Internal("could not build digest preview", err))
		return
	}
	ok(c, http.StatusOK, gin.H{"preview": preview})
}
