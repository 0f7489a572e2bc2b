package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"feedbackdesk/internal/apperr"
)

type errorInfo struct {
	Type    apperr.Type `json:"type"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details string      `json:"details,omitempty"`
}

type errorResponse struct {
	OK    bool      `json:"ok"`
	Error errorInfo `json:"error"`
}

// ok writes body with "ok": true added.
func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["ok"] = true
	c.JSON(status, body)
}

// fail renders err. Application errors keep their type, message and code;
// anything else becomes a generic 500 and is logged.
func (s *Server) fail(c *gin.Context, err error) {
	appErr, isApp := apperr.As(err)
	if !isApp {
		appErr = apperr.Internal("Internal server error occurred", err)
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"item_id", c.Param("id"),
			"request_id", c.GetString(requestIDKey),
			"error", err,
		)
	}
	msg := appErr.Message
	if appErr.Type == apperr.TypeInternal {
		msg = "Internal server error occurred"
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error: errorInfo{
			Type:    appErr.Type,
			Message: msg,
			Code:    appErr.Code,
			Details: appErr.Details,
		},
	})
}

func totalPages(total, limit int) int {
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}
