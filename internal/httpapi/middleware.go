package httpapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/domain"
)

const (
	requestIDKey     = "request_id"
	actorKey         = "actor"
	cronSecretHeader = "x-cron-secret"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		}
		if actor, ok := actorFrom(c); ok {
			args = append(args, "user_id", actor.UserID)
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Error("http request", args...)
		case status >= 400:
			log.Warn("http request", args...)
		default:
			log.Debug("http request", args...)
		}
	}
}

func recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", recovered,
			"stack", string(debug.Stack()),
		)
		c.AbortWithStatusJSON(500, errorResponse{
			Error: errorInfo{Type: apperr.TypeInternal, Message: "Internal server error occurred"},
		})
	})
}

// requireAuth accepts "Authorization: Bearer <jwt>" and stores the actor.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			s.fail(c, apperr.Unauthorized("missing authorization token"))
			return
		}
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			s.fail(c, apperr.Unauthorized("invalid authorization header format"))
			return
		}
		claims, err := s.Tokens.Verify(token)
		if err != nil {
			s.log.Debug("token rejected", "error", err)
			s.fail(c, apperr.Unauthorized("invalid or expired token"))
			return
		}
		// The role is read from the store so promotions and demotions apply
		// before the token expires.
		user, err := s.Store.GetUserByID(c.Request.Context(), claims.Subject)
		if errors.Is(err, domain.ErrNotFound) {
			s.fail(c, apperr.Unauthorized("account no longer exists"))
			return
		}
		if err != nil {
			s.fail(c, apperr.Internal("could not load account", err))
			return
		}
		actor := claims.Actor()
		actor.Email, actor.Role = user.Email, user.Role
		c.Set(actorKey, actor)
		c.Next()
	}
}

func (s *Server) requirePermission(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			s.fail(c, apperr.Unauthorized(""))
			return
		}
		allowed, err := s.Enforcer.Allowed(actor.Role, obj, act)
		if err != nil {
			s.fail(c, apperr.Internal("permission check failed", err))
			return
		}
		if !allowed {
			s.log.Warn("permission denied", "user_id", actor.UserID, "role", actor.Role, "object", obj, "action", act)
			s.fail(c, apperr.Forbidden("insufficient permissions"))
			return
		}
		c.Next()
	}
}

// requireCronSecret rejects every request when no secret is configured.
func (s *Server) requireCronSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(cronSecretHeader)
		if s.CronSecret == "" || got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(s.CronSecret)) != 1 {
			s.fail(c, apperr.Unauthorized(""))
			return
		}
		c.Next()
	}
}

// rateLimit counts requests per client IP under scope. Limiter errors let the
// request through.
func (s *Server) rateLimit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Limiter == nil {
			c.Next()
			return
		}
		allowed, err := s.Limiter.Allow(c.Request.Context(), limitKey(scope, c))
		if err != nil {
			s.log.Warn("rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if !allowed {
			s.fail(c, apperr.RateLimited())
			return
		}
		c.Next()
	}
}

// resetRateLimit clears the caller's counter for scope.
func (s *Server) resetRateLimit(c *gin.Context, scope string) {
	if s.Limiter == nil {
		return
	}
	if err := s.Limiter.Reset(c.Request.Context(), limitKey(scope, c)); err != nil {
		s.log.Warn("rate limit reset failed", "scope", scope, "error", err)
	}
}

func limitKey(scope string, c *gin.Context) string {
	return scope + ":" + c.ClientIP()
}

func actorFrom(c *gin.Context) (domain.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

// mustActor is used behind requireAuth, where the actor is always set.
func mustActor(c *gin.Context) domain.Actor {
	actor, _ := actorFrom(c)
	return actor
}
