// Package httpapi exposes feedback triage over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"feedbackdesk/internal/auth"
	"feedbackdesk/internal/authz"
	"feedbackdesk/internal/digest"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/ingest"
	"feedbackdesk/internal/integrations/llm"
	"feedbackdesk/internal/storage/sqlite"
	"feedbackdesk/internal/triage"
)

// Store is the read side the handlers query directly.
type Store interface {
	Ping(ctx context.Context) error
	ListItems(ctx context.Context, f sqlite.ItemFilter) ([]domain.FeedbackItem, int, error)
	LatestAnalysis(ctx context.Context, itemID string) (domain.FeedbackAnalysis, error)
	AllTopics(ctx context.Context) ([][]string, error)
	SourceCounts(ctx context.Context) ([]domain.SourceCount, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type LLMInfo interface {
	Info() llm.Info
}

type Ingester interface {
	Run(ctx context.Context, origin string, candidates []ingest.Candidate) (ingest.Result, error)
}

type Deps struct {
	Store     Store
	Triage    *triage.Service
	Ingest    Ingester
	Digest    *digest.Builder
	Deliverer *digest.Deliverer
	Accounts  *auth.Accounts
	Tokens    *auth.JWTService
	Enforcer  *authz.Enforcer
	// Limiter may be nil, which disables rate limiting.
	Limiter RateLimiter
	LLM     LLMInfo

	CronSecret      string
	DigestHours     int
	SlackConfigured bool
	Logger          *slog.Logger
}

type Server struct {
	Deps
	log *slog.Logger
}

func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.DigestHours == 0 {
		deps.DigestHours = digest.DefaultHours
	}
	return &Server{Deps: deps, log: log}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(requestID(), requestLogger(s.log), recovery(s.log))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": gin.H{"type": "not_found", "message": "route not found"}})
	})

	r.GET("/healthz", s.healthz)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.rateLimit("register"), s.register)
	authGroup.POST("/login", s.rateLimit("login"), s.login)
	authGroup.POST("/change-password", s.requireAuth(), s.changePassword)

	cron := api.Group("/cron", s.rateLimit("cron"), s.requireCronSecret())
	cron.POST("/ingest", s.cronIngest)
	cron.POST("/digest", s.cronDigest)

	authed := api.Group("", s.requireAuth())

	read := s.requirePermission(authz.ObjFeedback, authz.ActRead)
	write := s.requirePermission(authz.ObjFeedback, authz.ActWrite)

	feedback := authed.Group("/feedback")
	feedback.GET("", read, s.listFeedback)
	feedback.POST("", write, s.submitFeedback)
	feedback.GET("/:id", read, s.getFeedback)
	feedback.GET("/:id/analysis", read, s.getAnalysis)
	feedback.PATCH("/:id/status", write, s.updateStatus)
	feedback.PATCH("/:id/severity", write, s.updateSeverity)
	feedback.PATCH("/:id/sentiment", write, s.updateSentiment)

	authed.GET("/topics", read, s.topics)
	authed.GET("/sources", read, s.sources)
	authed.GET("/dashboard/overview", read, s.overview)

	authed.GET("/health/llm", s.requirePermission(authz.ObjHealth, authz.ActRead), s.llmHealth)

	analyze := s.requirePermission(authz.ObjLLM, authz.ActAnalyze)
	llmGroup := authed.Group("/llm", analyze)
	llmGroup.POST("/analyze", s.analyze)
	llmGroup.POST("/batch", s.analyzeBatch)
	llmGroup.POST("/analyze-unscored", s.analyzeUnscored)

	authed.GET("/admin/digest/preview", s.requirePermission(authz.ObjDigest, authz.ActPreview), s.digestPreview)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.Store.Ping(c.Request.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "db": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "db": "up"})
}

func (s *Server) llmHealth(c *gin.Context) {
	info := s.LLM.Info()
	ok(c, http.StatusOK, gin.H{
		"provider":  info.Provider,
		"model":     info.Model,
		"hasApiKey": info.HasAPIKey,
		"timeout":   info.TimeoutSec,
	})
}
