package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"feedbackdesk/internal/auth"
	"feedbackdesk/internal/authz"
	"feedbackdesk/internal/digest"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/ingest"
	"feedbackdesk/internal/integrations/llm"
	"feedbackdesk/internal/logger"
	"feedbackdesk/internal/storage/sqlite"
	"feedbackdesk/internal/triage"
)

const testCronSecret = "cron-secret"

type fakeAnalyzer struct {
	mu      sync.Mutex
	results map[string]llm.Result
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text string) (llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[text]
	if !ok {
		return llm.Result{}, errors.New("analyzer unavailable")
	}
	return res, nil
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) NotifyHighSeverity(context.Context, domain.Alert) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

type staticInfo struct{}

func (staticInfo) Info() llm.Info {
	return llm.Info{Provider: "openai", Model: "gpt-4.1-mini", HasAPIKey: true, TimeoutSec: 30}
}

type stubLimiter struct {
	allow  bool
	err    error
	resets []string
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) {
	return l.allow, l.err
}

func (l *stubLimiter) Reset(_ context.Context, key string) error {
	l.resets = append(l.resets, key)
	return nil
}

type testEnv struct {
	store    *sqlite.Store
	analyzer *fakeAnalyzer
	notifier *countingNotifier
	tokens   *auth.JWTService
	server   *Server
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	env := &testEnv{
		store:    store,
		analyzer: &fakeAnalyzer{results: map[string]llm.Result{}},
		notifier: &countingNotifier{},
		tokens:   auth.NewJWTService(strings.Repeat("k", 32), time.Hour),
	}
	svc := triage.NewService(store, env.analyzer, env.notifier, 1, logger.Discard())
	enforcer, err := authz.NewEnforcer()
	require.NoError(t, err)

	env.server = New(Deps{
		Store:      store,
		Triage:     svc,
		Ingest:     ingest.NewPipeline(store, svc, logger.Discard()),
		Digest:     digest.NewBuilder(store, time.UTC),
		Deliverer:  digest.NewDeliverer(nil, nil, logger.Discard()),
		Accounts:   auth.NewAccounts(store, auth.NewBcryptPasswordHasher(bcrypt.MinCost), env.tokens, logger.Discard()),
		Tokens:     env.tokens,
		Enforcer:   enforcer,
		LLM:        staticInfo{},
		CronSecret: testCronSecret,
		Logger:     logger.Discard(),
	})
	env.router = env.server.Router()
	return env
}

// token creates a user with role and returns a bearer token for it.
func (e *testEnv) token(t *testing.T, email string, role domain.Role) string {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), domain.User{Email: email, PasswordHash: "x", Role: role})
	require.NoError(t, err)
	tok, err := e.tokens.Generate(u)
	require.NoError(t, err)
	return tok.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decode(t, rec)
	assert.Equal(t, false, body["ok"])
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return errBody
}

func TestCronIngestRejectsMissingSecret(t *testing.T) {
	env := newTestEnv(t)
	payload := gin.H{"items": []gin.H{{"source": "github", "externalId": "42", "rawContent": "Crashes on save"}}}

	rec := env.do(t, http.MethodPost, "/api/cron/ingest", "", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cron/ingest", "", payload, cronSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, total, err := env.store.ListItems(context.Background(), sqlite.ItemFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCronIngestIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.results["Crashes on save"] = llm.Result{
		Sentiment: domain.SentimentNegative, Severity: 5, Topics: []string{"crash"}, Summary: "App crashes.",
	}
	payload := gin.H{"items": []gin.H{{"source": "github", "externalId": "42", "rawContent": "Crashes on save"}}}

	rec := env.do(t, http.MethodPost, "/api/cron/ingest", "", payload, cronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, true, first["ok"])
	assert.EqualValues(t, 1, first["received"])
	assert.EqualValues(t, 1, first["ingested"])
	assert.EqualValues(t, 1, first["analyzed"])

	rec = env.do(t, http.MethodPost, "/api/cron/ingest", "", payload, cronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)
	assert.EqualValues(t, 0, second["ingested"])
	assert.EqualValues(t, 1, second["skipped"])
	assert.EqualValues(t, 0, second["analyzed"])

	items, _, err := env.store.ListItems(context.Background(), sqlite.ItemFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.StatusAcknowledged, items[0].Status)
	assert.Equal(t, 1, env.notifier.n)
}

func TestCronIngestRequiresItems(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/cron/ingest", "", gin.H{"items": "nope"}, cronSecretHeader, testCronSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "items must be an array", errorOf(t, rec)["message"])
}

func TestSubmitFeedbackAndDuplicate(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "member@example.com", domain.RoleMember)

	rec := env.do(t, http.MethodPost, "/api/feedback", tok, gin.H{"rawContent": "  Export is slow  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["feedbackId"])
	fb := body["feedback"].(map[string]any)
	assert.Equal(t, "manual", fb["source"])
	assert.True(t, strings.HasPrefix(fb["externalId"].(string), "manual-"))
	assert.Equal(t, "Export is slow", fb["rawContent"])

	payload := gin.H{"source": "email", "externalId": "e-1", "rawContent": "hi"}
	rec = env.do(t, http.MethodPost, "/api/feedback", tok, payload)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/feedback", tok, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_FEEDBACK", errorOf(t, rec)["code"])

	rec = env.do(t, http.MethodPost, "/api/feedback", tok, gin.H{"rawContent": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/feedback", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/feedback", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorOf(t, rec)["type"])
}

func TestRoleChangesApplyBeforeTokenExpiry(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "lead@example.com", domain.RoleMember)

	rec := env.do(t, http.MethodGet, "/api/health/llm", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, env.store.SetUserRole(context.Background(), "lead@example.com", domain.RoleAdmin))
	rec = env.do(t, http.MethodGet, "/api/health/llm", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "promotion applies to an existing token")

	require.NoError(t, env.store.SetUserRole(context.Background(), "lead@example.com", domain.RoleMember))
	rec = env.do(t, http.MethodGet, "/api/health/llm", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "demotion applies to an existing token")

	ghost, err := env.tokens.Generate(domain.User{ID: "deleted-user", Email: "ghost@example.com", Role: domain.RoleAdmin})
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/feedback", ghost.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListFeedbackPaginationAndFilters(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "member@example.com", domain.RoleMember)
	_, err := env.store.InsertItems(context.Background(), []domain.FeedbackItem{
		{Source: "github", ExternalID: "1", RawContent: "Login broken"},
		{Source: "github", ExternalID: "2", RawContent: "Dark mode please"},
		{Source: "appstore", ExternalID: "3", RawContent: "LOGIN slow"},
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/feedback?limit=2", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["totalPages"])
	assert.Len(t, body["items"], 2)

	rec = env.do(t, http.MethodGet, "/api/feedback?search=login&source=github", tok, nil)
	body = decode(t, rec)
	assert.EqualValues(t, 1, body["total"])

	rec = env.do(t, http.MethodGet, "/api/feedback?status=actioned", tok, nil)
	body = decode(t, rec)
	assert.EqualValues(t, 0, body["total"])
	assert.EqualValues(t, 1, body["totalPages"])
	assert.Empty(t, body["items"])
}

func TestUpdateStatusFlow(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "owner@example.com", domain.RoleMember)
	other := env.token(t, "other@example.com", domain.RoleMember)
	admin := env.token(t, "admin@example.com", domain.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/feedback", owner, gin.H{"rawContent": "Sync fails"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["feedbackId"].(string)
	path := "/api/feedback/" + id + "/status"

	rec = env.do(t, http.MethodPatch, path, other, gin.H{"status": "ACKNOWLEDGED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPatch, path, owner, gin.H{"status": "actioned", "note": "shipped"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "ACTIONED", body["feedback"].(map[string]any)["status"])
	assert.NotNil(t, body["action"])

	rec = env.do(t, http.MethodPatch, path, owner, gin.H{"status": "ACTIONED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Status unchanged", decode(t, rec)["skipped"])

	rec = env.do(t, http.MethodPatch, path, owner, gin.H{"status": "NEW"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorOf(t, rec)["code"])

	rec = env.do(t, http.MethodPatch, path, admin, gin.H{"status": "NEW"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPatch, path, owner, gin.H{"status": "DONE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or missing status", errorOf(t, rec)["message"])

	rec = env.do(t, http.MethodPatch, "/api/feedback/missing/status", admin, gin.H{"status": "NEW"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n, err := env.store.CountTriageActions(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeverityAndSentimentOverrides(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "member@example.com", domain.RoleMember)
	rec := env.do(t, http.MethodPost, "/api/feedback", tok, gin.H{"rawContent": "Typo on pricing page"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["feedbackId"].(string)

	rec = env.do(t, http.MethodPatch, "/api/feedback/"+id+"/severity", tok, gin.H{"severity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item, err := env.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Severity)

	rec = env.do(t, http.MethodPatch, "/api/feedback/"+id+"/severity", tok, gin.H{"severity": 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/feedback/"+id+"/severity", tok, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/feedback/"+id+"/severity", tok, gin.H{"severity": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	item, err = env.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, item.Severity)

	rec = env.do(t, http.MethodPatch, "/api/feedback/"+id+"/sentiment", tok, gin.H{"sentiment": "positive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item, err = env.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentPositive, item.Sentiment)

	rec = env.do(t, http.MethodPatch, "/api/feedback/"+id+"/sentiment", tok, gin.H{"sentiment": "ANGRY"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualAnalyzeIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	member := env.token(t, "member@example.com", domain.RoleMember)
	admin := env.token(t, "admin@example.com", domain.RoleAdmin)
	env.analyzer.results["Checkout crashes"] = llm.Result{
		Sentiment: domain.SentimentNegative, Severity: 4, Topics: []string{"checkout"}, Summary: "Checkout crashes.",
	}
	_, err := env.store.InsertItems(context.Background(), []domain.FeedbackItem{
		{Source: "github", ExternalID: "7", RawContent: "Checkout crashes"},
	})
	require.NoError(t, err)
	items, _, err := env.store.ListItems(context.Background(), sqlite.ItemFilter{Page: 1, Limit: 1})
	require.NoError(t, err)
	id := items[0].ID

	rec := env.do(t, http.MethodPost, "/api/llm/analyze", member, gin.H{"feedbackId": id})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/llm/analyze", admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/llm/analyze", admin, gin.H{"feedbackItemId": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	analysis := decode(t, rec)["analysis"].(map[string]any)
	assert.EqualValues(t, 4, analysis["severityScore"])
	assert.Equal(t, "Checkout crashes.", analysis["summary"])

	rec = env.do(t, http.MethodGet, "/api/feedback/"+id+"/analysis", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NEGATIVE", decode(t, rec)["analysis"].(map[string]any)["sentiment"])

	rec = env.do(t, http.MethodGet, "/api/feedback/"+id, member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ACKNOWLEDGED", decode(t, rec)["feedback"].(map[string]any)["status"])
}

func TestManualAnalyzeSurfacesAnalyzerFailure(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "admin@example.com", domain.RoleAdmin)
	_, err := env.store.InsertItems(context.Background(), []domain.FeedbackItem{
		{Source: "github", ExternalID: "8", RawContent: "unknown text"},
	})
	require.NoError(t, err)
	items, _, err := env.store.ListItems(context.Background(), sqlite.ItemFilter{Page: 1, Limit: 1})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/llm/analyze", admin, gin.H{"feedbackId": items[0].ID})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "external_error", errorOf(t, rec)["type"])

	rec = env.do(t, http.MethodGet, "/api/feedback/"+items[0].ID+"/analysis", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeUnscoredReportsEveryItem(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "admin@example.com", domain.RoleAdmin)
	env.analyzer.results["good"] = llm.Result{Sentiment: domain.SentimentPositive, Severity: 1, Topics: []string{}, Summary: "Praise."}
	_, err := env.store.InsertItems(context.Background(), []domain.FeedbackItem{
		{Source: "github", ExternalID: "1", RawContent: "good"},
		{Source: "github", ExternalID: "2", RawContent: "bad"},
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/llm/analyze-unscored", admin, gin.H{"limit": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["processed"])
	assert.EqualValues(t, 1, body["failed"])
	assert.Len(t, body["items"], 2)

	rec = env.do(t, http.MethodPost, "/api/llm/batch", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.EqualValues(t, 1, body["total"], "only the failed item is still unscored")
	assert.EqualValues(t, 0, body["processed"])
	assert.Len(t, body["failed"], 1)
}

func TestAccountFlow(t *testing.T) {
	env := newTestEnv(t)
	creds := gin.H{"email": "New@Example.com", "password": "longenough"}

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "MEMBER", decode(t, rec)["user"].(map[string]any)["role"])

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", creds)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EMAIL_TAKEN", errorOf(t, rec)["code"])

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "new@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tok := decode(t, rec)["accessToken"].(string)

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", tok, gin.H{"currentPassword": "longenough", "newPassword": "evenlonger"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "new@example.com", "password": "evenlonger"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "not-an-email", "password": "longenough"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitedLogin(t *testing.T) {
	env := newTestEnv(t)
	env.server.Limiter = &stubLimiter{allow: false}
	router := env.server.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorOf(t, rec)["code"])

	env.server.Limiter = &stubLimiter{err: errors.New("redis down")}
	router = env.server.Router()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "limiter errors let the request through")
}

func TestSuccessfulLoginResetsLoginLimit(t *testing.T) {
	env := newTestEnv(t)
	limiter := &stubLimiter{allow: true}
	env.server.Limiter = limiter
	env.router = env.server.Router()

	creds := gin.H{"email": "reset@example.com", "password": "longenough"}
	rec := env.do(t, http.MethodPost, "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "reset@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, limiter.resets, "failed logins keep counting")

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"login:192.0.2.1"}, limiter.resets)
}

func TestCronDigestAndPreview(t *testing.T) {
	env := newTestEnv(t)
	member := env.token(t, "member@example.com", domain.RoleMember)
	admin := env.token(t, "admin@example.com", domain.RoleAdmin)

	env.server.DigestHours = 12
	env.router = env.server.Router()

	rec := env.do(t, http.MethodPost, "/api/cron/digest", "", gin.H{"hours": 1000}, cronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 12, body["hours"], "out of range falls back to the configured window")
	assert.Equal(t, map[string]any{"slack": false, "email": false}, body["delivery"])
	report := body["digest"].(map[string]any)
	assert.Contains(t, report, "window")
	assert.Contains(t, report, "totals")

	rec = env.do(t, http.MethodPost, "/api/cron/digest", "", nil, cronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 12, decode(t, rec)["hours"])

	rec = env.do(t, http.MethodPost, "/api/cron/digest", "", gin.H{"hours": 1.5}, cronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.EqualValues(t, 1.5, body["hours"])
	window := body["digest"].(map[string]any)["window"].(map[string]any)
	from, err := time.Parse(time.RFC3339Nano, window["from"].(string))
	require.NoError(t, err)
	to, err := time.Parse(time.RFC3339Nano, window["to"].(string))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, to.Sub(from))

	rec = env.do(t, http.MethodGet, "/api/admin/digest/preview", member, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/digest/preview", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decode(t, rec), "preview")
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	member := env.token(t, "member@example.com", domain.RoleMember)
	admin := env.token(t, "admin@example.com", domain.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/topics", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["topics"])

	rec = env.do(t, http.MethodGet, "/api/sources", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/dashboard/overview", member, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/health/llm", member, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/health/llm", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "openai", decode(t, rec)["provider"])

	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
