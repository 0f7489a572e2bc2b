package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

// envKeys lists every variable Load reads.
var envKeys = []string{
	"CONFIG_PATH", "LISTEN_ADDR", "GIN_MODE", "DB_PATH", "AUTH_SECRET", "TOKEN_TTL_MINUTES",
	"CRON_SECRET", "BCRYPT_COST", "LLM_PROVIDER", "LLM_MODEL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	"OPENAI_BASE_URL", "ANTHROPIC_BASE_URL", "LLM_TIMEOUT_SECONDS", "LLM_CONCURRENCY",
	"LLM_TOPIC_GLOSSARY_PATH", "EXTERNAL_HTTP_TIMEOUT_SECONDS", "SLACK_WEBHOOK_URL", "NOTIFY_QUEUE_SIZE",
	"GITHUB_TOKEN", "GITHUB_REPOS", "GITLAB_URL", "GITLAB_TOKEN", "GITLAB_GROUP_ID", "GITLAB_FEEDBACK_LABEL",
	"FETCH_SCHEDULE", "FETCH_LOOKBACK_HOURS", "DIGEST_SCHEDULE", "DIGEST_HOURS", "DIGEST_EMAIL_TO",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "REDIS_URL",
	"RATE_LIMIT_PER_MINUTE", "LOG_LEVEL", "LOG_FORMAT", "TIMEZONE", "FEED_URLS",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if prev, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, prev) })
		}
	}
}

func useMissingConfigFile(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")
}

func TestEnvKeysCoverLoad(t *testing.T) {
	src, err := os.ReadFile("config.go")
	if err != nil {
		t.Fatalf("read config.go: %v", err)
	}
	known := map[string]bool{}
	for _, key := range envKeys {
		known[key] = true
	}
	for _, m := range regexp.MustCompile(`(?:Getenv|LookupEnv|o\.\w+)\([^"]*"([A-Z][A-Z0-9_]+)"`).FindAllStringSubmatch(string(src), -1) {
		if !known[m[1]] {
			t.Fatalf("env var %s read by Load is missing from envKeys", m[1])
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	useMissingConfigFile(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMProvider != ProviderOpenAI || cfg.LLMModel != DefaultOpenAIModel {
		t.Fatalf("unexpected llm defaults: %s / %s", cfg.LLMProvider, cfg.LLMModel)
	}
	if cfg.DBPath != "./feedbackdesk.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.DigestHours != 24 || cfg.LLMConcurrency != 1 {
		t.Fatalf("unexpected digest/concurrency defaults: %d / %d", cfg.DigestHours, cfg.LLMConcurrency)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.GitHubConfigured() || cfg.SMTPConfigured() {
		t.Fatal("nothing external should be configured by default")
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: anthropic
anthropic_api_key: "yaml-key"
github_token: "ghp_yaml"
github_repos: ["acme/app"]
feeds:
  - name: AppStore
    url: https://example.com/reviews.rss
digest_hours: 48
timezone: UTC
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	clearEnv(t)
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("GITHUB_REPOS", "acme/app, acme/api")
	t.Setenv("DIGEST_HOURS", "72")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMModel != DefaultAnthropicModel {
		t.Fatalf("expected anthropic default model, got %q", cfg.LLMModel)
	}
	if cfg.LLMAPIKey() != "yaml-key" {
		t.Fatalf("unexpected api key: %q", cfg.LLMAPIKey())
	}
	if len(cfg.GitHubRepos) != 2 || cfg.GitHubRepos[1] != "acme/api" {
		t.Fatalf("env repos should replace yaml repos: %v", cfg.GitHubRepos)
	}
	if cfg.DigestHours != 72 {
		t.Fatalf("env should override digest_hours, got %d", cfg.DigestHours)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].Name != "AppStore" {
		t.Fatalf("unexpected feeds: %+v", cfg.Feeds)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"provider":    {"LLM_PROVIDER", "groq", "llm_provider"},
		"digest":      {"DIGEST_HOURS", "200", "digest_hours"},
		"concurrency": {"LLM_CONCURRENCY", "40", "llm_concurrency"},
		"int parse":   {"LLM_TIMEOUT_SECONDS", "soon", "LLM_TIMEOUT_SECONDS"},
		"timezone":    {"TIMEZONE", "Mars/Olympus", "timezone"},
		"feeds":       {"FEED_URLS", "no-equals-sign", "FEED_URLS"},
		"gitlab":      {"GITLAB_TOKEN", "glpat-x", "gitlab_group_id"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			useMissingConfigFile(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsPartialSMTP(t *testing.T) {
	useMissingConfigFile(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for smtp_host without smtp_from/digest_email_to")
	}
}

func TestValidateServeRequiresLongSecret(t *testing.T) {
	if err := (Config{AuthSecret: "short"}).ValidateServe(); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if err := (Config{AuthSecret: strings.Repeat("s", 32)}).ValidateServe(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFeedURLsEnv(t *testing.T) {
	useMissingConfigFile(t)
	t.Setenv("FEED_URLS", "appstore=https://a.example/rss, forum=https://b.example/atom")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Feeds) != 2 || cfg.Feeds[1].URL != "https://b.example/atom" {
		t.Fatalf("unexpected feeds: %+v", cfg.Feeds)
	}
}
