package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultOpenAIModel    = "gpt-4.1-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	MaxDigestHours = 168
)

type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	GinMode         string `yaml:"gin_mode"`
	DBPath          string `yaml:"db_path"`
	AuthSecret      string `yaml:"auth_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	CronSecret      string `yaml:"cron_secret"`
	BcryptCost      int    `yaml:"bcrypt_cost"`

	LLMProvider          string `yaml:"llm_provider"`
	LLMModel             string `yaml:"llm_model"`
	OpenAIAPIKey         string `yaml:"openai_api_key"`
	AnthropicAPIKey      string `yaml:"anthropic_api_key"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	AnthropicBaseURL     string `yaml:"anthropic_base_url"`
	LLMTimeoutSeconds    int    `yaml:"llm_timeout_seconds"`
	LLMConcurrency       int    `yaml:"llm_concurrency"`
	LLMTopicGlossaryPath string `yaml:"llm_topic_glossary_path"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	SlackWebhookURL            string `yaml:"slack_webhook_url"`
	NotifyQueueSize            int    `yaml:"notify_queue_size"`

	GitHubToken        string   `yaml:"github_token"`
	GitHubRepos        []string `yaml:"github_repos"`
	GitLabURL          string   `yaml:"gitlab_url"`
	GitLabToken        string   `yaml:"gitlab_token"`
	GitLabGroupID      string   `yaml:"gitlab_group_id"`
	GitLabLabel        string   `yaml:"gitlab_feedback_label"`
	Feeds              []Feed   `yaml:"feeds"`
	FetchSchedule      string   `yaml:"fetch_schedule"`
	FetchLookbackHours int      `yaml:"fetch_lookback_hours"`

	DigestSchedule string   `yaml:"digest_schedule"`
	DigestHours    int      `yaml:"digest_hours"`
	DigestEmailTo  []string `yaml:"digest_email_to"`
	SMTPHost       string   `yaml:"smtp_host"`
	SMTPPort       int      `yaml:"smtp_port"`
	SMTPUsername   string   `yaml:"smtp_username"`
	SMTPPassword   string   `yaml:"smtp_password"`
	SMTPFrom       string   `yaml:"smtp_from"`

	RedisURL           string `yaml:"redis_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Timezone  string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads CONFIG_PATH (default config.yaml) if present, applies environment
// overrides and defaults, and validates the result.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	o := &overrides{}
	o.str(&cfg.ListenAddr, "LISTEN_ADDR")
	o.str(&cfg.GinMode, "GIN_MODE")
	o.str(&cfg.DBPath, "DB_PATH")
	o.str(&cfg.AuthSecret, "AUTH_SECRET")
	o.integer(&cfg.TokenTTLMinutes, "TOKEN_TTL_MINUTES")
	o.strAllowEmpty(&cfg.CronSecret, "CRON_SECRET")
	o.integer(&cfg.BcryptCost, "BCRYPT_COST")
	o.str(&cfg.LLMProvider, "LLM_PROVIDER")
	o.str(&cfg.LLMModel, "LLM_MODEL")
	o.str(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	o.str(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	o.str(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	o.str(&cfg.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	o.integer(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	o.integer(&cfg.LLMConcurrency, "LLM_CONCURRENCY")
	o.str(&cfg.LLMTopicGlossaryPath, "LLM_TOPIC_GLOSSARY_PATH")
	o.integer(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	o.strAllowEmpty(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	o.integer(&cfg.NotifyQueueSize, "NOTIFY_QUEUE_SIZE")
	o.str(&cfg.GitHubToken, "GITHUB_TOKEN")
	o.list(&cfg.GitHubRepos, "GITHUB_REPOS")
	o.str(&cfg.GitLabURL, "GITLAB_URL")
	o.str(&cfg.GitLabToken, "GITLAB_TOKEN")
	o.str(&cfg.GitLabGroupID, "GITLAB_GROUP_ID")
	o.str(&cfg.GitLabLabel, "GITLAB_FEEDBACK_LABEL")
	o.strAllowEmpty(&cfg.FetchSchedule, "FETCH_SCHEDULE")
	o.integer(&cfg.FetchLookbackHours, "FETCH_LOOKBACK_HOURS")
	o.strAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	o.integer(&cfg.DigestHours, "DIGEST_HOURS")
	o.list(&cfg.DigestEmailTo, "DIGEST_EMAIL_TO")
	o.str(&cfg.SMTPHost, "SMTP_HOST")
	o.integer(&cfg.SMTPPort, "SMTP_PORT")
	o.str(&cfg.SMTPUsername, "SMTP_USERNAME")
	o.str(&cfg.SMTPPassword, "SMTP_PASSWORD")
	o.str(&cfg.SMTPFrom, "SMTP_FROM")
	o.str(&cfg.RedisURL, "REDIS_URL")
	o.integer(&cfg.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	o.str(&cfg.LogLevel, "LOG_LEVEL")
	o.str(&cfg.LogFormat, "LOG_FORMAT")
	o.str(&cfg.Timezone, "TIMEZONE")
	if feeds := os.Getenv("FEED_URLS"); feeds != "" {
		parsed, err := parseFeedList(feeds)
		if err != nil {
			return Config{}, err
		}
		cfg.Feeds = parsed
	}
	if o.err != nil {
		return Config{}, o.err
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = "release"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./feedbackdesk.db"
	}
	if cfg.TokenTTLMinutes == 0 {
		cfg.TokenTTLMinutes = 720
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderOpenAI
	}
	cfg.LLMProvider = strings.ToLower(cfg.LLMProvider)
	if cfg.LLMModel == "" {
		if cfg.LLMProvider == ProviderAnthropic {
			cfg.LLMModel = DefaultAnthropicModel
		} else {
			cfg.LLMModel = DefaultOpenAIModel
		}
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 30
	}
	if cfg.LLMConcurrency == 0 {
		cfg.LLMConcurrency = 1
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.NotifyQueueSize == 0 {
		cfg.NotifyQueueSize = 100
	}
	if cfg.FetchLookbackHours == 0 {
		cfg.FetchLookbackHours = 24
	}
	if cfg.DigestHours == 0 {
		cfg.DigestHours = 24
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm_provider must be 'openai' or 'anthropic', got '%s'", c.LLMProvider)
	}
	if c.LLMConcurrency < 1 || c.LLMConcurrency > 16 {
		return fmt.Errorf("invalid llm_concurrency '%d': must be between 1 and 16", c.LLMConcurrency)
	}
	if c.LLMTimeoutSeconds < 1 {
		return fmt.Errorf("invalid llm_timeout_seconds '%d': must be >= 1", c.LLMTimeoutSeconds)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.DigestHours < 1 || c.DigestHours > MaxDigestHours {
		return fmt.Errorf("invalid digest_hours '%d': must be between 1 and %d", c.DigestHours, MaxDigestHours)
	}
	if c.FetchLookbackHours < 1 {
		return fmt.Errorf("invalid fetch_lookback_hours '%d': must be >= 1", c.FetchLookbackHours)
	}
	if c.SMTPHost != "" && (c.SMTPFrom == "" || len(c.DigestEmailTo) == 0) {
		return fmt.Errorf("smtp_host is set but smtp_from or digest_email_to is missing")
	}
	if c.GitHubToken != "" && len(c.GitHubRepos) == 0 {
		return fmt.Errorf("github_token is set but github_repos is empty")
	}
	if c.GitLabToken != "" && c.GitLabGroupID == "" {
		return fmt.Errorf("gitlab_token is set but gitlab_group_id is empty")
	}
	for _, f := range c.Feeds {
		if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("every feed needs both name and url")
		}
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// ValidateServe checks the settings only the HTTP server needs.
func (c Config) ValidateServe() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("auth_secret must be at least 32 characters")
	}
	return nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) GitHubConfigured() bool {
	return c.GitHubToken != "" && len(c.GitHubRepos) > 0
}

func (c Config) GitLabConfigured() bool {
	return c.GitLabGroupID != ""
}

func (c Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

func (c Config) LLMAPIKey() string {
	if c.LLMProvider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func parseFeedList(raw string) ([]Feed, error) {
	var feeds []Feed
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid FEED_URLS entry '%s': want name=url", part)
		}
		feeds = append(feeds, Feed{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)})
	}
	return feeds, nil
}

type overrides struct {
	err error
}

func (o *overrides) str(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func (o *overrides) strAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func (o *overrides) integer(field *int, envKey string) {
	val := os.Getenv(envKey)
	if val == "" || o.err != nil {
		return
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		o.err = fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		return
	}
	*field = parsed
}

func (o *overrides) list(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, v := range strings.Split(val, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			*field = append(*field, v)
		}
	}
}
