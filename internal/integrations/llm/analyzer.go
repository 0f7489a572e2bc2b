package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"feedbackdesk/internal/domain"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	// ErrNotConfigured is returned when no API key is set for the provider.
	ErrNotConfigured = errors.New("llm provider is not configured")
	// ErrInvalidResponse wraps every schema violation in a model response.
	ErrInvalidResponse = errors.New("invalid analyzer response")
)

const systemPrompt = "You are a product feedback analyst. " +
	"Return STRICT JSON with keys: sentiment, severity, topics, summary. " +
	"sentiment ∈ {POSITIVE, NEUTRAL, NEGATIVE}. " +
	"severity is integer 1..5 (5 = most severe). " +
	"topics is an array of at most 10 short lowercase keywords. " +
	"summary is 1–2 sentences. " +
	"Do NOT include any extra keys or text outside JSON."

func userPrompt(raw string) string {
	return "Analyze the following feedback and return strict JSON:\n\n" + raw
}

// Result is a validated analysis of one piece of feedback.
type Result struct {
	Sentiment domain.Sentiment `json:"sentiment"`
	Severity  int              `json:"severity"`
	Topics    []string         `json:"topics"`
	Summary   string           `json:"summary"`
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

type Options struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Glossary   *TopicGlossary
	Logger     *slog.Logger
}

// Analyzer classifies feedback text through an external model.
type Analyzer struct {
	opts     Options
	complete func(ctx context.Context, system, user string) (string, Usage, error)
}

func New(opts Options) (*Analyzer, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &Analyzer{opts: opts}
	switch strings.ToLower(opts.Provider) {
	case ProviderOpenAI, "":
		a.opts.Provider = ProviderOpenAI
		a.complete = a.callOpenAI
	case ProviderAnthropic:
		a.opts.Provider = ProviderAnthropic
		a.complete = a.callAnthropic
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
	return a, nil
}

// Analyze sends text to the model and validates the reply. Any transport,
// timeout or schema failure is returned as an error; nothing is coerced.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Result, error) {
	if a.opts.APIKey == "" {
		return Result{}, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	started := time.Now()
	raw, usage, err := a.complete(ctx, systemPrompt, userPrompt(text))
	if err != nil {
		return Result{}, fmt.Errorf("%s completion: %w", a.opts.Provider, err)
	}
	res, err := ParseResult(raw)
	if err != nil {
		a.opts.Logger.Warn("llm response rejected", "provider", a.opts.Provider, "error", err)
		return Result{}, err
	}
	res.Topics = a.opts.Glossary.Apply(res.Topics)

	a.opts.Logger.Debug("llm analysis done",
		"provider", a.opts.Provider,
		"model", a.opts.Model,
		"severity", res.Severity,
		"tokens_in", usage.InputTokens,
		"tokens_out", usage.OutputTokens,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return res, nil
}

type Info struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	HasAPIKey  bool   `json:"hasApiKey"`
	TimeoutSec int    `json:"timeoutSeconds"`
}

func (a *Analyzer) Info() Info {
	return Info{
		Provider:   a.opts.Provider,
		Model:      a.opts.Model,
		HasAPIKey:  a.opts.APIKey != "",
		TimeoutSec: int(a.opts.Timeout / time.Second),
	}
}
