package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/agent-boss/internal/backoff"
	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region config

// Config selects the model backend and its pacing.
type Config struct {
	Provider          string         `koanf:"provider"` // "openai" | "codec"
	Model             string         `koanf:"model"`
	BaseURL           string         `koanf:"base_url"`
	APIKey            string         `koanf:"api_key"`
	RequestsPerSecond float64        `koanf:"requests_per_second"`
	Burst             int            `koanf:"burst"`
	MaxRetries        int            `koanf:"max_retries"`
	Backoff           backoff.Config `koanf:"backoff"`
}

// DefaultConfig returns an OpenAI-compatible backend paced at 2 req/s with
// three rate-limit retries on the rate-limit schedule.
func DefaultConfig() Config {
	return Config{
		Provider:          "openai",
		Model:             "gpt-4o-mini",
		RequestsPerSecond: 2,
		Burst:             4,
		MaxRetries:        3,
		Backoff:           backoff.RateLimitConfig(),
	}
}

// #endregion config

// #region langchain-generator

// LangchainGenerator drives any langchaingo model behind a token bucket and
// retries rate-limited calls with backoff.
type LangchainGenerator struct {
	model      llms.Model
	limiter    *rate.Limiter
	backoff    *backoff.Backoff
	maxRetries int
	sleep      backoff.Sleeper
	log        *zap.Logger
}

// NewLangchain wraps model. A nil logger disables logging.
func NewLangchain(model llms.Model, cfg Config, log *zap.Logger) (*LangchainGenerator, error) {
	b, err := backoff.New(cfg.Backoff)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &LangchainGenerator{
		model:      model,
		limiter:    rate.NewLimiter(limit, burst),
		backoff:    b,
		maxRetries: cfg.MaxRetries,
		sleep:      backoff.SleepContext,
		log:        log.Named("llm"),
	}, nil
}

// NewOpenAI builds an OpenAI-compatible langchaingo model from cfg.
func NewOpenAI(cfg Config, log *zap.Logger) (*LangchainGenerator, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "llm.NewOpenAI", err)
	}
	return NewLangchain(model, cfg, log)
}

// WithSleeper replaces the backoff sleeper. Used by tests.
func (g *LangchainGenerator) WithSleeper(s backoff.Sleeper) *LangchainGenerator {
	g.sleep = s
	return g
}

// Generate waits for a token, calls the model and retries rate-limit failures.
func (g *LangchainGenerator) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	const op = "llm.Generate"
	if err := g.limiter.Wait(ctx); err != nil {
		return "", errs.Wrap(errs.KindRateLimit, op, fmt.Errorf("rate limiter: %w", err))
	}

	var opts []llms.CallOption
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(p.Temperature))

	var text string
	attempt := 0
	err := backoff.Retry(ctx, g.backoff, g.maxRetries, errs.IsRateLimited, g.sleep, func(ctx context.Context) error {
		start := time.Now()
		out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, opts...)
		if err != nil {
			err = Classify(op, err)
			g.log.Warn("generation failed",
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			attempt++
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// #endregion langchain-generator
