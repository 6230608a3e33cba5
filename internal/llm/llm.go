// Package llm is the text-generation boundary used by executors and the judge.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region params

// Params tunes a single generation call.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// #endregion params

// #region generator

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, p Params) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	return f(ctx, prompt, p)
}

// #endregion generator

// #region classify

var rateLimitMarkers = []string{"429", "rate limit", "rate_limit", "too many requests", "quota"}

// Classify maps a provider error onto the error taxonomy: rate limits, deadline
// expiry and everything else as a model fault. Already classified errors pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, op, err)
	}
	lower := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return errs.Wrap(errs.KindRateLimit, op, err)
		}
	}
	return errs.Wrap(errs.KindModel, op, err)
}

// #endregion classify
