package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region fallback

// Named pairs a generator with a label for logs.
type Named struct {
	Name      string
	Generator Generator
}

// Fallback tries each generator in order and returns the first success.
type Fallback struct {
	chain []Named
	log   *zap.Logger
}

// NewFallback builds a chain. At least one generator is required.
func NewFallback(log *zap.Logger, chain ...Named) (*Fallback, error) {
	if len(chain) == 0 {
		return nil, errs.New(errs.KindConfiguration, "llm.NewFallback", "no generators configured")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{chain: chain, log: log.Named("llm")}, nil
}

// Generate walks the chain. Cancellation stops the walk immediately.
func (f *Fallback) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	var lastErr error
	for i, n := range f.chain {
		if err := ctx.Err(); err != nil {
			return "", errs.Wrap(errs.KindTimeout, "llm.Fallback", err)
		}
		out, err := n.Generator.Generate(ctx, prompt, p)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if i < len(f.chain)-1 {
			f.log.Warn("generator failed, falling back",
				zap.String("generator", n.Name),
				zap.String("next", f.chain[i+1].Name),
				zap.Error(err),
			)
		}
	}
	kind, ok := errs.KindOf(lastErr)
	if !ok {
		kind = errs.KindModel
	}
	return "", errs.Wrap(kind, "llm.Fallback", fmt.Errorf("all %d generators failed: %w", len(f.chain), lastErr))
}

// #endregion fallback
