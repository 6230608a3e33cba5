// Package backoff computes bounded, optionally jittered retry delays.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region config

// Config holds backoff parameters.
type Config struct {
	Base   time.Duration `koanf:"base"`
	Max    time.Duration `koanf:"max"`
	Growth float64       `koanf:"growth"`
	Jitter bool          `koanf:"jitter"`
}

// DefaultConfig returns the general-purpose schedule: 1s doubling to 60s, jittered.
func DefaultConfig() Config {
	return Config{Base: time.Second, Max: 60 * time.Second, Growth: 2, Jitter: true}
}

// RateLimitConfig returns the schedule used for rate-limited calls.
func RateLimitConfig() Config {
	return Config{Base: 2 * time.Second, Max: 120 * time.Second, Growth: 2, Jitter: true}
}

// Validate rejects base ≤ 0, max < base and growth ≤ 1.
func (c Config) Validate() error {
	const op = "backoff.Validate"
	if c.Base <= 0 {
		return errs.Errorf(errs.KindConfiguration, op, "base delay must be positive, got %s", c.Base)
	}
	if c.Max < c.Base {
		return errs.Errorf(errs.KindConfiguration, op, "max delay %s below base %s", c.Max, c.Base)
	}
	if !(c.Growth > 1) {
		return errs.Errorf(errs.KindConfiguration, op, "growth factor must exceed 1, got %g", c.Growth)
	}
	return nil
}

// #endregion config

// #region backoff

// Backoff is an immutable delay schedule. Safe for concurrent use.
type Backoff struct {
	cfg   Config
	float func() float64
}

// New validates cfg and returns a schedule.
func New(cfg Config) (*Backoff, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backoff{cfg: cfg, float: rand.Float64}, nil
}

// WithRand returns a copy that draws jitter from f, which must return values in [0,1).
func (b *Backoff) WithRand(f func() float64) *Backoff {
	c := *b
	c.float = f
	return &c
}

// Config returns the schedule parameters.
func (b *Backoff) Config() Config { return b.cfg }

// Delay returns min(base·growth^attempt, max), scaled into [0.5, 1.0] of itself when jittered.
func (b *Backoff) Delay(attempt int) (time.Duration, error) {
	if attempt < 0 {
		return 0, errs.Errorf(errs.KindValidation, "backoff.Delay", "attempt must be non-negative, got %d", attempt)
	}
	d := float64(b.cfg.Base) * math.Pow(b.cfg.Growth, float64(attempt))
	if d > float64(b.cfg.Max) || math.IsInf(d, 1) || math.IsNaN(d) {
		d = float64(b.cfg.Max)
	}
	if b.cfg.Jitter {
		d *= 0.5 + b.float()*0.5
	}
	return time.Duration(d), nil
}

// Sleep blocks for Delay(attempt) or until ctx is done.
func (b *Backoff) Sleep(ctx context.Context, attempt int) error {
	d, err := b.Delay(attempt)
	if err != nil {
		return err
	}
	return SleepContext(ctx, d)
}

// #endregion backoff

// #region sleep

// Sleeper waits for d. Tests substitute a recording sleeper.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext waits for d or ctx cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// #endregion sleep
