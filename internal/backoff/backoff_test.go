package backoff

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero-base", Config{Base: 0, Max: time.Second, Growth: 2}},
		{"negative-base", Config{Base: -time.Second, Max: time.Second, Growth: 2}},
		{"max-below-base", Config{Base: 2 * time.Second, Max: time.Second, Growth: 2}},
		{"growth-one", Config{Base: time.Second, Max: time.Minute, Growth: 1}},
		{"growth-below-one", Config{Base: time.Second, Max: time.Minute, Growth: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
		})
	}
}

func TestDelay_Deterministic(t *testing.T) {
	b, err := New(Config{Base: time.Second, Max: 60 * time.Second, Growth: 2})
	require.NoError(t, err)

	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}
	for attempt, w := range want {
		d, err := b.Delay(attempt)
		require.NoError(t, err)
		assert.Equal(t, w*time.Second, d, "attempt %d", attempt)
	}
}

func TestDelay_MaxEqualsBase(t *testing.T) {
	b, err := New(Config{Base: time.Second, Max: time.Second, Growth: 3})
	require.NoError(t, err)
	d, err := b.Delay(5)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestDelay_NegativeAttempt(t *testing.T) {
	b, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = b.Delay(-1)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestDelay_HugeAttemptCapped(t *testing.T) {
	b, err := New(Config{Base: time.Second, Max: time.Minute, Growth: 10})
	require.NoError(t, err)
	d, err := b.Delay(10_000)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func TestDelay_JitterBounds(t *testing.T) {
	b, err := New(Config{Base: time.Second, Max: 60 * time.Second, Growth: 2, Jitter: true})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	b = b.WithRand(rng.Float64)

	for attempt := 0; attempt < 10; attempt++ {
		det := time.Duration(float64(time.Second) * float64(int64(1)<<attempt))
		if det > 60*time.Second {
			det = 60 * time.Second
		}
		for i := 0; i < 50; i++ {
			d, err := b.Delay(attempt)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, det/2)
			assert.LessOrEqual(t, d, det)
		}
	}
}

func TestDelay_JitterExtremes(t *testing.T) {
	b, err := New(Config{Base: 4 * time.Second, Max: 60 * time.Second, Growth: 2, Jitter: true})
	require.NoError(t, err)

	low, _ := b.WithRand(func() float64 { return 0 }).Delay(0)
	assert.Equal(t, 2*time.Second, low)

	high, _ := b.WithRand(func() float64 { return 0.999999 }).Delay(0)
	assert.InDelta(t, float64(4*time.Second), float64(high), float64(time.Millisecond))
}

func TestSleep_ContextCancelled(t *testing.T) {
	b, err := New(Config{Base: time.Hour, Max: time.Hour, Growth: 2})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Sleep(ctx, 0), context.Canceled)
}

// #region retry-tests

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestRetry_SucceedsAfterRateLimit(t *testing.T) {
	b, err := New(Config{Base: 2 * time.Second, Max: 120 * time.Second, Growth: 2})
	require.NoError(t, err)
	rec := &recordingSleeper{}

	calls := 0
	err = Retry(context.Background(), b, 3, errs.IsRateLimited, rec.sleep, func(context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.KindRateLimit, "llm.Generate", "429")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestRetry_ExhaustsAndSurfaces(t *testing.T) {
	b, err := New(RateLimitConfig())
	require.NoError(t, err)
	rec := &recordingSleeper{}

	calls := 0
	err = Retry(context.Background(), b, 3, errs.IsRateLimited, rec.sleep, func(context.Context) error {
		calls++
		return errs.New(errs.KindRateLimit, "llm.Generate", "429")
	})
	require.Error(t, err)
	assert.True(t, errs.IsRateLimited(err))
	assert.Equal(t, 4, calls)
	assert.Len(t, rec.delays, 3)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	b, err := New(DefaultConfig())
	require.NoError(t, err)
	rec := &recordingSleeper{}

	calls := 0
	boom := errors.New("boom")
	err = Retry(context.Background(), b, 3, errs.IsRateLimited, rec.sleep, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

// #endregion retry-tests
