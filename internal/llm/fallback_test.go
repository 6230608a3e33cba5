package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

func staticGen(out string, err error, calls *int) Generator {
	return GeneratorFunc(func(context.Context, string, Params) (string, error) {
		*calls++
		return out, err
	})
}

func TestFallback_FirstSuccessWins(t *testing.T) {
	var a, b, c int
	f, err := NewFallback(nil,
		Named{"primary", staticGen("", errors.New("down"), &a)},
		Named{"secondary", staticGen("ok", nil, &b)},
		Named{"tertiary", staticGen("unused", nil, &c)},
	)
	require.NoError(t, err)

	out, err := f.Generate(context.Background(), "p", Params{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []int{1, 1, 0}, []int{a, b, c})
}

func TestFallback_AllFailKeepsLastKind(t *testing.T) {
	var a, b int
	f, _ := NewFallback(nil,
		Named{"primary", staticGen("", errors.New("down"), &a)},
		Named{"secondary", staticGen("", errs.New(errs.KindRateLimit, "x", "429"), &b)},
	)
	_, err := f.Generate(context.Background(), "p", Params{})
	assert.True(t, errors.Is(err, errs.ErrRateLimited))
	assert.Contains(t, err.Error(), "all 2 generators failed")
}

func TestFallback_StopsOnCancel(t *testing.T) {
	var a int
	f, _ := NewFallback(nil, Named{"primary", staticGen("ok", nil, &a)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Generate(ctx, "p", Params{})
	assert.True(t, errors.Is(err, errs.ErrTimeout))
	assert.Zero(t, a)
}

func TestNewFallback_Empty(t *testing.T) {
	_, err := NewFallback(nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}
