package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region helpers

// scriptedModel fails with each queued error in turn, then answers through the fake model.
type scriptedModel struct {
	*fake.LLM
	failures []error
	calls    int
	last     llms.CallOptions
}

func (m *scriptedModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.last = llms.CallOptions{}
	for _, o := range options {
		o(&m.last)
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}
	return m.LLM.GenerateContent(ctx, msgs, options...)
}

func newGenerator(t *testing.T, model llms.Model) (*LangchainGenerator, *[]time.Duration) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 0
	g, err := NewLangchain(model, cfg, nil)
	require.NoError(t, err)
	var slept []time.Duration
	g.WithSleeper(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	return g, &slept
}

// #endregion helpers

func TestGenerate_PassesParams(t *testing.T) {
	m := &scriptedModel{LLM: fake.NewFakeLLM([]string{"summary text"})}
	g, slept := newGenerator(t, m)

	out, err := g.Generate(context.Background(), "summarize", Params{MaxTokens: 1500, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "summary text", out)
	assert.Equal(t, 1500, m.last.MaxTokens)
	assert.InDelta(t, 0.7, m.last.Temperature, 1e-9)
	assert.Empty(t, *slept)
}

func TestGenerate_RetriesRateLimits(t *testing.T) {
	m := &scriptedModel{
		LLM:      fake.NewFakeLLM([]string{"ok"}),
		failures: []error{errors.New("API returned 429"), errors.New("rate limit exceeded")},
	}
	g, slept := newGenerator(t, m)

	out, err := g.Generate(context.Background(), "p", Params{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, m.calls)
	require.Len(t, *slept, 2)
	for i, d := range *slept {
		limit := 2 * time.Second << i
		assert.LessOrEqual(t, d, limit)
		assert.GreaterOrEqual(t, d, limit/2)
	}
}

func TestGenerate_RateLimitSurfacesAfterRetries(t *testing.T) {
	m := &scriptedModel{
		LLM:      fake.NewFakeLLM([]string{"never"}),
		failures: []error{errors.New("429"), errors.New("429"), errors.New("429"), errors.New("429")},
	}
	g, slept := newGenerator(t, m)

	_, err := g.Generate(context.Background(), "p", Params{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrRateLimited))
	assert.Equal(t, 4, m.calls)
	assert.Len(t, *slept, 3)
}

func TestGenerate_ModelErrorNotRetried(t *testing.T) {
	m := &scriptedModel{
		LLM:      fake.NewFakeLLM([]string{"never"}),
		failures: []error{errors.New("invalid api key")},
	}
	g, slept := newGenerator(t, m)

	_, err := g.Generate(context.Background(), "p", Params{})
	assert.True(t, errors.Is(err, errs.ErrModel))
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, *slept)
}

func TestGenerate_NoResponsesConfigured(t *testing.T) {
	g, _ := newGenerator(t, fake.NewFakeLLM(nil))
	_, err := g.Generate(context.Background(), "p", Params{})
	assert.True(t, errors.Is(err, errs.ErrModel))
}

func TestNewLangchain_InvalidBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backoff.Base = 0
	_, err := NewLangchain(fake.NewFakeLLM(nil), cfg, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want *errs.Error
	}{
		{errors.New("Too Many Requests"), errs.ErrRateLimited},
		{errors.New("quota exhausted"), errs.ErrRateLimited},
		{context.DeadlineExceeded, errs.ErrTimeout},
		{errors.New("bad gateway"), errs.ErrModel},
		{errs.New(errs.KindValidation, "x", "already classified"), errs.ErrValidation},
	}
	for _, tt := range tests {
		assert.True(t, errors.Is(Classify("op", tt.err), tt.want), tt.err.Error())
	}
	assert.NoError(t, Classify("op", nil))
}

func TestGeneratorFunc(t *testing.T) {
	var g Generator = GeneratorFunc(func(_ context.Context, prompt string, _ Params) (string, error) {
		return "echo: " + prompt, nil
	})
	out, err := g.Generate(context.Background(), "hi", Params{})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}
