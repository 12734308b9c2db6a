package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDeterministic(t *testing.T) {
	t.Parallel()

	m := NewMock(1536)
	ctx := context.Background()

	a, err := m.Embed(ctx, "return policy")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "return policy")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 1536)
}

func TestMockDistinctTexts(t *testing.T) {
	t.Parallel()

	m := NewMock(64)
	ctx := context.Background()

	a, err := m.Embed(ctx, "alpha")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "beta")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestMockValueRange(t *testing.T) {
	t.Parallel()

	m := NewMock(256)
	vec, err := m.Embed(context.Background(), "bounds check")
	require.NoError(t, err)

	for _, v := range vec {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestMockBatchMatchesSingle(t *testing.T) {
	t.Parallel()

	m := NewMock(32)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	batch, err := m.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := m.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

// failingProvider simulates a remote endpoint that is always down.
type failingProvider struct{ dims int }

func (f *failingProvider) Name() string    { return "failing" }
func (f *failingProvider) Dimensions() int { return f.dims }

func (f *failingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func (f *failingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func TestChainFallsBackToMockOnRemoteFailure(t *testing.T) {
	t.Parallel()

	chain := NewChainWith(&failingProvider{dims: 128}, 128, nil)
	ctx := context.Background()

	vec, err := chain.Embed(ctx, "still works")
	require.NoError(t, err)
	assert.Len(t, vec, 128)

	// Fallback output must match the mock's deterministic result.
	want, err := NewMock(128).Embed(ctx, "still works")
	require.NoError(t, err)
	assert.Equal(t, want, vec)
}

// recordingObserver captures every ObserveEmbedding call.
type recordingObserver struct {
	providers []string
	errs      []error
}

func (r *recordingObserver) ObserveEmbedding(provider string, err error) {
	r.providers = append(r.providers, provider)
	r.errs = append(r.errs, err)
}

func TestChainReportsCallsToObserver(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	chain := NewChainWith(&failingProvider{dims: 32}, 32, nil)
	chain.SetObserver(obs)

	_, err := chain.Embed(context.Background(), "observed")
	require.NoError(t, err)

	// 远端失败一次,mock 兜底一次
	require.Equal(t, []string{"failing", "mock"}, obs.providers)
	assert.Error(t, obs.errs[0])
	assert.NoError(t, obs.errs[1])

	obs = &recordingObserver{}
	mockOnly := NewChainWith(nil, 32, nil)
	mockOnly.SetObserver(obs)

	_, err = mockOnly.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mock"}, obs.providers)
}

func TestChainNoCredentialsUsesMock(t *testing.T) {
	t.Parallel()

	chain := NewChain(config.EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    5 * time.Second,
	}, nil)

	assert.Equal(t, "mock", chain.Name())

	vec, err := chain.Embed(context.Background(), "no creds")
	require.NoError(t, err)
	assert.Len(t, vec, 1536)
}

func TestChainCredentialPriority(t *testing.T) {
	t.Parallel()

	// GitHub token takes precedence over the OpenAI key.
	chain := NewChain(config.EmbeddingConfig{
		GitHubToken: "ghp_test",
		OpenAIKey:   "sk-test",
		Model:       "text-embedding-3-small",
		Dimensions:  1536,
	}, nil)
	assert.Equal(t, "github-models", chain.Name())

	chain = NewChain(config.EmbeddingConfig{
		OpenAIKey:  "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	}, nil)
	assert.Equal(t, "openai", chain.Name())
}
