package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGroundedAnswer(t *testing.T) {
	t.Parallel()

	mock := llm.NewMockProvider("Returns are accepted within 30 days.")
	g := NewAnswerGenerator(mock, "gpt-4o", 800, nil)

	results := []RetrievalResult{
		{Text: "Returns accepted within 30 days", Source: "refund.txt", Similarity: 1, Distance: 0},
	}

	out := g.Generate(context.Background(), "How many days to return an item?", results)

	assert.Contains(t, out.Answer, "30")
	require.Len(t, out.Evidence, 1)
	assert.Equal(t, "refund.txt", out.Evidence[0].Source)
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)

	// 上下文必须带来源标签
	calls := mock.Calls()
	require.Len(t, calls, 1)
	user := calls[0].Messages[1].Content
	assert.Contains(t, user, "--- Source: refund.txt ---")
	assert.Contains(t, user, "Returns accepted within 30 days")
}

func TestGenerateEmptyResults(t *testing.T) {
	t.Parallel()

	mock := llm.NewMockProvider("should not be called")
	g := NewAnswerGenerator(mock, "gpt-4o", 800, nil)

	out := g.Generate(context.Background(), "anything", nil)

	assert.Contains(t, out.Answer, "couldn't find")
	assert.Equal(t, 0.3, out.Confidence)
	assert.Empty(t, out.Evidence)
	assert.Empty(t, mock.Calls())
}

func TestGenerateNilProvider(t *testing.T) {
	t.Parallel()

	g := NewAnswerGenerator(nil, "gpt-4o", 800, nil)

	out := g.Generate(context.Background(), "query", []RetrievalResult{
		{Text: "some text", Source: "a.txt"},
	})

	assert.Contains(t, out.Answer, "client not initialized")
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)
}

func TestGenerateProviderErrorNeverPropagates(t *testing.T) {
	t.Parallel()

	mock := llm.NewMockProvider("").FailWith(errors.New("connection reset by peer"))
	g := NewAnswerGenerator(mock, "gpt-4o", 800, nil)

	out := g.Generate(context.Background(), "query", []RetrievalResult{
		{Text: "text", Source: "a.txt"},
	})

	assert.True(t, strings.HasPrefix(out.Answer, "Error generating answer:"))
	assert.Contains(t, out.Answer, "connection reset by peer")
}

func TestRateLimitErrorShaping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  string
		want string
	}{
		{
			"with wait time",
			"429 RateLimitReached: please wait 7200 seconds before retrying",
			"wait 2.0 hours",
		},
		{
			"wait time with fraction",
			"rate limit hit, wait 5400 seconds",
			"wait 1.5 hours",
		},
		{
			"no wait time",
			"Error 429: too many requests",
			"approximately 24 hours",
		},
		{
			"lowercase message",
			"provider said: rate limit exceeded",
			"approximately 24 hours",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := llm.NewMockProvider("").FailWith(errors.New(tt.err))
			g := NewAnswerGenerator(mock, "gpt-4o", 800, nil)

			out := g.Generate(context.Background(), "query", []RetrievalResult{
				{Text: "text", Source: "a.txt"},
			})

			assert.Contains(t, out.Answer, "rate limit exceeded")
			assert.Contains(t, out.Answer, tt.want)
		})
	}
}

// recordingLLMObserver captures every ObserveLLM call.
type recordingLLMObserver struct {
	providers []string
	errs      []error
}

func (r *recordingLLMObserver) ObserveLLM(provider string, promptTokens, completionTokens int, err error) {
	r.providers = append(r.providers, provider)
	r.errs = append(r.errs, err)
}

func TestGenerateReportsCallsToObserver(t *testing.T) {
	t.Parallel()

	obs := &recordingLLMObserver{}
	g := NewAnswerGenerator(llm.NewMockProvider("fine"), "gpt-4o", 800, nil)
	g.SetObserver(obs)

	g.Generate(context.Background(), "query", []RetrievalResult{{Text: "text", Source: "a.txt"}})

	require.Equal(t, []string{"mock"}, obs.providers)
	assert.NoError(t, obs.errs[0])

	obs = &recordingLLMObserver{}
	failing := NewAnswerGenerator(llm.NewMockProvider("").FailWith(errors.New("boom")), "gpt-4o", 800, nil)
	failing.SetObserver(obs)

	failing.Generate(context.Background(), "query", []RetrievalResult{{Text: "text", Source: "a.txt"}})

	require.Len(t, obs.errs, 1)
	assert.Error(t, obs.errs[0])
}

func TestStructuredRateLimitErrorShaping(t *testing.T) {
	t.Parallel()

	// 结构化 429 的消息文本不含任何速率限制字样
	tests := []struct {
		name string
		err  error
	}{
		{"by error code", types.NewError(types.ErrRateLimited, "too many requests")},
		{"by http status", types.NewError(types.ErrUpstreamError, "too many requests").WithHTTPStatus(429)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := llm.NewMockProvider("").FailWith(tt.err)
			g := NewAnswerGenerator(mock, "gpt-4o", 800, nil)

			out := g.Generate(context.Background(), "query", []RetrievalResult{
				{Text: "text", Source: "a.txt"},
			})

			assert.Contains(t, out.Answer, "rate limit exceeded")
			assert.Contains(t, out.Answer, "approximately 24 hours")
			assert.NotContains(t, out.Answer, "Error generating")
		})
	}
}

func TestConfidenceCap(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.6, Confidence(0.6, 0.1, 0))
	assert.Equal(t, 0.9, Confidence(0.6, 0.1, 3))
	assert.Equal(t, 0.95, Confidence(0.6, 0.1, 10))
	assert.Equal(t, 0.95, Confidence(0.7, 0.05, 100))
}

func TestExcerptTruncation(t *testing.T) {
	t.Parallel()

	short := "short text"
	assert.Equal(t, short, Excerpt(short))

	long := strings.Repeat("x", 300)
	got := Excerpt(long)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestBuildEvidenceLimit(t *testing.T) {
	t.Parallel()

	results := []RetrievalResult{
		{Text: "one", Source: "a"},
		{Text: "two", Source: "b"},
		{Text: "three", Source: "c"},
		{Text: "four", Source: "d"},
	}

	evidence := BuildEvidence(results, 3)
	require.Len(t, evidence, 3)
	assert.Equal(t, "a", evidence[0].Source)
	assert.Equal(t, "c", evidence[2].Source)
}
