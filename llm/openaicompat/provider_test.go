package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompletionSuccess(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, http.StatusOK, map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": "hello there"},
			},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
	})

	p := New(Config{
		ProviderName: "openai",
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		DefaultModel: "gpt-4o",
	}, nil)

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text())
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
}

func TestCompletionErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, types.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, types.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, types.ErrInvalidRequest, false},
		{"server error", http.StatusInternalServerError, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, tt.status, map[string]string{"error": "boom"})
			p := New(Config{
				ProviderName: "openai",
				APIKey:       "test-key",
				BaseURL:      srv.URL,
				DefaultModel: "gpt-4o",
			}, nil)

			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestResolvePriority(t *testing.T) {
	t.Parallel()

	p := Resolve(config.LLMConfig{GitHubToken: "ghp_x", OpenAIKey: "sk-x", Model: "gpt-4o"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "github-models", p.Name())

	p = Resolve(config.LLMConfig{OpenAIKey: "sk-x", Model: "gpt-4o"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "openai", p.Name())

	p = Resolve(config.LLMConfig{Model: "gpt-4o"}, nil)
	assert.Nil(t, p)
}
