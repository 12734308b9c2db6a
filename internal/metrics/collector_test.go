package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorExposesFamilies(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.ObserveHTTP("/api/v1/query", "POST", 200, 42*time.Millisecond)
	c.ObserveEmbedding("mock", nil)
	c.ObserveEmbedding("openai", errors.New("boom"))
	c.ObserveLLM("github-models", 120, 30, nil)
	c.ObserveRetrieval(5)
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.SetStoreDocuments(7)

	body := scrape(t, c)
	assert.Contains(t, body, `ragflow_http_requests_total{method="POST",path="/api/v1/query",status="200"} 1`)
	assert.Contains(t, body, `ragflow_embedding_calls_total{outcome="success",provider="mock"} 1`)
	assert.Contains(t, body, `ragflow_embedding_calls_total{outcome="error",provider="openai"} 1`)
	assert.Contains(t, body, `ragflow_llm_tokens_total{kind="prompt",provider="github-models"} 120`)
	assert.Contains(t, body, `ragflow_answer_cache_events_total{event="hit"} 1`)
	assert.Contains(t, body, "ragflow_store_documents 7")
}
