package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/llm/openaicompat"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig OpenAI 兼容嵌入端点配置
type OpenAIConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	Model        string
	Dims         int
	Timeout      time.Duration
	RateLimit    float64
}

// OpenAIProvider 调用 OpenAI 兼容的 /embeddings 端点。
// GitHub Models 与 OpenAI 均支持该格式。
type OpenAIProvider struct {
	cfg     OpenAIConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewOpenAI creates a provider for an OpenAI-compatible embeddings endpoint.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.Dims <= 0 {
		cfg.Dims = 1536
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &OpenAIProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "embedding"), zap.String("provider", cfg.ProviderName)),
		limiter: limiter,
	}
}

func (p *OpenAIProvider) Name() string    { return p.cfg.ProviderName }
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dims }

type embeddingRequestBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponseBody struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(embeddingRequestBody{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, openaicompat.MapHTTPError(resp.StatusCode, string(respBody), p.cfg.ProviderName)
	}

	var parsed embeddingResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding api error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Data), len(texts))
	}

	// 按 index 归位，服务端不保证顺序
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index out of range: %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
