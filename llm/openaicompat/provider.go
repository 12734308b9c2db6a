// =============================================================================
// RagFlow OpenAI-Compatible Chat Provider
// =============================================================================
// Shared implementation for OpenAI-compatible chat completion endpoints.
// Both the GitHub Models endpoint and OpenAI proper speak this format;
// only the base URL and credentials differ.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g., "github-models", "openai").
	ProviderName string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL is the base URL for the provider's API.
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 30s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/chat/completions".
	EndpointPath string

	// RateLimit is the client-side requests-per-second cap. Zero disables limiting.
	RateLimit float64

	// BuildHeaders is an optional function to set custom headers on each request.
	// If nil, the default "Authorization: Bearer <apiKey>" header is used.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the base implementation for OpenAI-compatible chat providers.
type Provider struct {
	Cfg     Config
	Client  *http.Client
	Logger  *zap.Logger
	limiter *rate.Limiter
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Provider{
		Cfg:     cfg,
		Client:  &http.Client{Timeout: timeout},
		Logger:  logger.With(zap.String("component", "llm_provider"), zap.String("provider", cfg.ProviderName)),
		limiter: limiter,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// wire format of the OpenAI chat completions API

type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      llm.Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Completion 发起同步聊天请求。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrUpstreamTimeout, "rate limiter wait cancelled").
				WithCause(err).WithProvider(p.Cfg.ProviderName)
		}
	}

	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}

	body := chatRequestBody{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(httpReq, p.Cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Cfg.ProviderName)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, MapHTTPError(resp.StatusCode, string(respBody), p.Cfg.ProviderName)
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrUpstreamError, parsed.Error.Message).
			WithProvider(p.Cfg.ProviderName)
	}

	out := &llm.ChatResponse{
		ID:        parsed.ID,
		Provider:  p.Cfg.ProviderName,
		Model:     parsed.Model,
		CreatedAt: time.Now(),
		Usage: llm.ChatUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	for _, c := range parsed.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      c.Message,
		})
	}

	p.Logger.Debug("chat completion finished",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", out.Usage.TotalTokens))

	return out, nil
}

// MapHTTPError 将 HTTP 状态映射到 types.Error。
func MapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusPaymentRequired:
		code = types.ErrQuotaExceeded
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}
