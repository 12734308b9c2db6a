package embedding

import (
	"context"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/llm/openaicompat"
	"go.uber.org/zap"
)

// Chain 在构造期按凭据优先级选定远端嵌入提供者：
//
//	GitHub Models Token → OpenAI API Key → mock
//
// 远端调用失败时单次降级到 mock，不中断上层流程，
// 下一次调用仍会尝试远端。
type Chain struct {
	primary  Provider
	mock     *MockProvider
	observer Observer
	logger   *zap.Logger
}

// Observer 接收每次嵌入调用的提供者与结果,用于指标采集。
type Observer interface {
	ObserveEmbedding(provider string, err error)
}

// NewChain resolves the embedding provider from the configured credentials.
// The choice is made once; without credentials the chain is mock-only.
func NewChain(cfg config.EmbeddingConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "embedding_chain"))

	mock := NewMock(cfg.Dimensions)

	var primary Provider
	switch {
	case cfg.GitHubToken != "":
		primary = NewOpenAI(OpenAIConfig{
			ProviderName: "github-models",
			APIKey:       cfg.GitHubToken,
			BaseURL:      openaicompat.GitHubModelsBaseURL,
			Model:        cfg.Model,
			Dims:         cfg.Dimensions,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
		}, logger)
	case cfg.OpenAIKey != "":
		primary = NewOpenAI(OpenAIConfig{
			ProviderName: "openai",
			APIKey:       cfg.OpenAIKey,
			BaseURL:      openaicompat.OpenAIBaseURL,
			Model:        cfg.Model,
			Dims:         cfg.Dimensions,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
		}, logger)
	}

	if primary != nil {
		logger.Info("embedding provider resolved",
			zap.String("provider", primary.Name()),
			zap.String("model", cfg.Model),
			zap.Int("dimensions", cfg.Dimensions))
	} else {
		logger.Warn("no embedding credentials configured, using mock embedder",
			zap.Int("dimensions", cfg.Dimensions))
	}

	return &Chain{primary: primary, mock: mock, logger: logger}
}

// NewChainWith wires an explicit primary provider; used by tests.
func NewChainWith(primary Provider, dims int, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{primary: primary, mock: NewMock(dims), logger: logger}
}

// SetObserver attaches a metrics observer. Safe to leave unset.
func (c *Chain) SetObserver(o Observer) { c.observer = o }

func (c *Chain) observe(provider string, err error) {
	if c.observer != nil {
		c.observer.ObserveEmbedding(provider, err)
	}
}

func (c *Chain) Name() string {
	if c.primary != nil {
		return c.primary.Name()
	}
	return c.mock.Name()
}

func (c *Chain) Dimensions() int { return c.mock.Dimensions() }

func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.primary != nil {
		vec, err := c.primary.Embed(ctx, text)
		c.observe(c.primary.Name(), err)
		if err == nil {
			return vec, nil
		}
		c.logger.Warn("remote embedding failed, falling back to mock",
			zap.String("provider", c.primary.Name()),
			zap.Error(err))
	}
	vec, err := c.mock.Embed(ctx, text)
	c.observe(c.mock.Name(), err)
	return vec, err
}

func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.primary != nil {
		vecs, err := c.primary.EmbedBatch(ctx, texts)
		c.observe(c.primary.Name(), err)
		if err == nil {
			return vecs, nil
		}
		c.logger.Warn("remote batch embedding failed, falling back to mock",
			zap.String("provider", c.primary.Name()),
			zap.Int("batch_size", len(texts)),
			zap.Error(err))
	}
	vecs, err := c.mock.EmbedBatch(ctx, texts)
	c.observe(c.mock.Name(), err)
	return vecs, err
}
