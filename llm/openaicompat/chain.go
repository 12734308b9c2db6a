package openaicompat

import (
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/llm"
	"go.uber.org/zap"
)

// Default endpoints for the supported backends.
const (
	GitHubModelsBaseURL = "https://models.inference.ai.azure.com"
	OpenAIBaseURL       = "https://api.openai.com/v1"
)

// Resolve 按凭据优先级选择聊天 Provider：
//
//	GitHub Models Token → OpenAI API Key → nil
//
// 选择在构造期一次性完成，之后不再切换。没有任何凭据时返回 nil，
// 由调用方（AnswerGenerator）负责降级处理。
func Resolve(cfg config.LLMConfig, logger *zap.Logger) llm.Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch {
	case cfg.GitHubToken != "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GitHubModelsBaseURL
		}
		logger.Info("llm provider resolved",
			zap.String("provider", "github-models"),
			zap.String("model", cfg.Model))
		return New(Config{
			ProviderName: "github-models",
			APIKey:       cfg.GitHubToken,
			BaseURL:      baseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
		}, logger)

	case cfg.OpenAIKey != "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = OpenAIBaseURL
		}
		logger.Info("llm provider resolved",
			zap.String("provider", "openai"),
			zap.String("model", cfg.Model))
		return New(Config{
			ProviderName: "openai",
			APIKey:       cfg.OpenAIKey,
			BaseURL:      baseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
		}, logger)

	default:
		logger.Warn("no llm credentials configured, answer generation will degrade")
		return nil
	}
}
