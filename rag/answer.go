// =============================================================================
// RagFlow 答案生成
// =============================================================================
// 基于检索上下文生成有据可依的回答。该组件是异常的终点:
// 提供者错误一律转化为答案文本,绝不向调用方抛出。
// =============================================================================

package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// 生成约束
const (
	// groundedSystemPrompt 只允许基于上下文作答
	groundedSystemPrompt = "You are a helpful assistant. Answer the user's question based ONLY on the provided context. " +
		"If the context does not contain the answer, say so explicitly. Do not use outside knowledge. Be concise and accurate."

	// notInitializedAnswer 无可用 LLM 凭据时的固定回答
	notInitializedAnswer = "Answer generation is unavailable: language model client not initialized. " +
		"Set a GitHub Models token or an OpenAI API key to enable it."

	// noResultsAnswer 检索为空时的固定回答
	noResultsAnswer = "I couldn't find any relevant information in the documents."

	// contextTokenBudget 上下文预算,超出部分的片段被丢弃
	contextTokenBudget = 6000

	// excerptLimit 证据摘录长度上限（字符）
	excerptLimit = 200
)

var waitSecondsRe = regexp.MustCompile(`(?i)wait (\d+) seconds`)

// Evidence 是支撑答案的来源摘录。
type Evidence struct {
	Source  string `json:"source"`
	Excerpt string `json:"excerpt"`
}

// GeneratedAnswer 是生成结果,始终良构,即使生成完全失败。
type GeneratedAnswer struct {
	Answer     string     `json:"answer"`
	Evidence   []Evidence `json:"evidence"`
	Confidence float64    `json:"confidence"`
}

// AnswerGenerator 封装聊天提供者,将检索结果渲染为回答。
// provider 可以为 nil（未解析到任何凭据）,此时返回固定的降级回答。
type AnswerGenerator struct {
	provider llm.Provider
	model    string
	maxTok   int
	counter  tokenizer.Tokenizer
	observer CompletionObserver
	logger   *zap.Logger
}

// CompletionObserver 接收每次补全调用的提供者、token 用量与结果,
// 用于指标采集。
type CompletionObserver interface {
	ObserveLLM(provider string, promptTokens, completionTokens int, err error)
}

// NewAnswerGenerator 组装生成器。provider 为 nil 时仍可用,走降级路径。
func NewAnswerGenerator(provider llm.Provider, model string, maxTokens int, logger *zap.Logger) *AnswerGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerGenerator{
		provider: provider,
		model:    model,
		maxTok:   maxTokens,
		counter:  tokenizer.ForModel(model),
		logger:   logger.With(zap.String("component", "answer_generator")),
	}
}

// Ready reports whether a chat provider was resolved.
func (g *AnswerGenerator) Ready() bool { return g.provider != nil }

// SetObserver attaches a metrics observer. Safe to leave unset.
func (g *AnswerGenerator) SetObserver(o CompletionObserver) { g.observer = o }

// Generate 基于检索结果回答 query。永不返回错误:
// 任何失败都被渲染进 Answer 字段,Confidence 反映检索广度。
func (g *AnswerGenerator) Generate(ctx context.Context, query string, results []RetrievalResult) GeneratedAnswer {
	if len(results) == 0 {
		return GeneratedAnswer{Answer: noResultsAnswer, Evidence: []Evidence{}, Confidence: 0.3}
	}

	contextStr := g.BuildContext(results)
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextStr, query)

	answer := g.Complete(ctx, groundedSystemPrompt, userPrompt, 0, "answer")

	return GeneratedAnswer{
		Answer:     answer,
		Evidence:   BuildEvidence(results, 3),
		Confidence: Confidence(0.6, 0.1, len(results)),
	}
}

// BuildContext 将检索结果拼接为带来源标签的上下文块,
// 并按 token 预算丢弃放不下的尾部片段。
func (g *AnswerGenerator) BuildContext(results []RetrievalResult) string {
	var blocks []string
	used := 0
	for _, res := range results {
		block := fmt.Sprintf("--- Source: %s ---\n%s", res.Source, res.Text)
		n := tokenizer.MustCount(g.counter, block)
		if used > 0 && used+n > contextTokenBudget {
			g.logger.Debug("context budget reached, dropping remaining chunks",
				zap.Int("kept", len(blocks)), zap.Int("total", len(results)))
			break
		}
		blocks = append(blocks, block)
		used += n
	}
	return strings.Join(blocks, "\n\n")
}

// Complete 调用聊天提供者并把一切失败整形为文本。
// label 描述生成目标（answer/comparison/summary/analysis）,用于错误措辞。
func (g *AnswerGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, label string) string {
	if g.provider == nil {
		return notInitializedAnswer
	}

	resp, err := g.provider.Completion(ctx, &llm.ChatRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		MaxTokens:   g.maxTok,
		Temperature: temperature,
	})
	if g.observer != nil {
		var prompt, completion int
		if resp != nil {
			prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		g.observer.ObserveLLM(g.provider.Name(), prompt, completion, err)
	}
	if err != nil {
		g.logger.Warn("completion failed, shaping error into answer",
			zap.String("provider", g.provider.Name()), zap.Error(err))
		return shapeCompletionError(err, label)
	}

	return resp.Text()
}

// shapeCompletionError 将提供者错误转化为用户可见文本。
// 速率限制错误携带解析出的等待时长（小时,一位小数）。
func shapeCompletionError(err error, label string) string {
	msg := err.Error()

	if isRateLimited(err) {
		if m := waitSecondsRe.FindStringSubmatch(msg); m != nil {
			var seconds int
			fmt.Sscanf(m[1], "%d", &seconds)
			return fmt.Sprintf("API rate limit exceeded: please wait %.1f hours before trying again.", float64(seconds)/3600)
		}
		return "API rate limit exceeded: please wait approximately 24 hours before trying again."
	}

	return fmt.Sprintf("Error generating %s: %s", label, msg)
}

// isRateLimited 识别速率限制:优先看结构化错误码与 HTTP 状态,
// 其次回退到消息文本签名（上游把状态码嵌进消息的情况）。
func isRateLimited(err error) bool {
	if types.GetErrorCode(err) == types.ErrRateLimited {
		return true
	}
	var te *types.Error
	if errors.As(err, &te) && te.HTTPStatus == 429 {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RateLimitReached") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}

// BuildEvidence 取前 limit 条结果,摘录截断到 200 字符并附省略号。
func BuildEvidence(results []RetrievalResult, limit int) []Evidence {
	if limit > len(results) {
		limit = len(results)
	}
	evidence := make([]Evidence, 0, limit)
	for _, res := range results[:limit] {
		evidence = append(evidence, Evidence{Source: res.Source, Excerpt: Excerpt(res.Text)})
	}
	return evidence
}

// Excerpt 截断文本到证据摘录上限。
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + "..."
}

// Confidence 计算启发式置信度: min(0.95, baseline + count*increment),
// 保留两位小数。反映检索广度,不是校准概率。
func Confidence(baseline, increment float64, count int) float64 {
	c := baseline + float64(count)*increment
	if c > 0.95 {
		c = 0.95
	}
	return math.Round(c*100) / 100
}
