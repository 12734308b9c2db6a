// =============================================================================
// RagFlow Tokenizer
// =============================================================================
// Token counting for chunking and context budgeting. Backed by tiktoken when
// the encoding is available, with a character-based estimator as fallback.
// =============================================================================

package tokenizer

// Tokenizer 提供文本的 token 统计与编解码能力。
type Tokenizer interface {
	// CountTokens 统计文本的 token 数量
	CountTokens(text string) (int, error)

	// Encode 将文本编码为 token ID 序列
	Encode(text string) ([]int, error)

	// Decode 将 token ID 序列解码为文本
	Decode(tokens []int) (string, error)

	// Name 返回分词器名称
	Name() string
}

// ForModel returns a tokenizer for the given model. When the model has no
// known tiktoken encoding, or the encoding cannot be initialized, the
// character estimator is returned instead.
func ForModel(model string) Tokenizer {
	if model == "" {
		return NewEstimator()
	}
	tk, err := NewTiktoken(model)
	if err != nil {
		return NewEstimator()
	}
	return tk
}

// MustCount counts tokens and falls back to the estimator on error.
func MustCount(t Tokenizer, text string) int {
	n, err := t.CountTokens(text)
	if err != nil {
		n, _ = NewEstimator().CountTokens(text)
	}
	return n
}
