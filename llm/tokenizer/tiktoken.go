package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings 模型到编码方案的映射表
var modelEncodings = map[string]string{
	// OpenAI 第四/五代模型使用 o200k_base
	"gpt-4o":      "o200k_base",
	"gpt-4o-mini": "o200k_base",
	"gpt-4.1":     "o200k_base",
	"o1":          "o200k_base",
	"o3":          "o200k_base",

	// 早期 GPT-4 / GPT-3.5 与嵌入模型使用 cl100k_base
	"gpt-4":                  "cl100k_base",
	"gpt-4-turbo":            "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-ada-002": "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
}

// TiktokenTokenizer 基于 tiktoken 的精确分词器
type TiktokenTokenizer struct {
	model    string
	encoding string

	once    sync.Once
	initErr error
	enc     *tiktoken.Tiktoken
}

// NewTiktoken creates a tiktoken-backed tokenizer for model. The encoding is
// loaded lazily on first use; an unknown model fails here, a network or data
// failure surfaces on first CountTokens/Encode call.
func NewTiktoken(model string) (*TiktokenTokenizer, error) {
	encoding, ok := modelEncodings[model]
	if !ok {
		return nil, fmt.Errorf("no tiktoken encoding registered for model %q", model)
	}
	return &TiktokenTokenizer{model: model, encoding: encoding}, nil
}

func (t *TiktokenTokenizer) init() {
	t.enc, t.initErr = tiktoken.GetEncoding(t.encoding)
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	t.once.Do(t.init)
	if t.initErr != nil {
		return 0, fmt.Errorf("init encoding %s: %w", t.encoding, t.initErr)
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	t.once.Do(t.init)
	if t.initErr != nil {
		return nil, fmt.Errorf("init encoding %s: %w", t.encoding, t.initErr)
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	t.once.Do(t.init)
	if t.initErr != nil {
		return "", fmt.Errorf("init encoding %s: %w", t.encoding, t.initErr)
	}
	return t.enc.Decode(tokens), nil
}

func (t *TiktokenTokenizer) Name() string {
	return "tiktoken/" + t.encoding
}
