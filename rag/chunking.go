// =============================================================================
// RagFlow 文本分块
// =============================================================================
// 将原始文档文本切分为有界片段，作为嵌入与检索的最小单元。
// 提供两种策略：
//   - recursive: 段落贪心打包 + 超长段落按句子边界二次切分（默认）
//   - window:    固定大小滑动窗口，支持重叠，保证前进终止
// =============================================================================

package rag

import (
	"regexp"
	"strings"

	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
)

// 分块策略名称
const (
	StrategyRecursive = "recursive"
	StrategyWindow    = "window"
)

// Chunk 是分块产物,一经创建不可变。
type Chunk struct {
	// Text 片段文本
	Text string `json:"text"`
	// Source 来源标识（通常为文件名）
	Source string `json:"source"`
	// Metadata 附加元数据
	Metadata map[string]any `json:"metadata,omitempty"`
	// TokenCount 片段 token 数
	TokenCount int `json:"token_count"`
}

// Chunker 将文本切分为有界片段。
type Chunker interface {
	// Split 切分文本,返回非空片段列表
	Split(text string) []string

	// Strategy 返回策略名称
	Strategy() string
}

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	// Strategy 策略: recursive 或 window,空值视为 recursive
	Strategy string
	// ChunkSize 片段上限（字符数）
	ChunkSize int
	// ChunkOverlap 重叠字符数,仅 window 策略使用
	ChunkOverlap int
}

// NewChunker 按配置构造分块器。
// chunk_overlap >= chunk_size 视为配置错误,构造期即失败。
func NewChunker(cfg ChunkerConfig) (Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, types.NewError(types.ErrConfiguration, "chunk_size must be positive")
	}
	if cfg.ChunkOverlap < 0 {
		return nil, types.NewError(types.ErrConfiguration, "chunk_overlap must be non-negative")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, types.NewError(types.ErrConfiguration, "chunk_overlap must be smaller than chunk_size")
	}

	switch cfg.Strategy {
	case "", StrategyRecursive:
		return &recursiveChunker{size: cfg.ChunkSize}, nil
	case StrategyWindow:
		return &windowChunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
	default:
		return nil, types.NewError(types.ErrConfiguration, "unknown chunking strategy: "+cfg.Strategy)
	}
}

// =============================================================================
// recursive 策略
// =============================================================================

var (
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	sentenceEndRe  = regexp.MustCompile(`[.!?]\s+`)
)

// recursiveChunker 两级贪心打包:先按段落,段落超限时再按句子。
// 贪心打包追求速度而非最优片段数。该策略不产生重叠。
type recursiveChunker struct {
	size int
}

func (c *recursiveChunker) Strategy() string { return StrategyRecursive }

func (c *recursiveChunker) Split(text string) []string {
	text = strings.TrimSpace(multiNewlineRe.ReplaceAllString(text, "\n\n"))
	if text == "" {
		return nil
	}

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// 单段超限:先冲刷缓冲,再按句子切分
		if runeLen(para) > c.size {
			flush()
			chunks = append(chunks, c.splitOversize(para)...)
			continue
		}

		if buf.Len() > 0 && runeLen(buf.String())+2+runeLen(para) > c.size {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()

	return chunks
}

// splitOversize 按句子边界切分超长段落,沿用贪心打包规则。
// 无法再切分的超长句子整句输出,允许超限,绝不截断。
func (c *recursiveChunker) splitOversize(para string) []string {
	sentences := splitSentences(para)

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
	}

	for _, sent := range sentences {
		if runeLen(sent) > c.size {
			flush()
			chunks = append(chunks, sent)
			continue
		}
		if buf.Len() > 0 && runeLen(buf.String())+1+runeLen(sent) > c.size {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sent)
	}
	flush()

	return chunks
}

// splitSentences 在终止标点后的空白处切句,标点保留在前句。
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		// loc[0] 是标点位置,标点归前句
		end := loc[0] + 1
		if s := strings.TrimSpace(text[last:end]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }

// =============================================================================
// window 策略
// =============================================================================

// windowChunker 固定窗口滑动切分。窗口起点每次至少前进 1,
// 步长非正时直接跳到窗口末尾,保证对任意输入终止。
type windowChunker struct {
	size    int
	overlap int
}

func (c *windowChunker) Strategy() string { return StrategyWindow }

func (c *windowChunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.size
		if end > n {
			end = n
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			chunks = append(chunks, s)
		}

		next := start + c.size - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// =============================================================================
// 文档级切分
// =============================================================================

// DocumentSplitter 在 Chunker 之上附加来源、元数据与 token 统计。
type DocumentSplitter struct {
	chunker Chunker
	counter tokenizer.Tokenizer
}

// NewDocumentSplitter wraps a chunker with token counting. model selects the
// tiktoken encoding; empty model uses the character estimator.
func NewDocumentSplitter(chunker Chunker, model string) *DocumentSplitter {
	return &DocumentSplitter{
		chunker: chunker,
		counter: tokenizer.ForModel(model),
	}
}

// SplitDocument 切分整篇文档并为每个片段附加来源与 token 数。
func (s *DocumentSplitter) SplitDocument(text, source string, extra map[string]any) []Chunk {
	pieces := s.chunker.Split(text)
	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, Chunk{
			Text:       piece,
			Source:     source,
			Metadata:   extra,
			TokenCount: tokenizer.MustCount(s.counter, piece),
		})
	}
	return chunks
}
