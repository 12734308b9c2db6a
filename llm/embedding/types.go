// =============================================================================
// RagFlow Embedding Providers
// =============================================================================
// Text embedding with a construction-time credential chain and a deterministic
// offline fallback. Remote failures never surface to callers: each failed call
// degrades to the mock embedder so ingestion and retrieval keep working.
// =============================================================================

package embedding

import "context"

// Provider 定义了文本嵌入接口。
type Provider interface {
	// Embed 将单条文本转换为向量
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 将多条文本批量转换为向量，结果与输入一一对应
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions 返回向量维度
	Dimensions() int

	// Name 返回提供者名称
	Name() string
}
