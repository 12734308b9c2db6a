// =============================================================================
// RagFlow 文档摄取
// =============================================================================
// 摄取流水线: 抽取 → 分块 → 嵌入 → 入库 → 持久化 → 登记。
// =============================================================================

package rag

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/rag/loader"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// IngestRecorder 在文档入库后记录一条登记信息。
// 实现可以为 nil（登记表禁用时）。
type IngestRecorder interface {
	Record(ctx context.Context, source string, chunkCount int, roles []string) error
}

// IngestResult 是一次摄取的摘要。
type IngestResult struct {
	// Source 来源标识
	Source string `json:"source"`
	// ChunkCount 产生的片段数
	ChunkCount int `json:"chunk_count"`
	// TokenCount 全部片段的 token 总数
	TokenCount int `json:"token_count"`
}

// Ingestor 将文档送入向量存储。
type Ingestor struct {
	splitter *DocumentSplitter
	embedder embedding.Provider
	store    *FlatStore
	storeDir string
	recorder IngestRecorder
	logger   *zap.Logger
}

// NewIngestor 组装摄取器。recorder 可为 nil。
func NewIngestor(splitter *DocumentSplitter, embedder embedding.Provider, store *FlatStore, storeDir string, recorder IngestRecorder, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		storeDir: storeDir,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "ingestor")),
	}
}

// IngestFile 抽取文件文本并摄取。抽取失败（空文本）返回 VALIDATION 错误。
func (ing *Ingestor) IngestFile(ctx context.Context, path string, roles []string) (*IngestResult, error) {
	text := loader.ExtractText(path)
	if text == "" {
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("no text extracted from %s", filepath.Base(path)))
	}
	return ing.IngestText(ctx, text, filepath.Base(path), roles)
}

// IngestText 将原始文本切分、嵌入并写入存储,随后持久化并登记。
func (ing *Ingestor) IngestText(ctx context.Context, text, source string, roles []string) (*IngestResult, error) {
	var extra map[string]any
	if len(roles) > 0 {
		extra = map[string]any{"access_roles": roles}
	}

	chunks := ing.splitter.SplitDocument(text, source, extra)
	if len(chunks) == 0 {
		return nil, types.NewError(types.ErrValidation, "document produced no chunks")
	}

	texts := make([]string, len(chunks))
	tokens := 0
	for i, chunk := range chunks {
		texts[i] = chunk.Text
		tokens += chunk.TokenCount
	}

	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", source, err)
	}

	if err := ing.store.Add(vectors, chunks); err != nil {
		return nil, err
	}

	if ing.storeDir != "" {
		if err := ing.store.Save(ing.storeDir); err != nil {
			return nil, fmt.Errorf("persist store after ingesting %s: %w", source, err)
		}
	}

	if ing.recorder != nil {
		if err := ing.recorder.Record(ctx, source, len(chunks), roles); err != nil {
			// 登记失败不回滚入库,记录告警即可
			ing.logger.Warn("failed to record ingested document",
				zap.String("source", source), zap.Error(err))
		}
	}

	ing.logger.Info("document ingested",
		zap.String("source", source),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", tokens),
		zap.Strings("roles", roles))

	return &IngestResult{Source: source, ChunkCount: len(chunks), TokenCount: tokens}, nil
}
