// Package ragflow provides a top-level convenience entry point for assembling
// the full question answering pipeline from a single configuration.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow"
//
//	cfg := config.DefaultConfig()
//	pipe, err := ragflow.Open(cfg, logger)
//	resp := pipe.Orchestrator.Search(ctx, "compare vacation and sick leave", nil)
//
// This is a thin wrapper around the individual package constructors; callers
// that need finer control can wire rag, llm/embedding and agent directly.
package ragflow

import (
	"fmt"

	"github.com/BaSui01/ragflow/agent"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/registry"
	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/llm/openaicompat"
	"github.com/BaSui01/ragflow/rag"
	"go.uber.org/zap"
)

// Pipeline 是按配置装配出的完整问答链路。
// 所有组件共享同一个向量存储与嵌入链。
type Pipeline struct {
	Store        *rag.FlatStore
	Embedder     *embedding.Chain
	Retriever    *rag.Retriever
	Generator    *rag.AnswerGenerator
	Orchestrator *agent.Orchestrator
	Ingestor     *rag.Ingestor
	Registry     *registry.Registry
}

// Open 按配置装配核心组件。registry 路径为空时禁用登记表。
// 凭据缺失不会导致失败:嵌入降级为 mock,答案生成返回降级提示。
func Open(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := rag.LoadFlatStore(cfg.Store.Dir, cfg.Store.Dimensions, cfg.Store.Metric, logger)
	if err != nil {
		return nil, err
	}

	embedder := embedding.NewChain(cfg.Embedding, logger)
	provider := openaicompat.Resolve(cfg.LLM, logger)

	chunker, err := rag.NewChunker(rag.ChunkerConfig{
		Strategy:     cfg.Chunking.Strategy,
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	var reg *registry.Registry
	if cfg.Registry.Path != "" {
		reg, err = registry.Open(cfg.Registry.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
	}

	retriever := rag.NewRetriever(embedder, store, logger)
	generator := rag.NewAnswerGenerator(provider, cfg.LLM.Model, cfg.LLM.MaxTokens, logger)
	splitter := rag.NewDocumentSplitter(chunker, cfg.Chunking.TokenizerModel)

	var recorder rag.IngestRecorder
	if reg != nil {
		recorder = reg
	}

	return &Pipeline{
		Store:        store,
		Embedder:     embedder,
		Retriever:    retriever,
		Generator:    generator,
		Orchestrator: agent.NewOrchestrator(retriever, generator, logger),
		Ingestor:     rag.NewIngestor(splitter, embedder, store, cfg.Store.Dir, recorder, logger),
		Registry:     reg,
	}, nil
}
