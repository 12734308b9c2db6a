// =============================================================================
// RagFlow 检索器
// =============================================================================
// 组合嵌入提供者与向量存储:嵌入查询 → k-NN 超量取回 → 角色过滤 → 截断。
// =============================================================================

package rag

import (
	"context"

	"github.com/BaSui01/ragflow/llm/embedding"
	"go.uber.org/zap"
)

// AdminRole 持有该角色的请求方可见所有文档
const AdminRole = "admin"

// RetrievalResult 是单条检索结果,由 SearchHit 派生,不持久化。
type RetrievalResult struct {
	// Text 片段文本
	Text string `json:"text"`
	// Source 来源标识
	Source string `json:"source"`
	// Similarity = 1/(1+distance),落在 (0,1]
	Similarity float64 `json:"similarity_score"`
	// Distance 原始距离
	Distance float64 `json:"raw_distance"`
	// Metadata 文档元数据
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retriever 执行角色感知的语义检索。
type Retriever struct {
	embedder embedding.Provider
	store    *FlatStore
	logger   *zap.Logger
}

// NewRetriever 组装检索器
func NewRetriever(embedder embedding.Provider, store *FlatStore, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve 返回与 query 最相关的至多 k 条结果,按相近度降序。
//
// allowedRoles 非空时,仅保留 access_roles 与 allowedRoles ∪ {admin}
// 有交集的文档;为空时不过滤。为在过滤后仍能凑足 k 条,先取回 2k 候选。
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, allowedRoles []string) ([]RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.store.Search(vec, 2*k)
	if err != nil {
		return nil, err
	}

	results := make([]RetrievalResult, 0, k)
	for _, hit := range hits {
		if !roleVisible(hit.Document.Metadata, allowedRoles) {
			continue
		}
		results = append(results, RetrievalResult{
			Text:       hit.Document.Text,
			Source:     hit.Document.Source,
			Similarity: 1 / (1 + hit.Distance),
			Distance:   hit.Distance,
			Metadata:   hit.Document.Metadata,
		})
		if len(results) == k {
			break
		}
	}

	r.logger.Debug("retrieval completed",
		zap.Int("k", k),
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(results)),
		zap.Strings("allowed_roles", allowedRoles))

	return results, nil
}

// roleVisible 判断文档对给定角色集合是否可见。
// 空 allowedRoles 表示开放访问;持有 admin 角色的请求方可见一切;
// 标记为 admin 的文档对所有请求方可见（通用文档约定）。
func roleVisible(metadata map[string]any, allowedRoles []string) bool {
	if len(allowedRoles) == 0 {
		return true
	}

	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		allowed[role] = struct{}{}
	}
	if _, ok := allowed[AdminRole]; ok {
		return true
	}

	for _, role := range rolesFromMetadata(metadata) {
		if role == AdminRole {
			return true
		}
		if _, ok := allowed[role]; ok {
			return true
		}
	}
	return false
}

// rolesFromMetadata 读取 access_roles。
// JSON 反序列化后切片元素是 any,需要两种形态都支持。
func rolesFromMetadata(metadata map[string]any) []string {
	raw, ok := metadata["access_roles"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
