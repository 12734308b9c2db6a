// =============================================================================
// RagFlow 向量存储
// =============================================================================
// 进程内扁平向量存储:向量与文档元数据平行存放,暴力扫描检索。
// 追加写入,无删除/更新路径;持久化为 gob 索引 + JSON 元数据两件套。
// =============================================================================

package rag

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BaSui01/ragflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 距离度量名称
const (
	MetricL2     = "l2"
	MetricCosine = "cosine"
)

// 持久化文件名
const (
	indexFileName    = "index.gob"
	metadataFileName = "metadata.json"
)

// IndexedDocument 是入库后的文档片段,创建后不再修改。
type IndexedDocument struct {
	// ID 唯一标识
	ID string `json:"id"`
	// Text 片段文本
	Text string `json:"text"`
	// Source 来源标识
	Source string `json:"source"`
	// Metadata 附加元数据（含 access_roles）
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchHit 是一次 k-NN 检索的单条结果。
type SearchHit struct {
	// Document 命中的文档
	Document IndexedDocument
	// Distance 与查询向量的距离,越小越近
	Distance float64
}

// distanceFunc 计算两个等维向量的距离
type distanceFunc func(a, b []float32) float64

// squaredL2 平方欧氏距离,与 FAISS IndexFlatL2 一致,不做归一化
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// cosineDistance = 1 - 余弦相似度;零向量按最远处理
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// FlatStore 是单进程内存向量存储。
// 并发安全:add 与 search 通过读写锁串行化,插入对检索原子可见。
type FlatStore struct {
	mu      sync.RWMutex
	dims    int
	metric  string
	dist    distanceFunc
	vectors [][]float32
	docs    []IndexedDocument
	logger  *zap.Logger
}

// NewFlatStore creates an empty store with fixed dimensionality.
// metric selects the distance backend: MetricL2 (default) or MetricCosine.
func NewFlatStore(dims int, metric string, logger *zap.Logger) (*FlatStore, error) {
	if dims <= 0 {
		return nil, types.NewError(types.ErrConfiguration, "store dimensions must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var dist distanceFunc
	switch metric {
	case "", MetricL2:
		metric = MetricL2
		dist = squaredL2
	case MetricCosine:
		dist = cosineDistance
	default:
		return nil, types.NewError(types.ErrConfiguration, "unknown distance metric: "+metric)
	}

	return &FlatStore{
		dims:   dims,
		metric: metric,
		dist:   dist,
		logger: logger.With(zap.String("component", "vector_store")),
	}, nil
}

// Dims 返回存储的固定向量维度
func (s *FlatStore) Dims() int { return s.dims }

// Metric 返回距离度量名称
func (s *FlatStore) Metric() string { return s.metric }

// Len 返回已存储的文档数量
func (s *FlatStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Add 原子追加一批 (向量, 片段)。
// 输入长度或维度不匹配时返回 VALIDATION 错误,且不产生任何修改。
func (s *FlatStore) Add(vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return types.NewError(types.ErrValidation,
			fmt.Sprintf("vectors and chunks length mismatch: %d vs %d", len(vectors), len(chunks)))
	}
	for i, vec := range vectors {
		if len(vec) != s.dims {
			return types.NewError(types.ErrValidation,
				fmt.Sprintf("vector %d has %d dimensions, store expects %d", i, len(vec), s.dims))
		}
	}

	docs := make([]IndexedDocument, len(chunks))
	for i, chunk := range chunks {
		docs[i] = IndexedDocument{
			ID:       uuid.NewString(),
			Text:     chunk.Text,
			Source:   chunk.Source,
			Metadata: chunk.Metadata,
		}
	}

	s.mu.Lock()
	s.vectors = append(s.vectors, vectors...)
	s.docs = append(s.docs, docs...)
	s.mu.Unlock()

	s.logger.Debug("documents added", zap.Int("count", len(docs)))
	return nil
}

// Search 暴力扫描返回最近的 min(k, n) 条结果,按距离升序。
func (s *FlatStore) Search(query []float32, k int) ([]SearchHit, error) {
	if len(query) != s.dims {
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("query vector has %d dimensions, store expects %d", len(query), s.dims))
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]SearchHit, len(s.docs))
	for i := range s.docs {
		hits[i] = SearchHit{
			Document: s.docs[i],
			Distance: s.dist(query, s.vectors[i]),
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// =============================================================================
// 持久化
// =============================================================================

// indexBlob 是 gob 索引文件的结构
type indexBlob struct {
	Dims    int
	Metric  string
	Vectors [][]float32
}

// Save 将索引与元数据写入 dir 下的两个并置文件。
func (s *FlatStore) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	s.mu.RLock()
	blob := indexBlob{Dims: s.dims, Metric: s.metric, Vectors: s.vectors}
	docs := s.docs
	s.mu.RUnlock()

	indexFile, err := os.Create(filepath.Join(dir, indexFileName))
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer indexFile.Close()

	if err := gob.NewEncoder(indexFile).Encode(blob); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	metaData, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFileName), metaData, 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}

	s.logger.Info("store saved", zap.String("dir", dir), zap.Int("documents", len(docs)))
	return nil
}

// LoadFlatStore 从 dir 恢复存储。任一文件缺失或损坏时
// 记录警告并返回全新的空存储,绝不让进程启动失败。
func LoadFlatStore(dir string, dims int, metric string, logger *zap.Logger) (*FlatStore, error) {
	store, err := NewFlatStore(dims, metric, logger)
	if err != nil {
		return nil, err
	}

	vectors, docs, err := readPersisted(dir, dims)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			store.logger.Warn("failed to restore persisted store, starting empty",
				zap.String("code", string(types.GetErrorCode(err))), zap.Error(err))
		}
		return store, nil
	}

	store.vectors = vectors
	store.docs = docs
	store.logger.Info("store loaded", zap.String("dir", dir), zap.Int("documents", len(docs)))
	return store, nil
}

// readPersisted 读取持久化的两件套。文件缺失返回 os.ErrNotExist;
// 内容损坏或两文件失配返回 STORE_CORRUPT;维度不符返回 DIMENSION_MISMATCH。
func readPersisted(dir string, dims int) ([][]float32, []IndexedDocument, error) {
	indexFile, err := os.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, nil, err
	}
	defer indexFile.Close()

	var blob indexBlob
	if err := gob.NewDecoder(indexFile).Decode(&blob); err != nil {
		return nil, nil, types.NewError(types.ErrStoreCorrupt, "corrupt index file").WithCause(err)
	}
	if blob.Dims != dims {
		return nil, nil, types.NewError(types.ErrDimensionError,
			fmt.Sprintf("persisted index has %d dimensions, store expects %d", blob.Dims, dims))
	}

	metaData, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, nil, err
	}

	var docs []IndexedDocument
	if err := json.Unmarshal(metaData, &docs); err != nil {
		return nil, nil, types.NewError(types.ErrStoreCorrupt, "corrupt metadata file").WithCause(err)
	}
	if len(docs) != len(blob.Vectors) {
		return nil, nil, types.NewError(types.ErrStoreCorrupt,
			fmt.Sprintf("index and metadata out of sync: %d vectors, %d documents", len(blob.Vectors), len(docs)))
	}

	return blob.Vectors, docs, nil
}
