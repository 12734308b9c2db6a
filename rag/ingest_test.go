package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRegistry struct {
	sources []string
	chunks  []int
}

func (r *recordingRegistry) Record(_ context.Context, source string, chunkCount int, _ []string) error {
	r.sources = append(r.sources, source)
	r.chunks = append(r.chunks, chunkCount)
	return nil
}

func newTestIngestor(t *testing.T, storeDir string, recorder IngestRecorder) (*Ingestor, *FlatStore) {
	t.Helper()

	chunker, err := NewChunker(ChunkerConfig{ChunkSize: 500})
	require.NoError(t, err)
	store, err := NewFlatStore(64, MetricL2, nil)
	require.NoError(t, err)

	ing := NewIngestor(NewDocumentSplitter(chunker, ""), embedding.NewMock(64), store, storeDir, recorder, nil)
	return ing, store
}

func TestIngestTextStoresAndRecords(t *testing.T) {
	t.Parallel()

	registry := &recordingRegistry{}
	ing, store := newTestIngestor(t, "", registry)

	res, err := ing.IngestText(context.Background(), "Returns accepted within 30 days.", "refund.txt", []string{"hr"})
	require.NoError(t, err)

	assert.Equal(t, "refund.txt", res.Source)
	assert.Equal(t, 1, res.ChunkCount)
	assert.Greater(t, res.TokenCount, 0)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{"refund.txt"}, registry.sources)
}

func TestIngestFilePersistsStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	docPath := filepath.Join(dir, "policy.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("All refunds are processed in 5 days."), 0o644))

	storeDir := filepath.Join(dir, "store")
	ing, _ := newTestIngestor(t, storeDir, nil)

	_, err := ing.IngestFile(context.Background(), docPath, nil)
	require.NoError(t, err)

	// 摄取后存储应已落盘,可重新加载
	loaded, err := LoadFlatStore(storeDir, 64, MetricL2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestIngestFileUnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deck.pptx")
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o644))

	ing, _ := newTestIngestor(t, "", nil)
	_, err := ing.IngestFile(context.Background(), path, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestIngestedRolesFlowToRetrieval(t *testing.T) {
	t.Parallel()

	ing, store := newTestIngestor(t, "", nil)
	embedder := embedding.NewMock(64)

	_, err := ing.IngestText(context.Background(), "Quarterly audit checklist.", "audit.txt", []string{"finance"})
	require.NoError(t, err)

	r := NewRetriever(embedder, store, nil)

	results, err := r.Retrieve(context.Background(), "audit", 5, []string{"finance"})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = r.Retrieve(context.Background(), "audit", 5, []string{"sales"})
	require.NoError(t, err)
	assert.Empty(t, results)
}
