package rag

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestStore(t *testing.T, dims int, metric string) *FlatStore {
	t.Helper()
	store, err := NewFlatStore(dims, metric, nil)
	require.NoError(t, err)
	return store
}

func TestNewFlatStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewFlatStore(0, MetricL2, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	_, err = NewFlatStore(4, "manhattan", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestAddLengthMismatchRejectedBeforeMutation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 2, MetricL2)

	err := store.Add([][]float32{{1, 2}, {3, 4}}, []Chunk{{Text: "only one"}})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	assert.Equal(t, 0, store.Len())
}

func TestAddDimensionMismatchRejected(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 3, MetricL2)

	err := store.Add([][]float32{{1, 2}}, []Chunk{{Text: "wrong dims"}})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	assert.Equal(t, 0, store.Len())
}

func TestSearchAscendingDistance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 2, MetricL2)
	require.NoError(t, store.Add(
		[][]float32{{0, 0}, {3, 0}, {1, 0}},
		[]Chunk{{Text: "origin"}, {Text: "far"}, {Text: "near"}},
	))

	hits, err := store.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "origin", hits[0].Document.Text)
	assert.Equal(t, "near", hits[1].Document.Text)
	assert.Equal(t, "far", hits[2].Document.Text)
	assert.Equal(t, 0.0, hits[0].Distance)
	assert.Equal(t, 1.0, hits[1].Distance)
	assert.Equal(t, 9.0, hits[2].Distance)
}

func TestSearchKExceedsCount(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 2, MetricL2)
	require.NoError(t, store.Add([][]float32{{1, 1}}, []Chunk{{Text: "solo"}}))

	hits, err := store.Search([]float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchEmptyStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 2, MetricL2)
	hits, err := store.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCosineMetric(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 2, MetricCosine)
	require.NoError(t, store.Add(
		[][]float32{{1, 0}, {0, 1}, {-1, 0}},
		[]Chunk{{Text: "same"}, {Text: "orthogonal"}, {Text: "opposite"}},
	))

	hits, err := store.Search([]float32{2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "same", hits[0].Document.Text)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "orthogonal", hits[1].Document.Text)
	assert.InDelta(t, 1.0, hits[1].Distance, 1e-9)
	assert.Equal(t, "opposite", hits[2].Document.Text)
	assert.InDelta(t, 2.0, hits[2].Distance, 1e-9)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store := newTestStore(t, 2, MetricL2)
	require.NoError(t, store.Add(
		[][]float32{{1, 2}, {3, 4}},
		[]Chunk{
			{Text: "first", Source: "a.txt", Metadata: map[string]any{"access_roles": []any{"hr"}}},
			{Text: "second", Source: "b.txt"},
		},
	))
	require.NoError(t, store.Save(dir))

	loaded, err := LoadFlatStore(dir, 2, MetricL2, nil)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	hits, err := loaded.Search([]float32{1, 2}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "first", hits[0].Document.Text)
	assert.Equal(t, "a.txt", hits[0].Document.Source)
}

func TestLoadMissingDirStartsEmpty(t *testing.T) {
	t.Parallel()

	store, err := LoadFlatStore(filepath.Join(t.TempDir(), "nope"), 4, MetricL2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestLoadCorruptIndexStartsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.gob"), []byte("not gob data"), 0o644))

	store, err := LoadFlatStore(dir, 4, MetricL2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestLoadDimensionMismatchStartsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := newTestStore(t, 2, MetricL2)
	require.NoError(t, store.Add([][]float32{{1, 2}}, []Chunk{{Text: "x"}}))
	require.NoError(t, store.Save(dir))

	loaded, err := LoadFlatStore(dir, 8, MetricL2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestReadPersistedErrorCodes(t *testing.T) {
	t.Parallel()

	corrupt := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "index.gob"), []byte("not gob data"), 0o644))
	_, _, err := readPersisted(corrupt, 4)
	assert.Equal(t, types.ErrStoreCorrupt, types.GetErrorCode(err))

	mismatched := t.TempDir()
	store := newTestStore(t, 2, MetricL2)
	require.NoError(t, store.Add([][]float32{{1, 2}}, []Chunk{{Text: "x"}}))
	require.NoError(t, store.Save(mismatched))
	_, _, err = readPersisted(mismatched, 8)
	assert.Equal(t, types.ErrDimensionError, types.GetErrorCode(err))
}

func TestSearchOrderingProperty(t *testing.T) {
	// 任意向量集合上,检索结果距离单调不减且数量为 min(k, n)
	rapid.Check(t, func(t *rapid.T) {
		dims := rapid.IntRange(1, 8).Draw(t, "dims")
		n := rapid.IntRange(0, 32).Draw(t, "n")
		k := rapid.IntRange(1, 40).Draw(t, "k")

		store, err := NewFlatStore(dims, MetricL2, nil)
		require.NoError(t, err)

		gen := rapid.Float32Range(-10, 10)
		vectors := make([][]float32, n)
		chunks := make([]Chunk, n)
		for i := 0; i < n; i++ {
			vec := make([]float32, dims)
			for j := range vec {
				vec[j] = gen.Draw(t, "v")
			}
			vectors[i] = vec
			chunks[i] = Chunk{Text: "doc"}
		}
		require.NoError(t, store.Add(vectors, chunks))

		query := make([]float32, dims)
		for j := range query {
			query[j] = gen.Draw(t, "q")
		}

		hits, err := store.Search(query, k)
		require.NoError(t, err)

		want := k
		if n < k {
			want = n
		}
		if len(hits) != want {
			t.Fatalf("got %d hits, want %d", len(hits), want)
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Distance < hits[i-1].Distance {
				t.Fatalf("distances not ascending at %d", i)
			}
		}
		for _, h := range hits {
			if math.IsNaN(h.Distance) {
				t.Fatal("NaN distance")
			}
		}
	})
}
