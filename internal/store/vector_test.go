package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicvlab/frameseek/internal/errors"
)

const testDims = 8

func newTestIndex(t *testing.T) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(HNSWIndexConfig{Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// axisVec returns a unit vector along the given axis with a small bias so
// vectors on different axes are clearly separated but never orthogonal to
// the query used in the tests.
func axisVec(axis int, scale float32) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = 0.01
	}
	v[axis] = scale
	return v
}

func TestSearchReturnsNearestFirst(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]uint64{1, 2, 3},
		[][]float32{axisVec(0, 1), axisVec(1, 1), axisVec(2, 1)},
	))

	hits, err := idx.Search(ctx, axisVec(0, 1), 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, uint64(1), hits[0].ID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Similarity, hits[i-1].Similarity,
			"similarity must be descending")
	}
	// Identical direction: cosine similarity approaches 1.
	assert.InDelta(t, 1.0, float64(hits[0].Similarity), 1e-3)
}

func TestSearchExcludesIDs(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]uint64{1, 2, 3},
		[][]float32{axisVec(0, 1), axisVec(0, 0.9), axisVec(1, 1)},
	))

	hits, err := idx.Search(ctx, axisVec(0, 1), 3, []uint64{1})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, uint64(1), h.ID)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), axisVec(0, 1), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Search(context.Background(), []float32{1, 2}, 5, nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindBadRequest, errors.KindOf(err))
}

func TestSearchByID(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]uint64{10, 11, 12, 13},
		[][]float32{axisVec(0, 1), axisVec(0, 0.95), axisVec(0, 0.9), axisVec(3, 1)},
	))

	hits, err := idx.SearchByID(ctx, 10, 1, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 2)
	for _, h := range hits {
		assert.NotEqual(t, uint64(10), h.ID, "query id must be excluded")
	}
}

func TestSearchByIDPaging(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	keys := []uint64{1, 2, 3, 4, 5}
	vecs := [][]float32{
		axisVec(0, 1), axisVec(0, 0.99), axisVec(0, 0.98), axisVec(0, 0.97), axisVec(0, 0.96),
	}
	require.NoError(t, idx.Add(ctx, keys, vecs))

	page1, err := idx.SearchByID(ctx, 1, 1, 2, nil)
	require.NoError(t, err)
	page2, err := idx.SearchByID(ctx, 1, 2, 2, nil)
	require.NoError(t, err)

	for _, h1 := range page1 {
		for _, h2 := range page2 {
			assert.NotEqual(t, h1.ID, h2.ID, "pages must not overlap")
		}
	}

	// Far past the candidates: empty, not an error.
	far, err := idx.SearchByID(ctx, 1, 50, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestSearchByIDNotFound(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.SearchByID(context.Background(), 999, 1, 10, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSize(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	assert.Equal(t, uint64(0), idx.Size())
	require.NoError(t, idx.Add(ctx, []uint64{1, 2}, [][]float32{axisVec(0, 1), axisVec(1, 1)}))
	assert.Equal(t, uint64(2), idx.Size())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx := newTestIndex(t)
	require.NoError(t, idx.Add(ctx,
		[]uint64{7, 8},
		[][]float32{axisVec(0, 1), axisVec(1, 1)},
	))
	require.NoError(t, idx.Save(path))

	loaded, err := NewHNSWIndex(HNSWIndexConfig{Dimensions: testDims})
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, uint64(2), loaded.Size())
	hits, err := loaded.SearchByID(ctx, 7, 1, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(8), hits[0].ID)
}
