package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicvlab/frameseek/internal/errors"
)

func embedServer(t *testing.T, dims int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vec := make([]float64, dims)
		for i := range vec {
			vec[i] = float64(len(req.Input)) / float64(i+1)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{vec}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedderEmbed(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, 8, &calls)

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Model: "clip", Dimensions: 8})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "a red car on the highway")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestHTTPEmbedderEmptyInput(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, 8, &calls)

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Dimensions: 8})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.Equal(t, int64(0), calls.Load(), "whitespace input never hits the service")
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHTTPEmbedderDimensionMismatch(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, 4, &calls)

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Dimensions: 8, MaxRetries: 1})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(context.Background(), "query")
	require.Error(t, err)
}

func TestHTTPEmbedderServiceDown(t *testing.T) {
	e, err := NewHTTPEmbedder(HTTPConfig{
		Endpoint: "http://127.0.0.1:1", Dimensions: 8, MaxRetries: 1,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
}

func TestCachedEmbedderHitsCache(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, 8, &calls)

	inner, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Model: "clip", Dimensions: 8})
	require.NoError(t, err)
	e := NewCachedEmbedder(inner, 10)
	defer e.Close()

	ctx := context.Background()
	first, err := e.Embed(ctx, "sunset over the bay")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "sunset over the bay")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "second call served from cache")

	_, err = e.Embed(ctx, "a different query")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}
