package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLowercases(t *testing.T) {
	out, err := Noop{}.Translate(context.Background(), "  Red CAR  ")
	require.NoError(t, err)
	assert.Equal(t, "red car", out)
}

func TestHTTPTranslatorTranslatesAndCaches(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "xe màu đỏ", req.Text, "input is lowercased before the call")
		_ = json.NewEncoder(w).Encode(translateResponse{TranslatedText: "red car"})
	}))
	defer srv.Close()

	tr, err := NewHTTPTranslator(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer tr.Close()

	ctx := context.Background()
	out, err := tr.Translate(ctx, "Xe MÀU đỏ")
	require.NoError(t, err)
	assert.Equal(t, "red car", out)

	out, err = tr.Translate(ctx, "xe màu đỏ")
	require.NoError(t, err)
	assert.Equal(t, "red car", out)
	assert.Equal(t, int64(1), calls.Load(), "second call served from cache")
}

func TestHTTPTranslatorFallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, err := NewHTTPTranslator(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer tr.Close()

	out, err := tr.Translate(context.Background(), "Red Car")
	require.NoError(t, err)
	assert.Equal(t, "red car", out, "untranslated lowercase fallback")
}

func TestHTTPTranslatorEmptyInput(t *testing.T) {
	tr, err := NewHTTPTranslator(HTTPConfig{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	defer tr.Close()

	out, err := tr.Translate(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, out)
}
