// Package translate normalizes query text into the language of the
// embedding model by calling a translation service.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Translator converts query text to the target language. Input is
// lowercased before translation so caching and the downstream text
// channels see canonical text.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	Close() error
}

// Noop passes text through lowercased, for deployments whose queries are
// already in the model language.
type Noop struct{}

func (Noop) Translate(_ context.Context, text string) (string, error) {
	return strings.ToLower(strings.TrimSpace(text)), nil
}

func (Noop) Close() error { return nil }

// HTTPConfig configures the translation service client.
type HTTPConfig struct {
	// Endpoint is the service base URL.
	Endpoint string
	// Source is the expected query language (default: auto).
	Source string
	// Target is the model language (default: en).
	Target string
	// Timeout bounds a single request (default: 3s).
	Timeout time.Duration
	// CacheSize bounds the translation cache (default: 1000).
	CacheSize int
}

// HTTPTranslator calls a LibreTranslate-style endpoint with an LRU cache
// in front. A failed translation falls back to the lowercased input so
// search degrades instead of failing.
type HTTPTranslator struct {
	client *http.Client
	config HTTPConfig
	cache  *lru.Cache[string, string]

	mu     sync.Mutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Translator = (*HTTPTranslator)(nil)

type translateRequest struct {
	Text   string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// NewHTTPTranslator creates the client.
func NewHTTPTranslator(cfg HTTPConfig) (*HTTPTranslator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("translator: endpoint is required")
	}
	if cfg.Source == "" {
		cfg.Source = "auto"
	}
	if cfg.Target == "" {
		cfg.Target = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	cache, _ := lru.New[string, string](cfg.CacheSize)
	return &HTTPTranslator{
		client: &http.Client{},
		config: cfg,
		cache:  cache,
	}, nil
}

// Translate lowercases text and translates it to the target language.
func (t *HTTPTranslator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", nil
	}

	if out, ok := t.cache.Get(text); ok {
		return out, nil
	}

	out, err := t.doTranslate(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("translation failed, using untranslated query",
			slog.String("error", err.Error()))
		return text, nil
	}

	t.cache.Add(text, out)
	return out, nil
}

func (t *HTTPTranslator) doTranslate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Text: text, Source: t.config.Source, Target: t.config.Target,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		t.config.Endpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("translation service status %d: %s", resp.StatusCode, string(respBody))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}

	out := strings.ToLower(strings.TrimSpace(result.TranslatedText))
	if out == "" {
		return "", fmt.Errorf("empty translation returned")
	}
	return out, nil
}

// Close releases idle connections.
func (t *HTTPTranslator) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.client.CloseIdleConnections()
	return nil
}
