package embed

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

	"github.com/aicvlab/frameseek/internal/errors"
)

const (
	defaultDimensions = 1024
	defaultTimeout    = 3 * time.Second
	defaultMaxRetries = 3
	defaultPoolSize   = 4
)

// HTTPConfig configures the embedding service client.
type HTTPConfig struct {
	// Endpoint is the service base URL, e.g. http://localhost:11434.
	Endpoint string
	// Model is the model identifier sent with each request.
	Model string
	// Dimensions is the expected embedding dimension (default: 1024).
	Dimensions int
	// Timeout bounds a single request (default: 3s).
	Timeout time.Duration
	// MaxRetries bounds attempts per call (default: 3).
	MaxRetries int
}

// HTTPEmbedder calls the embedding model service over HTTP.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*HTTPEmbedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewHTTPEmbedder creates the client. No health check is performed; the
// first Embed call surfaces connectivity problems.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedder: endpoint is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        defaultPoolSize,
		MaxIdleConnsPerHost: defaultPoolSize,
		MaxConnsPerHost:     defaultPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// Per-request timeouts come from context, not http.Client.Timeout, so
	// a caller-supplied deadline always wins.
	return &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

// Embed returns the embedding for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errors.Unavailable("embedder closed", nil)
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.config.Dimensions), nil
	}

	var lastErr error
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		vec, err := e.doEmbed(reqCtx, text)
		cancel()
		if err == nil {
			return vec, nil
		}
		lastErr = err

		slog.Debug("embedding attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}

	return nil, errors.Unavailable(
		fmt.Sprintf("embedding service failed after %d attempts", e.config.MaxRetries), lastErr)
}

func (e *HTTPEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	emb := result.Embeddings[0]
	if len(emb) != e.config.Dimensions {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(emb), e.config.Dimensions)
	}

	vec := make([]float32, len(emb))
	for i, v := range emb {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int { return e.config.Dimensions }

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string { return e.config.Model }

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
