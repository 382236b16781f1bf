package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/aicvlab/frameseek/internal/errors"
)

// BleveTextIndex wraps bleve v2 for relevance-scored full-text search
// over transcript text. Document ids are decimal keyframe keys for OCR
// and decimal caption row ids for speech captions.
type BleveTextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveDocument is the indexed document shape.
type bleveDocument struct {
	Text string `json:"text"`
}

// Verify interface implementation at compile time.
var _ TextIndex = (*BleveTextIndex)(nil)

// NewBleveTextIndex opens or creates a text index. An empty path gives an
// in-memory index (tests). A corrupted on-disk index is cleared and
// recreated; reindexing is up to the ingest pipeline.
func NewBleveTextIndex(path string) (*BleveTextIndex, error) {
	indexMapping := createTextMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		if validErr := validateIndexMeta(path); validErr != nil {
			slog.Warn("text index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupted index at %s: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open text index: %w", err)
	}

	return &BleveTextIndex{index: idx, path: path}, nil
}

func createTextMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = standard.Name
	return m
}

// validateIndexMeta sniffs index_meta.json before opening; a missing or
// unparseable meta file means a partial write or binary-incompatible index.
func validateIndexMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse index_meta.json: %w", err)
	}
	return nil
}

// Index adds documents in one batch. ids and texts align positionally.
func (b *BleveTextIndex) Index(ctx context.Context, ids []uint64, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("text index: ids and texts length mismatch: %d vs %d", len(ids), len(texts))
	}
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("text index: closed")
	}

	batch := b.index.NewBatch()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := bleveDocument{Text: strings.ToLower(texts[i])}
		if err := batch.Index(strconv.FormatUint(id, 10), doc); err != nil {
			return fmt.Errorf("index document %d: %w", id, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

// Search returns document ids with relevance scores, best first.
func (b *BleveTextIndex) Search(ctx context.Context, text string, limit int) ([]ScoredKey, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.Unavailable("text index closed", nil)
	}

	text = strings.TrimSpace(text)
	if text == "" || limit <= 0 {
		return []ScoredKey{}, nil
	}

	matchQuery := bleve.NewMatchQuery(strings.ToLower(text))
	matchQuery.SetField("text")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	hits := make([]ScoredKey, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			slog.Warn("text index returned non-numeric document id",
				slog.String("id", hit.ID))
			continue
		}
		hits = append(hits, ScoredKey{Key: id, Score: hit.Score})
	}
	return hits, nil
}

// DocCount reports the number of indexed documents.
func (b *BleveTextIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("text index: closed")
	}
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveTextIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}
