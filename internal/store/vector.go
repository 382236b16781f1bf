package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/aicvlab/frameseek/internal/errors"
)

// HNSWIndexConfig configures the vector index.
type HNSWIndexConfig struct {
	// Dimensions is the embedding dimension (1024 for the archive).
	Dimensions int
	// M is HNSW max connections per layer (default: 16).
	M int
	// EfSearch is HNSW query-time search width (default: 64).
	EfSearch int
}

// HNSWIndex implements VectorIndex using the coder/hnsw pure-Go graph.
// Vectors are normalized on insert so graph distance is cosine distance in
// [0, 2]; reported similarity is 1 - distance, in [-1, 1], descending.
//
// The index keeps a key -> vector map alongside the graph to serve
// SearchByID and Size; the map is persisted as a gob sidecar next to the
// exported graph.
type HNSWIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	vectors map[uint64][]float32
	config  HNSWIndexConfig
	closed  bool
}

// hnswSidecar is the persisted companion of the exported graph.
type hnswSidecar struct {
	Vectors map[uint64][]float32
	Config  HNSWIndexConfig
}

// Verify interface implementation at compile time.
var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty vector index.
func NewHNSWIndex(cfg HNSWIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw index: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		vectors: make(map[uint64][]float32),
		config:  cfg,
	}, nil
}

// Add inserts vectors with their keyframe keys. An existing key is
// replaced in the lookup map; the old graph node is orphaned rather than
// deleted (ingest rebuilds from scratch, so orphans only arise on re-runs).
func (s *HNSWIndex) Add(ctx context.Context, keys []uint64, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("hnsw index: keys and vectors length mismatch: %d vs %d", len(keys), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hnsw index: closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return fmt.Errorf("hnsw index: dimension mismatch: expected %d, got %d",
				s.config.Dimensions, len(v))
		}
	}

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.vectors[key] = vec
	}

	return nil
}

// Search returns up to topK hits for the embedding, highest similarity
// first. Keys in excludeIDs are filtered from the candidate set.
func (s *HNSWIndex) Search(ctx context.Context, embedding []float32, topK int, excludeIDs []uint64) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.Unavailable("vector index closed", nil)
	}
	if len(embedding) != s.config.Dimensions {
		return nil, errors.BadRequest(
			fmt.Sprintf("embedding dimension %d, index expects %d", len(embedding), s.config.Dimensions), nil)
	}
	if topK <= 0 || s.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeInPlace(query)

	exclude := make(map[uint64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	// The graph cannot filter server-side, so widen the request by the
	// exclusion size and trim after.
	k := topK + len(exclude)
	if k > s.graph.Len() {
		k = s.graph.Len()
	}

	nodes := s.graph.Search(query, k)

	hits := make([]VectorHit, 0, topK)
	for _, node := range nodes {
		if _, skip := exclude[node.Key]; skip {
			continue
		}
		if _, live := s.vectors[node.Key]; !live {
			continue // orphaned by a replace
		}
		dist := s.graph.Distance(query, node.Value)
		hits = append(hits, VectorHit{ID: node.Key, Similarity: 1 - dist})
		if len(hits) == topK {
			break
		}
	}

	return hits, nil
}

// SearchByID fetches the embedding for imgID and searches with it.
// The result window is (page-1)*size .. page*size over the ranked list
// that excludes imgID itself and excludeIDs.
func (s *HNSWIndex) SearchByID(ctx context.Context, imgID uint64, page, size int, excludeIDs []uint64) ([]VectorHit, error) {
	if page < 1 || size < 1 {
		return nil, errors.BadRequest(fmt.Sprintf("invalid page window %d/%d", page, size), nil)
	}

	s.mu.RLock()
	emb, ok := s.vectors[imgID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("keyframe %d not in vector index", imgID), nil).
			WithDetail("imgid", fmt.Sprintf("%d", imgID))
	}

	exclude := make([]uint64, 0, len(excludeIDs)+1)
	exclude = append(exclude, excludeIDs...)
	exclude = append(exclude, imgID)

	hits, err := s.Search(ctx, emb, page*size, exclude)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * size
	if offset >= len(hits) {
		return []VectorHit{}, nil
	}
	end := offset + size
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], nil
}

// Size returns the number of indexed vectors.
func (s *HNSWIndex) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.vectors))
}

// Save persists the graph and its sidecar, atomically via temp + rename.
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("hnsw index: closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveSidecar(path + ".meta")
}

func (s *HNSWIndex) saveSidecar(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}

	meta := hnswSidecar{Vectors: s.vectors, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close sidecar: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the graph and sidecar written by Save.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hnsw index: closed")
	}

	meta, err := loadSidecar(path + ".meta")
	if err != nil {
		return err
	}
	s.vectors = meta.Vectors
	s.config = meta.Config

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func loadSidecar(path string) (*hnswSidecar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sidecar: %w", err)
	}
	defer file.Close()

	var meta hnswSidecar
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	return &meta, nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	s.vectors = nil
	return nil
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
