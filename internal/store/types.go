// Package store provides the persistence layer for the keyframe archive:
// the HNSW vector index, the SQLite metadata store, and the bleve full-text
// indexes over speech captions and OCR text.
package store

import (
	"context"

	"github.com/aicvlab/frameseek/internal/archive"
)

// VectorHit is a single ANN result. Similarity is cosine similarity in
// [-1, 1]; results are ordered by descending similarity.
type VectorHit struct {
	ID         uint64
	Similarity float32
}

// VectorIndex is the approximate nearest-neighbor index over keyframe
// embeddings, keyed by the archive-wide keyframe key.
type VectorIndex interface {
	// Search returns up to topK hits for the embedding, best first.
	// Keys in excludeIDs never appear in the result.
	Search(ctx context.Context, embedding []float32, topK int, excludeIDs []uint64) ([]VectorHit, error)

	// SearchByID looks up the embedding of imgID and searches with it,
	// excluding imgID itself plus excludeIDs, returning the size-sized
	// window at offset (page-1)*size. Fails with NotFound when imgID is
	// not indexed.
	SearchByID(ctx context.Context, imgID uint64, page, size int, excludeIDs []uint64) ([]VectorHit, error)

	// Size returns the total number of indexed vectors.
	Size() uint64

	Close() error
}

// TextSource selects which full-text corpus a query runs against.
type TextSource string

const (
	SourceASR TextSource = "asr"
	SourceOCR TextSource = "ocr"
)

// ScoredKey is a keyframe key with a retrieval score, score-descending.
type ScoredKey struct {
	Key   uint64
	Score float64
}

// CaptionSegment is a speech-caption hit as a time segment of its video.
type CaptionSegment struct {
	GroupNum int
	VideoNum int
	Start    float64
	End      float64
	Score    float64
}

// FrameRange selects keyframes of one video by keyframe-number window.
type FrameRange struct {
	GroupNum int
	VideoNum int
	KfStart  int
	KfEnd    int
}

// GetByKeysQuery parameterizes MetadataStore.GetByKeys.
//
// With Keys set, rows come back in the input order of Keys (unknown keys
// dropped). Without Keys, rows are ordered (group, video, keyframe) asc.
// GroupNums and VideoNums combine positionally when both are present with
// equal length, forming (group, video) pairs joined by OR; a VideoNums
// entry of -1 means any video in that group. A single present list is a
// plain IN filter. Page starts at 1; Size is clamped to [1, 200].
type GetByKeysQuery struct {
	Keys      []uint64
	GroupNums []int
	VideoNums []int
	Page      int
	Size      int
}

// MaxPageSize is the materialization page clamp. Unified search and
// browse delegate their page window here, so it equals the request-level
// size bound; a tighter clamp would truncate valid pages and shift their
// offsets.
const MaxPageSize = 500

// MaxSegmentResults caps segment-typed full-text results.
const MaxSegmentResults = 1000

// MetadataStore is the read contract over keyframe metadata and caption /
// OCR text. All operations are total on their inputs: they either succeed
// for every input element or fail as a whole.
type MetadataStore interface {
	// GetByKeys materializes keyframe rows; see GetByKeysQuery.
	GetByKeys(ctx context.Context, q GetByKeysQuery) ([]archive.Keyframe, error)

	// FilterByObjects keeps ids whose keyframe satisfies every filter.
	// The output order is a stable subsequence of ids. Empty filters is
	// the identity.
	FilterByObjects(ctx context.Context, ids []uint64, filters []archive.ObjectFilter) ([]uint64, error)

	// SearchText runs full-text search over the source corpus and returns
	// keyframe keys, score-descending, truncated to limit. Strategies are
	// tried in order (bleve, FTS5, substring scan); the first non-empty
	// result wins.
	SearchText(ctx context.Context, source TextSource, text string, limit int) ([]ScoredKey, error)

	// SearchSegments is SearchText over captions returning time segments
	// instead of keys, truncated to min(limit, MaxSegmentResults).
	SearchSegments(ctx context.Context, text string, limit int) ([]CaptionSegment, error)

	// KeysInTimeRanges selects up to perRangeLimit keys per range, evenly
	// spaced by keyframe number, de-duplicated across ranges preserving
	// first-seen order.
	KeysInTimeRanges(ctx context.Context, ranges []FrameRange, perRangeLimit int) ([]uint64, error)

	// DistinctObjectNames enumerates known object class names.
	DistinctObjectNames(ctx context.Context) ([]string, error)

	Close() error
}

// TextIndex is the primary (relevance-scored) full-text strategy.
// Implemented by the bleve indexes; the SQLite store falls back to its FTS5
// tables and then to a substring scan when a TextIndex returns nothing.
type TextIndex interface {
	// Search returns document ids with relevance scores, best first.
	// Document ids are caption row ids for ASR and keyframe keys for OCR.
	Search(ctx context.Context, text string, limit int) ([]ScoredKey, error)
	Close() error
}
