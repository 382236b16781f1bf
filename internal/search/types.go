// Package search implements the hybrid retrieval engine: concurrent
// fan-out over the vector, speech-caption, and OCR channels, weighted
// reciprocal rank fusion, object and scope post-filtering, and page
// materialization.
package search

import (
	"fmt"

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/errors"
	"github.com/aicvlab/frameseek/internal/store"
)

// MaxUnifiedPageSize caps the unified search page size. The page window
// is applied by the store during materialization, so the two bounds must
// be the same value.
const MaxUnifiedPageSize = store.MaxPageSize

// UnifiedRequest is a normalized unified search request. The HTTP layer
// parses both obj_filters encodings before this type is built; the engine
// never sees raw filter strings.
type UnifiedRequest struct {
	// Query feeds the dense vector channel (translated, then embedded).
	Query string
	// ASR feeds full-text search over speech captions.
	ASR string
	// OCR feeds full-text search over on-screen text.
	OCR string

	// ObjFilters is a conjunctive post-filter over object counts.
	ObjFilters []archive.ObjectFilter
	// ExcludeIDs is the vector-channel exclusion set. It does not apply
	// to the text channels.
	ExcludeIDs []uint64

	// GroupNums and VideoNums scope materialization; see
	// store.GetByKeysQuery for the pairing rules.
	GroupNums []int
	VideoNums []int

	Page int
	Size int

	// Oversample widens the vector channel candidate pool; zero takes
	// the configured default.
	Oversample int

	// Channel weights; nil takes the configured default.
	WVec *float64
	WASR *float64
	WOCR *float64
}

// Normalize applies defaults for zero-valued pagination fields.
func (r *UnifiedRequest) Normalize() {
	if r.Page == 0 {
		r.Page = 1
	}
	if r.Size == 0 {
		r.Size = 50
	}
}

// Validate rejects out-of-range pagination before any I/O.
func (r *UnifiedRequest) Validate() error {
	if r.Page < 1 {
		return errors.BadRequest(fmt.Sprintf("page must be >= 1, got %d", r.Page), nil)
	}
	if r.Size < 1 || r.Size > MaxUnifiedPageSize {
		return errors.BadRequest(
			fmt.Sprintf("size must be in [1, %d], got %d", MaxUnifiedPageSize, r.Size), nil)
	}
	if r.Oversample < 0 {
		return errors.BadRequest(fmt.Sprintf("oversample must be positive, got %d", r.Oversample), nil)
	}
	for _, w := range []*float64{r.WVec, r.WASR, r.WOCR} {
		if w != nil && *w < 0 {
			return errors.BadRequest("channel weights must be non-negative", nil)
		}
	}
	return nil
}

// Result is one keyframe in a response page.
type Result struct {
	ID   uint64 `json:"id"`
	Path string `json:"path"`
}

// Page is a ranked response page. TotalPage is computed against the
// collection size, not the per-query candidate count, so browse mode and
// search mode paginate the same way.
type Page struct {
	TotalPage int      `json:"total_page"`
	Results   []Result `json:"results"`
}
