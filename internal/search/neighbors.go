package search

import (
	"context"
	"fmt"

	"github.com/aicvlab/frameseek/internal/errors"
	"github.com/aicvlab/frameseek/internal/store"
)

// maxNeighborK bounds the ±k window so the 2k+1 keys materialize within
// a single store page.
const maxNeighborK = (store.MaxPageSize - 1) / 2

// Neighbors returns the keyframes at keys imgid-k .. imgid+k that belong
// to the same video as imgid, in key order. An imgid absent from the
// archive fails with NotFound.
func (e *Engine) Neighbors(ctx context.Context, imgid uint64, k int) ([]Result, error) {
	if k < 0 || k > maxNeighborK {
		return nil, errors.BadRequest(
			fmt.Sprintf("k must be in [0, %d], got %d", maxNeighborK, k), nil)
	}

	lo := uint64(0)
	if imgid > uint64(k) {
		lo = imgid - uint64(k)
	}
	hi := imgid + uint64(k)

	keys := make([]uint64, 0, hi-lo+1)
	for key := lo; key <= hi; key++ {
		keys = append(keys, key)
	}

	rows, err := e.meta.GetByKeys(ctx, store.GetByKeysQuery{
		Keys: keys, Page: 1, Size: len(keys),
	})
	if err != nil {
		return nil, err
	}

	anchorIdx := -1
	for i, row := range rows {
		if row.Key == imgid {
			anchorIdx = i
			break
		}
	}
	if anchorIdx == -1 {
		return nil, errors.NotFound(fmt.Sprintf("keyframe %d not found", imgid), nil).
			WithDetail("imgid", fmt.Sprintf("%d", imgid))
	}
	anchor := rows[anchorIdx]

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		if row.GroupNum != anchor.GroupNum || row.VideoNum != anchor.VideoNum {
			continue
		}
		results = append(results, Result{ID: row.Key, Path: e.paths.Resolve(row)})
	}
	return results, nil
}

// ImageSearch returns keyframes visually similar to imgid, most similar
// first, paginated at the vector index. An unknown imgid fails with
// NotFound.
func (e *Engine) ImageSearch(ctx context.Context, imgid uint64, page, size int) (*Page, error) {
	if page < 1 {
		return nil, errors.BadRequest(fmt.Sprintf("page must be >= 1, got %d", page), nil)
	}
	if size < 1 || size > MaxUnifiedPageSize {
		return nil, errors.BadRequest(
			fmt.Sprintf("size must be in [1, %d], got %d", MaxUnifiedPageSize, size), nil)
	}

	hits, err := e.vectors.SearchByID(ctx, imgid, page, size, nil)
	if err != nil {
		return nil, err
	}

	keys := make([]uint64, len(hits))
	for i, h := range hits {
		keys[i] = h.ID
	}

	results := []Result{}
	if len(keys) > 0 {
		rows, err := e.meta.GetByKeys(ctx, store.GetByKeysQuery{
			Keys: keys, Page: 1, Size: len(keys),
		})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			results = append(results, Result{ID: row.Key, Path: e.paths.Resolve(row)})
		}
	}

	return &Page{TotalPage: e.totalPages(size), Results: results}, nil
}

// Browse lists keyframes in archive order with the collection-level page
// count, serving the results page when no query is given.
func (e *Engine) Browse(ctx context.Context, groupNums, videoNums []int, page, size int) (*Page, error) {
	if page < 1 {
		return nil, errors.BadRequest(fmt.Sprintf("page must be >= 1, got %d", page), nil)
	}
	if size < 1 || size > MaxUnifiedPageSize {
		return nil, errors.BadRequest(
			fmt.Sprintf("size must be in [1, %d], got %d", MaxUnifiedPageSize, size), nil)
	}

	rows, err := e.meta.GetByKeys(ctx, store.GetByKeysQuery{
		GroupNums: groupNums,
		VideoNums: videoNums,
		Page:      page,
		Size:      size,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{ID: row.Key, Path: e.paths.Resolve(row)})
	}
	return &Page{TotalPage: e.totalPages(size), Results: results}, nil
}

// ObjectNames enumerates the known object class names.
func (e *Engine) ObjectNames(ctx context.Context) ([]string, error) {
	return e.meta.DistinctObjectNames(ctx)
}
