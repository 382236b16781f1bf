package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuseSingleChannelPreservesOrder(t *testing.T) {
	fused := Fuse([]RankedList{
		{Name: "vector", Weight: 1.0, IDs: []uint64{7, 3, 9}},
	}, 60)
	assert.Equal(t, []uint64{7, 3, 9}, fused)
}

func TestFuseWeightedTwoChannels(t *testing.T) {
	// asr yields [100,101,102], ocr yields [102,50].
	// With w_asr=1, w_ocr=0.5, k=60:
	//   102: 1/63 + 0.5/61   (asr rank 3, ocr rank 1)
	//   100: 1/61
	//   101: 1/62
	//   50:  0.5/62
	fused := Fuse([]RankedList{
		{Name: "asr", Weight: 1.0, IDs: []uint64{100, 101, 102}},
		{Name: "ocr", Weight: 0.5, IDs: []uint64{102, 50}},
	}, 60)
	assert.Equal(t, []uint64{102, 100, 101, 50}, fused)
}

func TestFuseTieBreaksByIDDescending(t *testing.T) {
	// Two channels with equal weight ranking disjoint ids identically:
	// scores tie pairwise, so order falls back to id descending.
	fused := Fuse([]RankedList{
		{Name: "a", Weight: 1.0, IDs: []uint64{1, 3}},
		{Name: "b", Weight: 1.0, IDs: []uint64{2, 4}},
	}, 60)
	assert.Equal(t, []uint64{2, 1, 4, 3}, fused)
}

func TestFuseZeroWeightChannelIgnored(t *testing.T) {
	fused := Fuse([]RankedList{
		{Name: "vector", Weight: 1.0, IDs: []uint64{1, 2}},
		{Name: "ocr", Weight: 0, IDs: []uint64{9, 8, 7}},
	}, 60)
	assert.Equal(t, []uint64{1, 2}, fused)
}

func TestFuseEmpty(t *testing.T) {
	assert.Empty(t, Fuse(nil, 60))
	assert.Empty(t, Fuse([]RankedList{{Name: "vector", Weight: 1.0}}, 60))
}

func TestFuseDeterministic(t *testing.T) {
	lists := []RankedList{
		{Name: "vector", Weight: 1.0, IDs: []uint64{5, 9, 2, 14, 3}},
		{Name: "asr", Weight: 1.0, IDs: []uint64{2, 5, 77}},
		{Name: "ocr", Weight: 0.5, IDs: []uint64{14, 2}},
	}
	first := Fuse(lists, 60)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Fuse(lists, 60))
	}
}

func TestFuseDefaultConstant(t *testing.T) {
	lists := []RankedList{{Name: "vector", Weight: 1.0, IDs: []uint64{1, 2}}}
	assert.Equal(t, Fuse(lists, 60), Fuse(lists, 0))
}
