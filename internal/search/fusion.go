package search

import "sort"

// DefaultRRFConstant is the k in 1/(k+rank).
const DefaultRRFConstant = 60

// RankedList is one channel's output: ids in rank order, best first,
// with the channel's fusion weight.
type RankedList struct {
	Name   string
	Weight float64
	IDs    []uint64
}

// Fuse combines channel rankings by weighted reciprocal rank fusion.
// Each id scores sum(w_c / (k + rank_c)) over the channels that ranked
// it, rank being 1-based. Output is score-descending; ties break by id
// descending so the ordering is deterministic.
func Fuse(lists []RankedList, k int) []uint64 {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[uint64]float64)
	for _, list := range lists {
		if list.Weight == 0 {
			continue
		}
		for rank, id := range list.IDs {
			scores[id] += list.Weight / float64(k+rank+1)
		}
	}

	fused := make([]uint64, 0, len(scores))
	for id := range scores {
		fused = append(fused, id)
	}
	sort.Slice(fused, func(i, j int) bool {
		si, sj := scores[fused[i]], scores[fused[j]]
		if si != sj {
			return si > sj
		}
		return fused[i] > fused[j]
	})
	return fused
}
