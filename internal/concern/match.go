package concern

import (
	"sort"

	"prism/internal/region"
)

// MatchPair links one left-side concern to one right-side concern.
// IoU is 0 and Geometric false for a type-only match.
type MatchPair struct {
	Left      int
	Right     int
	IoU       float64
	Geometric bool
}

// MatchOptions bound greedy matching.
type MatchOptions struct {
	IoUThreshold float64
	// AllowTypeOnly admits same-type pairs where either side lacks a
	// primary box, after all geometric matches are claimed.
	AllowTypeOnly bool
}

// GreedyMatch pairs concerns across two sets one-to-one: same canonical
// type, best IoU first, no reuse on either side. n and m stay in the tens,
// so the O(n·m) candidate scan is the whole algorithm.
func GreedyMatch(left, right []Concern, opts MatchOptions) []MatchPair {
	type candidate struct {
		l, r      int
		iou       float64
		geometric bool
	}
	var cands []candidate

	leftBoxes := make([]*region.Bbox, len(left))
	for i := range left {
		leftBoxes[i] = left[i].PrimaryBbox()
	}
	rightBoxes := make([]*region.Bbox, len(right))
	for j := range right {
		rightBoxes[j] = right[j].PrimaryBbox()
	}

	for i := range left {
		for j := range right {
			if left[i].Type != right[j].Type {
				continue
			}
			lb, rb := leftBoxes[i], rightBoxes[j]
			if lb != nil && rb != nil {
				iou := region.IoU(*lb, *rb)
				if iou >= opts.IoUThreshold {
					cands = append(cands, candidate{i, j, iou, true})
				}
				continue
			}
			if opts.AllowTypeOnly {
				cands = append(cands, candidate{i, j, 0, false})
			}
		}
	}

	// Geometric matches first, best IoU first; index order breaks ties so
	// matching is deterministic.
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].geometric != cands[b].geometric {
			return cands[a].geometric
		}
		if cands[a].iou != cands[b].iou {
			return cands[a].iou > cands[b].iou
		}
		if cands[a].l != cands[b].l {
			return cands[a].l < cands[b].l
		}
		return cands[a].r < cands[b].r
	})

	claimedL := make(map[int]bool)
	claimedR := make(map[int]bool)
	var pairs []MatchPair
	for _, c := range cands {
		if claimedL[c.l] || claimedR[c.r] {
			continue
		}
		claimedL[c.l] = true
		claimedR[c.r] = true
		pairs = append(pairs, MatchPair{Left: c.l, Right: c.r, IoU: c.iou, Geometric: c.geometric})
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].Left < pairs[b].Left })
	return pairs
}
