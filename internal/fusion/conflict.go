package fusion

import (
	"fmt"

	"prism/internal/concern"
	"prism/internal/region"
)

// Conflict thresholds.
const (
	severitySpreadThreshold = 1.5  // member severity spread within a cluster
	regionDisagreement      = 0.7  // max pairwise 1-IoU across providers
	typeOverlapIoU          = 0.35 // cross-type cluster overlap
)

// detectConflicts inspects fused clusters for severity, region, and type
// disagreements and returns the conflict records. applyConflictPenalties
// then discounts the affected concerns.
func detectConflicts(fused []fusedCluster, pool []concern.Concern) ([]concern.Conflict, []clusterConflict) {
	flags := make([]clusterConflict, len(fused))
	var conflicts []concern.Conflict

	for ci := range fused {
		fc := &fused[ci]
		if len(fc.members) < 2 {
			continue
		}

		// Severity spread across members.
		minSev, maxSev := fc.severities[0], fc.severities[0]
		for _, s := range fc.severities[1:] {
			if s < minSev {
				minSev = s
			}
			if s > maxSev {
				maxSev = s
			}
		}
		if maxSev-minSev >= severitySpreadThreshold {
			flags[ci].any = true
			conflicts = append(conflicts, concern.Conflict{
				Kind:      concern.ConflictSeverity,
				Types:     []concern.Type{fc.concern.Type},
				Providers: memberProviders(pool, fc.members),
				Detail:    fmt.Sprintf("severity spread %.2f", maxSev-minSev),
			})
		}

		// Region disagreement: worst pairwise 1-IoU between different
		// providers' boxes.
		worst := 0.0
		for a := 0; a < len(fc.members); a++ {
			for b := a + 1; b < len(fc.members); b++ {
				ca, cb := &pool[fc.members[a]], &pool[fc.members[b]]
				if ca.Provenance.Provider == cb.Provenance.Provider {
					continue
				}
				ba, bb := ca.PrimaryBbox(), cb.PrimaryBbox()
				if ba == nil || bb == nil {
					continue
				}
				if d := 1 - region.IoU(*ba, *bb); d > worst {
					worst = d
				}
			}
		}
		if worst >= regionDisagreement {
			flags[ci].any = true
			conflicts = append(conflicts, concern.Conflict{
				Kind:      concern.ConflictRegion,
				Types:     []concern.Type{fc.concern.Type},
				Providers: memberProviders(pool, fc.members),
				Detail:    fmt.Sprintf("max pairwise 1-IoU %.2f", worst),
			})
		}
	}

	// Type disagreement: overlapping clusters of different types.
	for a := 0; a < len(fused); a++ {
		for b := a + 1; b < len(fused); b++ {
			if fused[a].concern.Type == fused[b].concern.Type {
				continue
			}
			if fused[a].primary == nil || fused[b].primary == nil {
				continue
			}
			iou := region.IoU(*fused[a].primary, *fused[b].primary)
			if iou < typeOverlapIoU {
				continue
			}
			flags[a].any, flags[a].typeConflict = true, true
			flags[b].any, flags[b].typeConflict = true, true
			conflicts = append(conflicts, concern.Conflict{
				Kind:  concern.ConflictType,
				Types: []concern.Type{fused[a].concern.Type, fused[b].concern.Type},
				Detail: fmt.Sprintf("overlapping clusters IoU %.2f", iou),
			})
		}
	}

	return conflicts, flags
}

// clusterConflict flags what penalties apply to one cluster.
type clusterConflict struct {
	any          bool
	typeConflict bool
}

// applyConflictPenalties discounts conflicted clusters: a type conflict
// costs ×0.82, any conflict at all a further ×0.78 on the fused confidence.
// Only a type disagreement marks the concern uncertain; severity and region
// spreads discount confidence alone.
func applyConflictPenalties(fused []fusedCluster, flags []clusterConflict) {
	for i := range fused {
		if flags[i].typeConflict {
			fused[i].concern.Confidence *= typeConflictPenalty
			fused[i].concern.Uncertain = true
		}
		if flags[i].any {
			fused[i].concern.Confidence *= anyConflictPenalty
		}
	}
}

func memberProviders(pool []concern.Concern, idxs []int) []string {
	seen := map[string]bool{}
	var out []string
	for _, idx := range idxs {
		p := pool[idx].Provenance.Provider
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
