package fusion

import (
	"prism/internal/concern"
	"prism/internal/region"
)

// DefaultClusterIoU is the greedy-merge threshold for same-type concerns.
const DefaultClusterIoU = 0.28

// cluster is a group of same-type concerns believed to describe one finding.
// The primary box is the first member's extractable box; later members merge
// in when they overlap it enough.
type cluster struct {
	concernType concern.Type
	primary     *region.Bbox
	members     []int // indexes into the pooled concern list
}

// clusterConcerns groups the pooled concerns by canonical type and greedy-
// merges within a type by IoU against the cluster's primary box. A concern
// with no comparable box starts a singleton cluster. Iteration follows
// input order and the fixed type order, so clustering is deterministic.
func clusterConcerns(pool []concern.Concern, iouThreshold float64) []cluster {
	if iouThreshold <= 0 {
		iouThreshold = DefaultClusterIoU
	}

	byType := make(map[concern.Type][]int)
	for i := range pool {
		byType[pool[i].Type] = append(byType[pool[i].Type], i)
	}

	var clusters []cluster
	for _, ct := range concern.AllTypes {
		idxs := byType[ct]
		var typeClusters []cluster
		for _, i := range idxs {
			box := pool[i].PrimaryBbox()
			placed := false
			if box != nil {
				for k := range typeClusters {
					if typeClusters[k].primary == nil {
						continue
					}
					if region.IoU(*typeClusters[k].primary, *box) >= iouThreshold {
						typeClusters[k].members = append(typeClusters[k].members, i)
						placed = true
						break
					}
				}
			}
			if !placed {
				typeClusters = append(typeClusters, cluster{
					concernType: ct,
					primary:     box,
					members:     []int{i},
				})
			}
		}
		clusters = append(clusters, typeClusters...)
	}
	return clusters
}
