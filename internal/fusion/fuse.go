package fusion

import (
	"strings"

	"prism/internal/calib"
	"prism/internal/concern"
	"prism/internal/region"
)

// fusedCluster carries the fused concern plus the per-member data conflict
// detection needs.
type fusedCluster struct {
	concern    concern.Concern
	members    []int
	primary    *region.Bbox
	severities []float64 // smoothed member severities
}

// fuseCluster collapses one cluster into a single canonical concern.
// Member weight = reliability × provider weight × max(0.2, calibrated
// confidence); severity and confidence are the weight-normalized means.
func (e *Engine) fuseCluster(model *calib.Model, pool []concern.Concern, cl cluster, in concern.Context) fusedCluster {
	type memberFusion struct {
		idx        int
		weight     float64
		calibConf  float64
		smoothSev  float64
	}

	members := make([]memberFusion, 0, len(cl.members))
	for _, idx := range cl.members {
		m := &pool[idx]
		calibCtx := calib.Context{
			Provider:     m.Provenance.Provider,
			QualityGrade: in.QualityGrade,
			Tone:         in.ToneBucket,
			Lighting:     in.Lighting,
			Makeup:       in.Quality.MakeupDetected,
			Filter:       in.Quality.FilterDetected,
		}
		calibConf := model.Calibrate(m.Confidence, calibCtx)
		smoothSev := model.SmoothSeverity(m.Severity, calibConf)

		confFactor := calibConf
		if confFactor < minClusterConfidence {
			confFactor = minClusterConfidence
		}
		weight := reliability(m.Provenance.Provider, m.Type, in.QualityGrade) *
			model.Weight(m.Provenance.Provider, string(m.Type), in.QualityGrade, in.ToneBucket) *
			confFactor

		members = append(members, memberFusion{idx: idx, weight: weight, calibConf: calibConf, smoothSev: smoothSev})
	}

	var sumW, sumSev, sumConf float64
	best := members[0]
	severities := make([]float64, 0, len(members))
	idxs := make([]int, 0, len(members))
	weights := make([]float64, 0, len(members))
	for _, m := range members {
		sumW += m.weight
		sumSev += m.smoothSev * m.weight
		sumConf += m.calibConf * m.weight
		severities = append(severities, m.smoothSev)
		idxs = append(idxs, m.idx)
		weights = append(weights, m.weight)
		if m.weight > best.weight {
			best = m
		}
	}
	if sumW <= 0 {
		sumW = 1
	}

	fusedConcern := concern.Concern{
		Type:               cl.concernType,
		Severity:           sumSev / sumW,
		Confidence:         sumConf / sumW,
		Regions:            e.mergeRegions(pool, idxs, weights),
		EvidenceText:       pool[best.idx].EvidenceText,
		QualitySensitivity: maxSensitivity(pool, cl.members),
		SourceModel:        pool[best.idx].SourceModel,
		Provenance:         fusedProvenance(pool, cl.members),
	}

	return fusedCluster{
		concern:    fusedConcern,
		members:    cl.members,
		primary:    region.PrimaryBbox(fusedConcern.Regions),
		severities: severities,
	}
}

// mergeRegions builds the fused region list: the weight-averaged bbox
// first, then the best available polygon, then a heatmap merge.
func (e *Engine) mergeRegions(pool []concern.Concern, idxs []int, weights []float64) []region.Region {
	var out []region.Region

	boxes := make([]*region.Bbox, len(idxs))
	for i, idx := range idxs {
		boxes[i] = pool[idx].PrimaryBbox()
	}
	if merged := region.WeightedMergeBboxes(boxes, weights); merged != nil {
		out = append(out, region.Region{Kind: region.KindBbox, Box: merged})
	}

	// Best polygon: the highest-weight member that carries one.
	if poly := bestRegionOfKind(pool, idxs, weights, region.KindPolygon); poly != nil {
		out = append(out, *poly)
	}

	// Heatmaps: same-shape maps merge cell-wise; otherwise the best one
	// is carried as-is.
	if hm := mergeHeatmaps(pool, idxs, weights); hm != nil {
		out = append(out, *hm)
	}

	if len(out) > concern.MaxRegionsPerConcern {
		out = out[:concern.MaxRegionsPerConcern]
	}
	return out
}

func bestRegionOfKind(pool []concern.Concern, idxs []int, weights []float64, kind region.Kind) *region.Region {
	bestW := -1.0
	var best *region.Region
	for i, idx := range idxs {
		for r := range pool[idx].Regions {
			if pool[idx].Regions[r].Kind == kind && weights[i] > bestW {
				bestW = weights[i]
				best = &pool[idx].Regions[r]
			}
		}
	}
	return best
}

func mergeHeatmaps(pool []concern.Concern, idxs []int, weights []float64) *region.Region {
	type heat struct {
		r *region.Region
		w float64
	}
	var maps []heat
	for i, idx := range idxs {
		for r := range pool[idx].Regions {
			if pool[idx].Regions[r].Kind == region.KindHeatmap {
				maps = append(maps, heat{&pool[idx].Regions[r], weights[i]})
			}
		}
	}
	if len(maps) == 0 {
		return nil
	}
	if len(maps) == 1 {
		return maps[0].r
	}

	// Cell-wise weighted mean over maps sharing the first map's shape.
	ref := maps[0].r
	merged := region.Region{Kind: region.KindHeatmap, Rows: ref.Rows, Cols: ref.Cols, Values: make([]float64, len(ref.Values))}
	var sumW float64
	for _, h := range maps {
		if h.r.Rows != ref.Rows || h.r.Cols != ref.Cols || len(h.r.Values) != len(ref.Values) {
			continue
		}
		for i, v := range h.r.Values {
			merged.Values[i] += region.Clamp01(v) * h.w
		}
		sumW += h.w
	}
	if sumW <= 0 {
		return ref
	}
	for i := range merged.Values {
		merged.Values[i] /= sumW
	}
	return &merged
}

// fusedProvenance unions every member's source ids; members without ids
// contribute their provider name so the trace-back invariant always holds.
func fusedProvenance(pool []concern.Concern, idxs []int) concern.Provenance {
	var sourceIDs []string
	seenID := map[string]bool{}
	var notes []string
	seenProvider := map[string]bool{}
	for _, idx := range idxs {
		p := pool[idx].Provenance
		ids := p.SourceIDs
		if len(ids) == 0 {
			ids = []string{p.Provider}
		}
		for _, id := range ids {
			if !seenID[id] {
				seenID[id] = true
				sourceIDs = append(sourceIDs, id)
			}
		}
		if !seenProvider[p.Provider] {
			seenProvider[p.Provider] = true
			notes = append(notes, p.Provider)
		}
	}
	return concern.Provenance{
		Provider:  "fusion",
		SourceIDs: sourceIDs,
		Notes:     []string{"providers: " + strings.Join(notes, ",")},
	}
}

func maxSensitivity(pool []concern.Concern, idxs []int) concern.QualitySensitivity {
	rank := map[concern.QualitySensitivity]int{
		concern.SensitivityLow:    0,
		concern.SensitivityMedium: 1,
		concern.SensitivityHigh:   2,
	}
	best := concern.SensitivityLow
	for _, idx := range idxs {
		if rank[pool[idx].QualitySensitivity] > rank[best] {
			best = pool[idx].QualitySensitivity
		}
	}
	return best
}
