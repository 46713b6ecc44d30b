package labelstore

import (
	"math"

	"prism/internal/concern"
	"prism/internal/region"
)

// Sub-score weights for the combined pair agreement.
const (
	typeWeight     = 0.4
	regionWeight   = 0.35
	severityWeight = 0.25
)

// Agreement is the three-level agreement between two providers' outputs on
// one image. Overall = 0.4·type + 0.35·region + 0.25·severity.
type Agreement struct {
	Overall       float64            `json:"overall"`
	TypeScore     float64            `json:"type_score"`
	RegionScore   float64            `json:"region_score"`
	SeverityScore float64            `json:"severity_score"`
	CommonTypes   []concern.Type     `json:"common_types,omitempty"`
	PerType       map[string]float64 `json:"per_type,omitempty"`
}

// ComputeAgreementForPair scores how much two providers agree. The type
// score is a mass-weighted Dice over per-type confidence·(1+severity) mass,
// so it penalizes types one side missed. Region and severity scores only
// look at types present on BOTH sides: a type must first agree to exist
// before its geometry and severity are compared.
func ComputeAgreementForPair(left, right []concern.Concern) Agreement {
	typeScore := typeMassScore(left, right)
	common := commonTypes(left, right)

	regionScore, severityScore := 0.0, 0.0
	perType := map[string]float64{}
	if len(common) > 0 {
		regionScore = regionLevelScore(left, right, common, perType)
		severityScore = severityLevelScore(left, right, common)
	}

	overall := typeWeight*typeScore + regionWeight*regionScore + severityWeight*severityScore
	return Agreement{
		Overall:       clamp01(overall),
		TypeScore:     typeScore,
		RegionScore:   regionScore,
		SeverityScore: severityScore,
		CommonTypes:   common,
		PerType:       perType,
	}
}

// typeMassScore is the weighted Dice coefficient over per-type mass, where
// a concern contributes confidence·(1+severity). Two empty sides agree
// perfectly.
func typeMassScore(left, right []concern.Concern) float64 {
	lm, rm := typeMass(left), typeMass(right)
	if len(lm) == 0 && len(rm) == 0 {
		return 1
	}
	var overlap, total float64
	for t, l := range lm {
		if r, ok := rm[t]; ok {
			overlap += math.Min(l, r)
		}
		total += l
	}
	for _, r := range rm {
		total += r
	}
	if total <= 0 {
		return 0
	}
	return 2 * overlap / total
}

func typeMass(concerns []concern.Concern) map[concern.Type]float64 {
	mass := map[concern.Type]float64{}
	for i := range concerns {
		mass[concerns[i].Type] += concerns[i].Confidence * (1 + concerns[i].Severity)
	}
	return mass
}

// commonTypes lists the types present on both sides, in the canonical
// AllTypes order for determinism.
func commonTypes(left, right []concern.Concern) []concern.Type {
	lm, rm := typeMass(left), typeMass(right)
	var out []concern.Type
	for _, t := range concern.AllTypes {
		if _, lok := lm[t]; !lok {
			continue
		}
		if _, rok := rm[t]; rok {
			out = append(out, t)
		}
	}
	return out
}

// regionLevelScore = 0.6·meanIoU + 0.2·correlation + 0.2·KL, over greedy
// matches within the common types. The heatmap components fall back to the
// mean IoU when no comparable heatmap pair exists, so bbox-only providers
// are not penalized for lacking heatmaps. perType collects a per-type
// geometry score for downstream reliability rows.
func regionLevelScore(left, right []concern.Concern, common []concern.Type, perType map[string]float64) float64 {
	var iouSum float64
	var iouN int
	var corrSum float64
	var corrN int
	var klSum float64
	var klN int

	for _, t := range common {
		l, r := ofType(left, t), ofType(right, t)
		pairs := concern.GreedyMatch(l, r, concern.MatchOptions{AllowTypeOnly: true})
		var typeSum float64
		var typeN int
		for _, p := range pairs {
			iou := p.IoU
			if !p.Geometric {
				iou = 1 // no geometry on either side: existence is the match
			}
			iouSum += iou
			iouN++
			typeSum += iou
			typeN++

			for hi := range l[p.Left].Regions {
				if l[p.Left].Regions[hi].Kind != region.KindHeatmap {
					continue
				}
				for hj := range r[p.Right].Regions {
					if r[p.Right].Regions[hj].Kind != region.KindHeatmap {
						continue
					}
					if corr, ok := region.Correlation(&l[p.Left].Regions[hi], &r[p.Right].Regions[hj]); ok {
						corrSum += (corr + 1) / 2
						corrN++
					}
					if kl, ok := region.KLDivergence(&l[p.Left].Regions[hi], &r[p.Right].Regions[hj]); ok {
						klSum += math.Exp(-kl)
						klN++
					}
				}
			}
		}
		if typeN > 0 {
			perType[string(t)] = typeSum / float64(typeN)
		}
	}

	if iouN == 0 {
		return 0
	}
	meanIoU := iouSum / float64(iouN)
	corrComp, klComp := meanIoU, meanIoU
	if corrN > 0 {
		corrComp = corrSum / float64(corrN)
	}
	if klN > 0 {
		klComp = klSum / float64(klN)
	}
	return 0.6*meanIoU + 0.2*corrComp + 0.2*klComp
}

// severityLevelScore = 0.5·(1 − meanMAE/4) + 0.5·mean interval overlap,
// over per-type mean severities within the common types. Each side's
// interval is severity ± max(0.25, 1−confidence).
func severityLevelScore(left, right []concern.Concern, common []concern.Type) float64 {
	var maeSum, overlapSum float64
	for _, t := range common {
		lSev, lConf := typeMeans(left, t)
		rSev, rConf := typeMeans(right, t)
		maeSum += math.Abs(lSev - rSev)
		overlapSum += intervalOverlap(lSev, lConf, rSev, rConf)
	}
	n := float64(len(common))
	meanMAE := maeSum / n
	return 0.5*(1-meanMAE/concern.MaxSeverity) + 0.5*(overlapSum/n)
}

func typeMeans(concerns []concern.Concern, t concern.Type) (sev, conf float64) {
	var n float64
	for i := range concerns {
		if concerns[i].Type == t {
			sev += concerns[i].Severity
			conf += concerns[i].Confidence
			n++
		}
	}
	return sev / n, conf / n
}

// intervalOverlap is the Jaccard overlap of the two confidence intervals.
func intervalOverlap(aSev, aConf, bSev, bConf float64) float64 {
	aHalf := math.Max(0.25, 1-aConf)
	bHalf := math.Max(0.25, 1-bConf)
	lo := math.Max(aSev-aHalf, bSev-bHalf)
	hi := math.Min(aSev+aHalf, bSev+bHalf)
	if hi <= lo {
		return 0
	}
	union := math.Max(aSev+aHalf, bSev+bHalf) - math.Min(aSev-aHalf, bSev-bHalf)
	if union <= 0 {
		return 0
	}
	return (hi - lo) / union
}

func ofType(concerns []concern.Concern, t concern.Type) []concern.Concern {
	var out []concern.Concern
	for i := range concerns {
		if concerns[i].Type == t {
			out = append(out, concerns[i])
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
