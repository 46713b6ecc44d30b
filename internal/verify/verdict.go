package verify

import (
	"math"

	"prism/internal/concern"
	"prism/internal/region"
)

// Verdict classifies one per-type comparison between the primary detector
// and the shadow verifier.
type Verdict string

const (
	VerdictAgree     Verdict = "agree"
	VerdictUncertain Verdict = "uncertain"
	VerdictDisagree  Verdict = "disagree"
)

// Verdict thresholds: agree needs a solid region match and a small severity
// gap; a moderate gap is uncertain; anything worse, or a type only one side
// saw, is a disagreement.
const (
	agreeSeverityDelta     = 0.9
	uncertainSeverityDelta = 1.6
)

// Fix is the suggested correction attached to a non-agreeing row.
type Fix struct {
	ConfidenceAdjustment float64      `json:"confidence_adjustment"`
	RegionHint           *region.Bbox `json:"region_hint,omitempty"`
}

// Row is one per-issue-type comparison.
type Row struct {
	Type          concern.Type `json:"type"`
	Verdict       Verdict      `json:"verdict"`
	IoU           float64      `json:"iou"`
	SeverityDelta float64      `json:"severity_delta"`
	Reason        string       `json:"reason,omitempty"`
	SuggestedFix  *Fix         `json:"suggested_fix,omitempty"`
}

// compareOutputs builds one row per issue type in the union of both sides,
// in canonical type order. iouThreshold is the minimum best-match IoU for a
// region-level match.
func compareOutputs(primary, verifier []concern.Concern, iouThreshold float64) []Row {
	var rows []Row
	for _, t := range concern.AllTypes {
		p, v := ofType(primary, t), ofType(verifier, t)
		if len(p) == 0 && len(v) == 0 {
			continue
		}
		rows = append(rows, compareType(t, p, v, iouThreshold))
	}
	return rows
}

func compareType(t concern.Type, primary, verifier []concern.Concern, iouThreshold float64) Row {
	if len(primary) == 0 || len(verifier) == 0 {
		row := Row{Type: t, Verdict: VerdictDisagree, Reason: "type missing on one side"}
		if len(verifier) > 0 {
			row.SuggestedFix = &Fix{ConfidenceAdjustment: -0.2, RegionHint: region.PrimaryBbox(verifier[0].Regions)}
		} else {
			row.SuggestedFix = &Fix{ConfidenceAdjustment: -0.2}
		}
		return row
	}

	pairs := concern.GreedyMatch(primary, verifier, concern.MatchOptions{
		IoUThreshold:  iouThreshold,
		AllowTypeOnly: true,
	})
	if len(pairs) == 0 {
		return Row{
			Type:         t,
			Verdict:      VerdictDisagree,
			Reason:       "no region match above threshold",
			SuggestedFix: &Fix{ConfidenceAdjustment: -0.2, RegionHint: region.PrimaryBbox(verifier[0].Regions)},
		}
	}

	// Best pair: highest IoU (GreedyMatch emits geometric matches first by
	// descending IoU within the claim order, so scan for the max).
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.IoU > best.IoU {
			best = p
		}
	}
	iou := best.IoU
	if !best.Geometric {
		iou = 1 // no geometry on either side, existence is the match
	}
	delta := math.Abs(primary[best.Left].Severity - verifier[best.Right].Severity)

	switch {
	case iou >= iouThreshold && delta <= agreeSeverityDelta:
		return Row{Type: t, Verdict: VerdictAgree, IoU: iou, SeverityDelta: delta}
	case delta <= uncertainSeverityDelta:
		return Row{
			Type:          t,
			Verdict:       VerdictUncertain,
			IoU:           iou,
			SeverityDelta: delta,
			Reason:        "moderate severity or region gap",
			SuggestedFix:  &Fix{ConfidenceAdjustment: -0.1},
		}
	default:
		return Row{
			Type:          t,
			Verdict:       VerdictDisagree,
			IoU:           iou,
			SeverityDelta: delta,
			Reason:        "severity delta too large",
			SuggestedFix:  &Fix{ConfidenceAdjustment: -0.2, RegionHint: region.PrimaryBbox(verifier[best.Right].Regions)},
		}
	}
}

// agreementScore maps verdicts onto {1, 0.5, 0} and averages.
func agreementScore(rows []Row) float64 {
	if len(rows) == 0 {
		return 1
	}
	var sum float64
	for _, r := range rows {
		switch r.Verdict {
		case VerdictAgree:
			sum += 1
		case VerdictUncertain:
			sum += 0.5
		}
	}
	return sum / float64(len(rows))
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
