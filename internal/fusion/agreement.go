package fusion

import (
	"prism/internal/concern"
	"prism/internal/region"
)

// agreementMatchIoU is the loose overlap required for two concerns to count
// as "the same finding" when scoring cross-provider agreement.
const agreementMatchIoU = 0.2

// agreementScore measures how much the providers agreed: the average, over
// all ordered provider pairs that produced concerns, of the fraction of one
// provider's concerns matched in the other's set. A match is same type plus
// IoU ≥ 0.2, or a type match when either side lacks geometry. With one or
// zero contributing providers the score is 1.
func agreementScore(outputs []concern.ProviderOutput) float64 {
	var contributing []*concern.ProviderOutput
	for i := range outputs {
		if outputs[i].OK && len(outputs[i].Concerns) > 0 {
			contributing = append(contributing, &outputs[i])
		}
	}
	if len(contributing) <= 1 {
		return 1
	}

	var sum float64
	var pairs int
	for a := range contributing {
		for b := range contributing {
			if a == b {
				continue
			}
			sum += matchedFraction(contributing[a].Concerns, contributing[b].Concerns)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// matchedFraction returns the share of concerns in a that have a match in b.
func matchedFraction(a, b []concern.Concern) float64 {
	if len(a) == 0 {
		return 1
	}
	matched := 0
	for i := range a {
		if hasMatch(&a[i], b) {
			matched++
		}
	}
	return float64(matched) / float64(len(a))
}

func hasMatch(c *concern.Concern, candidates []concern.Concern) bool {
	cBox := c.PrimaryBbox()
	for i := range candidates {
		if candidates[i].Type != c.Type {
			continue
		}
		oBox := candidates[i].PrimaryBbox()
		if cBox == nil || oBox == nil {
			return true // either side lacking geometry: type match suffices
		}
		if region.IoU(*cBox, *oBox) >= agreementMatchIoU {
			return true
		}
	}
	return false
}
