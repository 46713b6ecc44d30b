package labelstore

import (
	"strings"

	"prism/internal/concern"
	"prism/internal/region"
)

// PseudoLabel is one harvested training label: the merged concerns two
// independent providers agreed on, plus the agreement that justified it.
type PseudoLabel struct {
	ID          string            `json:"id"`
	InferenceID string            `json:"inference_id"`
	AssetID     string            `json:"asset_id,omitempty"`
	Pair        [2]string         `json:"pair"`
	Agreement   Agreement         `json:"agreement"`
	Threshold   float64           `json:"threshold"`
	Concerns    []concern.Concern `json:"concerns"`
	CreatedAt   string            `json:"created_at"`
}

// PairLabels is the outcome of one pseudo-label attempt. Eligible means
// the quality and agreement gates passed; Emitted additionally requires at
// least one matched concern.
type PairLabels struct {
	Agreement Agreement
	Matched   []concern.Concern
	Eligible  bool
	Emitted   bool
}

// GeneratePseudoLabelsForPair matches two providers' concerns one-to-one
// (greedy, type plus IoU) and merges each matched pair into one pseudo
// concern. Eligibility: quality grade pass or degraded AND overall
// agreement at or above threshold. Emission: eligible AND at least one
// match. Lowering the threshold can only grow the emitted set.
func GeneratePseudoLabelsForPair(left, right *concern.ProviderOutput, qualityGrade string, iouThreshold, agreementThreshold float64) PairLabels {
	agreement := ComputeAgreementForPair(left.Concerns, right.Concerns)

	pairs := concern.GreedyMatch(left.Concerns, right.Concerns, concern.MatchOptions{
		IoUThreshold:  iouThreshold,
		AllowTypeOnly: true,
	})
	matched := make([]concern.Concern, 0, len(pairs))
	for _, p := range pairs {
		matched = append(matched, mergePair(&left.Concerns[p.Left], &right.Concerns[p.Right]))
	}

	eligible := (qualityGrade == concern.GradePass || qualityGrade == concern.GradeDegraded) &&
		agreement.Overall >= agreementThreshold
	return PairLabels{
		Agreement: agreement,
		Matched:   matched,
		Eligible:  eligible,
		Emitted:   eligible && len(matched) > 0,
	}
}

// mergePair builds the merged pseudo concern: averaged bbox, concatenated
// evidence, union of source ids.
func mergePair(a, b *concern.Concern) concern.Concern {
	merged := concern.Concern{
		Type:               a.Type,
		Severity:           (a.Severity + b.Severity) / 2,
		Confidence:         (a.Confidence + b.Confidence) / 2,
		QualitySensitivity: a.QualitySensitivity,
	}

	boxes := []*region.Bbox{a.PrimaryBbox(), b.PrimaryBbox()}
	if box := region.WeightedMergeBboxes(boxes, []float64{1, 1}); box != nil {
		merged.Regions = []region.Region{{Kind: region.KindBbox, Box: box}}
	}

	var evidence []string
	for _, c := range []*concern.Concern{a, b} {
		if c.EvidenceText != "" {
			evidence = append(evidence, c.EvidenceText)
		}
	}
	merged.EvidenceText = strings.Join(evidence, "; ")
	if len(merged.EvidenceText) > concern.MaxEvidenceTextLength {
		merged.EvidenceText = merged.EvidenceText[:concern.MaxEvidenceTextLength]
	}

	var ids []string
	seen := map[string]bool{}
	for _, c := range []*concern.Concern{a, b} {
		src := c.Provenance.SourceIDs
		if len(src) == 0 {
			src = []string{c.Provenance.Provider}
		}
		for _, id := range src {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	merged.Provenance = concern.Provenance{
		Provider:  "pseudo",
		SourceIDs: ids,
		Notes:     []string{"pair: " + a.Provenance.Provider + "+" + b.Provenance.Provider},
	}
	return merged
}

// SelectCanonicalPair picks the two outputs an agreement sample is scored
// on: gemini+gpt when both succeeded, else cv plus the first other success,
// else the first two successes. Nil when fewer than two providers succeeded.
func SelectCanonicalPair(outputs []concern.ProviderOutput) (left, right *concern.ProviderOutput) {
	byName := map[string]*concern.ProviderOutput{}
	var ok []*concern.ProviderOutput
	for i := range outputs {
		if outputs[i].OK {
			byName[outputs[i].Provider] = &outputs[i]
			ok = append(ok, &outputs[i])
		}
	}
	if len(ok) < 2 {
		return nil, nil
	}
	if g, gpt := byName["gemini"], byName["gpt"]; g != nil && gpt != nil {
		return g, gpt
	}
	if cv := byName["cv"]; cv != nil {
		for _, o := range ok {
			if o.Provider != "cv" {
				return cv, o
			}
		}
	}
	return ok[0], ok[1]
}
