package concern

import (
	"strings"

	"prism/internal/region"
)

// RawConcern is what a provider adapter hands over before normalization.
// Field meanings match Concern, but nothing is trusted yet.
type RawConcern struct {
	Type               string          `json:"type"`
	Regions            []region.Region `json:"regions"`
	Severity           float64         `json:"severity"`
	Confidence         float64         `json:"confidence"`
	EvidenceText       string          `json:"evidence_text"`
	QualitySensitivity string          `json:"quality_sensitivity"`
	SourceID           string          `json:"source_id"`
}

// typeAliases maps provider vocabulary onto canonical types. Lookup is
// case-insensitive; anything unmapped falls back to TypeOther.
var typeAliases = map[string]Type{
	"redness":           TypeRedness,
	"erythema":          TypeRedness,
	"irritation":        TypeRedness,
	"rosacea":           TypeRedness,
	"acne":              TypeAcne,
	"pimples":           TypeAcne,
	"blemish":           TypeAcne,
	"blemishes":         TypeAcne,
	"breakout":          TypeAcne,
	"comedones":         TypeAcne,
	"shine":             TypeShine,
	"oiliness":          TypeShine,
	"oily":              TypeShine,
	"sebum":             TypeShine,
	"texture":           TypeTexture,
	"roughness":         TypeTexture,
	"bumpy":             TypeTexture,
	"pores":             TypeTexture,
	"enlarged_pores":    TypeTexture,
	"tone":              TypeTone,
	"uneven_tone":       TypeTone,
	"hyperpigmentation": TypeTone,
	"dark_spots":        TypeTone,
	"discoloration":     TypeTone,
	"dryness":           TypeDryness,
	"dry":               TypeDryness,
	"flaking":           TypeDryness,
	"dehydration":       TypeDryness,
	"barrier":           TypeBarrier,
	"barrier_damage":    TypeBarrier,
	"sensitivity":       TypeBarrier,
	"other":             TypeOther,
}

// CanonicalType maps a raw provider type string to a canonical Type.
func CanonicalType(raw string) Type {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if t, ok := typeAliases[key]; ok {
		return t
	}
	return TypeOther
}

// canonicalSensitivity maps a raw sensitivity string, defaulting to medium.
func canonicalSensitivity(raw string) QualitySensitivity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return SensitivityLow
	case "high":
		return SensitivityHigh
	default:
		return SensitivityMedium
	}
}

// clampSeverity clamps into [0,4].
func clampSeverity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxSeverity {
		return MaxSeverity
	}
	return v
}

// Normalize converts one raw provider concern into the canonical schema.
// Regions that yield no usable geometry are kept (a concern may legitimately
// carry only a heatmap that later reduces to nothing); the region list is
// truncated to the schema maximum. Returns false when the concern has no
// regions at all and therefore violates the ≥1 region invariant.
func Normalize(raw RawConcern, providerName, modelName string) (Concern, bool) {
	if len(raw.Regions) == 0 {
		return Concern{}, false
	}
	regions := raw.Regions
	if len(regions) > MaxRegionsPerConcern {
		regions = regions[:MaxRegionsPerConcern]
	}
	evidence := strings.TrimSpace(raw.EvidenceText)
	if len(evidence) > MaxEvidenceTextLength {
		evidence = evidence[:MaxEvidenceTextLength]
	}
	var sourceIDs []string
	if raw.SourceID != "" {
		sourceIDs = []string{raw.SourceID}
	}
	return Concern{
		Type:               CanonicalType(raw.Type),
		Regions:            regions,
		Severity:           clampSeverity(raw.Severity),
		Confidence:         region.Clamp01(raw.Confidence),
		EvidenceText:       evidence,
		QualitySensitivity: canonicalSensitivity(raw.QualitySensitivity),
		SourceModel:        modelName,
		Provenance: Provenance{
			Provider:  providerName,
			SourceIDs: sourceIDs,
		},
	}, true
}
