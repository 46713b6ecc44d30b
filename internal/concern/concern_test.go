package concern

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"prism/internal/region"
)

func bboxRegion(x0, y0, x1, y1 float64) region.Region {
	return region.Region{Kind: region.KindBbox, Box: &region.Bbox{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func TestCanonicalType(t *testing.T) {
	cases := []struct {
		raw  string
		want Type
	}{
		{"acne", TypeAcne},
		{"Pimples", TypeAcne},
		{"erythema", TypeRedness},
		{"Dark Spots", TypeTone},
		{"enlarged-pores", TypeTexture},
		{"barrier_damage", TypeBarrier},
		{"  oiliness  ", TypeShine},
		{"mystery_condition", TypeOther},
		{"", TypeOther},
	}
	for _, c := range cases {
		if got := CanonicalType(c.raw); got != c.want {
			t.Errorf("CanonicalType(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := RawConcern{
		Type:               "Pimples",
		Regions:            []region.Region{bboxRegion(0.1, 0.1, 0.3, 0.3)},
		Severity:           6.5,  // clamps to 4
		Confidence:         1.4,  // clamps to 1
		QualitySensitivity: "HIGH",
		SourceID:           "g-001",
	}
	got, ok := Normalize(raw, "gemini", "gemini-pro-vision")
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	want := Concern{
		Type:               TypeAcne,
		Regions:            raw.Regions,
		Severity:           4,
		Confidence:         1,
		QualitySensitivity: SensitivityHigh,
		SourceModel:        "gemini-pro-vision",
		Provenance:         Provenance{Provider: "gemini", SourceIDs: []string{"g-001"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalized concern mismatch (-want +got):\n%s", diff)
	}

	if _, ok := Normalize(RawConcern{Type: "acne"}, "cv", ""); ok {
		t.Error("concern without regions must be rejected")
	}
}

func TestNormalize_TruncatesRegionsAndEvidence(t *testing.T) {
	var regions []region.Region
	for i := 0; i < 9; i++ {
		regions = append(regions, bboxRegion(0.1, 0.1, 0.2, 0.2))
	}
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'x'
	}
	got, ok := Normalize(RawConcern{Type: "shine", Regions: regions, EvidenceText: string(long)}, "cv", "")
	if !ok {
		t.Fatal("expected ok")
	}
	if len(got.Regions) != MaxRegionsPerConcern {
		t.Errorf("regions = %d, want %d", len(got.Regions), MaxRegionsPerConcern)
	}
	if len(got.EvidenceText) != MaxEvidenceTextLength {
		t.Errorf("evidence = %d chars, want %d", len(got.EvidenceText), MaxEvidenceTextLength)
	}
}

func TestConfidencePenalty(t *testing.T) {
	perfect := QualityFeatures{ExposureScore: 1}
	if got := perfect.ConfidencePenalty(); got != 1 {
		t.Errorf("clean photo penalty = %v, want 1", got)
	}
	bad := QualityFeatures{ReflectionScore: 1, FilterScore: 1, MakeupDetected: true, FilterDetected: true}
	got := bad.ConfidencePenalty()
	if got >= perfect.ConfidencePenalty() {
		t.Error("worse quality must yield lower penalty factor")
	}
	if got < 0.25 {
		t.Errorf("penalty %v below floor", got)
	}
}

func validConcern() Concern {
	return Concern{
		Type:               TypeAcne,
		Regions:            []region.Region{bboxRegion(0.1, 0.1, 0.3, 0.3)},
		Severity:           2,
		Confidence:         0.8,
		QualitySensitivity: SensitivityMedium,
		Provenance:         Provenance{Provider: "cv", SourceIDs: []string{"c-1"}},
	}
}

func TestValidateConcern(t *testing.T) {
	c := validConcern()
	if err := ValidateConcern(&c); err != nil {
		t.Fatalf("valid concern rejected: %v", err)
	}

	broken := []func(*Concern){
		func(c *Concern) { c.Type = "wrinkles" },
		func(c *Concern) { c.Regions = nil },
		func(c *Concern) { c.Severity = 5 },
		func(c *Concern) { c.Confidence = -0.1 },
		func(c *Concern) { c.QualitySensitivity = "extreme" },
		func(c *Concern) { c.Provenance.Provider = "" },
		func(c *Concern) {
			c.Regions = []region.Region{{Kind: region.KindPolygon, Points: []region.Point{{X: 0.1, Y: 0.1}}}}
		},
		func(c *Concern) {
			c.Regions = []region.Region{{Kind: region.KindHeatmap, Rows: 2, Cols: 2, Values: []float64{1}}}
		},
	}
	for i, mutate := range broken {
		c := validConcern()
		mutate(&c)
		if err := ValidateConcern(&c); err == nil {
			t.Errorf("mutation %d: expected validation error", i)
		}
	}
}

func TestValidateResult(t *testing.T) {
	res := &CanonicalResult{
		Concerns:       []Concern{validConcern()},
		AgreementScore: 0.9,
	}
	if err := ValidateResult(res); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}

	res.Concerns[0].Provenance.SourceIDs = nil
	if err := ValidateResult(res); err == nil {
		t.Error("fused concern without source ids must fail validation")
	}

	res = &CanonicalResult{AgreementScore: 1.2}
	if err := ValidateResult(res); err == nil {
		t.Error("agreement score above 1 must fail validation")
	}

	res = &CanonicalResult{Conflicts: []Conflict{{Kind: "loudness_disagreement"}}}
	if err := ValidateResult(res); err == nil {
		t.Error("unknown conflict kind must fail validation")
	}
}
