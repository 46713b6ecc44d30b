// Package concern defines the canonical concern schema every provider
// output is normalized into, plus the shared context bundle (photo quality,
// lighting, tone) that calibration and gating key their buckets on.
package concern

import (
	"prism/internal/region"
)

// Type is a canonical concern type. Unknown provider types map to TypeOther.
type Type string

const (
	TypeRedness Type = "redness"
	TypeAcne    Type = "acne"
	TypeShine   Type = "shine"
	TypeTexture Type = "texture"
	TypeTone    Type = "tone"
	TypeDryness Type = "dryness"
	TypeBarrier Type = "barrier"
	TypeOther   Type = "other"
)

// AllTypes lists every canonical type in stable order.
var AllTypes = []Type{
	TypeRedness, TypeAcne, TypeShine, TypeTexture,
	TypeTone, TypeDryness, TypeBarrier, TypeOther,
}

// QualitySensitivity grades how much photo quality affects a concern's signal.
type QualitySensitivity string

const (
	SensitivityLow    QualitySensitivity = "low"
	SensitivityMedium QualitySensitivity = "medium"
	SensitivityHigh   QualitySensitivity = "high"
)

// TypeSensitivity is the canonical quality sensitivity of a concern type,
// independent of what a provider reports per concern. Color-driven findings
// suffer most under bad exposure or white balance; acne is mostly geometric.
func TypeSensitivity(t Type) QualitySensitivity {
	switch t {
	case TypeRedness, TypeShine, TypeTone:
		return SensitivityHigh
	case TypeAcne:
		return SensitivityLow
	default:
		return SensitivityMedium
	}
}

// Photo quality grades assigned upstream by the quality gate.
const (
	GradePass     = "pass"
	GradeDegraded = "degraded"
	GradeReject   = "reject"
)

// Schema limits.
const (
	MaxRegionsPerConcern  = 6
	MaxConcernsPerResult  = 64
	MaxEvidenceTextLength = 500
	MaxSeverity           = 4.0
)

// Provenance records where a canonical concern came from.
type Provenance struct {
	Provider  string   `json:"provider"`
	SourceIDs []string `json:"source_ids,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

// Concern is one normalized detected issue.
type Concern struct {
	Type               Type               `json:"type"`
	Regions            []region.Region    `json:"regions"` // 1..6
	Severity           float64            `json:"severity"`   // 0..4
	Confidence         float64            `json:"confidence"` // 0..1
	EvidenceText       string             `json:"evidence_text,omitempty"`
	QualitySensitivity QualitySensitivity `json:"quality_sensitivity"`
	SourceModel        string             `json:"source_model,omitempty"`
	Provenance         Provenance         `json:"provenance"`
	Uncertain          bool               `json:"uncertain,omitempty"`
}

// PrimaryBbox returns the concern's first extractable box.
func (c *Concern) PrimaryBbox() *region.Bbox {
	return region.PrimaryBbox(c.Regions)
}

// QualityFeatures are photo-quality signals in [0,1] plus detector flags.
// They feed calibration context and a direct confidence penalty.
type QualityFeatures struct {
	ExposureScore   float64 `json:"exposure_score"`
	ReflectionScore float64 `json:"reflection_score"`
	FilterScore     float64 `json:"filter_score"`
	MakeupDetected  bool    `json:"makeup_detected"`
	FilterDetected  bool    `json:"filter_detected"`
}

// ConfidencePenalty derives the multiplicative confidence penalty from
// quality signals. Poor exposure, heavy reflections, and filter/makeup
// artifacts all shave confidence; the floor keeps a concern from being
// erased by photo quality alone.
func (q QualityFeatures) ConfidencePenalty() float64 {
	p := 0.7 + 0.3*region.Clamp01(q.ExposureScore)
	p *= 1 - 0.25*region.Clamp01(q.ReflectionScore)
	p *= 1 - 0.2*region.Clamp01(q.FilterScore)
	if q.FilterDetected {
		p *= 0.9
	}
	if q.MakeupDetected {
		p *= 0.9
	}
	if p < 0.25 {
		p = 0.25
	}
	if p > 1 {
		p = 1
	}
	return p
}

// Context is the per-image bundle handed to fusion and verification.
type Context struct {
	InferenceID  string          `json:"inference_id"`
	AssetID      string          `json:"asset_id,omitempty"`
	ImageRef     string          `json:"image_ref,omitempty"` // opaque handle for provider adapters
	QualityGrade string          `json:"quality_grade"`       // pass / degraded / reject
	Lighting     string          `json:"lighting"`            // e.g. daylight / indoor / dim
	ToneBucket   string          `json:"tone_bucket"`         // coarse skin-tone group
	Quality      QualityFeatures `json:"quality_features"`
	PhotoUsed    bool            `json:"photo_used"`
}

// ProviderOutput is the normalized record of one provider call.
type ProviderOutput struct {
	Provider           string          `json:"provider"`
	ModelName          string          `json:"model_name,omitempty"`
	ModelVersion       string          `json:"model_version,omitempty"`
	OK                 bool            `json:"ok"`
	Concerns           []Concern       `json:"concerns,omitempty"`
	LatencyMs          int64           `json:"latency_ms"`
	Attempts           int             `json:"attempts"`
	ProviderStatusCode int             `json:"provider_status_code,omitempty"`
	FailureReason      string          `json:"failure_reason,omitempty"`
	Quality            QualityFeatures `json:"quality_features"`
}

// ConflictKind classifies a provider disagreement on a fused cluster.
type ConflictKind string

const (
	ConflictSeverity ConflictKind = "severity_disagreement"
	ConflictRegion   ConflictKind = "region_disagreement"
	ConflictType     ConflictKind = "type_disagreement"
)

// Conflict is one recorded disagreement.
type Conflict struct {
	Kind      ConflictKind `json:"kind"`
	Types     []Type       `json:"types"`
	Providers []string     `json:"providers,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// ProviderStat is the per-call entry surfaced in the canonical result.
type ProviderStat struct {
	Provider      string `json:"provider"`
	ModelName     string `json:"model_name,omitempty"`
	OK            bool   `json:"ok"`
	ConcernCount  int    `json:"concern_count"`
	LatencyMs     int64  `json:"latency_ms"`
	Attempts      int    `json:"attempts"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// CanonicalResult is the fused, schema-validated output of one fusion run.
type CanonicalResult struct {
	Concerns       []Concern      `json:"concerns"`
	Conflicts      []Conflict     `json:"conflicts"`
	ProviderStats  []ProviderStat `json:"provider_stats"`
	AgreementScore float64        `json:"agreement_score"`
}
