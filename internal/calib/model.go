package calib

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// SchemaVersion guards model file compatibility. A mismatched file degrades
// to the identity model, never blocks fusion.
const SchemaVersion = 1

// Defaults for training and smoothing.
const (
	DefaultIoUThreshold    = 0.3
	DefaultMinGroupSamples = 24
	DefaultMinScale        = 0.72
	DefaultMaxScale        = 1.0
	DefaultGamma           = 1.0
	DefaultWeight          = 1.0
)

// TrainingStats summarizes the fit, reported with every trained model.
type TrainingStats struct {
	SamplesTotal    int     `json:"samples_total"`
	IoUThreshold    float64 `json:"iou_threshold"`
	BaselineECE     float64 `json:"baseline_ece"`
	CalibratedECE   float64 `json:"calibrated_ece"`
	BaselineBrier   float64 `json:"baseline_brier"`
	CalibratedBrier float64 `json:"calibrated_brier"`
}

// CalibrationSet holds the trained calibrators per hierarchy rung.
type CalibrationSet struct {
	Global     *Isotonic            `json:"global,omitempty"`
	ByProvider map[string]*Isotonic `json:"by_provider,omitempty"`
	ByGroup    map[string]*Isotonic `json:"by_group,omitempty"`
	Hierarchy  []string             `json:"hierarchy,omitempty"`
}

// Weights is the provider reliability weight table.
type Weights struct {
	Default    float64            `json:"default"`
	ByProvider map[string]float64 `json:"by_provider,omitempty"`
	ByBucket   map[string]float64 `json:"by_bucket,omitempty"`
}

// Smoothing configures severity smoothing: severity is scaled by
// minScale + (maxScale-minScale)·confidence^gamma, pulling low-confidence
// severities down, never up.
type Smoothing struct {
	MinScale        float64 `json:"min_scale"`
	MaxScale        float64 `json:"max_scale"`
	ConfidenceGamma float64 `json:"confidence_gamma"`
}

// Model is the versioned calibration model, immutable once trained.
type Model struct {
	SchemaVersion     int            `json:"schema_version"`
	GeneratedAt       string         `json:"generated_at,omitempty"`
	Training          TrainingStats  `json:"training"`
	Calibration       CalibrationSet `json:"calibration"`
	ProviderWeights   Weights        `json:"provider_weights"`
	SeveritySmoothing Smoothing      `json:"severity_smoothing"`
}

// IdentityModel returns the no-op model used when no trained model is
// available: confidence passes through, every weight is the default.
func IdentityModel() *Model {
	return &Model{
		SchemaVersion: SchemaVersion,
		Calibration:   CalibrationSet{Hierarchy: HierarchyNames()},
		ProviderWeights: Weights{
			Default: DefaultWeight,
		},
		SeveritySmoothing: Smoothing{
			MinScale:        DefaultMinScale,
			MaxScale:        DefaultMaxScale,
			ConfidenceGamma: DefaultGamma,
		},
	}
}

// Calibrate maps raw confidence to a calibrated probability using the most
// specific trained bucket for ctx, falling back down the hierarchy, then to
// the provider calibrator, then global, then identity.
func (m *Model) Calibrate(confidence float64, ctx Context) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	for _, level := range Hierarchy {
		if level.Name == "provider" {
			// Provider rung lives in ByProvider, checked below.
			continue
		}
		if iso, ok := m.Calibration.ByGroup[level.Key(ctx)]; ok && iso != nil {
			return clampProb(iso.Predict(confidence))
		}
	}
	if iso, ok := m.Calibration.ByProvider[ctx.Provider]; ok && iso != nil {
		return clampProb(iso.Predict(confidence))
	}
	if m.Calibration.Global != nil {
		return clampProb(m.Calibration.Global.Predict(confidence))
	}
	return confidence
}

func clampProb(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SmoothSeverity scales severity by confidence so weak detections do not
// read as severe findings.
func (m *Model) SmoothSeverity(severity, confidence float64) float64 {
	s := m.SeveritySmoothing
	if s.MaxScale <= 0 {
		s = Smoothing{MinScale: DefaultMinScale, MaxScale: DefaultMaxScale, ConfidenceGamma: DefaultGamma}
	}
	gamma := s.ConfidenceGamma
	if gamma <= 0 {
		gamma = DefaultGamma
	}
	scale := s.MinScale + (s.MaxScale-s.MinScale)*math.Pow(clampProb(confidence), gamma)
	out := severity * scale
	if out < 0 {
		out = 0
	}
	return out
}

// Weight looks up the provider weight for a (provider, type, quality, tone)
// bucket, falling back to the provider-level weight, then the default.
func (m *Model) Weight(provider, concernType, quality, tone string) float64 {
	if w, ok := m.ProviderWeights.ByBucket[WeightBucketKey(provider, concernType, quality, tone)]; ok {
		return w
	}
	if w, ok := m.ProviderWeights.ByProvider[provider]; ok {
		return w
	}
	if m.ProviderWeights.Default > 0 {
		return m.ProviderWeights.Default
	}
	return DefaultWeight
}

// SaveModel writes the model as JSON via temp file + atomic rename.
func SaveModel(path string, m *Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}

// LoadModel reads a model file, returning an error for missing files,
// malformed JSON, or a schema version mismatch. Callers that must not block
// on calibration go through Engine, which degrades to identity.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("model schema version %d, want %d", m.SchemaVersion, SchemaVersion)
	}
	return &m, nil
}
