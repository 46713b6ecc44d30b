// Package labelstore is the online persistence sink behind fusion and
// shadow verification: it appends sanitized provider outputs, pair
// agreement samples, and gated pseudo-labels to an NDJSON artifact store
// with a versioned manifest. Writes are best-effort; a disk failure is
// logged by the caller and never reaches the user-facing path.
package labelstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"prism/internal/concern"
	"prism/internal/logging"
)

// Store file names inside the artifact directory.
const (
	ManifestFile         = "manifest.json"
	ModelOutputsFile     = "model_outputs.ndjson"
	AgreementSamplesFile = "agreement_samples.ndjson"
	PseudoLabelsFile     = "pseudo_labels.ndjson"
)

// Defaults for the pseudo-label gates.
const (
	DefaultRegionIoU          = 0.3
	DefaultAgreementThreshold = 0.6
)

// Config is the pseudo-label factory's configuration surface.
type Config struct {
	Enabled            bool    `yaml:"enabled" json:"enabled"`
	RegionIoU          float64 `yaml:"region_iou" json:"region_iou"`
	AgreementThreshold float64 `yaml:"agreement_threshold" json:"agreement_threshold"`
	AllowFullROI       bool    `yaml:"allow_full_roi" json:"allow_full_roi"` // keep raw region geometry in stored outputs
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		RegionIoU:          DefaultRegionIoU,
		AgreementThreshold: DefaultAgreementThreshold,
	}
}

// Counts tracks how many records each NDJSON file holds.
type Counts struct {
	ModelOutputs     int64 `json:"model_outputs"`
	AgreementSamples int64 `json:"agreement_samples"`
	PseudoLabels     int64 `json:"pseudo_labels"`
}

// Manifest is the store directory's single mutable object. It is only ever
// replaced whole, via temp file and rename.
type Manifest struct {
	Settings Config `json:"settings"`
	Counts   Counts `json:"counts"`
}

// ModelOutputRecord is one persisted provider call, sanitized.
type ModelOutputRecord struct {
	ID            string            `json:"id"`
	CreatedAt     string            `json:"created_at"` // RFC 3339 UTC
	InferenceID   string            `json:"inference_id"`
	AssetID       string            `json:"asset_id,omitempty"`
	Provider      string            `json:"provider"`
	ModelName     string            `json:"model_name,omitempty"`
	OK            bool              `json:"ok"`
	FailureReason string            `json:"failure_reason,omitempty"`
	LatencyMs     int64             `json:"latency_ms"`
	Attempts      int               `json:"attempts"`
	QualityGrade  string            `json:"quality_grade"`
	Lighting      string            `json:"lighting"`
	ToneBucket    string            `json:"tone_bucket"`
	Concerns      []concern.Concern `json:"concerns,omitempty"`
}

// AgreementSample is one persisted pair agreement measurement.
type AgreementSample struct {
	ID           string    `json:"id"`
	CreatedAt    string    `json:"created_at"`
	InferenceID  string    `json:"inference_id"`
	Pair         [2]string `json:"pair"`
	Agreement    Agreement `json:"agreement"`
	QualityGrade string    `json:"quality_grade"`
	Lighting     string    `json:"lighting"`
	ToneBucket   string    `json:"tone_bucket"`
}

// Store appends to one artifact directory. The mutex serializes manifest
// read-merge-replace cycles within the process.
type Store struct {
	Dir    string
	Config Config

	mu  sync.Mutex
	now func() time.Time
}

// NewStore opens (or lazily creates) an artifact store at dir.
func NewStore(dir string, cfg Config) *Store {
	if cfg.RegionIoU <= 0 {
		cfg.RegionIoU = DefaultRegionIoU
	}
	if cfg.AgreementThreshold <= 0 {
		cfg.AgreementThreshold = DefaultAgreementThreshold
	}
	return &Store{Dir: dir, Config: cfg, now: time.Now}
}

// RecordSummary reports what one Record call appended.
type RecordSummary struct {
	ModelOutputs    int
	AgreementSample bool
	PseudoLabel     bool
}

// Record persists one fused inference: every provider output (sanitized),
// an agreement sample when at least two providers succeeded, and a
// pseudo-label when the gates pass.
func (s *Store) Record(in concern.Context, outputs []concern.ProviderOutput) (*RecordSummary, error) {
	if !s.Config.Enabled {
		return &RecordSummary{}, nil
	}
	summary := &RecordSummary{}
	now := s.now().UTC().Format(time.RFC3339)

	var delta Counts
	for i := range outputs {
		rec := s.modelOutputRecord(&outputs[i], in, now)
		if err := s.appendLine(ModelOutputsFile, rec); err != nil {
			return summary, err
		}
		delta.ModelOutputs++
		summary.ModelOutputs++
	}

	if left, right := SelectCanonicalPair(outputs); left != nil {
		agreement := ComputeAgreementForPair(left.Concerns, right.Concerns)
		sample := AgreementSample{
			ID:           uuid.NewString(),
			CreatedAt:    now,
			InferenceID:  in.InferenceID,
			Pair:         [2]string{left.Provider, right.Provider},
			Agreement:    agreement,
			QualityGrade: in.QualityGrade,
			Lighting:     in.Lighting,
			ToneBucket:   in.ToneBucket,
		}
		if err := s.appendLine(AgreementSamplesFile, sample); err != nil {
			return summary, err
		}
		delta.AgreementSamples++
		summary.AgreementSample = true

		labels := GeneratePseudoLabelsForPair(left, right, in.QualityGrade, s.Config.RegionIoU, s.Config.AgreementThreshold)
		if labels.Emitted {
			label := PseudoLabel{
				ID:          uuid.NewString(),
				InferenceID: in.InferenceID,
				AssetID:     in.AssetID,
				Pair:        sample.Pair,
				Agreement:   labels.Agreement,
				Threshold:   s.Config.AgreementThreshold,
				Concerns:    labels.Matched,
				CreatedAt:   now,
			}
			if err := s.appendLine(PseudoLabelsFile, label); err != nil {
				return summary, err
			}
			delta.PseudoLabels++
			summary.PseudoLabel = true
		}
	}

	if err := s.bumpManifest(delta); err != nil {
		return summary, err
	}
	return summary, nil
}

// AppendModelOutput persists one provider call outside the fusion path
// (the shadow verifier's sink).
func (s *Store) AppendModelOutput(out *concern.ProviderOutput, in concern.Context) error {
	rec := s.modelOutputRecord(out, in, s.now().UTC().Format(time.RFC3339))
	if err := s.appendLine(ModelOutputsFile, rec); err != nil {
		return err
	}
	return s.bumpManifest(Counts{ModelOutputs: 1})
}

func (s *Store) modelOutputRecord(out *concern.ProviderOutput, in concern.Context, now string) ModelOutputRecord {
	return ModelOutputRecord{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		InferenceID:   in.InferenceID,
		AssetID:       in.AssetID,
		Provider:      out.Provider,
		ModelName:     out.ModelName,
		OK:            out.OK,
		FailureReason: out.FailureReason,
		LatencyMs:     out.LatencyMs,
		Attempts:      out.Attempts,
		QualityGrade:  in.QualityGrade,
		Lighting:      in.Lighting,
		ToneBucket:    in.ToneBucket,
		Concerns:      sanitizeConcerns(out.Concerns, s.Config.AllowFullROI),
	}
}

// ReadModelOutputs loads every persisted model output record, skipping
// lines that fail to decode.
func (s *Store) ReadModelOutputs() ([]ModelOutputRecord, error) {
	return ReadLines[ModelOutputRecord](filepath.Join(s.Dir, ModelOutputsFile))
}

// ReadAgreementSamples loads every persisted agreement sample.
func (s *Store) ReadAgreementSamples() ([]AgreementSample, error) {
	return ReadLines[AgreementSample](filepath.Join(s.Dir, AgreementSamplesFile))
}

// ReadPseudoLabels loads every emitted pseudo-label.
func (s *Store) ReadPseudoLabels() ([]PseudoLabel, error) {
	return ReadLines[PseudoLabel](filepath.Join(s.Dir, PseudoLabelsFile))
}

// Manifest reads the current manifest, or a zero manifest if none exists.
func (s *Store) Manifest() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readManifestLocked()
}

func (s *Store) readManifestLocked() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, ManifestFile))
	if os.IsNotExist(err) {
		return &Manifest{Settings: s.Config}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// bumpManifest merges a count delta into the on-disk manifest via temp
// write plus rename. A crash mid-update loses only the pending delta; the
// file on disk is always the last fully written object.
func (s *Store) bumpManifest(delta Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifestLocked()
	if err != nil {
		logging.New("labelstore").Warn("manifest unreadable, rebuilding", "dir", s.Dir, "error", err)
		m = &Manifest{}
	}
	m.Settings = s.Config
	m.Counts.ModelOutputs += delta.ModelOutputs
	m.Counts.AgreementSamples += delta.AgreementSamples
	m.Counts.PseudoLabels += delta.PseudoLabels

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(s.Dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

func (s *Store) appendLine(name string, v any) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	return AppendLine(filepath.Join(s.Dir, name), v)
}

// AppendLine appends v as one NDJSON line. The write is a single append of
// a whole line, so concurrent appenders never interleave partial records.
func AppendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadLines decodes every NDJSON record in path. A missing file is empty,
// not an error; a truncated tail keeps what decoded.
func ReadLines[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var out []T
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			break // truncated tail, keep what decoded
		}
		out = append(out, rec)
	}
	return out, nil
}
