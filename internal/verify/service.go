// Package verify is the shadow verification service: it re-runs detection
// through the rule-based provider and one vision-language verifier, compares
// the two per issue type, and records hard cases. It is invisible to the
// primary response path; every call, success or failure, is persisted for
// reliability aggregation.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"prism/internal/concern"
	"prism/internal/labelstore"
	"prism/internal/logging"
	"prism/internal/provider"
)

// Defaults.
const (
	DefaultIoUThreshold      = 0.55
	DefaultHardCaseThreshold = 0.55
	DefaultTimeoutMs         = 20000
	DefaultRetries           = 2
)

// Skip reasons, in skip-chain order.
const (
	SkipDisabled        = "disabled"
	SkipPhotoNotUsed    = "photo_not_used"
	SkipQualityGrade    = "quality_not_eligible"
	SkipMissingImage    = "missing_image"
	SkipBudgetExhausted = "budget_guard"
)

// Outcome statuses.
const (
	StatusSkipped      = "skipped"
	StatusVerifiedOK   = "verified_ok"
	StatusVerifiedFail = "verified_fail"
)

// Config is the shadow verifier's configuration surface.
type Config struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	IoUThreshold      float64 `yaml:"iou_threshold" json:"iou_threshold"`
	TimeoutMs         int     `yaml:"timeout_ms" json:"timeout_ms"`
	Retries           int     `yaml:"retries" json:"retries"`
	HardCaseThreshold float64 `yaml:"hard_case_threshold" json:"hard_case_threshold"`
	MaxPerMinute      int     `yaml:"max_per_minute" json:"max_per_minute"` // 0 = unlimited
	MaxPerDay         int     `yaml:"max_per_day" json:"max_per_day"`       // 0 = unlimited
	HardCasePath      string  `yaml:"hard_case_path" json:"hard_case_path"`
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		IoUThreshold:      DefaultIoUThreshold,
		TimeoutMs:         DefaultTimeoutMs,
		Retries:           DefaultRetries,
		HardCaseThreshold: DefaultHardCaseThreshold,
	}
}

// Outcome is the result of one shadow verification call.
type Outcome struct {
	Status         string  `json:"status"`
	SkipReason     string  `json:"skip_reason,omitempty"`
	FailureReason  string  `json:"failure_reason,omitempty"` // normalized verify-level reason
	AgreementScore float64 `json:"agreement_score"`
	Rows           []Row   `json:"rows,omitempty"`
	HardCase       bool    `json:"hard_case"`
}

// HardCase is the durable record of a verification worth human review.
// Identifiers are hashed, never stored raw.
type HardCase struct {
	ID             string   `json:"id"`
	CreatedAt      string   `json:"created_at"`
	InferenceHash  string   `json:"inference_hash"`
	AssetHash      string   `json:"asset_hash,omitempty"`
	AgreementScore float64  `json:"agreement_score"`
	Reasons        []string `json:"reasons"`
	Rows           []Row    `json:"rows,omitempty"`
}

// Service runs shadow verification. The guard is injected so tests can
// instantiate independent counters; the sink is the pseudo-label factory's
// model-output store.
type Service struct {
	Rule     provider.Provider
	Verifier provider.Provider
	Guard    *BudgetGuard
	Sink     *labelstore.Store
	Config   Config
}

// NewService wires a verification service with defaults where cfg leaves
// zeros.
func NewService(rule, verifier provider.Provider, guard *BudgetGuard, sink *labelstore.Store, cfg Config) *Service {
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	if cfg.HardCaseThreshold <= 0 {
		cfg.HardCaseThreshold = DefaultHardCaseThreshold
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if guard == nil {
		guard = NewBudgetGuard(cfg.MaxPerMinute, cfg.MaxPerDay)
	}
	return &Service{Rule: rule, Verifier: verifier, Guard: guard, Sink: sink, Config: cfg}
}

// Verify walks the skip chain and, if every gate passes, runs the rule
// provider and the verifier, compares them, and records the outcome.
// Persistence is best-effort and never fails the call.
func (s *Service) Verify(ctx context.Context, in concern.Context) *Outcome {
	logger := logging.New("verify")

	switch {
	case !s.Config.Enabled:
		return &Outcome{Status: StatusSkipped, SkipReason: SkipDisabled, AgreementScore: 1}
	case !in.PhotoUsed:
		return &Outcome{Status: StatusSkipped, SkipReason: SkipPhotoNotUsed, AgreementScore: 1}
	case in.QualityGrade != concern.GradePass && in.QualityGrade != concern.GradeDegraded:
		return &Outcome{Status: StatusSkipped, SkipReason: SkipQualityGrade, AgreementScore: 1}
	case in.ImageRef == "":
		return &Outcome{Status: StatusSkipped, SkipReason: SkipMissingImage, AgreementScore: 1}
	case !s.Guard.Allow():
		// Guard skips are persisted so reliability aggregation can count
		// them, with the synthetic reason distinguishing them from real
		// failures.
		s.persist(&concern.ProviderOutput{
			Provider:      s.Verifier.Name(),
			OK:            false,
			FailureReason: provider.VerifyBudgetGuard,
		}, in, logger)
		return &Outcome{Status: StatusSkipped, SkipReason: SkipBudgetExhausted, AgreementScore: 1}
	}

	opts := provider.CallOptions{
		Timeout:     time.Duration(s.Config.TimeoutMs) * time.Millisecond,
		MaxAttempts: s.Config.Retries,
	}
	ruleOut := provider.Call(ctx, s.Rule, in, opts)
	verifierOut := provider.Call(ctx, s.Verifier, in, opts)
	s.persist(verifierOut, in, logger)

	if !verifierOut.OK || !ruleOut.OK {
		failed := verifierOut
		if verifierOut.OK {
			failed = ruleOut
		}
		out := &Outcome{
			Status:        StatusVerifiedFail,
			FailureReason: provider.NormalizeVerifyReason(failed.FailureReason),
			HardCase:      true,
		}
		s.recordHardCase(in, out, []string{"verifier call failed: " + out.FailureReason}, logger)
		return out
	}

	rows := compareOutputs(ruleOut.Concerns, verifierOut.Concerns, s.Config.IoUThreshold)
	score := agreementScore(rows)

	var reasons []string
	if score < s.Config.HardCaseThreshold {
		reasons = append(reasons, "agreement below threshold")
	}
	for _, r := range rows {
		if r.Verdict == VerdictDisagree {
			reasons = append(reasons, string(r.Type)+": "+r.Reason)
		}
	}

	out := &Outcome{
		Status:         StatusVerifiedOK,
		AgreementScore: score,
		Rows:           rows,
		HardCase:       len(reasons) > 0,
	}
	if out.HardCase {
		s.recordHardCase(in, out, reasons, logger)
	}
	return out
}

func (s *Service) persist(out *concern.ProviderOutput, in concern.Context, logger *slog.Logger) {
	if s.Sink == nil {
		return
	}
	if err := s.Sink.AppendModelOutput(out, in); err != nil {
		logger.Warn("model output persistence failed", "inference_id", in.InferenceID, "error", err)
	}
}

func (s *Service) recordHardCase(in concern.Context, out *Outcome, reasons []string, logger *slog.Logger) {
	if s.Config.HardCasePath == "" {
		return
	}
	hc := HardCase{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		InferenceHash:  hashID(in.InferenceID),
		AssetHash:      hashID(in.AssetID),
		AgreementScore: out.AgreementScore,
		Reasons:        reasons,
		Rows:           out.Rows,
	}
	if err := labelstore.AppendLine(s.Config.HardCasePath, hc); err != nil {
		logger.Warn("hard case persistence failed", "inference_id", in.InferenceID, "error", err)
	}
}

// hashID hashes an identifier for storage. Hard cases never keep raw ids.
func hashID(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
