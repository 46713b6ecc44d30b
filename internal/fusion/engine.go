// Package fusion runs the providers, normalizes and clusters their
// concerns, calibrates and fuses each cluster into one canonical concern,
// flags conflicts, and emits a schema-validated canonical result. Provider
// failures never escape this package; the worst case is an empty but valid
// result.
package fusion

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"prism/internal/calib"
	"prism/internal/concern"
	"prism/internal/logging"
	"prism/internal/provider"
)

// FailSchemaInvalid is the failure reason reported when the fused result
// does not validate. The fallback result is empty but schema-valid.
const FailSchemaInvalid = "CANONICAL_SCHEMA_INVALID"

// minClusterConfidence floors the confidence factor in the cluster weight
// so a low-confidence member still contributes a little mass.
const minClusterConfidence = 0.2

// Conflict penalties.
const (
	typeConflictPenalty = 0.82
	anyConflictPenalty  = 0.78
)

// Config is the fusion engine's configuration surface.
type Config struct {
	Enabled         bool            `yaml:"enabled" json:"enabled"`
	ProviderEnabled map[string]bool `yaml:"provider_enabled" json:"provider_enabled"` // unlisted providers default to enabled
	ClusterIoU      float64         `yaml:"cluster_iou" json:"cluster_iou"`
	CallTimeoutMs   int             `yaml:"call_timeout_ms" json:"call_timeout_ms"`
	CallRetries     int             `yaml:"call_retries" json:"call_retries"` // attempts per provider
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		ClusterIoU: DefaultClusterIoU,
	}
}

// Engine fuses multi-provider outputs. RuleProvider runs on every call;
// VisionProviders run when enabled. Calibration is served by the injected
// engine and degrades to identity, never blocking fusion.
type Engine struct {
	RuleProvider    provider.Provider
	VisionProviders []provider.Provider
	Calib           *calib.Engine
	Config          Config
}

// Result is a fusion outcome: the canonical payload plus the engine-level
// ok flag. Canonical is always schema-valid, even when OK is false.
type Result struct {
	OK            bool                     `json:"ok"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Canonical     *concern.CanonicalResult `json:"canonical"`
	Outputs       []concern.ProviderOutput `json:"-"` // raw outputs for downstream sinks
}

// NewEngine wires a fusion engine with defaults where cfg leaves zeros.
func NewEngine(rule provider.Provider, vision []provider.Provider, calibEngine *calib.Engine, cfg Config) *Engine {
	if cfg.ClusterIoU <= 0 {
		cfg.ClusterIoU = DefaultClusterIoU
	}
	if calibEngine == nil {
		calibEngine = calib.NewEngine("")
	}
	return &Engine{RuleProvider: rule, VisionProviders: vision, Calib: calibEngine, Config: cfg}
}

func (e *Engine) providerEnabled(name string) bool {
	if e.Config.ProviderEnabled == nil {
		return true
	}
	enabled, ok := e.Config.ProviderEnabled[name]
	if !ok {
		return true
	}
	return enabled
}

// Fuse calls the rule-based provider and every enabled vision provider,
// then fuses their outputs. Provider calls are independent; a failed
// sibling never aborts the rest.
func (e *Engine) Fuse(ctx context.Context, in concern.Context) *Result {
	outputs := e.callProviders(ctx, in)
	return e.FuseOutputs(outputs, in)
}

func (e *Engine) callProviders(ctx context.Context, in concern.Context) []concern.ProviderOutput {
	opts := provider.CallOptions{
		Timeout:     time.Duration(e.Config.CallTimeoutMs) * time.Millisecond,
		MaxAttempts: e.Config.CallRetries,
	}

	var providers []provider.Provider
	if e.RuleProvider != nil {
		providers = append(providers, e.RuleProvider)
	}
	// Disabled fusion degrades to the rule-based detector alone.
	if e.Config.Enabled {
		for _, p := range e.VisionProviders {
			if e.providerEnabled(p.Name()) {
				providers = append(providers, p)
			}
		}
	}

	outputs := make([]concern.ProviderOutput, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			outputs[i] = *provider.Call(gctx, p, in, opts)
			return nil // failures live inside the output record
		})
	}
	_ = g.Wait()
	return outputs
}

// FuseOutputs fuses pre-collected provider outputs. This is the pure core:
// given the same outputs, repeated calls yield identical canonical results.
func (e *Engine) FuseOutputs(outputs []concern.ProviderOutput, in concern.Context) *Result {
	logger := logging.New("fusion")
	model := e.Calib.Model()

	// Stable stats ordering by provider name.
	stats := make([]concern.ProviderStat, 0, len(outputs))
	for i := range outputs {
		o := &outputs[i]
		stats = append(stats, concern.ProviderStat{
			Provider:      o.Provider,
			ModelName:     o.ModelName,
			OK:            o.OK,
			ConcernCount:  len(o.Concerns),
			LatencyMs:     o.LatencyMs,
			Attempts:      o.Attempts,
			FailureReason: o.FailureReason,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Provider < stats[j].Provider })

	// Pool concerns from succeeding providers, applying the direct quality
	// penalty before calibration.
	var pool []concern.Concern
	for i := range outputs {
		if !outputs[i].OK {
			continue
		}
		penalty := outputs[i].Quality.ConfidencePenalty()
		for _, c := range outputs[i].Concerns {
			c.Confidence *= effectivePenalty(penalty, c.QualitySensitivity)
			pool = append(pool, c)
		}
	}

	clusters := clusterConcerns(pool, e.Config.ClusterIoU)

	fused := make([]fusedCluster, 0, len(clusters))
	for _, cl := range clusters {
		fused = append(fused, e.fuseCluster(model, pool, cl, in))
	}

	conflicts, flags := detectConflicts(fused, pool)
	applyConflictPenalties(fused, flags)

	concerns := make([]concern.Concern, 0, len(fused))
	for i := range fused {
		concerns = append(concerns, fused[i].concern)
	}
	sortConcerns(concerns)
	if len(concerns) > concern.MaxConcernsPerResult {
		concerns = concerns[:concern.MaxConcernsPerResult]
	}

	canonical := &concern.CanonicalResult{
		Concerns:       concerns,
		Conflicts:      conflicts,
		ProviderStats:  stats,
		AgreementScore: agreementScore(outputs),
	}

	if err := concern.ValidateResult(canonical); err != nil {
		logger.Error("fused result failed schema validation", "inference_id", in.InferenceID, "error", err)
		return &Result{
			OK:            false,
			FailureReason: FailSchemaInvalid,
			Canonical: &concern.CanonicalResult{
				Concerns:       []concern.Concern{},
				Conflicts:      []concern.Conflict{},
				ProviderStats:  stats,
				AgreementScore: 0,
			},
			Outputs: outputs,
		}
	}
	return &Result{OK: true, Canonical: canonical, Outputs: outputs}
}

// effectivePenalty scales the quality penalty by how quality-sensitive the
// concern is: a low-sensitivity concern only takes half the hit.
func effectivePenalty(penalty float64, sens concern.QualitySensitivity) float64 {
	factor := 1.0
	switch sens {
	case concern.SensitivityLow:
		factor = 0.5
	case concern.SensitivityMedium:
		factor = 0.75
	}
	return 1 - (1-penalty)*factor
}

// reliability is the static trust prior for a provider on a concern type
// under the photo's quality grade. The rule-based detector is precise on
// geometry but weaker on quality-sensitive findings; quality-sensitive
// types take the bigger hit when the photo grade drops.
func reliability(providerName string, ct concern.Type, qualityGrade string) float64 {
	r := 1.0
	if providerName == "cv" {
		r = 0.9
	}
	switch qualityGrade {
	case concern.GradeDegraded:
		if concern.TypeSensitivity(ct) == concern.SensitivityHigh {
			r *= 0.85
		} else {
			r *= 0.95
		}
	case concern.GradeReject:
		r *= 0.7
	}
	return r
}

// sortConcerns orders by severity desc, confidence desc, then type and
// provider for a deterministic total order.
func sortConcerns(concerns []concern.Concern) {
	sort.SliceStable(concerns, func(i, j int) bool {
		if concerns[i].Severity != concerns[j].Severity {
			return concerns[i].Severity > concerns[j].Severity
		}
		if concerns[i].Confidence != concerns[j].Confidence {
			return concerns[i].Confidence > concerns[j].Confidence
		}
		if concerns[i].Type != concerns[j].Type {
			return concerns[i].Type < concerns[j].Type
		}
		return concerns[i].Provenance.Provider < concerns[j].Provenance.Provider
	})
}
