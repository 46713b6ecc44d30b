// Package reliability builds the per-bucket verifier reliability table from
// persisted artifacts and gates whether the verifier's opinion may count in
// a vote. Unknown buckets never default to trusted.
package reliability

import (
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"prism/internal/goldstore"
	"prism/internal/labelstore"
	"prism/internal/logging"
	"prism/internal/provider"
)

// SchemaVersion guards the table file format.
const SchemaVersion = 1

// Ineligibility reasons, named so operators can see why a bucket is out.
const (
	ReasonVotingDisabled   = "voting_disabled"
	ReasonNoVerifyCalls    = "no_verify_calls"
	ReasonFailRate         = "fail_rate_above_max"
	ReasonAgreementSamples = "insufficient_agreement_samples"
	ReasonAgreementMean    = "agreement_mean_below_min"
	ReasonAgreementStddev  = "agreement_stddev_above_max"
	ReasonGoldSamples      = "insufficient_gold_samples"
	ReasonTableMissing     = "RELIABILITY_TABLE_MISSING"
	ReasonBucketNotFound   = "BUCKET_NOT_FOUND"
)

// GateConfig holds the vote-gate thresholds.
type GateConfig struct {
	VotingEnabled       bool    `yaml:"voting_enabled" json:"voting_enabled"`
	MaxFailRate         float64 `yaml:"max_fail_rate" json:"max_fail_rate"`
	MinAgreement        float64 `yaml:"min_agreement" json:"min_agreement"`
	MinAgreementSamples int     `yaml:"min_agreement_samples" json:"min_agreement_samples"`
	MaxAgreementStddev  float64 `yaml:"max_agreement_stddev" json:"max_agreement_stddev"`
	MinGoldSamples      int     `yaml:"min_gold_samples" json:"min_gold_samples"`
}

// DefaultGateConfig returns the reference thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		VotingEnabled:       true,
		MaxFailRate:         0.2,
		MinAgreement:        0.6,
		MinAgreementSamples: 20,
		MaxAgreementStddev:  0.3,
		MinGoldSamples:      5,
	}
}

// BucketKey identifies one reliability bucket.
type BucketKey struct {
	IssueType    string `json:"issue_type"`
	QualityGrade string `json:"quality_grade"`
	Lighting     string `json:"lighting"`
	ToneBucket   string `json:"tone_bucket"`
}

// String renders the key the table is looked up by.
func (k BucketKey) String() string {
	return strings.Join([]string{k.IssueType, k.QualityGrade, k.Lighting, k.ToneBucket}, "|")
}

// Bucket is one aggregated reliability row.
type Bucket struct {
	Key BucketKey `json:"key"`

	VerifyCalls int     `json:"verify_calls"` // guard skips included
	GuardCalls  int     `json:"guard_calls"`
	FailRate    float64 `json:"fail_rate"` // guard skips excluded from the denominator
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`

	AgreementCount  int     `json:"agreement_count"`
	AgreementMean   float64 `json:"agreement_mean"`
	AgreementP50    float64 `json:"agreement_p50"`
	AgreementP90    float64 `json:"agreement_p90"`
	AgreementStddev float64 `json:"agreement_stddev"`

	GoldCount int `json:"gold_count"`

	EligibleForVote   bool     `json:"eligible_for_vote"`
	IneligibleReasons []string `json:"ineligible_reasons,omitempty"`
}

// Summary is the table-level rollup.
type Summary struct {
	Buckets         int `json:"buckets"`
	EligibleBuckets int `json:"eligible_buckets"`
	VerifyCalls     int `json:"verify_calls"`
}

// Table is the reliability table file payload.
type Table struct {
	SchemaVersion int        `json:"schema_version"`
	GeneratedAt   string     `json:"generated_at"`
	DatePrefix    string     `json:"date_prefix,omitempty"`
	GateConfig    GateConfig `json:"gate_config"`
	Summary       Summary    `json:"summary"`
	Buckets       []Bucket   `json:"buckets"`
}

// BuildInput is everything one table build consumes.
type BuildInput struct {
	ModelOutputs     []labelstore.ModelOutputRecord
	AgreementSamples []labelstore.AgreementSample
	GoldLabels       []*goldstore.GoldLabel
	VerifierProvider string
	DatePrefix       string // RFC 3339 prefix filter on verify rows, empty = all
}

// triple is the (quality, lighting, tone) context grouping.
type triple struct{ quality, lighting, tone string }

type verifyAgg struct {
	calls     int
	guard     int
	fails     int
	attempted int
	latencies []float64
}

type agreementAgg struct {
	scores []float64
}

// Build aggregates artifacts into a reliability table. Verify stats are
// aggregated per (quality, lighting, tone) and then exploded per issue type
// using the union of types seen in agreement and gold data for that triple,
// falling back to "other".
func Build(in BuildInput, gate GateConfig) *Table {
	logger := logging.New("reliability")

	verify := map[triple]*verifyAgg{}
	for _, rec := range in.ModelOutputs {
		if rec.Provider != in.VerifierProvider {
			continue
		}
		if in.DatePrefix != "" && !strings.HasPrefix(rec.CreatedAt, in.DatePrefix) {
			continue
		}
		key := triple{rec.QualityGrade, rec.Lighting, rec.ToneBucket}
		agg := verify[key]
		if agg == nil {
			agg = &verifyAgg{}
			verify[key] = agg
		}
		agg.calls++
		if rec.FailureReason == provider.VerifyBudgetGuard {
			agg.guard++
			continue
		}
		agg.attempted++
		if !rec.OK {
			agg.fails++
		}
		agg.latencies = append(agg.latencies, float64(rec.LatencyMs))
	}

	// Agreement rows: one per issue type per sample, "other" when the
	// sample has no per-type breakdown.
	agreement := map[triple]map[string]*agreementAgg{}
	typesFor := map[triple]map[string]bool{}
	addType := func(key triple, issue string) {
		if typesFor[key] == nil {
			typesFor[key] = map[string]bool{}
		}
		typesFor[key][issue] = true
	}
	for _, s := range in.AgreementSamples {
		key := triple{s.QualityGrade, s.Lighting, s.ToneBucket}
		rows := map[string]float64{}
		if len(s.Agreement.PerType) > 0 {
			for issue, score := range s.Agreement.PerType {
				rows[issue] = score
			}
		} else {
			rows["other"] = s.Agreement.Overall
		}
		for issue, score := range rows {
			if agreement[key] == nil {
				agreement[key] = map[string]*agreementAgg{}
			}
			agg := agreement[key][issue]
			if agg == nil {
				agg = &agreementAgg{}
				agreement[key][issue] = agg
			}
			agg.scores = append(agg.scores, score)
			addType(key, issue)
		}
	}

	// Gold rows: one per distinct concern type per label.
	gold := map[triple]map[string]int{}
	anyGold := false
	for _, g := range in.GoldLabels {
		key := triple{g.QualityGrade, g.Lighting, g.ToneBucket}
		seen := map[string]bool{}
		for i := range g.Concerns {
			seen[string(g.Concerns[i].Type)] = true
		}
		if len(seen) == 0 {
			seen["other"] = true
		}
		for issue := range seen {
			if gold[key] == nil {
				gold[key] = map[string]int{}
			}
			gold[key][issue]++
			addType(key, issue)
			anyGold = true
		}
	}

	var buckets []Bucket
	for key, agg := range verify {
		issues := typesFor[key]
		if len(issues) == 0 {
			issues = map[string]bool{"other": true}
		}
		names := make([]string, 0, len(issues))
		for issue := range issues {
			names = append(names, issue)
		}
		sort.Strings(names)

		for _, issue := range names {
			b := Bucket{
				Key: BucketKey{
					IssueType:    issue,
					QualityGrade: key.quality,
					Lighting:     key.lighting,
					ToneBucket:   key.tone,
				},
				VerifyCalls: agg.calls,
				GuardCalls:  agg.guard,
			}
			if agg.attempted > 0 {
				b.FailRate = float64(agg.fails) / float64(agg.attempted)
			}
			if len(agg.latencies) > 0 {
				lat := append([]float64(nil), agg.latencies...)
				sort.Float64s(lat)
				b.LatencyP50 = stat.Quantile(0.5, stat.Empirical, lat, nil)
				b.LatencyP95 = stat.Quantile(0.95, stat.Empirical, lat, nil)
			}
			if aa := agreement[key][issue]; aa != nil {
				scores := append([]float64(nil), aa.scores...)
				sort.Float64s(scores)
				b.AgreementCount = len(scores)
				b.AgreementMean = stat.Mean(scores, nil)
				b.AgreementP50 = stat.Quantile(0.5, stat.Empirical, scores, nil)
				b.AgreementP90 = stat.Quantile(0.9, stat.Empirical, scores, nil)
				if len(scores) > 1 {
					b.AgreementStddev = stat.StdDev(scores, nil)
				}
			}
			b.GoldCount = gold[key][issue]
			b.EligibleForVote, b.IneligibleReasons = evaluate(&b, gate, anyGold)
			buckets = append(buckets, b)
		}
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key.String() < buckets[j].Key.String() })

	t := &Table{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		DatePrefix:    in.DatePrefix,
		GateConfig:    gate,
		Buckets:       buckets,
	}
	t.Summary.Buckets = len(buckets)
	for i := range buckets {
		t.Summary.VerifyCalls += buckets[i].VerifyCalls
		if buckets[i].EligibleForVote {
			t.Summary.EligibleBuckets++
		}
	}
	logger.Info("reliability table built",
		"buckets", t.Summary.Buckets,
		"eligible", t.Summary.EligibleBuckets,
		"date_prefix", in.DatePrefix)
	return t
}

// evaluate applies every gate condition and names each failure. The gold
// condition only binds when gold data exists anywhere in the input.
func evaluate(b *Bucket, gate GateConfig, anyGold bool) (bool, []string) {
	var reasons []string
	if !gate.VotingEnabled {
		reasons = append(reasons, ReasonVotingDisabled)
	}
	if b.VerifyCalls == 0 {
		reasons = append(reasons, ReasonNoVerifyCalls)
	}
	if b.FailRate > gate.MaxFailRate {
		reasons = append(reasons, ReasonFailRate)
	}
	if b.AgreementCount < gate.MinAgreementSamples {
		reasons = append(reasons, ReasonAgreementSamples)
	}
	if b.AgreementMean < gate.MinAgreement {
		reasons = append(reasons, ReasonAgreementMean)
	}
	if b.AgreementStddev > gate.MaxAgreementStddev {
		reasons = append(reasons, ReasonAgreementStddev)
	}
	if anyGold && b.GoldCount < gate.MinGoldSamples {
		reasons = append(reasons, ReasonGoldSamples)
	}
	return len(reasons) == 0, reasons
}
