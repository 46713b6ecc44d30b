package reliability

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"prism/internal/concern"
	"prism/internal/goldstore"
	"prism/internal/labelstore"
	"prism/internal/provider"
	"prism/internal/region"
)

func verifyRec(ok bool, reason string, latency int64) labelstore.ModelOutputRecord {
	return labelstore.ModelOutputRecord{
		CreatedAt:     "2026-08-29T10:00:00Z",
		Provider:      "gemini",
		OK:            ok,
		FailureReason: reason,
		LatencyMs:     latency,
		QualityGrade:  concern.GradePass,
		Lighting:      "daylight",
		ToneBucket:    "t2",
	}
}

func agreementSample(perType map[string]float64, overall float64) labelstore.AgreementSample {
	return labelstore.AgreementSample{
		Agreement:    labelstore.Agreement{Overall: overall, PerType: perType},
		QualityGrade: concern.GradePass,
		Lighting:     "daylight",
		ToneBucket:   "t2",
	}
}

func passingInput(n int) BuildInput {
	in := BuildInput{VerifierProvider: "gemini"}
	for i := 0; i < n; i++ {
		in.ModelOutputs = append(in.ModelOutputs, verifyRec(true, "", 800))
		in.AgreementSamples = append(in.AgreementSamples, agreementSample(map[string]float64{"acne": 0.8}, 0.8))
	}
	return in
}

func bucketFor(t *testing.T, table *Table, issue string) *Bucket {
	t.Helper()
	for i := range table.Buckets {
		if table.Buckets[i].Key.IssueType == issue {
			return &table.Buckets[i]
		}
	}
	t.Fatalf("no bucket for issue %q in %+v", issue, table.Buckets)
	return nil
}

func TestBuild_EligibleBucket(t *testing.T) {
	table := Build(passingInput(25), DefaultGateConfig())
	b := bucketFor(t, table, "acne")
	if !b.EligibleForVote {
		t.Fatalf("ineligible: %v", b.IneligibleReasons)
	}
	if b.VerifyCalls != 25 || b.FailRate != 0 {
		t.Errorf("calls/fail rate = %d/%v", b.VerifyCalls, b.FailRate)
	}
	if b.AgreementCount != 25 || math.Abs(b.AgreementMean-0.8) > 1e-9 {
		t.Errorf("agreement = %d/%v", b.AgreementCount, b.AgreementMean)
	}
}

func TestBuild_GuardCallsExcludedFromFailRate(t *testing.T) {
	in := passingInput(25)
	// Ten guard skips: counted as calls, not as failures or attempts.
	for i := 0; i < 10; i++ {
		in.ModelOutputs = append(in.ModelOutputs, verifyRec(false, provider.VerifyBudgetGuard, 0))
	}
	in.ModelOutputs = append(in.ModelOutputs, verifyRec(false, "TIMEOUT", 2000))

	table := Build(in, DefaultGateConfig())
	b := bucketFor(t, table, "acne")
	if b.VerifyCalls != 36 || b.GuardCalls != 10 {
		t.Errorf("calls/guard = %d/%d", b.VerifyCalls, b.GuardCalls)
	}
	// 1 failure over 26 attempts, not over 36 calls.
	want := 1.0 / 26.0
	if diff := b.FailRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fail rate = %v, want %v", b.FailRate, want)
	}
}

func TestBuild_VotingDisabledMakesAllIneligible(t *testing.T) {
	gate := DefaultGateConfig()
	gate.VotingEnabled = false
	table := Build(passingInput(25), gate)
	for _, b := range table.Buckets {
		if b.EligibleForVote {
			t.Errorf("bucket %s eligible with voting disabled", b.Key.String())
		}
		if len(b.IneligibleReasons) == 0 || b.IneligibleReasons[0] != ReasonVotingDisabled {
			t.Errorf("reasons = %v", b.IneligibleReasons)
		}
	}
}

func TestBuild_GoldConditionOnlyWhenGoldExists(t *testing.T) {
	in := passingInput(25)
	withoutGold := Build(in, DefaultGateConfig())
	if b := bucketFor(t, withoutGold, "acne"); !b.EligibleForVote {
		t.Fatalf("no-gold input must not demand gold samples: %v", b.IneligibleReasons)
	}

	// One gold label anywhere turns the gold condition on for every bucket.
	in.GoldLabels = []*goldstore.GoldLabel{{
		AssetID:      "a1",
		QualityGrade: concern.GradePass,
		Lighting:     "daylight",
		ToneBucket:   "t2",
		Concerns: []concern.Concern{{
			Type:    concern.TypeAcne,
			Regions: []region.Region{{Kind: region.KindBbox, Box: &region.Bbox{X0: 0.1, Y0: 0.1, X1: 0.2, Y1: 0.2}}},
		}},
	}}
	withGold := Build(in, DefaultGateConfig())
	b := bucketFor(t, withGold, "acne")
	if b.GoldCount != 1 {
		t.Errorf("gold count = %d", b.GoldCount)
	}
	if b.EligibleForVote {
		t.Error("1 gold sample under min 5 must be ineligible")
	}
	found := false
	for _, r := range b.IneligibleReasons {
		if r == ReasonGoldSamples {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want %s", b.IneligibleReasons, ReasonGoldSamples)
	}
}

func TestBuild_PerTypeExplosion(t *testing.T) {
	in := passingInput(25)
	for i := range in.AgreementSamples {
		in.AgreementSamples[i].Agreement.PerType = map[string]float64{"acne": 0.9, "shine": 0.4}
	}
	table := Build(in, DefaultGateConfig())
	if len(table.Buckets) != 2 {
		t.Fatalf("buckets = %d, want 2 issue types", len(table.Buckets))
	}
	if b := bucketFor(t, table, "shine"); b.EligibleForVote {
		t.Errorf("shine at mean 0.4 must be ineligible, reasons %v", b.IneligibleReasons)
	}
	if b := bucketFor(t, table, "acne"); !b.EligibleForVote {
		t.Errorf("acne at mean 0.9 must be eligible: %v", b.IneligibleReasons)
	}
}

func TestBuild_NoPerTypeFallsBackToOther(t *testing.T) {
	in := BuildInput{VerifierProvider: "gemini"}
	for i := 0; i < 25; i++ {
		in.ModelOutputs = append(in.ModelOutputs, verifyRec(true, "", 500))
		in.AgreementSamples = append(in.AgreementSamples, agreementSample(nil, 0.7))
	}
	table := Build(in, DefaultGateConfig())
	b := bucketFor(t, table, "other")
	if b.AgreementCount != 25 || math.Abs(b.AgreementMean-0.7) > 1e-9 {
		t.Errorf("other bucket = %+v", b)
	}
}

func TestBuild_DatePrefixFilter(t *testing.T) {
	in := passingInput(25)
	old := verifyRec(true, "", 500)
	old.CreatedAt = "2026-07-01T00:00:00Z"
	in.ModelOutputs = append(in.ModelOutputs, old)
	in.DatePrefix = "2026-08"

	table := Build(in, DefaultGateConfig())
	if b := bucketFor(t, table, "acne"); b.VerifyCalls != 25 {
		t.Errorf("calls = %d, want old record filtered out", b.VerifyCalls)
	}
}

func TestBuild_OtherProviderIgnored(t *testing.T) {
	in := passingInput(25)
	foreign := verifyRec(true, "", 100)
	foreign.Provider = "cv"
	in.ModelOutputs = append(in.ModelOutputs, foreign)

	table := Build(in, DefaultGateConfig())
	if b := bucketFor(t, table, "acne"); b.VerifyCalls != 25 {
		t.Errorf("calls = %d, non-verifier records must not count", b.VerifyCalls)
	}
}

func TestGate_MissingTableAndBucket(t *testing.T) {
	g := NewGate(filepath.Join(t.TempDir(), "absent.json"))
	d := g.ShouldUseVerifierInVote(BucketKey{IssueType: "acne"})
	if d.UseVerifier || len(d.Reasons) != 1 || d.Reasons[0] != ReasonTableMissing {
		t.Fatalf("decision = %+v", d)
	}

	path := filepath.Join(t.TempDir(), "table.json")
	if err := SaveTable(Build(passingInput(25), DefaultGateConfig()), path); err != nil {
		t.Fatal(err)
	}
	g = NewGate(path)
	d = g.ShouldUseVerifierInVote(BucketKey{IssueType: "missing", QualityGrade: concern.GradePass, Lighting: "daylight", ToneBucket: "t2"})
	if d.UseVerifier || d.Reasons[0] != ReasonBucketNotFound {
		t.Fatalf("decision = %+v", d)
	}

	d = g.ShouldUseVerifierInVote(BucketKey{IssueType: "acne", QualityGrade: concern.GradePass, Lighting: "daylight", ToneBucket: "t2"})
	if !d.UseVerifier {
		t.Fatalf("decision = %+v", d)
	}
}

func TestGate_MtimeInvalidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.json")
	if err := SaveTable(Build(passingInput(25), DefaultGateConfig()), path); err != nil {
		t.Fatal(err)
	}
	g := NewGate(path)
	key := BucketKey{IssueType: "acne", QualityGrade: concern.GradePass, Lighting: "daylight", ToneBucket: "t2"}
	if !g.ShouldUseVerifierInVote(key).UseVerifier {
		t.Fatal("setup: bucket must be eligible")
	}

	// Regenerate with voting disabled and backdate-proof the mtime bump.
	gate := DefaultGateConfig()
	gate.VotingEnabled = false
	if err := SaveTable(Build(passingInput(25), gate), path); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if g.ShouldUseVerifierInVote(key).UseVerifier {
		t.Error("gate must reload after the table file changes")
	}
}

func TestGate_SchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.json")
	if err := os.WriteFile(path, []byte(`{"schema_version": 99, "buckets": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	d := NewGate(path).ShouldUseVerifierInVote(BucketKey{IssueType: "acne"})
	if d.UseVerifier || d.Reasons[0] != ReasonTableMissing {
		t.Fatalf("decision = %+v", d)
	}
}

func TestEvaluate_ZeroVerifyCallsNeverEligible(t *testing.T) {
	b := &Bucket{AgreementCount: 100, AgreementMean: 0.9}
	ok, reasons := evaluate(b, DefaultGateConfig(), false)
	if ok {
		t.Fatal("zero verify calls must be ineligible")
	}
	found := false
	for _, r := range reasons {
		if r == ReasonNoVerifyCalls {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v", reasons)
	}
}
