package labelstore

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"prism/internal/concern"
	"prism/internal/region"
)

func testStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	return NewStore(t.TempDir(), cfg)
}

func testContext() concern.Context {
	return concern.Context{
		InferenceID:  "inf-42",
		AssetID:      "asset-7",
		QualityGrade: concern.GradePass,
		Lighting:     "daylight",
		ToneBucket:   "t2",
	}
}

func TestRecord_AppendsAllArtifacts(t *testing.T) {
	s := testStore(t, DefaultConfig())
	identical := simple(concern.TypeAcne, box(0.1, 0.1, 0.3, 0.3), 2, 0.9)
	outputs := []concern.ProviderOutput{
		{Provider: "gemini", OK: true, Concerns: []concern.Concern{identical}},
		{Provider: "gpt", OK: true, Concerns: []concern.Concern{identical}},
		{Provider: "cv", OK: false, FailureReason: "VISION_TIMEOUT"},
	}

	summary, err := s.Record(testContext(), outputs)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ModelOutputs != 3 || !summary.AgreementSample || !summary.PseudoLabel {
		t.Fatalf("summary = %+v", summary)
	}

	recs, err := s.ReadModelOutputs()
	if err != nil || len(recs) != 3 {
		t.Fatalf("model outputs = %d (%v)", len(recs), err)
	}
	if recs[2].Provider != "cv" || recs[2].OK {
		t.Errorf("failed call not persisted: %+v", recs[2])
	}

	samples, err := s.ReadAgreementSamples()
	if err != nil || len(samples) != 1 {
		t.Fatalf("agreement samples = %d (%v)", len(samples), err)
	}
	if samples[0].Pair != [2]string{"gemini", "gpt"} {
		t.Errorf("pair = %v", samples[0].Pair)
	}

	labels, err := s.ReadPseudoLabels()
	if err != nil || len(labels) != 1 {
		t.Fatalf("pseudo labels = %d (%v)", len(labels), err)
	}
	if labels[0].InferenceID != "inf-42" {
		t.Errorf("label inference id = %q", labels[0].InferenceID)
	}

	m, err := s.Manifest()
	if err != nil {
		t.Fatal(err)
	}
	want := Counts{ModelOutputs: 3, AgreementSamples: 1, PseudoLabels: 1}
	if m.Counts != want {
		t.Errorf("counts = %+v, want %+v", m.Counts, want)
	}
}

func TestRecord_DisabledStoreWritesNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := testStore(t, cfg)
	summary, err := s.Record(testContext(), []concern.ProviderOutput{{Provider: "cv", OK: true}})
	if err != nil {
		t.Fatal(err)
	}
	if summary.ModelOutputs != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, ModelOutputsFile)); !os.IsNotExist(err) {
		t.Error("model outputs file should not exist")
	}
}

func TestManifest_SurvivesCrashBeforeRename(t *testing.T) {
	s := testStore(t, DefaultConfig())
	if _, err := s.Record(testContext(), []concern.ProviderOutput{{Provider: "cv", OK: true}}); err != nil {
		t.Fatal(err)
	}

	// Crash simulation: a half-written temp file is left behind. The
	// manifest proper must still be the last fully written object.
	tmp := filepath.Join(s.Dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, []byte(`{"settings":{"enab`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := s.Manifest()
	if err != nil {
		t.Fatalf("manifest unreadable after simulated crash: %v", err)
	}
	if m.Counts.ModelOutputs != 1 {
		t.Errorf("counts = %+v", m.Counts)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir, ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("manifest on disk is not valid JSON")
	}

	// The next update overwrites the stale temp file and succeeds.
	if _, err := s.Record(testContext(), []concern.ProviderOutput{{Provider: "cv", OK: true}}); err != nil {
		t.Fatal(err)
	}
	m, err = s.Manifest()
	if err != nil || m.Counts.ModelOutputs != 2 {
		t.Errorf("counts after recovery = %+v (%v)", m.Counts, err)
	}
}

func TestSanitizeConcerns(t *testing.T) {
	poly := region.Region{Kind: region.KindPolygon, Points: []region.Point{
		{X: 0.1, Y: 0.1}, {X: 0.5, Y: 0.1}, {X: 0.5, Y: 0.4},
	}}
	big := region.Region{Kind: region.KindHeatmap, Rows: 16, Cols: 16, Values: make([]float64, 256)}
	for i := range big.Values {
		big.Values[i] = float64(i) / 256
	}
	in := []concern.Concern{{
		Type:    concern.TypeRedness,
		Regions: []region.Region{box(0.1, 0.1, 0.3, 0.3), poly, big},
	}}

	out := sanitizeConcerns(in, false)
	if len(out[0].Regions) != 3 {
		t.Fatalf("regions = %d", len(out[0].Regions))
	}
	if out[0].Regions[0].Kind != region.KindBbox {
		t.Error("bbox must pass through")
	}
	if out[0].Regions[1].Kind != region.KindBbox {
		t.Error("polygon must collapse to its envelope bbox")
	}
	sig := out[0].Regions[2]
	if sig.Kind != region.KindHeatmap || sig.Rows != 8 || sig.Cols != 8 || len(sig.Values) != 64 {
		t.Errorf("heatmap signature = %dx%d/%d values", sig.Rows, sig.Cols, len(sig.Values))
	}

	// Input left untouched.
	if in[0].Regions[1].Kind != region.KindPolygon {
		t.Error("sanitize mutated its input")
	}

	full := sanitizeConcerns(in, true)
	if full[0].Regions[1].Kind != region.KindPolygon {
		t.Error("full ROI mode must keep raw geometry")
	}
}

func TestSanitizeSnapsBboxToGrid(t *testing.T) {
	in := []concern.Concern{{
		Type:    concern.TypeAcne,
		Regions: []region.Region{box(0.1, 0.1, 0.3, 0.3)},
	}}
	out := sanitizeConcerns(in, false)
	got := out[0].Regions[0].Box

	// Corners land on the 1/64 grid, snapped outward.
	for _, v := range []float64{got.X0, got.Y0, got.X1, got.Y1} {
		cells := v * 64
		if cells != math.Trunc(cells) {
			t.Errorf("corner %v is off the 1/64 grid", v)
		}
	}
	if got.X0 != 6.0/64 || got.Y0 != 6.0/64 {
		t.Errorf("min corner = (%v, %v), want 6/64", got.X0, got.Y0)
	}
	if got.X1 != 20.0/64 || got.Y1 != 20.0/64 {
		t.Errorf("max corner = (%v, %v), want 20/64", got.X1, got.Y1)
	}
	if got.X0 > 0.1 || got.Y0 > 0.1 || got.X1 < 0.3 || got.Y1 < 0.3 {
		t.Error("stored box must cover the original box")
	}

	// Grid-aligned input passes through unchanged, clamped at 1.
	aligned := []concern.Concern{{
		Type:    concern.TypeAcne,
		Regions: []region.Region{box(0.5, 0.25, 1, 1)},
	}}
	g := sanitizeConcerns(aligned, false)[0].Regions[0].Box
	if g.X0 != 0.5 || g.Y0 != 0.25 || g.X1 != 1 || g.Y1 != 1 {
		t.Errorf("aligned box changed: %+v", g)
	}
}
