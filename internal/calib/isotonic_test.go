package calib

import (
	"math"
	"math/rand"
	"testing"
)

func TestFitIsotonic_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	xs := make([]float64, 200)
	ys := make([]float64, 200)
	for i := range xs {
		xs[i] = rng.Float64()
		// Noisy but monotone-in-expectation labels.
		p := 0.2 + 0.6*xs[i]
		if rng.Float64() < p {
			ys[i] = 1
		}
	}
	iso := FitIsotonic(xs, ys)
	if iso == nil {
		t.Fatal("expected a fit")
	}
	if !iso.Monotone() {
		t.Fatalf("PAV output not monotone: %+v", iso.Y)
	}
	for i := 1; i < len(iso.X); i++ {
		if iso.X[i] < iso.X[i-1] {
			t.Fatalf("knots not sorted: %+v", iso.X)
		}
	}
}

func TestFitIsotonic_PoolsViolators(t *testing.T) {
	// Decreasing labels must pool into one flat block at the mean.
	iso := FitIsotonic([]float64{0.1, 0.5, 0.9}, []float64{1, 0, 0})
	if iso == nil {
		t.Fatal("expected a fit")
	}
	for _, y := range iso.Y {
		if math.Abs(y-1.0/3.0) > 1e-9 {
			t.Errorf("expected pooled mean 1/3, got %v", iso.Y)
			break
		}
	}
}

func TestIsotonic_PredictAtKnots(t *testing.T) {
	iso := FitIsotonic([]float64{0.1, 0.4, 0.8}, []float64{0, 0.5, 1})
	for i, x := range iso.X {
		if got := iso.Predict(x); got != iso.Y[i] {
			t.Errorf("Predict(knot %v) = %v, want %v", x, got, iso.Y[i])
		}
	}
}

func TestIsotonic_ClampsOutsideDomain(t *testing.T) {
	iso := FitIsotonic([]float64{0.2, 0.6}, []float64{0.3, 0.9})
	if got := iso.Predict(0.0); got != 0.3 {
		t.Errorf("below domain = %v, want 0.3", got)
	}
	if got := iso.Predict(1.0); got != 0.9 {
		t.Errorf("above domain = %v, want 0.9", got)
	}
}

func TestIsotonic_UntrainedIsIdentity(t *testing.T) {
	var iso *Isotonic
	if got := iso.Predict(0.42); got != 0.42 {
		t.Errorf("nil calibrator Predict = %v, want identity", got)
	}
}

func TestFitIsotonic_Empty(t *testing.T) {
	if FitIsotonic(nil, nil) != nil {
		t.Error("empty input must yield nil")
	}
	if FitIsotonic([]float64{0.1}, []float64{0, 1}) != nil {
		t.Error("length mismatch must yield nil")
	}
}
