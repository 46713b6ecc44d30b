package calib

import (
	"math"
	"testing"
)

func TestECE_PerfectCalibration(t *testing.T) {
	// Confidence 0.75 with 3 of 4 correct: bin gap is zero.
	confs := []float64{0.75, 0.75, 0.75, 0.75}
	labels := []float64{1, 1, 1, 0}
	if got := ECE(confs, labels); math.Abs(got) > 1e-9 {
		t.Errorf("ECE = %v, want 0", got)
	}
}

func TestECE_Overconfident(t *testing.T) {
	confs := []float64{0.95, 0.95, 0.95, 0.95}
	labels := []float64{1, 0, 0, 0}
	got := ECE(confs, labels)
	if math.Abs(got-0.7) > 1e-9 {
		t.Errorf("ECE = %v, want 0.7", got)
	}
}

func TestECE_WeightsBins(t *testing.T) {
	// 3 samples in the 0.9 bin (gap 0.9), 1 in the 0.1 bin (gap 0.05).
	confs := []float64{0.95, 0.95, 0.95, 0.05}
	labels := []float64{0, 0, 0, 0}
	want := 0.95*0.75 + 0.05*0.25
	if got := ECE(confs, labels); math.Abs(got-want) > 1e-9 {
		t.Errorf("ECE = %v, want %v", got, want)
	}
}

func TestBrier(t *testing.T) {
	confs := []float64{1, 0, 0.5}
	labels := []float64{1, 0, 1}
	want := 0.25 / 3
	if got := Brier(confs, labels); math.Abs(got-want) > 1e-9 {
		t.Errorf("Brier = %v, want %v", got, want)
	}
	if Brier(nil, nil) != 0 {
		t.Error("empty Brier must be 0")
	}
}
