package calib

import "gonum.org/v1/gonum/stat"

// eceBins is the fixed bin count for expected calibration error.
const eceBins = 10

// ECE computes expected calibration error over 10 equal-width confidence
// bins: the sample-weighted absolute gap between mean confidence and mean
// empirical accuracy per bin.
func ECE(confidences, labels []float64) float64 {
	n := len(confidences)
	if n == 0 || n != len(labels) {
		return 0
	}
	binConf := make([][]float64, eceBins)
	binLabel := make([][]float64, eceBins)
	for i := 0; i < n; i++ {
		b := int(confidences[i] * eceBins)
		if b >= eceBins {
			b = eceBins - 1
		}
		if b < 0 {
			b = 0
		}
		binConf[b] = append(binConf[b], confidences[i])
		binLabel[b] = append(binLabel[b], labels[i])
	}
	ece := 0.0
	for b := 0; b < eceBins; b++ {
		if len(binConf[b]) == 0 {
			continue
		}
		gap := stat.Mean(binConf[b], nil) - stat.Mean(binLabel[b], nil)
		if gap < 0 {
			gap = -gap
		}
		ece += gap * float64(len(binConf[b])) / float64(n)
	}
	return ece
}

// Brier computes the mean squared error between predicted probability and
// the binary label.
func Brier(confidences, labels []float64) float64 {
	n := len(confidences)
	if n == 0 || n != len(labels) {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := confidences[i] - labels[i]
		sum += d * d
	}
	return sum / float64(n)
}
