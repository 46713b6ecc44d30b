// Package calib trains and serves confidence calibration: isotonic
// regression fit hierarchically over sparse buckets, provider reliability
// weights from F1 against gold labels, and severity smoothing. Models are
// immutable once trained and loaded read-only at fusion time.
package calib

import "sort"

// Isotonic is a monotone non-decreasing step function over [0,1].
// X is sorted ascending; Y[i] is the calibrated value at knot X[i].
type Isotonic struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// FitIsotonic fits a step function to (x, y) pairs via pool-adjacent-
// violators. Ties in x are pooled before fitting. Returns nil when no
// rows are given.
func FitIsotonic(xs, ys []float64) *Isotonic {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return nil
	}

	type pt struct{ x, y float64 }
	pts := make([]pt, n)
	for i := range xs {
		pts[i] = pt{xs[i], ys[i]}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].x < pts[j].x })

	// Pool duplicate x values into single weighted points.
	type block struct {
		x, sum, weight float64
	}
	var blocks []block
	for _, p := range pts {
		if len(blocks) > 0 && blocks[len(blocks)-1].x == p.x {
			b := &blocks[len(blocks)-1]
			b.sum += p.y
			b.weight++
			continue
		}
		blocks = append(blocks, block{x: p.x, sum: p.y, weight: 1})
	}

	// Pool-adjacent-violators: merge any block whose mean drops below its
	// predecessor's until means are non-decreasing.
	type pooled struct {
		xMin, xMax, sum, weight float64
	}
	var stack []pooled
	for _, b := range blocks {
		cur := pooled{xMin: b.x, xMax: b.x, sum: b.sum, weight: b.weight}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.sum/top.weight <= cur.sum/cur.weight {
				break
			}
			cur = pooled{
				xMin:   top.xMin,
				xMax:   cur.xMax,
				sum:    top.sum + cur.sum,
				weight: top.weight + cur.weight,
			}
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, cur)
	}

	iso := &Isotonic{}
	for _, p := range stack {
		mean := p.sum / p.weight
		iso.X = append(iso.X, p.xMin)
		iso.Y = append(iso.Y, mean)
		if p.xMax != p.xMin {
			iso.X = append(iso.X, p.xMax)
			iso.Y = append(iso.Y, mean)
		}
	}
	return iso
}

// Predict evaluates the step function at x. Outside [min(X),max(X)] the
// nearest endpoint wins; between knots the left knot's value applies.
func (iso *Isotonic) Predict(x float64) float64 {
	if iso == nil || len(iso.X) == 0 {
		return x // identity when untrained
	}
	if x <= iso.X[0] {
		return iso.Y[0]
	}
	last := len(iso.X) - 1
	if x >= iso.X[last] {
		return iso.Y[last]
	}
	// First knot strictly greater than x; the knot before it rules.
	idx := sort.SearchFloat64s(iso.X, x)
	if idx < len(iso.X) && iso.X[idx] == x {
		return iso.Y[idx]
	}
	return iso.Y[idx-1]
}

// Monotone reports whether Y is non-decreasing, the invariant every trained
// calibrator must satisfy.
func (iso *Isotonic) Monotone() bool {
	if iso == nil {
		return true
	}
	for i := 1; i < len(iso.Y); i++ {
		if iso.Y[i] < iso.Y[i-1] {
			return false
		}
	}
	return true
}
