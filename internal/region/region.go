// Package region holds the geometry primitives shared by every component:
// the bbox/polygon/heatmap tagged union, IoU, and heatmap similarity.
// All coordinates are normalized to [0,1]; malformed inputs degrade to
// "no primary box" rather than returning errors.
package region

import "math"

// Kind discriminates the region union.
type Kind string

const (
	KindBbox    Kind = "bbox"
	KindPolygon Kind = "polygon"
	KindHeatmap Kind = "heatmap"
)

// MinExtent is the minimum width/height for a bbox to count as non-degenerate.
const MinExtent = 0.001

// heatmapMassThreshold: cells at or above this fraction of the peak value
// form the covering box extracted from a heatmap.
const heatmapMassThreshold = 0.35

// heatmapPeakFloor: a heatmap whose peak is at or below this carries no signal.
const heatmapPeakFloor = 0.0001

// Bbox is an axis-aligned box with normalized corners, x1>x0 and y1>y0.
type Bbox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Point is one polygon vertex.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is the tagged union. Exactly the fields for Kind are populated;
// the rest stay zero. Extraction goes through PrimaryBbox, not ad-hoc checks.
type Region struct {
	Kind   Kind      `json:"kind"`
	Box    *Bbox     `json:"bbox,omitempty"`
	Points []Point   `json:"points,omitempty"`  // polygon, ≥3 points
	Rows   int       `json:"rows,omitempty"`    // heatmap
	Cols   int       `json:"cols,omitempty"`    // heatmap
	Values []float64 `json:"values,omitempty"`  // heatmap, rows*cols cells in [0,1]
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamped returns a copy of b with all corners clamped to [0,1].
func (b Bbox) Clamped() Bbox {
	return Bbox{
		X0: Clamp01(b.X0), Y0: Clamp01(b.Y0),
		X1: Clamp01(b.X1), Y1: Clamp01(b.Y1),
	}
}

// Valid reports whether b spans at least MinExtent in both dimensions.
func (b Bbox) Valid() bool {
	b = b.Clamped()
	return b.X1-b.X0 >= MinExtent && b.Y1-b.Y0 >= MinExtent
}

// Area returns the clamped area of b, 0 if degenerate.
func (b Bbox) Area() float64 {
	b = b.Clamped()
	w, h := b.X1-b.X0, b.Y1-b.Y0
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU computes intersection-over-union of two boxes. Returns 0 when either
// box is degenerate or there is no overlap. Result is always in [0,1].
func IoU(a, b Bbox) float64 {
	a, b = a.Clamped(), b.Clamped()
	areaA, areaB := a.Area(), b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}
	ix0 := math.Max(a.X0, b.X0)
	iy0 := math.Max(a.Y0, b.Y0)
	ix1 := math.Min(a.X1, b.X1)
	iy1 := math.Min(a.Y1, b.Y1)
	iw, ih := ix1-ix0, iy1-iy0
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	iou := inter / union
	if iou > 1 {
		return 1
	}
	return iou
}

// BboxFromPolygon returns the clamped envelope of a polygon, or nil when
// fewer than 3 points are given or the envelope is degenerate.
func BboxFromPolygon(points []Point) *Bbox {
	if len(points) < 3 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		x, y := Clamp01(p.X), Clamp01(p.Y)
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	b := Bbox{X0: minX, Y0: minY, X1: maxX, Y1: maxY}
	if !b.Valid() {
		return nil
	}
	return &b
}

// BboxFromHeatmap thresholds the heatmap at 35% of its peak cell and returns
// the minimal box covering all cells at or above the threshold. Returns nil
// when the shape is inconsistent or the peak carries no signal.
func BboxFromHeatmap(rows, cols int, values []float64) *Bbox {
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return nil
	}
	peak := 0.0
	for _, v := range values {
		if c := Clamp01(v); c > peak {
			peak = c
		}
	}
	if peak <= heatmapPeakFloor {
		return nil
	}
	threshold := peak * heatmapMassThreshold
	minR, minC := rows, cols
	maxR, maxC := -1, -1
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if Clamp01(values[r*cols+c]) >= threshold {
				if r < minR {
					minR = r
				}
				if r > maxR {
					maxR = r
				}
				if c < minC {
					minC = c
				}
				if c > maxC {
					maxC = c
				}
			}
		}
	}
	if maxR < 0 {
		return nil
	}
	// Cell (r,c) covers [c/cols,(c+1)/cols] x [r/rows,(r+1)/rows].
	b := Bbox{
		X0: float64(minC) / float64(cols),
		Y0: float64(minR) / float64(rows),
		X1: float64(maxC+1) / float64(cols),
		Y1: float64(maxR+1) / float64(rows),
	}
	if !b.Valid() {
		return nil
	}
	return &b
}

// PrimaryBbox returns the first extractable box from a region list: a direct
// bbox, a polygon envelope, or a heatmap mass box, in region order.
func PrimaryBbox(regions []Region) *Bbox {
	for i := range regions {
		if b := regions[i].AsBbox(); b != nil {
			return b
		}
	}
	return nil
}

// AsBbox reduces one region to a box, nil if not extractable.
func (r *Region) AsBbox() *Bbox {
	switch r.Kind {
	case KindBbox:
		if r.Box != nil && r.Box.Valid() {
			c := r.Box.Clamped()
			return &c
		}
	case KindPolygon:
		return BboxFromPolygon(r.Points)
	case KindHeatmap:
		return BboxFromHeatmap(r.Rows, r.Cols, r.Values)
	}
	return nil
}

// sameShape reports whether two regions are heatmaps of identical shape.
func sameShape(a, b *Region) bool {
	return a != nil && b != nil &&
		a.Kind == KindHeatmap && b.Kind == KindHeatmap &&
		a.Rows == b.Rows && a.Cols == b.Cols &&
		a.Rows > 0 && a.Cols > 0 &&
		len(a.Values) == a.Rows*a.Cols && len(b.Values) == b.Rows*b.Cols
}

// Correlation computes the Pearson correlation of two equal-shape heatmaps.
// Returns (0,false) for anything else or for zero-variance inputs.
func Correlation(a, b *Region) (float64, bool) {
	if !sameShape(a, b) {
		return 0, false
	}
	n := float64(len(a.Values))
	var meanA, meanB float64
	for i := range a.Values {
		meanA += Clamp01(a.Values[i])
		meanB += Clamp01(b.Values[i])
	}
	meanA /= n
	meanB /= n
	var num, dA, dB float64
	for i := range a.Values {
		da := Clamp01(a.Values[i]) - meanA
		db := Clamp01(b.Values[i]) - meanB
		num += da * db
		dA += da * da
		dB += db * db
	}
	denom := math.Sqrt(dA * dB)
	if denom == 0 {
		return 0, false
	}
	return num / denom, true
}

// KLDivergence computes KL(a||b) over two equal-shape heatmaps treated as
// probability distributions (mass-normalized, epsilon-smoothed).
// Returns (0,false) when shapes differ or either map has no mass.
func KLDivergence(a, b *Region) (float64, bool) {
	if !sameShape(a, b) {
		return 0, false
	}
	const eps = 1e-9
	var sumA, sumB float64
	for i := range a.Values {
		sumA += Clamp01(a.Values[i])
		sumB += Clamp01(b.Values[i])
	}
	if sumA <= 0 || sumB <= 0 {
		return 0, false
	}
	kl := 0.0
	for i := range a.Values {
		p := (Clamp01(a.Values[i]) + eps) / (sumA + eps*float64(len(a.Values)))
		q := (Clamp01(b.Values[i]) + eps) / (sumB + eps*float64(len(b.Values)))
		kl += p * math.Log(p/q)
	}
	if kl < 0 {
		kl = 0 // numerical noise
	}
	return kl, true
}

// WeightedMergeBboxes averages boxes corner-wise with the given weights.
// Entries with nil box or non-positive weight are skipped; nil when nothing
// contributes.
func WeightedMergeBboxes(boxes []*Bbox, weights []float64) *Bbox {
	var sumW float64
	var acc Bbox
	for i, b := range boxes {
		if b == nil || i >= len(weights) || weights[i] <= 0 {
			continue
		}
		w := weights[i]
		c := b.Clamped()
		acc.X0 += c.X0 * w
		acc.Y0 += c.Y0 * w
		acc.X1 += c.X1 * w
		acc.Y1 += c.Y1 * w
		sumW += w
	}
	if sumW <= 0 {
		return nil
	}
	merged := Bbox{X0: acc.X0 / sumW, Y0: acc.Y0 / sumW, X1: acc.X1 / sumW, Y1: acc.Y1 / sumW}
	if !merged.Valid() {
		return nil
	}
	return &merged
}
