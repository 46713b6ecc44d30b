package labelstore

import (
	"math"

	"prism/internal/concern"
	"prism/internal/region"
)

// heatmapSignatureSide bounds the stored heatmap signature at 8×8 cells.
const heatmapSignatureSide = 8

// bboxGrid snaps persisted boxes to a 64×64 grid so stored geometry is a
// coarse hint, never the raw detector output.
const bboxGrid = 64

// sanitizeConcerns redacts region geometry before persistence: polygons
// collapse to their envelope bbox and heatmaps to a coarse pooled
// signature. Raw geometry is only kept when full ROI storage is explicitly
// enabled.
func sanitizeConcerns(concerns []concern.Concern, allowFullROI bool) []concern.Concern {
	if allowFullROI || len(concerns) == 0 {
		return concerns
	}
	out := make([]concern.Concern, len(concerns))
	for i := range concerns {
		out[i] = concerns[i]
		out[i].Regions = sanitizeRegions(concerns[i].Regions)
	}
	return out
}

func sanitizeRegions(regions []region.Region) []region.Region {
	var out []region.Region
	for i := range regions {
		r := &regions[i]
		switch r.Kind {
		case region.KindBbox:
			out = append(out, region.Region{Kind: region.KindBbox, Box: quantizeBbox(r.Box)})
		case region.KindPolygon:
			if box := region.BboxFromPolygon(r.Points); box != nil {
				out = append(out, region.Region{Kind: region.KindBbox, Box: quantizeBbox(box)})
			}
		case region.KindHeatmap:
			if sig := heatmapSignature(r); sig != nil {
				out = append(out, *sig)
			}
		}
	}
	return out
}

// quantizeBbox snaps corners outward to the nearest 1/64 cell edge, so the
// stored box always covers the original one.
func quantizeBbox(b *region.Bbox) *region.Bbox {
	if b == nil {
		return nil
	}
	return &region.Bbox{
		X0: math.Floor(b.X0*bboxGrid) / bboxGrid,
		Y0: math.Floor(b.Y0*bboxGrid) / bboxGrid,
		X1: math.Min(1, math.Ceil(b.X1*bboxGrid)/bboxGrid),
		Y1: math.Min(1, math.Ceil(b.Y1*bboxGrid)/bboxGrid),
	}
}

// heatmapSignature mean-pools a heatmap down to at most 8×8 cells. Small
// maps pass through unchanged.
func heatmapSignature(r *region.Region) *region.Region {
	if r.Rows <= 0 || r.Cols <= 0 || len(r.Values) != r.Rows*r.Cols {
		return nil
	}
	if r.Rows <= heatmapSignatureSide && r.Cols <= heatmapSignatureSide {
		return r
	}

	rows := min(r.Rows, heatmapSignatureSide)
	cols := min(r.Cols, heatmapSignatureSide)
	sums := make([]float64, rows*cols)
	counts := make([]int, rows*cols)
	for ri := 0; ri < r.Rows; ri++ {
		for ci := 0; ci < r.Cols; ci++ {
			pr := ri * rows / r.Rows
			pc := ci * cols / r.Cols
			sums[pr*cols+pc] += region.Clamp01(r.Values[ri*r.Cols+ci])
			counts[pr*cols+pc]++
		}
	}
	values := make([]float64, len(sums))
	for i := range sums {
		if counts[i] > 0 {
			values[i] = sums[i] / float64(counts[i])
		}
	}
	return &region.Region{Kind: region.KindHeatmap, Rows: rows, Cols: cols, Values: values}
}
