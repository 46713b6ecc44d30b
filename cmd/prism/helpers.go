package main

import (
	"prism/internal/calib"
	"prism/internal/concern"
	"prism/internal/config"
	"prism/internal/format"
	"prism/internal/fusion"
	"prism/internal/logging"
	"prism/internal/provider"
	"prism/internal/region"
)

// loadConfig reads the config and initializes logging from it. Every
// command goes through here so the slog default is set exactly once.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.config, rootFlags.dir)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	return cfg, nil
}

func tableMode() format.Mode {
	if rootFlags.markdown {
		return format.Markdown
	}
	return format.ASCII
}

func newFusionEngine(cfg *config.Config) *fusion.Engine {
	rule, vision := demoProviders()
	return fusion.NewEngine(rule, vision, calib.NewEngine(cfg.Paths.CalibrationModel), cfg.Fusion)
}

func bboxRegion(x0, y0, x1, y1 float64) region.Region {
	return region.Region{Kind: region.KindBbox, Box: &region.Bbox{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

// demoProviders returns the built-in scriptable providers. Real provider
// adapters are configured out-of-process; the CLI exercises the pipeline
// with deterministic detections.
func demoProviders() (provider.Provider, []provider.Provider) {
	rule := provider.NewStub("cv",
		concern.RawConcern{
			Type:         "acne",
			Regions:      []region.Region{bboxRegion(0.32, 0.40, 0.48, 0.55)},
			Severity:     2.1,
			Confidence:   0.84,
			EvidenceText: "clustered comedones on the left cheek",
			SourceID:     "cv-acne-1",
		},
		concern.RawConcern{
			Type:       "shine",
			Regions:    []region.Region{bboxRegion(0.40, 0.10, 0.60, 0.30)},
			Severity:   1.4,
			Confidence: 0.71,
			SourceID:   "cv-shine-1",
		},
	)
	gemini := provider.NewStub("gemini",
		concern.RawConcern{
			Type:         "acne",
			Regions:      []region.Region{bboxRegion(0.30, 0.38, 0.50, 0.56)},
			Severity:     2.5,
			Confidence:   0.9,
			EvidenceText: "inflamed papules, left cheek",
			SourceID:     "gm-acne-1",
		},
		concern.RawConcern{
			Type:       "redness",
			Regions:    []region.Region{bboxRegion(0.55, 0.42, 0.75, 0.58)},
			Severity:   1.2,
			Confidence: 0.62,
			SourceID:   "gm-red-1",
		},
	)
	gpt := provider.NewStub("gpt",
		concern.RawConcern{
			Type:         "acne",
			Regions:      []region.Region{bboxRegion(0.31, 0.41, 0.49, 0.54)},
			Severity:     2.2,
			Confidence:   0.8,
			EvidenceText: "mild acne breakout",
			SourceID:     "gp-acne-1",
		},
	)
	return rule, []provider.Provider{gemini, gpt}
}

// demoContext builds the per-image bundle from CLI flags.
func demoContext(inferenceID, assetID, imageRef, quality, lighting, tone string) concern.Context {
	return concern.Context{
		InferenceID:  inferenceID,
		AssetID:      assetID,
		ImageRef:     imageRef,
		QualityGrade: quality,
		Lighting:     lighting,
		ToneBucket:   tone,
		Quality:      concern.QualityFeatures{ExposureScore: 0.9},
		PhotoUsed:    true,
	}
}
