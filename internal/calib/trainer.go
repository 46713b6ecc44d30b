package calib

import (
	"fmt"
	"time"

	"prism/internal/concern"
	"prism/internal/logging"
)

// Sample pairs one historical provider output with the human-reviewed gold
// concerns for the same inference.
type Sample struct {
	Output  concern.ProviderOutput `json:"output"`
	Gold    []concern.Concern      `json:"gold"`
	Context concern.Context        `json:"context"`
}

// TrainConfig bounds training.
type TrainConfig struct {
	IoUThreshold    float64   `yaml:"iou_threshold" json:"iou_threshold"`
	MinGroupSamples int       `yaml:"min_group_samples" json:"min_group_samples"`
	Smoothing       Smoothing `yaml:"smoothing" json:"smoothing"`
}

func (c TrainConfig) withDefaults() TrainConfig {
	if c.IoUThreshold <= 0 {
		c.IoUThreshold = DefaultIoUThreshold
	}
	if c.MinGroupSamples <= 0 {
		c.MinGroupSamples = DefaultMinGroupSamples
	}
	if c.Smoothing.MaxScale <= 0 {
		c.Smoothing = Smoothing{MinScale: DefaultMinScale, MaxScale: DefaultMaxScale, ConfidenceGamma: DefaultGamma}
	}
	return c
}

// row is one training example: a predicted concern's confidence and whether
// it matched a gold concern.
type row struct {
	confidence  float64
	label       float64
	ctx         Context
	concernType concern.Type
}

// Train fits isotonic calibrators over the bucket hierarchy and derives
// provider weights from F1 against gold. Fails only on empty input;
// sparse buckets simply fall back to coarser levels.
func Train(samples []Sample, cfg TrainConfig) (*Model, error) {
	cfg = cfg.withDefaults()
	logger := logging.New("calib")

	rows, tallies := buildRows(samples, cfg.IoUThreshold)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no training rows: %d samples produced no predictions", len(samples))
	}

	m := &Model{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Training: TrainingStats{
			SamplesTotal: len(rows),
			IoUThreshold: cfg.IoUThreshold,
		},
		Calibration: CalibrationSet{
			ByProvider: map[string]*Isotonic{},
			ByGroup:    map[string]*Isotonic{},
			Hierarchy:  HierarchyNames(),
		},
		ProviderWeights: Weights{
			Default:    DefaultWeight,
			ByProvider: map[string]float64{},
			ByBucket:   map[string]float64{},
		},
		SeveritySmoothing: cfg.Smoothing,
	}

	// Global calibrator: always fit.
	confs := make([]float64, len(rows))
	labels := make([]float64, len(rows))
	for i, r := range rows {
		confs[i] = r.confidence
		labels[i] = r.label
	}
	m.Calibration.Global = FitIsotonic(confs, labels)

	// Bucket calibrators, one per hierarchy level with enough rows.
	for _, level := range Hierarchy {
		groups := map[string][]int{}
		for i, r := range rows {
			groups[level.Key(r.ctx)] = append(groups[level.Key(r.ctx)], i)
		}
		for key, idxs := range groups {
			if len(idxs) < cfg.MinGroupSamples {
				continue
			}
			xs := make([]float64, len(idxs))
			ys := make([]float64, len(idxs))
			for k, i := range idxs {
				xs[k] = rows[i].confidence
				ys[k] = rows[i].label
			}
			iso := FitIsotonic(xs, ys)
			if level.Name == "provider" {
				m.Calibration.ByProvider[key] = iso
			} else {
				m.Calibration.ByGroup[key] = iso
			}
		}
	}

	// Provider weights from TP/FP/FN.
	for provider, t := range tallies.byProvider {
		m.ProviderWeights.ByProvider[provider] = weightFromF1(t.f1())
	}
	for bucket, t := range tallies.byBucket {
		if t.tp+t.fp+t.fn < cfg.MinGroupSamples {
			continue
		}
		m.ProviderWeights.ByBucket[bucket] = weightFromF1(t.f1())
	}

	// Report calibration quality before and after.
	calibrated := make([]float64, len(rows))
	for i, r := range rows {
		calibrated[i] = m.Calibrate(r.confidence, r.ctx)
	}
	m.Training.BaselineECE = ECE(confs, labels)
	m.Training.CalibratedECE = ECE(calibrated, labels)
	m.Training.BaselineBrier = Brier(confs, labels)
	m.Training.CalibratedBrier = Brier(calibrated, labels)

	logger.Info("model trained",
		"rows", len(rows),
		"group_buckets", len(m.Calibration.ByGroup),
		"baseline_ece", m.Training.BaselineECE,
		"calibrated_ece", m.Training.CalibratedECE)
	return m, nil
}

// tally accumulates match counts for F1.
type tally struct{ tp, fp, fn int }

func (t tally) f1() float64 {
	denom := float64(2*t.tp + t.fp + t.fn)
	if denom == 0 {
		return 0
	}
	return 2 * float64(t.tp) / denom
}

type tallySet struct {
	byProvider map[string]*tally
	byBucket   map[string]*tally
}

// weightFromF1 maps F1 onto [0.25, 2.25]: weight = 0.25 + 1.75·F1.
func weightFromF1(f1 float64) float64 {
	w := 0.25 + 1.75*f1
	if w < 0.25 {
		w = 0.25
	}
	if w > 2.25 {
		w = 2.25
	}
	return w
}

// buildRows matches each sample's predictions against its gold concerns via
// greedy same-type IoU matching (no gold reuse) and emits one row per
// prediction, label 1 when matched.
func buildRows(samples []Sample, iouThreshold float64) ([]row, tallySet) {
	var rows []row
	tallies := tallySet{byProvider: map[string]*tally{}, byBucket: map[string]*tally{}}

	bump := func(provider string, c concern.Type, ctx concern.Context, tp, fp, fn int) {
		pt := tallies.byProvider[provider]
		if pt == nil {
			pt = &tally{}
			tallies.byProvider[provider] = pt
		}
		pt.tp += tp
		pt.fp += fp
		pt.fn += fn

		key := WeightBucketKey(provider, string(c), ctx.QualityGrade, ctx.ToneBucket)
		bt := tallies.byBucket[key]
		if bt == nil {
			bt = &tally{}
			tallies.byBucket[key] = bt
		}
		bt.tp += tp
		bt.fp += fp
		bt.fn += fn
	}

	for _, s := range samples {
		if !s.Output.OK {
			continue
		}
		preds := s.Output.Concerns
		pairs := concern.GreedyMatch(preds, s.Gold, concern.MatchOptions{IoUThreshold: iouThreshold})

		matchedPred := make(map[int]bool, len(pairs))
		matchedGold := make(map[int]bool, len(pairs))
		for _, p := range pairs {
			matchedPred[p.Left] = true
			matchedGold[p.Right] = true
		}

		ctx := Context{
			Provider:     s.Output.Provider,
			QualityGrade: s.Context.QualityGrade,
			Tone:         s.Context.ToneBucket,
			Lighting:     s.Context.Lighting,
			Makeup:       s.Context.Quality.MakeupDetected,
			Filter:       s.Context.Quality.FilterDetected,
		}

		for i := range preds {
			label := 0.0
			if matchedPred[i] {
				label = 1.0
				bump(s.Output.Provider, preds[i].Type, s.Context, 1, 0, 0)
			} else {
				bump(s.Output.Provider, preds[i].Type, s.Context, 0, 1, 0)
			}
			rows = append(rows, row{
				confidence:  preds[i].Confidence,
				label:       label,
				ctx:         ctx,
				concernType: preds[i].Type,
			})
		}
		for j := range s.Gold {
			if !matchedGold[j] {
				bump(s.Output.Provider, s.Gold[j].Type, s.Context, 0, 0, 1)
			}
		}
	}
	return rows, tallies
}
