package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prism/internal/calib"
	"prism/internal/format"
	"prism/internal/goldstore"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Train the calibration model from gold labels",
	Long: `Calibrate joins persisted provider outputs with human-reviewed gold
labels, fits isotonic calibrators over the bucket hierarchy, derives
provider weights from F1 against gold, and writes the model file the
fusion engine picks up on its next call.`,
	RunE: runCalibrate,
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := goldstore.Open(cfg.Paths.GoldDB)
	if err != nil {
		return fmt.Errorf("open gold store: %w", err)
	}
	defer store.Close()

	samples, err := store.TrainingSamples()
	if err != nil {
		return fmt.Errorf("load training samples: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("no training samples: label outputs in %s first", cfg.Paths.GoldDB)
	}

	model, err := calib.Train(samples, calib.TrainConfig{
		IoUThreshold:    cfg.Calibration.IoUThreshold,
		MinGroupSamples: cfg.Calibration.MinGroupSamples,
	})
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if err := calib.SaveModel(cfg.Paths.CalibrationModel, model); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	out := cmd.OutOrStdout()
	report := format.NewTable(tableMode())
	report.Header("Metric", "Baseline", "Calibrated")
	report.Row("ECE", fmt.Sprintf("%.4f", model.Training.BaselineECE), fmt.Sprintf("%.4f", model.Training.CalibratedECE))
	report.Row("Brier", fmt.Sprintf("%.4f", model.Training.BaselineBrier), fmt.Sprintf("%.4f", model.Training.CalibratedBrier))
	report.AlignRight(2, 3)
	fmt.Fprintln(out, report.String())

	fmt.Fprintf(out, "Samples:  %d rows from %d labeled outputs\n", model.Training.SamplesTotal, len(samples))
	fmt.Fprintf(out, "Model:    %s (generated %s)\n", cfg.Paths.CalibrationModel, model.GeneratedAt)
	return nil
}
