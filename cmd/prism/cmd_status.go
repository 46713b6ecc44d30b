package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prism/internal/calib"
	"prism/internal/labelstore"
	"prism/internal/reliability"
	"prism/internal/verify"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show artifact counts and model freshness",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	store := labelstore.NewStore(cfg.Paths.ArtifactDir, cfg.PseudoLabel)
	manifest, err := store.Manifest()
	if err != nil {
		fmt.Fprintf(out, "Pseudo-label store: unreadable (%v)\n", err)
	} else {
		fmt.Fprintf(out, "Pseudo-label store: %s\n", cfg.Paths.ArtifactDir)
		fmt.Fprintf(out, "  Model outputs:     %d\n", manifest.Counts.ModelOutputs)
		fmt.Fprintf(out, "  Agreement samples: %d\n", manifest.Counts.AgreementSamples)
		fmt.Fprintf(out, "  Pseudo labels:     %d\n", manifest.Counts.PseudoLabels)
	}

	if model, err := calib.LoadModel(cfg.Paths.CalibrationModel); err != nil {
		fmt.Fprintf(out, "Calibration model:  none (%s)\n", cfg.Paths.CalibrationModel)
	} else {
		fmt.Fprintf(out, "Calibration model:  %s (generated %s, %d rows)\n",
			cfg.Paths.CalibrationModel, model.GeneratedAt, model.Training.SamplesTotal)
	}

	if table, err := reliability.LoadTable(cfg.Paths.ReliabilityTable); err != nil {
		fmt.Fprintf(out, "Reliability table:  none (%s)\n", cfg.Paths.ReliabilityTable)
	} else {
		fmt.Fprintf(out, "Reliability table:  %s (%d buckets, %d eligible, generated %s)\n",
			cfg.Paths.ReliabilityTable, table.Summary.Buckets, table.Summary.EligibleBuckets, table.GeneratedAt)
	}

	if _, err := os.Stat(cfg.Verify.HardCasePath); err == nil {
		cases, err := labelstore.ReadLines[verify.HardCase](cfg.Verify.HardCasePath)
		if err == nil {
			fmt.Fprintf(out, "Hard cases:         %d (%s)\n", len(cases), cfg.Verify.HardCasePath)
		}
	} else {
		fmt.Fprintf(out, "Hard cases:         0\n")
	}
	return nil
}
