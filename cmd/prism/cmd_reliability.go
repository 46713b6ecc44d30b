package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prism/internal/display"
	"prism/internal/format"
	"prism/internal/goldstore"
	"prism/internal/labelstore"
	"prism/internal/reliability"
)

var reliabilityFlags struct {
	verifier string
	date     string
}

var reliabilityCmd = &cobra.Command{
	Use:   "reliability",
	Short: "Rebuild the verifier reliability table from persisted artifacts",
	Long: `Reliability aggregates persisted verifier outputs, agreement samples,
and gold labels into per-bucket statistics, applies the vote-gate
thresholds, and writes the table the gate answers lookups from.`,
	RunE: runReliability,
}

func init() {
	f := reliabilityCmd.Flags()
	f.StringVar(&reliabilityFlags.verifier, "verifier", "gemini", "Verifier provider name")
	f.StringVar(&reliabilityFlags.date, "date", "", "Date prefix filter on verify rows (e.g. 2026-08), empty = all")
}

func runReliability(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := labelstore.NewStore(cfg.Paths.ArtifactDir, cfg.PseudoLabel)
	outputs, err := store.ReadModelOutputs()
	if err != nil {
		return fmt.Errorf("read model outputs: %w", err)
	}
	samples, err := store.ReadAgreementSamples()
	if err != nil {
		return fmt.Errorf("read agreement samples: %w", err)
	}

	gold, err := goldstore.Open(cfg.Paths.GoldDB)
	if err != nil {
		return fmt.Errorf("open gold store: %w", err)
	}
	defer gold.Close()
	labels, err := gold.ListGoldLabels()
	if err != nil {
		return fmt.Errorf("list gold labels: %w", err)
	}

	table := reliability.Build(reliability.BuildInput{
		ModelOutputs:     outputs,
		AgreementSamples: samples,
		GoldLabels:       labels,
		VerifierProvider: reliabilityFlags.verifier,
		DatePrefix:       reliabilityFlags.date,
	}, cfg.VoteGate)

	if err := reliability.SaveTable(table, cfg.Paths.ReliabilityTable); err != nil {
		return fmt.Errorf("save table: %w", err)
	}

	out := cmd.OutOrStdout()
	buckets := format.NewTable(tableMode())
	buckets.Header("Bucket", "Calls", "Fail Rate", "Agr Mean", "Agr N", "Gold", "Vote", "Reasons")
	for i := range table.Buckets {
		b := &table.Buckets[i]
		buckets.Row(
			b.Key.String(),
			b.VerifyCalls,
			fmt.Sprintf("%.2f", b.FailRate),
			fmt.Sprintf("%.2f", b.AgreementMean),
			b.AgreementCount,
			b.GoldCount,
			b.EligibleForVote,
			display.IneligibleReasons(b.IneligibleReasons),
		)
	}
	buckets.Footer("", table.Summary.VerifyCalls, "", "", "", "", table.Summary.EligibleBuckets, "")
	buckets.AlignRight(2, 3, 4, 5, 6)
	fmt.Fprintln(out, buckets.String())

	fmt.Fprintf(out, "Table: %s (%d buckets, %d eligible)\n",
		cfg.Paths.ReliabilityTable, table.Summary.Buckets, table.Summary.EligibleBuckets)
	return nil
}
