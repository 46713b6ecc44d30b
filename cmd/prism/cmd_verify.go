package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prism/internal/display"
	"prism/internal/format"
	"prism/internal/labelstore"
	"prism/internal/verify"
)

var verifyFlags struct {
	inferenceID string
	assetID     string
	imageRef    string
	quality     string
	lighting    string
	tone        string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run one shadow verification pass and print the per-type verdicts",
	Long: `Verify re-runs detection through the rule-based provider and the
verifier, compares them per issue type, and prints the verdict rows.
Hard cases land in the configured hard-case file; the verifier output is
persisted for reliability aggregation.`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyFlags.inferenceID, "inference-id", "cli-verify", "Inference ID")
	f.StringVar(&verifyFlags.assetID, "asset-id", "", "Asset ID")
	f.StringVar(&verifyFlags.imageRef, "image", "img://demo", "Image reference")
	f.StringVar(&verifyFlags.quality, "quality", "pass", "Quality grade (pass, degraded, reject)")
	f.StringVar(&verifyFlags.lighting, "lighting", "daylight", "Lighting bucket")
	f.StringVar(&verifyFlags.tone, "tone", "t2", "Skin-tone bucket")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rule, vision := demoProviders()
	sink := labelstore.NewStore(cfg.Paths.ArtifactDir, cfg.PseudoLabel)
	svc := verify.NewService(rule, vision[0], nil, sink, cfg.Verify)

	in := demoContext(verifyFlags.inferenceID, verifyFlags.assetID, verifyFlags.imageRef,
		verifyFlags.quality, verifyFlags.lighting, verifyFlags.tone)
	outcome := svc.Verify(cmd.Context(), in)

	out := cmd.OutOrStdout()
	switch outcome.Status {
	case verify.StatusSkipped:
		fmt.Fprintf(out, "Skipped: %s\n", outcome.SkipReason)
		return nil
	case verify.StatusVerifiedFail:
		fmt.Fprintf(out, "Verification failed: %s\n", display.FailureReason(outcome.FailureReason))
		return nil
	}

	rows := format.NewTable(tableMode())
	rows.Header("Type", "Verdict", "IoU", "Sev Delta", "Reason")
	for _, r := range outcome.Rows {
		rows.Row(
			display.ConcernType(string(r.Type)),
			display.Verdict(string(r.Verdict)),
			fmt.Sprintf("%.2f", r.IoU),
			fmt.Sprintf("%.2f", r.SeverityDelta),
			r.Reason,
		)
	}
	rows.AlignRight(3, 4)
	fmt.Fprintln(out, rows.String())

	fmt.Fprintf(out, "Agreement score: %.2f\n", outcome.AgreementScore)
	if outcome.HardCase {
		fmt.Fprintf(out, "Hard case recorded: %s\n", cfg.Verify.HardCasePath)
	}
	return nil
}
