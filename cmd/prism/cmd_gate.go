package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prism/internal/display"
	"prism/internal/reliability"
)

var gateFlags struct {
	issueType string
	quality   string
	lighting  string
	tone      string
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Check whether the verifier may vote for one bucket",
	RunE:  runGate,
}

func init() {
	f := gateCmd.Flags()
	f.StringVar(&gateFlags.issueType, "type", "", "Issue type (required)")
	f.StringVar(&gateFlags.quality, "quality", "pass", "Quality grade")
	f.StringVar(&gateFlags.lighting, "lighting", "daylight", "Lighting bucket")
	f.StringVar(&gateFlags.tone, "tone", "t2", "Skin-tone bucket")

	_ = gateCmd.MarkFlagRequired("type")
}

func runGate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gate := reliability.NewGate(cfg.Paths.ReliabilityTable)
	key := reliability.BucketKey{
		IssueType:    gateFlags.issueType,
		QualityGrade: gateFlags.quality,
		Lighting:     gateFlags.lighting,
		ToneBucket:   gateFlags.tone,
	}
	d := gate.ShouldUseVerifierInVote(key)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bucket:       %s\n", key.String())
	fmt.Fprintf(out, "Use verifier: %v\n", d.UseVerifier)
	if len(d.Reasons) > 0 {
		fmt.Fprintf(out, "Reasons:      %s\n", display.IneligibleReasons(d.Reasons))
	}
	return nil
}
