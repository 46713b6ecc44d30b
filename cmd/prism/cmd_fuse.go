package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"prism/internal/display"
	"prism/internal/format"
	"prism/internal/labelstore"
)

var fuseFlags struct {
	inferenceID string
	assetID     string
	imageRef    string
	quality     string
	lighting    string
	tone        string
	jsonOut     bool
}

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Run multi-provider fusion on one image and print the canonical result",
	Long: `Fuse runs the rule-based detector and the enabled vision providers,
clusters and calibrates their concerns, and prints the fused canonical
result. Provider outputs are recorded into the pseudo-label store when
it is enabled.`,
	RunE: runFuse,
}

func init() {
	f := fuseCmd.Flags()
	f.StringVar(&fuseFlags.inferenceID, "inference-id", "cli-fuse", "Inference ID")
	f.StringVar(&fuseFlags.assetID, "asset-id", "", "Asset ID for gold-label joins")
	f.StringVar(&fuseFlags.imageRef, "image", "img://demo", "Image reference")
	f.StringVar(&fuseFlags.quality, "quality", "pass", "Quality grade (pass, degraded, reject)")
	f.StringVar(&fuseFlags.lighting, "lighting", "daylight", "Lighting bucket")
	f.StringVar(&fuseFlags.tone, "tone", "t2", "Skin-tone bucket")
	f.BoolVar(&fuseFlags.jsonOut, "json", false, "Print the raw canonical JSON instead of tables")
}

func runFuse(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine := newFusionEngine(cfg)
	in := demoContext(fuseFlags.inferenceID, fuseFlags.assetID, fuseFlags.imageRef,
		fuseFlags.quality, fuseFlags.lighting, fuseFlags.tone)
	res := engine.Fuse(cmd.Context(), in)

	if cfg.PseudoLabel.Enabled {
		store := labelstore.NewStore(cfg.Paths.ArtifactDir, cfg.PseudoLabel)
		if _, err := store.Record(in, res.Outputs); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "record provider outputs: %v\n", err)
		}
	}

	out := cmd.OutOrStdout()
	if fuseFlags.jsonOut {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if !res.OK {
		fmt.Fprintf(out, "Fusion failed: %s\n", display.FailureReason(res.FailureReason))
	}

	stats := format.NewTable(tableMode())
	stats.Header("Provider", "Model", "OK", "Concerns", "Latency (ms)", "Failure")
	for _, s := range res.Canonical.ProviderStats {
		failure := ""
		if s.FailureReason != "" {
			failure = display.FailureReason(s.FailureReason)
		}
		stats.Row(s.Provider, s.ModelName, s.OK, s.ConcernCount, s.LatencyMs, failure)
	}
	stats.AlignRight(4, 5)
	fmt.Fprintln(out, stats.String())

	concerns := format.NewTable(tableMode())
	concerns.Header("Type", "Severity", "Confidence", "Regions", "Uncertain", "Providers")
	for i := range res.Canonical.Concerns {
		c := &res.Canonical.Concerns[i]
		concerns.Row(
			display.ConcernType(string(c.Type)),
			fmt.Sprintf("%.2f", c.Severity),
			fmt.Sprintf("%.2f", c.Confidence),
			len(c.Regions),
			c.Uncertain,
			c.Provenance.Provider,
		)
	}
	concerns.AlignRight(2, 3, 4)
	fmt.Fprintln(out, concerns.String())

	fmt.Fprintf(out, "Agreement score: %.2f\n", res.Canonical.AgreementScore)
	for _, c := range res.Canonical.Conflicts {
		fmt.Fprintf(out, "Conflict: %s %v %s\n", c.Kind, c.Types, c.Detail)
	}
	return nil
}
