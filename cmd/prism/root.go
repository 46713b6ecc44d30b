package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config   string
	dir      string
	markdown bool
}

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Multi-provider skin-concern fusion and calibration",
	Long: "Prism fuses skin-concern detections from a rule-based detector and\n" +
		"vision-language providers into one calibrated canonical result, runs\n" +
		"shadow verification, and maintains the verifier reliability table.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "Path to YAML config (empty = defaults)")
	pf.StringVar(&rootFlags.dir, "dir", ".prism", "Artifact root directory")
	pf.BoolVar(&rootFlags.markdown, "markdown", false, "Render tables as Markdown")

	rootCmd.AddCommand(fuseCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(reliabilityCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
