// Package cli implements the expert-engine command line using Cobra. The
// serve command runs the gRPC service; the rest operate on the configured
// history backend directly.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "expert-engine",
	Short: "Issue pattern matching and safety-gated remediation",
	Long: `expert-engine matches observations against a catalog of known OS,
Kubernetes and storage failure signatures, predicts the root cause from the
last occurrences of the same issue and plans remediation gated by the
configured automation level.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults to $EXPERT_ENGINE_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print results as JSON")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
