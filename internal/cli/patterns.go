package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/k8s-ai-assistant/expert-engine/internal/api"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

func init() {
	patternsCmd.Flags().StringVar(&patternsDomain, "domain", "", "Only list patterns of this domain")
	rootCmd.AddCommand(patternsCmd)
}

var patternsDomain string

var patternsCmd = &cobra.Command{
	Use:     "patterns",
	Aliases: []string{"catalog"},
	Short:   "List the issue catalog",
	RunE:    runPatterns,
}

func runPatterns(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	patterns, err := rt.expert.Patterns(models.Domain(patternsDomain))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, api.ToProtoPatterns(patterns))
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tDOMAIN\tSEVERITY\tSTEPS\tCAUSES")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Domain, p.Severity, len(p.Remediation), strings.Join(p.CommonCauses, ", "))
	}
	return tw.Flush()
}
