package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/k8s-ai-assistant/expert-engine/internal/api"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

func init() {
	historyCmd.Flags().DurationVar(&historyWithin, "within", 0, "Only occurrences newer than this, e.g. 24h")
	outcomeCmd.Flags().StringVar(&outcomeDetail, "detail", "", "Free-form note stored with the outcome")
	historyCmd.AddCommand(trendsCmd, outcomeCmd, reportCmd)
	rootCmd.AddCommand(historyCmd)
}

var (
	historyWithin time.Duration
	outcomeDetail string
)

var historyCmd = &cobra.Command{
	Use:   "history [issue-type]",
	Short: "Show recorded issue occurrences",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var trendsCmd = &cobra.Command{
	Use:   "trends [issue-type]",
	Short: "Summarise recorded history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTrends,
}

var outcomeCmd = &cobra.Command{
	Use:   "outcome <issue-type> <occurrence-id> <success|failure|unknown|not_attempted>",
	Short: "Record the outcome of a remediation run elsewhere",
	Args:  cobra.ExactArgs(3),
	RunE:  runOutcome,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show learned evidence keywords, prediction accuracy and trends",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	var issueType string
	if len(args) == 1 {
		issueType = args[0]
	}
	occs := rt.expert.History(issueType, historyWithin)
	out := cmd.OutOrStdout()
	if err := printOccurrences(out, occs); err != nil {
		return err
	}
	if outputJSON || issueType != "" {
		return nil
	}

	freq := rt.expert.Frequency()
	types := make([]string, 0, len(freq))
	for t := range freq {
		types = append(types, t)
	}
	sort.Strings(types)
	if len(types) > 0 {
		fmt.Fprintln(out, "\nFrequency:")
		for _, t := range types {
			fmt.Fprintf(out, "  %-28s %d\n", t, freq[t])
		}
	}
	return nil
}

func runTrends(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	var issueType string
	if len(args) == 1 {
		issueType = args[0]
	}
	trend := rt.expert.Trends(issueType)
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, api.ToProtoTrend(trend))
	}
	fmt.Fprintf(out, "Occurrences:    %d (%d in the last 24h)\n", trend.TotalOccurrences, trend.Recent24h)
	fmt.Fprintf(out, "Issue types:    %d\n", trend.IssueTypes)
	fmt.Fprintf(out, "Avg confidence: %.2f\n", trend.AverageConfidence)
	if trend.MostFrequentType != "" {
		fmt.Fprintf(out, "Most frequent:  %s (%d)\n", trend.MostFrequentType, trend.MostFrequentCount)
	}
	fmt.Fprintf(out, "Direction:      %s\n", trend.Direction)
	return nil
}

func runOutcome(cmd *cobra.Command, args []string) error {
	outcome, err := api.FromProtoOutcome(args[2])
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	occ, err := rt.expert.RecordOutcome(cmd.Context(), args[0], args[1], outcome, outcomeDetail)
	if err != nil {
		return err
	}
	return printOccurrences(cmd.OutOrStdout(), []models.IssueOccurrence{occ})
}

func runReport(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	report := rt.expert.LearningReport()
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, api.ToProtoLearningReport(report))
	}

	fmt.Fprintf(out, "Retention:        last %d occurrences per issue type\n", report.Capacity)
	fmt.Fprintf(out, "Patterns learned: %d\n", report.PatternsLearned)
	fmt.Fprintf(out, "Trend:            %s, %d occurrences (%d in the last 24h)\n\n",
		report.Trend.Direction, report.Trend.TotalOccurrences, report.Trend.Recent24h)

	tw := newTable(out)
	fmt.Fprintln(tw, "ISSUE TYPE\tSEEN\tAVG CONF\tACCURACY\tKEYWORDS")
	for _, t := range report.Types {
		accuracy := "-"
		if t.Predictions > 0 {
			accuracy = fmt.Sprintf("%.0f%% of %d", t.AccuracyRate*100, t.Predictions)
		}
		keywords := make([]string, 0, len(t.Keywords))
		for _, k := range t.Keywords {
			keywords = append(keywords, fmt.Sprintf("%s(%d)", k.Keyword, k.Count))
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\n", t.IssueType, t.Occurrences, t.AverageConfidence, accuracy, strings.Join(keywords, " "))
	}
	return tw.Flush()
}
