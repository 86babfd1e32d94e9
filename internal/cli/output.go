package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/k8s-ai-assistant/expert-engine/internal/api"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// readObservation joins args, or reads stdin when there are none or the
// only argument is "-".
func readObservation(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printAnalysis(w io.Writer, a models.Analysis) error {
	if outputJSON {
		return printJSON(w, api.ToProtoAnalyzeResponse(a))
	}
	if a.ScannedRecorded > 0 {
		fmt.Fprintf(w, "Learned %d new occurrence(s) from watched logs\n", a.ScannedRecorded)
	}
	if !a.Matched() {
		fmt.Fprintln(w, a.Message)
		for _, g := range a.ManualGuidance {
			fmt.Fprintf(w, "  - %s\n", g)
		}
		return nil
	}

	p, plan := a.Prediction, a.Plan
	fmt.Fprintf(w, "Issue:      %s (%s, %s)\n", plan.Pattern.ID, plan.Pattern.Domain, plan.Pattern.Severity)
	fmt.Fprintf(w, "Cause:      %s\n", p.PredictedCause)
	fmt.Fprintf(w, "Confidence: %.2f (history %d)\n", p.Confidence, p.HistoricalCount)
	fmt.Fprintf(w, "Decision:   %s", plan.Decision)
	if plan.Reason != "" {
		fmt.Fprintf(w, " (%s)", plan.Reason)
	}
	fmt.Fprintln(w)

	if len(p.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		tw := newTable(w)
		fmt.Fprintln(tw, "  ACTION\tSUCCESS\tATTEMPTS\tRISK")
		for _, r := range p.Recommendations {
			rate := "-"
			if r.SuccessRate != nil {
				rate = fmt.Sprintf("%.0f%%", *r.SuccessRate*100)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\n", r.Action, rate, r.Attempts, r.Risk)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "\nPlan:")
	for i, step := range plan.Steps {
		cmd := step.Command
		if cmd == "" {
			cmd = "(manual)"
		}
		fmt.Fprintf(w, "  %d. [%s] %s: %s\n", i+1, step.Risk, step.Description, cmd)
		if step.IsUnresolved() {
			fmt.Fprintf(w, "     missing: %s\n", strings.Join(step.Unresolved, ", "))
		}
	}
	return nil
}

func printOccurrences(w io.Writer, occs []models.IssueOccurrence) error {
	if outputJSON {
		return printJSON(w, api.ToProtoOccurrences(occs))
	}
	if len(occs) == 0 {
		fmt.Fprintln(w, "No occurrences recorded.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tISSUE\tTIME\tCONFIDENCE\tOUTCOME\tACTION")
	for _, o := range occs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			o.ID, o.IssueType, utils.FormatTimestamp(o.Timestamp), o.MatchedConfidence, o.Outcome, o.ActionTaken)
	}
	return tw.Flush()
}
