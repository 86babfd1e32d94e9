package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/k8s-ai-assistant/expert-engine/internal/actuator"
	"github.com/k8s-ai-assistant/expert-engine/internal/api"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/services"
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDomain, "domain", "", "Restrict matching to os, kubernetes or storage")
	analyzeCmd.Flags().StringVar(&analyzeIssueType, "issue-type", "", "Plan for this catalog pattern instead of the best match")
	analyzeCmd.Flags().StringToStringVar(&analyzeVars, "var", nil, "Placeholder values, e.g. --var pod=web-1")
	analyzeCmd.Flags().BoolVar(&analyzeScan, "scan", false, "Scan watched logs before analysing")
	analyzeCmd.Flags().BoolVar(&analyzeRemediate, "remediate", false, "Execute the plan when the safety decision allows it")
	analyzeCmd.Flags().BoolVar(&analyzeConfirm, "confirm", false, "Confirm a plan that requires operator approval")
	rootCmd.AddCommand(analyzeCmd)
}

var (
	analyzeDomain    string
	analyzeIssueType string
	analyzeVars      map[string]string
	analyzeScan      bool
	analyzeRemediate bool
	analyzeConfirm   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [observation...]",
	Short: "Diagnose an observation and plan remediation",
	Long: `Match an observation (arguments, or stdin when none are given) against
the issue catalog, predict its root cause from recorded history and print the
remediation plan. With --remediate the plan is executed by the configured
actuator and the outcome is recorded.`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	observation, err := readObservation(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	req := models.AnalysisRequest{
		Observation: observation,
		Domain:      models.Domain(analyzeDomain),
		IssueType:   analyzeIssueType,
		Variables:   analyzeVars,
		SkipScan:    !analyzeScan,
	}
	out := cmd.OutOrStdout()

	if !analyzeRemediate {
		analysis, err := rt.expert.Analyze(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printAnalysis(out, analysis)
	}

	result, err := rt.expert.Remediate(cmd.Context(), models.RemediationRequest{AnalysisRequest: req, Confirmed: analyzeConfirm})
	switch {
	case errors.Is(err, services.ErrNoMatchingPattern):
		return printAnalysis(out, result.Analysis)
	case errors.Is(err, actuator.ErrConfirmationRequired):
		if perr := printAnalysis(out, result.Analysis); perr != nil {
			return perr
		}
		return fmt.Errorf("%w: rerun with --confirm to proceed", err)
	case err != nil:
		return err
	}

	if outputJSON {
		return printJSON(out, map[string]any{
			"analysis":   api.ToProtoAnalyzeResponse(result.Analysis),
			"occurrence": api.ToProtoOccurrence(result.Occurrence),
		})
	}
	if err := printAnalysis(out, result.Analysis); err != nil {
		return err
	}
	occ := result.Occurrence
	fmt.Fprintf(out, "\nOutcome: %s", occ.Outcome)
	if occ.Detail != "" {
		fmt.Fprintf(out, " (%s)", occ.Detail)
	}
	fmt.Fprintf(out, "\nRecorded as %s\n", occ.ID)
	for _, step := range occ.Steps {
		fmt.Fprintf(out, "  %-13s %s\n", step.Outcome, step.Description)
	}
	return nil
}
