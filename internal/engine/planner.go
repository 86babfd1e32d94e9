package engine

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/k8s-ai-assistant/expert-engine/internal/catalog"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

var (
	placeholderPattern = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_-]*)>`)
	// Substituted values must be single tokens so a context value can never
	// smuggle extra arguments or shell syntax into a command.
	safeValuePattern = regexp.MustCompile(`^[A-Za-z0-9._:/=@-]+$`)
)

// Planner expands a matched pattern into a safety-gated remediation plan.
type Planner struct {
	logger *slog.Logger
}

// NewPlanner constructs a Planner.
func NewPlanner(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{logger: logger}
}

// Plan resolves the pattern's remediation template against vars and decides
// whether the plan may run unattended under policy.
//
// HIGH-risk or unresolved steps always require confirmation; a pattern
// without steps yields a BLOCKED plan rather than an error so callers still
// get a displayable decision.
func (p *Planner) Plan(pattern models.IssuePattern, confidence float64, policy models.AutomationPolicy, vars map[string]string) models.RemediationPlan {
	if math.IsNaN(confidence) {
		confidence = 0
	}
	plan := models.RemediationPlan{
		Pattern:    pattern,
		Confidence: clampUnit(confidence),
	}

	if len(pattern.Remediation) == 0 {
		plan.Decision = models.DecisionBlocked
		plan.Reason = fmt.Sprintf("pattern %s has no remediation steps; manual investigation required", pattern.ID)
		p.logger.Warn("remediation plan blocked", slog.String("pattern", pattern.ID), slog.String("reason", plan.Reason))
		return plan
	}

	highRisk := false
	unresolved := false
	plan.Steps = make([]models.PlannedStep, 0, len(pattern.Remediation))
	for _, step := range pattern.Remediation {
		planned := resolveStep(step, vars)
		if planned.Risk == models.RiskHigh {
			highRisk = true
		}
		if planned.IsUnresolved() {
			unresolved = true
		}
		plan.Steps = append(plan.Steps, planned)
	}

	plan.Decision, plan.Reason = decide(policy, highRisk, unresolved, plan.Confidence)
	p.logger.Debug("remediation plan built",
		slog.String("pattern", pattern.ID),
		slog.Float64("confidence", plan.Confidence),
		slog.String("decision", string(plan.Decision)),
	)
	return plan
}

func decide(policy models.AutomationPolicy, highRisk, unresolved bool, confidence float64) (models.Decision, string) {
	threshold := clampUnit(policy.ConfidenceThreshold)
	switch {
	case unresolved:
		return models.DecisionRequireConfirmation, "plan has unresolved placeholders"
	case policy.Level != models.AutomationSemiAuto && policy.Level != models.AutomationFullAuto:
		return models.DecisionRequireConfirmation, "manual automation level"
	case highRisk:
		return models.DecisionRequireConfirmation, "plan contains high-risk steps"
	case confidence < threshold:
		return models.DecisionRequireConfirmation, fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, threshold)
	default:
		return models.DecisionAutoExecute, ""
	}
}

func resolveStep(step models.RemediationStep, vars map[string]string) models.PlannedStep {
	planned := models.PlannedStep{RemediationStep: step}
	missing := make(map[string]struct{})

	substitute := func(template string) string {
		return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
			name := token[1 : len(token)-1]
			value, ok := lookupVar(vars, name)
			if !ok || !safeValuePattern.MatchString(value) {
				missing[name] = struct{}{}
				return token
			}
			return value
		})
	}

	planned.Command = substitute(step.CommandTemplate)
	planned.Verification = substitute(step.Verification)
	planned.Risk = models.MaxRisk(step.Risk, catalog.ClassifyCommand(planned.Command))
	if planned.Risk == "" {
		planned.Risk = models.RiskSafe
	}
	if len(missing) > 0 {
		planned.Unresolved = make([]string, 0, len(missing))
		for name := range missing {
			planned.Unresolved = append(planned.Unresolved, name)
		}
		sort.Strings(planned.Unresolved)
	}
	return planned
}

func lookupVar(vars map[string]string, name string) (string, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	for k, v := range vars {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
