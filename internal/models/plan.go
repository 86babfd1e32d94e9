package models

import (
	"fmt"
	"strings"
)

// AutomationLevel is the operator-configured remediation aggressiveness.
type AutomationLevel string

const (
	AutomationManual   AutomationLevel = "manual"
	AutomationSemiAuto AutomationLevel = "semi_auto"
	AutomationFullAuto AutomationLevel = "full_auto"
)

// ParseAutomationLevel accepts the canonical names plus dashed variants.
func ParseAutomationLevel(value string) (AutomationLevel, error) {
	normalised := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	switch AutomationLevel(normalised) {
	case AutomationManual, AutomationSemiAuto, AutomationFullAuto:
		return AutomationLevel(normalised), nil
	}
	return "", fmt.Errorf("unknown automation level %q", value)
}

// AutomationPolicy decides how much of a plan may run unattended.
// ConfidenceThreshold is a fraction in [0,1].
type AutomationPolicy struct {
	Level               AutomationLevel
	ConfidenceThreshold float64
}

// Decision is the planner verdict for a remediation plan.
type Decision string

const (
	DecisionAutoExecute         Decision = "auto_execute"
	DecisionRequireConfirmation Decision = "require_confirmation"
	DecisionBlocked             Decision = "blocked"
)

// PlannedStep is a remediation step with its command resolved against the
// caller context. Unresolved lists placeholders that could not be filled.
type PlannedStep struct {
	RemediationStep
	Command    string
	Risk       Risk
	Unresolved []string
}

// IsUnresolved reports whether the step still carries unfilled placeholders.
func (s PlannedStep) IsUnresolved() bool {
	return len(s.Unresolved) > 0
}

// RemediationPlan is an ephemeral, ordered set of steps for one match.
type RemediationPlan struct {
	Pattern    IssuePattern
	Confidence float64
	Steps      []PlannedStep
	Decision   Decision
	Reason     string
}

// ActionLabel identifies the step sequence of the plan in history records.
func (p RemediationPlan) ActionLabel() string {
	parts := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		parts = append(parts, step.Description)
	}
	return strings.Join(parts, " && ")
}

// Recommendation is a ranked remediation suggestion. SuccessRate is nil when
// the action has never been attempted.
type Recommendation struct {
	Action      string
	Command     string
	Risk        Risk
	SuccessRate *float64
	Attempts    int
}

// Prediction is the root-cause estimate for an issue type.
type Prediction struct {
	IssueType       string
	PredictedCause  string
	Confidence      float64
	HistoricalCount int
	Recommendations []Recommendation
	CommonCauses    []string
}
