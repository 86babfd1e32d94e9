package engine

import (
	"reflect"
	"testing"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

func patternWithSteps(steps ...models.RemediationStep) models.IssuePattern {
	return models.IssuePattern{ID: "p", Domain: models.DomainKubernetes, Severity: models.SeverityHigh, Remediation: steps}
}

func TestPlanDecisionTable(t *testing.T) {
	safe := patternWithSteps(safeStep("list pods", "kubectl get pods"))
	medium := patternWithSteps(
		safeStep("list pods", "kubectl get pods"),
		models.RemediationStep{Description: "restart", CommandTemplate: "systemctl restart kubelet", Risk: models.RiskMedium},
	)
	high := patternWithSteps(
		safeStep("list pods", "kubectl get pods"),
		models.RemediationStep{Description: "manual fix", Risk: models.RiskHigh},
	)

	cases := []struct {
		name       string
		level      models.AutomationLevel
		pattern    models.IssuePattern
		confidence float64
		want       models.Decision
	}{
		{"manual high conf", models.AutomationManual, safe, 0.99, models.DecisionRequireConfirmation},
		{"manual low conf", models.AutomationManual, safe, 0.1, models.DecisionRequireConfirmation},
		{"manual high risk", models.AutomationManual, high, 0.99, models.DecisionRequireConfirmation},
		{"semi high risk", models.AutomationSemiAuto, high, 0.99, models.DecisionRequireConfirmation},
		{"semi confident", models.AutomationSemiAuto, safe, 0.9, models.DecisionAutoExecute},
		{"semi confident medium", models.AutomationSemiAuto, medium, 0.9, models.DecisionAutoExecute},
		{"semi low conf", models.AutomationSemiAuto, safe, 0.5, models.DecisionRequireConfirmation},
		{"full high risk", models.AutomationFullAuto, high, 1.0, models.DecisionRequireConfirmation},
		{"full confident", models.AutomationFullAuto, medium, 0.8, models.DecisionAutoExecute},
		{"full low conf", models.AutomationFullAuto, safe, 0.79, models.DecisionRequireConfirmation},
		{"unknown level", "", safe, 1.0, models.DecisionRequireConfirmation},
	}

	planner := NewPlanner(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := models.AutomationPolicy{Level: tc.level, ConfidenceThreshold: 0.8}
			plan := planner.Plan(tc.pattern, tc.confidence, policy, nil)
			if plan.Decision != tc.want {
				t.Fatalf("decision = %s, want %s (reason %q)", plan.Decision, tc.want, plan.Reason)
			}
		})
	}
}

func TestPlanFullAutoScenario(t *testing.T) {
	planner := NewPlanner(nil)
	policy := models.AutomationPolicy{Level: models.AutomationFullAuto, ConfidenceThreshold: 0.8}

	allSafe := patternWithSteps(safeStep("a", "kubectl get pods"), safeStep("b", "kubectl get nodes"))
	if got := planner.Plan(allSafe, 0.9, policy, nil).Decision; got != models.DecisionAutoExecute {
		t.Fatalf("expected auto execute, got %s", got)
	}

	oneHigh := patternWithSteps(safeStep("a", "kubectl get pods"), models.RemediationStep{Description: "b", CommandTemplate: "kubectl get nodes", Risk: models.RiskHigh})
	if got := planner.Plan(oneHigh, 0.9, policy, nil).Decision; got != models.DecisionRequireConfirmation {
		t.Fatalf("expected confirmation, got %s", got)
	}
}

func TestPlanZeroStepsBlocked(t *testing.T) {
	plan := NewPlanner(nil).Plan(patternWithSteps(), 1, models.AutomationPolicy{Level: models.AutomationFullAuto}, nil)
	if plan.Decision != models.DecisionBlocked {
		t.Fatalf("expected blocked, got %s", plan.Decision)
	}
	if plan.Reason == "" {
		t.Fatalf("expected a reason for blocked plan")
	}
}

func TestPlanResolvesPlaceholders(t *testing.T) {
	pattern := patternWithSteps(models.RemediationStep{
		Description:     "logs",
		CommandTemplate: "kubectl logs <pod> -n <namespace> --previous",
		Verification:    "kubectl get pod <pod> -n <namespace>",
		Risk:            models.RiskSafe,
	})
	policy := models.AutomationPolicy{Level: models.AutomationFullAuto, ConfidenceThreshold: 0.5}

	plan := NewPlanner(nil).Plan(pattern, 0.9, policy, map[string]string{"pod": "nginx-1", "Namespace": "default"})
	step := plan.Steps[0]
	if step.Command != "kubectl logs nginx-1 -n default --previous" {
		t.Fatalf("unexpected command %q", step.Command)
	}
	if step.Verification != "kubectl get pod nginx-1 -n default" {
		t.Fatalf("unexpected verification %q", step.Verification)
	}
	if step.IsUnresolved() || plan.Decision != models.DecisionAutoExecute {
		t.Fatalf("expected resolved auto plan, got %+v", plan)
	}
}

func TestPlanUnresolvedForcesConfirmation(t *testing.T) {
	pattern := patternWithSteps(safeStep("logs", "kubectl logs <pod> -n <namespace>"))
	policy := models.AutomationPolicy{Level: models.AutomationFullAuto, ConfidenceThreshold: 0}
	planner := NewPlanner(nil)

	plan := planner.Plan(pattern, 1, policy, map[string]string{"pod": "nginx-1"})
	if plan.Decision != models.DecisionRequireConfirmation {
		t.Fatalf("expected confirmation, got %s", plan.Decision)
	}
	if !reflect.DeepEqual(plan.Steps[0].Unresolved, []string{"namespace"}) {
		t.Fatalf("unexpected unresolved list %v", plan.Steps[0].Unresolved)
	}

	injected := planner.Plan(pattern, 1, policy, map[string]string{"pod": "x; rm -rf /", "namespace": "default"})
	if !reflect.DeepEqual(injected.Steps[0].Unresolved, []string{"pod"}) {
		t.Fatalf("expected unsafe value to stay unresolved, got %v", injected.Steps[0].Unresolved)
	}
	if injected.Decision != models.DecisionRequireConfirmation {
		t.Fatalf("expected confirmation, got %s", injected.Decision)
	}
}

func TestPlanEscalatesResolvedRisk(t *testing.T) {
	pattern := patternWithSteps(safeStep("cleanup", "kubectl delete pod <pod> --force"))
	plan := NewPlanner(nil).Plan(pattern, 1, models.AutomationPolicy{Level: models.AutomationFullAuto}, map[string]string{"pod": "web"})
	if plan.Steps[0].Risk != models.RiskHigh {
		t.Fatalf("expected high risk, got %s", plan.Steps[0].Risk)
	}
	if plan.Decision != models.DecisionRequireConfirmation {
		t.Fatalf("expected confirmation, got %s", plan.Decision)
	}
}
