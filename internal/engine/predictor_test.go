package engine

import (
	"math"
	"testing"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

func crashloopPattern() models.IssuePattern {
	return models.IssuePattern{
		ID:           "k8s_pod_crashloop",
		Domain:       models.DomainKubernetes,
		Severity:     models.SeverityHigh,
		CommonCauses: []string{"config_error", "resource_limit"},
		Remediation: []models.RemediationStep{
			safeStep("Inspect logs", "kubectl logs <pod> --previous"),
			{Description: "Restart deployment", CommandTemplate: "kubectl rollout restart deployment <deployment>", Risk: models.RiskMedium},
		},
	}
}

func TestPredictWithoutHistoryUsesMatchConfidence(t *testing.T) {
	p := NewPredictor(staticHistory{}, PredictorConfig{})
	match := models.Match{Pattern: crashloopPattern(), Confidence: 0.62}

	res := p.Predict(match, "k8s_pod_crashloop")
	if res.Confidence != 0.62 {
		t.Fatalf("expected confidence 0.62, got %f", res.Confidence)
	}
	if res.HistoricalCount != 0 {
		t.Fatalf("expected no history, got %d", res.HistoricalCount)
	}
	if res.PredictedCause != "config_error" {
		t.Fatalf("expected primary cause, got %q", res.PredictedCause)
	}
	if len(res.Recommendations) != 2 {
		t.Fatalf("expected template recommendations, got %d", len(res.Recommendations))
	}
	for _, rec := range res.Recommendations {
		if rec.SuccessRate != nil {
			t.Fatalf("expected unknown success rate for %q", rec.Action)
		}
	}
}

func TestPredictBlendsHistory(t *testing.T) {
	now := time.Now()
	history := staticHistory{
		"k8s_pod_crashloop": {
			{IssueType: "k8s_pod_crashloop", Timestamp: now.Add(-2 * time.Hour), PredictedCause: "resource_limit", ActionTaken: "Restart deployment", Outcome: models.OutcomeFailure},
			{IssueType: "k8s_pod_crashloop", Timestamp: now.Add(-time.Hour), PredictedCause: "resource_limit", ActionTaken: "Restart deployment", Outcome: models.OutcomeSuccess},
		},
	}
	p := NewPredictor(history, PredictorConfig{Capacity: 3, HistoryWeight: 0.5})
	match := models.Match{Pattern: crashloopPattern(), Confidence: 0.6}

	res := p.Predict(match, "k8s_pod_crashloop")
	want := 0.5*0.6 + 0.5*(2.0/3.0)
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("expected blended confidence %f, got %f", want, res.Confidence)
	}
	if res.PredictedCause != "resource_limit" {
		t.Fatalf("expected historical cause, got %q", res.PredictedCause)
	}
	if len(res.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %+v", res.Recommendations)
	}
	first := res.Recommendations[0]
	if first.Action != "Restart deployment" || first.SuccessRate == nil || *first.SuccessRate != 0.5 || first.Attempts != 2 {
		t.Fatalf("unexpected first recommendation %+v", first)
	}
	if first.Risk != models.RiskMedium || first.Command == "" {
		t.Fatalf("expected template details on historical action, got %+v", first)
	}
	if res.Recommendations[1].Action != "Inspect logs" || res.Recommendations[1].SuccessRate != nil {
		t.Fatalf("unexpected second recommendation %+v", res.Recommendations[1])
	}
}

func TestPredictCapsHistoryTerm(t *testing.T) {
	records := make([]models.IssueOccurrence, 5)
	for i := range records {
		records[i] = models.IssueOccurrence{IssueType: "x", Outcome: models.OutcomeNotAttempted}
	}
	p := NewPredictor(staticHistory{"x": records}, PredictorConfig{Capacity: 3})
	res := p.Predict(models.Match{Pattern: models.IssuePattern{ID: "x"}, Confidence: 1}, "x")
	if res.Confidence != 1 {
		t.Fatalf("expected confidence capped at 1, got %f", res.Confidence)
	}
	if res.PredictedCause != "unknown" {
		t.Fatalf("expected unknown cause, got %q", res.PredictedCause)
	}
}

func TestPredictRanksBySuccessRate(t *testing.T) {
	history := staticHistory{
		"x": {
			{ActionTaken: "a", Outcome: models.OutcomeFailure},
			{ActionTaken: "b", Outcome: models.OutcomeSuccess},
			{ActionTaken: "a", Outcome: models.OutcomeSuccess},
		},
	}
	p := NewPredictor(history, PredictorConfig{})
	res := p.Predict(models.Match{Pattern: models.IssuePattern{ID: "x"}, Confidence: 0.5}, "")
	if res.IssueType != "x" {
		t.Fatalf("expected issue type from pattern, got %q", res.IssueType)
	}
	if len(res.Recommendations) != 2 || res.Recommendations[0].Action != "b" || res.Recommendations[1].Action != "a" {
		t.Fatalf("unexpected ranking %+v", res.Recommendations)
	}
	if *res.Recommendations[1].SuccessRate != 0.5 {
		t.Fatalf("expected 0.5 rate for a, got %f", *res.Recommendations[1].SuccessRate)
	}
}
