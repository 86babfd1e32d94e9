package engine

import (
	"testing"

	"github.com/k8s-ai-assistant/expert-engine/internal/catalog"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

func kw(weight float64, keywords ...string) models.MatchRule {
	return models.MatchRule{Keywords: keywords, Weight: weight}
}

func rx(weight float64, expr string) models.MatchRule {
	return models.MatchRule{Regex: expr, Weight: weight}
}

func safeStep(desc, command string) models.RemediationStep {
	return models.RemediationStep{Description: desc, CommandTemplate: command, Risk: models.RiskSafe}
}

func mustCatalog(t *testing.T, patterns ...models.IssuePattern) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(patterns)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return c
}

type staticHistory map[string][]models.IssueOccurrence

func (h staticHistory) HistoryFor(issueType string) []models.IssueOccurrence {
	return h[issueType]
}
