package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/k8s-ai-assistant/expert-engine/internal/actuator"
	"github.com/k8s-ai-assistant/expert-engine/internal/catalog"
	"github.com/k8s-ai-assistant/expert-engine/internal/engine"
	"github.com/k8s-ai-assistant/expert-engine/internal/history"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/scanner"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]models.IssuePattern{
		{
			ID: "k8s_pod_crashloop", Name: "Pod in CrashLoopBackOff",
			Domain: models.DomainKubernetes, Severity: models.SeverityHigh,
			Rules:        []models.MatchRule{{Keywords: []string{"crashloopbackoff"}, Weight: 1}},
			CommonCauses: []string{"config_error", "resource_limit"},
			Remediation: []models.RemediationStep{
				{Description: "Inspect logs", CommandTemplate: "kubectl logs <pod> -n <namespace> --previous", Risk: models.RiskSafe},
				{Description: "Restart deployment", CommandTemplate: "kubectl rollout restart deployment <deployment> -n <namespace>", Risk: models.RiskMedium},
			},
		},
		{
			ID: "storage_split_brain", Domain: models.DomainStorage, Severity: models.SeverityCritical,
			Rules:        []models.MatchRule{{Keywords: []string{"split-brain"}, Weight: 1}},
			CommonCauses: []string{"network_partition"},
			Remediation: []models.RemediationStep{
				{Description: "Choose the good replica by hand", Risk: models.RiskHigh},
			},
		},
		{
			ID: "os_disk_full", Domain: models.DomainOS, Severity: models.SeverityHigh,
			Rules:        []models.MatchRule{{Regex: `no\s+space\s+left`, Weight: 1}},
			CommonCauses: []string{"log_rotation"},
			Remediation:  []models.RemediationStep{{Description: "Show usage", CommandTemplate: "df -h", Risk: models.RiskSafe}},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

type fixture struct {
	service *ExpertService
	store   *history.Store
}

func newFixture(t *testing.T, level models.AutomationLevel, collect scanner.Collector) fixture {
	t.Helper()
	logger := quietLogger()
	c := testCatalog(t)
	store := history.NewStore(history.StoreConfig{Known: c, Logger: logger})
	matcher := engine.NewMatcher(c, 0)
	svc, err := NewExpertService(Options{
		Catalog:     c,
		Matcher:     matcher,
		History:     store,
		Scanner:     scanner.New(matcher, store, scanner.Config{Logger: logger}),
		Executor:    actuator.NewExecutor(actuator.DryRun{Logger: logger}, store, actuator.ExecutorConfig{Logger: logger}),
		Policy:      models.AutomationPolicy{Level: level, ConfidenceThreshold: 0.8},
		ScanSources: collect,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return fixture{service: svc, store: store}
}

var crashVars = map[string]string{"pod": "web-1", "namespace": "prod", "deployment": "web"}

func staticSources(sources ...string) scanner.Collector {
	return func(context.Context) ([]string, error) { return sources, nil }
}
