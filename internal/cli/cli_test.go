package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/config"
	"github.com/k8s-ai-assistant/expert-engine/internal/grpc/expertv1"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/storage"
)

func writeConfig(t *testing.T, historyFile string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "automation:\n  level: full_auto\n  confidenceThreshold: 80\n" +
		"logging:\n  level: error\n" +
		"history:\n  backend: file\n  filePath: " + historyFile + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configPath, outputJSON = "", false
		analyzeDomain, analyzeIssueType, analyzeVars = "", "", map[string]string{}
		analyzeScan, analyzeRemediate, analyzeConfirm = false, false, false
		historyWithin, outcomeDetail, patternsDomain = 0, "", ""
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeRemediateThenHistory(t *testing.T) {
	historyFile := filepath.Join(t.TempDir(), "history.json")
	cfgPath := writeConfig(t, historyFile)

	out, err := runCLI(t, "", "--config", cfgPath, "--json", "analyze",
		"--remediate", "--confirm", "--var", "pod=web-1", "--var", "namespace=prod", "--var", "deployment=web",
		"pod web-1 is in CrashLoopBackOff")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var resp struct {
		Analysis   expertv1.AnalyzeResponse `json:"analysis"`
		Occurrence expertv1.Occurrence      `json:"occurrence"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if resp.Analysis.Plan == nil || resp.Analysis.Plan.PatternID != "k8s_pod_crashloop" {
		t.Fatalf("unexpected analysis %+v", resp.Analysis)
	}
	if resp.Occurrence.Outcome != "success" {
		t.Fatalf("dry-run remediation should succeed, got %+v", resp.Occurrence)
	}
	if _, err := os.Stat(historyFile); err != nil {
		t.Fatalf("history file not written: %v", err)
	}

	out, err = runCLI(t, "", "--config", cfgPath, "history", "k8s_pod_crashloop")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, resp.Occurrence.ID) {
		t.Fatalf("history output missing occurrence %s:\n%s", resp.Occurrence.ID, out)
	}
}

func TestScanFromStdinAndRecordOutcome(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "history.json"))

	out, err := runCLI(t, "write failed: no space left on device\n", "--config", cfgPath, "--json", "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var occs []expertv1.Occurrence
	if err := json.Unmarshal([]byte(out), &occs); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(occs) != 1 || occs[0].IssueType != "os_disk_full" || occs[0].Outcome != "not_attempted" {
		t.Fatalf("unexpected scan output %+v", occs)
	}

	if _, err := runCLI(t, "", "--config", cfgPath, "history", "outcome", "os_disk_full", occs[0].ID, "success", "--detail", "cleaned"); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if _, err := runCLI(t, "", "--config", cfgPath, "history", "outcome", "os_disk_full", occs[0].ID, "failure"); err == nil {
		t.Fatalf("expected settled outcome to be rejected")
	}

	out, err = runCLI(t, "", "--config", cfgPath, "--json", "history", "report")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var report expertv1.GetLearningReportResponse
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if len(report.Types) != 1 || report.Types[0].IssueType != "os_disk_full" || report.Types[0].AccuracyRate != 1 {
		t.Fatalf("unexpected learning report %+v", report)
	}
}

func TestPatternsByDomain(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "history.json"))
	out, err := runCLI(t, "", "--config", cfgPath, "patterns", "--domain", "storage")
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	if !strings.Contains(out, "storage_split_brain") || strings.Contains(out, "k8s_pod_crashloop") {
		t.Fatalf("unexpected patterns output:\n%s", out)
	}
}

func TestReadObservation(t *testing.T) {
	got, err := readObservation([]string{"node", "NotReady"}, strings.NewReader("ignored"))
	if err != nil || got != "node NotReady" {
		t.Fatalf("unexpected observation %q (%v)", got, err)
	}
	got, err = readObservation([]string{"-"}, strings.NewReader("from stdin"))
	if err != nil || got != "from stdin" {
		t.Fatalf("unexpected observation %q (%v)", got, err)
	}
}

func TestOpenBackendAndPreconditions(t *testing.T) {
	ctx := context.Background()
	b, err := openBackend(ctx, config.HistoryConfig{Backend: config.BackendNone})
	if err != nil {
		t.Fatalf("open none: %v", err)
	}
	if _, ok := b.(storage.NoopBackend); !ok {
		t.Fatalf("expected noop backend, got %T", b)
	}
	b, err = openBackend(ctx, config.HistoryConfig{Backend: config.BackendSQLite, SQLiteDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	b.Close()

	if checks := hostPreconditions(config.ActuatorConfig{Mode: config.ModeDryRun, MaxDiskUsedPercent: 90}); checks != nil {
		t.Fatalf("dry-run must not check the host")
	}
	checks := hostPreconditions(config.ActuatorConfig{Mode: config.ModeExec, DiskCheckPath: "/", MaxDiskUsedPercent: 90, MinMemoryAvailablePercent: 1})
	if len(checks) != 2 {
		t.Fatalf("expected disk and memory checks, got %d", len(checks))
	}
}

func TestBuildRuntimeLoadsPersistedHistory(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load(writeConfig(t, filepath.Join(t.TempDir(), "history.json")))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if _, err := rt.expert.Scan(ctx, []string{"node worker-2 NotReady", "no space left on device"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	before := rt.expert.Frequency()
	rt.Close()

	rt, err = buildRuntime(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("reload runtime: %v", err)
	}
	defer rt.Close()
	after := rt.expert.Frequency()
	if len(after) == 0 || after["os_disk_full"] != before["os_disk_full"] {
		t.Fatalf("history not restored: before %v after %v", before, after)
	}
}

func TestWatchConfigUpdatesPolicy(t *testing.T) {
	t.Setenv("K8S_AI_AUTOMATION_LEVEL", "")
	t.Setenv("K8S_AI_CONFIDENCE_THRESHOLD", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "history.json"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	rt, err := buildRuntime(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Close()
	if got := rt.expert.Policy().Level; got != models.AutomationFullAuto {
		t.Fatalf("expected full_auto at start, got %s", got)
	}

	stop := watchConfig(ctx, rt)
	defer stop()

	body := "automation:\n  level: manual\n  confidenceThreshold: 95\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for rt.expert.Policy().Level != models.AutomationManual {
		if time.Now().After(deadline) {
			t.Fatalf("policy not reloaded, still %+v", rt.expert.Policy())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := rt.expert.Policy().ConfidenceThreshold; got != 0.95 {
		t.Fatalf("expected 0.95 threshold, got %v", got)
	}
}
