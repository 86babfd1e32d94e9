package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/actuator"
	"github.com/k8s-ai-assistant/expert-engine/internal/catalog"
	"github.com/k8s-ai-assistant/expert-engine/internal/engine"
	"github.com/k8s-ai-assistant/expert-engine/internal/history"
	"github.com/k8s-ai-assistant/expert-engine/internal/metrics"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/scanner"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

// NoMatchMessage is returned when no catalog pattern matches an observation.
const NoMatchMessage = "no confident remediation available, manual investigation required"

var (
	ErrEmptyObservation  = errors.New("observation is empty")
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrNotConfigured     = errors.New("component not configured")
	ErrNoMatchingPattern = errors.New("no matching pattern")
	ErrInvalidOutcome    = errors.New("invalid outcome")
	ErrUnknownIssueType  = history.ErrUnknownIssueType
)

var manualGuidance = []string{
	"Collect recent logs and events for the affected resource",
	"Check node and cluster health (kubectl get nodes, kubectl get events -A)",
	"Check host resources (df -h, free -m, uptime)",
	"Escalate to the owning team with the collected evidence",
}

// Options wires the collaborators of an ExpertService.
type Options struct {
	Catalog   *catalog.Catalog
	Matcher   *engine.Matcher
	Predictor *engine.Predictor
	Planner   *engine.Planner
	History   *history.Store
	Scanner   *scanner.Scanner
	Executor  *actuator.Executor
	Policy    models.AutomationPolicy
	// ScanSources, when set, is scanned before every analysis.
	ScanSources scanner.Collector
	Logger      *slog.Logger
}

// ExpertService is the facade over matching, prediction, planning, history
// and execution used by the gRPC transport and the CLI.
type ExpertService struct {
	catalog     *catalog.Catalog
	matcher     *engine.Matcher
	predictor   *engine.Predictor
	planner     *engine.Planner
	history     *history.Store
	scanner     *scanner.Scanner
	executor    *actuator.Executor
	policyMu    sync.RWMutex
	policy      models.AutomationPolicy
	scanSources scanner.Collector
	logger      *slog.Logger
	latencies   *utils.LatencyTracker
}

// NewExpertService constructs the service facade.
func NewExpertService(opts Options) (*ExpertService, error) {
	if opts.Catalog == nil || opts.History == nil {
		return nil, fmt.Errorf("%w: catalog and history are required", ErrNotConfigured)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Matcher == nil {
		opts.Matcher = engine.NewMatcher(opts.Catalog, engine.DefaultTopN)
	}
	if opts.Predictor == nil {
		opts.Predictor = engine.NewPredictor(opts.History, engine.PredictorConfig{Capacity: opts.History.Capacity()})
	}
	if opts.Planner == nil {
		opts.Planner = engine.NewPlanner(opts.Logger)
	}
	return &ExpertService{
		catalog:     opts.Catalog,
		matcher:     opts.Matcher,
		predictor:   opts.Predictor,
		planner:     opts.Planner,
		history:     opts.History,
		scanner:     opts.Scanner,
		executor:    opts.Executor,
		policy:      opts.Policy,
		scanSources: opts.ScanSources,
		logger:      opts.Logger,
		latencies:   utils.NewLatencyTracker(1024),
	}, nil
}

// Analyze matches an observation, predicts its root cause from history and
// produces a safety-gated remediation plan.
func (s *ExpertService) Analyze(ctx context.Context, req models.AnalysisRequest) (models.Analysis, error) {
	start := time.Now()
	analysis, err := s.analyze(ctx, req)
	duration := time.Since(start)

	switch {
	case err != nil:
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		return models.Analysis{}, err
	case analysis.Matched():
		metrics.ObserveAnalysis(duration, metrics.OutcomeMatched)
		metrics.ObservePlan(string(analysis.Plan.Decision))
	default:
		metrics.ObserveAnalysis(duration, metrics.OutcomeUnmatched)
	}

	s.latencies.Observe(duration)
	if s.latencies.Total()%100 == 0 {
		sum := s.latencies.Summary()
		s.logger.Info("analysis latency",
			slog.Duration("p50", sum.P50),
			slog.Duration("p95", sum.P95),
			slog.Duration("max", sum.Max),
			slog.Int("samples", sum.Samples),
		)
	}
	return analysis, nil
}

func (s *ExpertService) analyze(ctx context.Context, req models.AnalysisRequest) (models.Analysis, error) {
	if strings.TrimSpace(req.Observation) == "" {
		return models.Analysis{}, ErrEmptyObservation
	}
	if req.Domain != "" && !req.Domain.Valid() {
		return models.Analysis{}, fmt.Errorf("%w: domain %q", ErrInvalidDomain, req.Domain)
	}

	var analysis models.Analysis
	if !req.SkipScan {
		analysis.ScannedRecorded = s.opportunisticScan(ctx)
	}

	analysis.Matches = s.matcher.Match(req.Observation, req.Domain)
	selected, ok, err := s.selectMatch(analysis.Matches, req.IssueType)
	if err != nil {
		return models.Analysis{}, err
	}
	if !ok {
		analysis.Message = NoMatchMessage
		analysis.ManualGuidance = append([]string(nil), manualGuidance...)
		s.logger.Debug("no pattern matched observation", slog.Int("length", len(req.Observation)))
		return analysis, nil
	}

	// History informs the predicted cause, not whether the plan may run.
	prediction := s.predictor.Predict(selected, selected.Pattern.ID)
	plan := s.planner.Plan(selected.Pattern, selected.Confidence, s.Policy(), req.Variables)
	analysis.Prediction = &prediction
	analysis.Plan = &plan
	analysis.Message = fmt.Sprintf("%s: %s (confidence %.2f)", selected.Pattern.ID, prediction.PredictedCause, prediction.Confidence)

	s.logger.Info("observation analysed",
		slog.String("issue_type", selected.Pattern.ID),
		slog.Float64("match_confidence", selected.Confidence),
		slog.Float64("prediction_confidence", prediction.Confidence),
		slog.Int("history", prediction.HistoricalCount),
		slog.String("decision", string(plan.Decision)),
	)
	return analysis, nil
}

// Policy returns the automation policy in effect.
func (s *ExpertService) Policy() models.AutomationPolicy {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.policy
}

// SetPolicy replaces the automation policy for subsequent analyses.
func (s *ExpertService) SetPolicy(policy models.AutomationPolicy) {
	s.policyMu.Lock()
	prev := s.policy
	s.policy = policy
	s.policyMu.Unlock()

	if prev != policy {
		s.logger.Info("automation policy updated",
			slog.String("level", string(policy.Level)),
			slog.Float64("confidence_threshold", policy.ConfidenceThreshold),
		)
	}
}

// selectMatch returns the best match, or the match for issueType when the
// caller pinned one. A pinned pattern that did not match is used with zero
// match confidence.
func (s *ExpertService) selectMatch(matches []models.Match, issueType string) (models.Match, bool, error) {
	if issueType == "" {
		if len(matches) == 0 {
			return models.Match{}, false, nil
		}
		return matches[0], true, nil
	}
	for _, m := range matches {
		if m.Pattern.ID == issueType {
			return m, true, nil
		}
	}
	pattern, err := s.catalog.Get(issueType)
	if err != nil {
		return models.Match{}, false, fmt.Errorf("%w: %s", ErrUnknownIssueType, issueType)
	}
	return models.Match{Pattern: pattern}, true, nil
}

func (s *ExpertService) opportunisticScan(ctx context.Context) int {
	if s.scanner == nil || s.scanSources == nil {
		return 0
	}
	sources, err := s.scanSources(ctx)
	if err != nil {
		s.logger.Warn("collect scan sources failed", slog.Any("error", err))
		return 0
	}
	recorded, err := s.scanner.Scan(ctx, sources)
	if err != nil {
		s.logger.Warn("opportunistic scan incomplete", slog.Any("error", err))
	}
	return len(recorded)
}

// Remediate analyses the observation and executes the resulting plan if the
// safety decision (and operator confirmation) allows it.
func (s *ExpertService) Remediate(ctx context.Context, req models.RemediationRequest) (models.RemediationResult, error) {
	if s.executor == nil {
		return models.RemediationResult{}, fmt.Errorf("%w: executor", ErrNotConfigured)
	}
	analysis, err := s.Analyze(ctx, req.AnalysisRequest)
	if err != nil {
		return models.RemediationResult{}, err
	}
	if !analysis.Matched() {
		return models.RemediationResult{Analysis: analysis}, ErrNoMatchingPattern
	}

	occ, err := s.executor.Execute(ctx, *analysis.Plan, actuator.ExecuteOptions{
		Confirmed:      req.Confirmed,
		PredictedCause: analysis.Prediction.PredictedCause,
	})
	if err != nil {
		return models.RemediationResult{Analysis: analysis}, err
	}
	return models.RemediationResult{Analysis: analysis, Occurrence: occ}, nil
}

// RecordOutcome settles the outcome of an occurrence reported by an external
// actuator.
func (s *ExpertService) RecordOutcome(ctx context.Context, issueType, occurrenceID string, outcome models.Outcome, detail string) (models.IssueOccurrence, error) {
	if !outcome.Valid() {
		return models.IssueOccurrence{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	return s.history.SetOutcome(ctx, issueType, occurrenceID, outcome, detail)
}

// History returns retained occurrences of issueType, or of every type newer
// than within when issueType is empty. A zero within returns everything.
func (s *ExpertService) History(issueType string, within time.Duration) []models.IssueOccurrence {
	if issueType != "" {
		return s.history.HistoryFor(issueType)
	}
	if within > 0 {
		return s.history.RecentWithin(within)
	}
	var out []models.IssueOccurrence
	for _, records := range s.history.Snapshot() {
		out = append(out, records...)
	}
	sortOccurrences(out)
	return out
}

// Frequency counts retained occurrences per issue type.
func (s *ExpertService) Frequency() map[string]int {
	return s.history.FrequencyByType()
}

// Trends summarises retained history.
func (s *ExpertService) Trends(issueType string) models.TrendSummary {
	return s.history.Trend(issueType)
}

// LearningReport summarises learned evidence keywords, prediction accuracy
// and trends across issue types.
func (s *ExpertService) LearningReport() models.LearningReport {
	return s.history.LearningReport()
}

// Patterns lists catalog patterns, optionally filtered by domain.
func (s *ExpertService) Patterns(domain models.Domain) ([]models.IssuePattern, error) {
	if domain != "" && !domain.Valid() {
		return nil, fmt.Errorf("%w: domain %q", ErrInvalidDomain, domain)
	}
	return s.catalog.ByDomain(domain), nil
}

// Scan feeds text sources through the learning scanner.
func (s *ExpertService) Scan(ctx context.Context, sources []string) ([]models.IssueOccurrence, error) {
	if s.scanner == nil {
		return nil, fmt.Errorf("%w: scanner", ErrNotConfigured)
	}
	return s.scanner.Scan(ctx, sources)
}

// LatencyP95 returns the current p95 analysis latency.
func (s *ExpertService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func sortOccurrences(occs []models.IssueOccurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		return occs[i].Timestamp.Before(occs[j].Timestamp)
	})
}
