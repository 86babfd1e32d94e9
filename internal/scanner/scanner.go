// Package scanner feeds matched observations into issue history.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/metrics"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

// DefaultMinConfidence is the match floor below which nothing is recorded.
const DefaultMinConfidence = 0.3

// Matcher scores text against the catalog.
type Matcher interface {
	Match(text string, domain models.Domain) []models.Match
}

// Recorder stores detected occurrences.
type Recorder interface {
	Record(ctx context.Context, occ models.IssueOccurrence) (models.IssueOccurrence, error)
}

// Config tunes a Scanner.
type Config struct {
	MinConfidence float64
	Domain        models.Domain
	Logger        *slog.Logger
}

// Scanner turns log text into not_attempted occurrences.
type Scanner struct {
	matcher  Matcher
	recorder Recorder
	floor    float64
	domain   models.Domain
	logger   *slog.Logger
}

// New constructs a Scanner. A zero MinConfidence selects the default floor.
func New(matcher Matcher, recorder Recorder, cfg Config) *Scanner {
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scanner{
		matcher:  matcher,
		recorder: recorder,
		floor:    cfg.MinConfidence,
		domain:   cfg.Domain,
		logger:   cfg.Logger,
	}
}

// Scan matches every source and records each match at or above the floor.
// Record failures are collected and returned together once all sources are
// processed; cancellation stops between sources.
func (s *Scanner) Scan(ctx context.Context, sources []string) ([]models.IssueOccurrence, error) {
	start := time.Now()
	defer func() { metrics.ObserveScan(time.Since(start)) }()

	var (
		recorded []models.IssueOccurrence
		errs     []error
	)
	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		for _, match := range s.matcher.Match(source, s.domain) {
			if match.Confidence < s.floor {
				continue
			}
			occ, err := s.recorder.Record(ctx, models.IssueOccurrence{
				IssueType:         match.Pattern.ID,
				MatchedConfidence: match.Confidence,
				PredictedCause:    match.Pattern.PrimaryCause(),
				Outcome:           models.OutcomeNotAttempted,
				Evidence:          match.Evidence,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("source %d: record %s: %w", i, match.Pattern.ID, err))
				continue
			}
			recorded = append(recorded, occ)
		}
	}

	metrics.ObserveOccurrences(metrics.SourceScan, len(recorded))
	if len(recorded) > 0 {
		s.logger.Info("learning scan recorded occurrences", "sources", len(sources), "recorded", len(recorded))
	}
	return recorded, errors.Join(errs...)
}

// Collector returns the next batch of text sources to scan.
type Collector func(ctx context.Context) ([]string, error)

// Run scans on every tick until ctx is done. Collector and scan errors are
// logged and the loop keeps going.
func (s *Scanner) Run(ctx context.Context, interval time.Duration, collect Collector) error {
	if interval <= 0 {
		return errors.New("scan interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sources, err := collect(ctx)
			if err != nil {
				s.logger.Warn("collect scan sources failed", "error", err)
				continue
			}
			if _, err := s.Scan(ctx, sources); err != nil && ctx.Err() == nil {
				s.logger.Warn("learning scan incomplete", "error", err)
			}
		}
	}
}
