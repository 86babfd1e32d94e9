// Package history keeps a bounded, per-issue-type record of past
// occurrences and their remediation outcomes.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/storage"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

// DefaultCapacity is the number of occurrences retained per issue type.
const DefaultCapacity = 3

var (
	ErrUnknownIssueType   = errors.New("unknown issue type")
	ErrInvalidOccurrence  = errors.New("invalid occurrence")
	ErrOccurrenceNotFound = errors.New("occurrence not found")
	ErrOutcomeAlreadySet  = errors.New("outcome already set")
)

// KnownTypes reports whether an issue type exists in the catalog.
type KnownTypes interface {
	Has(id string) bool
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Capacity int
	Known    KnownTypes
	Backend  storage.Backend
	Logger   *slog.Logger
	Now      func() time.Time
}

// Store is a per-issue-type FIFO of occurrences. All mutation and
// persistence happen under one lock; readers get copies.
type Store struct {
	mu       sync.RWMutex
	capacity int
	known    KnownTypes
	backend  storage.Backend
	logger   *slog.Logger
	now      func() time.Time
	records  map[string][]models.IssueOccurrence
	learning map[string]*learned
}

// NewStore builds an empty store. Call Load to restore persisted state.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Backend == nil {
		cfg.Backend = storage.NoopBackend{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		capacity: cfg.Capacity,
		known:    cfg.Known,
		backend:  cfg.Backend,
		logger:   cfg.Logger,
		now:      cfg.Now,
		records:  make(map[string][]models.IssueOccurrence),
		learning: make(map[string]*learned),
	}
}

// Capacity returns the per-type bound.
func (s *Store) Capacity() int { return s.capacity }

// Record validates occ, fills in its ID, timestamp and default outcome, and
// appends it, evicting the oldest entry of the same type when full.
// A failed snapshot write is logged; the in-memory record stands.
func (s *Store) Record(ctx context.Context, occ models.IssueOccurrence) (models.IssueOccurrence, error) {
	if err := s.validate(occ); err != nil {
		return models.IssueOccurrence{}, err
	}
	if occ.ID == "" {
		occ.ID = uuid.NewString()
	}
	if occ.Timestamp.IsZero() {
		occ.Timestamp = s.now()
	}
	if occ.Outcome == "" {
		occ.Outcome = models.OutcomeUnknown
	}
	occ = cloneOccurrence(occ)

	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.records[occ.IssueType], occ)
	if len(records) > s.capacity {
		records = append([]models.IssueOccurrence(nil), records[len(records)-s.capacity:]...)
	}
	s.records[occ.IssueType] = records
	s.learnEvidenceLocked(occ)
	s.scoreLocked(occ.IssueType, occ.Outcome)
	s.persistLocked(ctx)

	return cloneOccurrence(occ), nil
}

// SetOutcome settles the outcome of a retained occurrence. An outcome can
// change only while it is unknown or not_attempted.
func (s *Store) SetOutcome(ctx context.Context, issueType, id string, outcome models.Outcome, detail string) (models.IssueOccurrence, error) {
	if !outcome.Valid() {
		return models.IssueOccurrence{}, fmt.Errorf("%w: outcome %q", ErrInvalidOccurrence, outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records[issueType]
	for i := range records {
		if records[i].ID != id {
			continue
		}
		if records[i].Outcome.Settled() {
			return models.IssueOccurrence{}, fmt.Errorf("%w: %s is %s", ErrOutcomeAlreadySet, id, records[i].Outcome)
		}
		records[i].Outcome = outcome
		if detail != "" {
			records[i].Detail = detail
		}
		s.scoreLocked(issueType, outcome)
		s.persistLocked(ctx)
		return cloneOccurrence(records[i]), nil
	}
	return models.IssueOccurrence{}, fmt.Errorf("%w: %s/%s", ErrOccurrenceNotFound, issueType, id)
}

// HistoryFor returns the retained occurrences of issueType, most recent last.
func (s *Store) HistoryFor(issueType string) []models.IssueOccurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records[issueType])
}

// RecentWithin returns occurrences of every type newer than d, oldest first.
func (s *Store) RecentWithin(d time.Duration) []models.IssueOccurrence {
	cutoff := s.now().Add(-d)

	s.mu.RLock()
	var out []models.IssueOccurrence
	for _, records := range s.records {
		for _, occ := range records {
			if occ.Timestamp.After(cutoff) {
				out = append(out, cloneOccurrence(occ))
			}
		}
	}
	s.mu.RUnlock()

	sortByTime(out)
	return out
}

// FrequencyByType counts retained occurrences per issue type.
func (s *Store) FrequencyByType() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.records))
	for issueType, records := range s.records {
		out[issueType] = len(records)
	}
	return out
}

// Snapshot copies the whole store.
func (s *Store) Snapshot() map[string][]models.IssueOccurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.IssueOccurrence, len(s.records))
	for issueType, records := range s.records {
		out[issueType] = cloneRecords(records)
	}
	return out
}

// Trend summarises retained history for one issue type, or all types when
// issueType is empty. Direction compares the mean match confidence of the
// newer half against the older half with a 10% dead band.
func (s *Store) Trend(issueType string) models.TrendSummary {
	var all []models.IssueOccurrence
	if issueType != "" {
		all = s.HistoryFor(issueType)
	} else {
		for _, records := range s.Snapshot() {
			all = append(all, records...)
		}
	}

	summary := models.TrendSummary{Direction: models.TrendStable}
	if len(all) == 0 {
		return summary
	}
	sortByTime(all)

	cutoff := s.now().Add(-24 * time.Hour)
	counts := make(map[string]int)
	var total float64
	for _, occ := range all {
		if occ.Timestamp.After(cutoff) {
			summary.Recent24h++
		}
		counts[occ.IssueType]++
		total += occ.MatchedConfidence
	}
	summary.TotalOccurrences = len(all)
	summary.IssueTypes = len(counts)
	summary.AverageConfidence = total / float64(len(all))

	for t, n := range counts {
		if n > summary.MostFrequentCount || (n == summary.MostFrequentCount && t < summary.MostFrequentType) {
			summary.MostFrequentType = t
			summary.MostFrequentCount = n
		}
	}

	if len(all) >= 2 {
		mid := len(all) / 2
		older := meanConfidence(all[:mid])
		newer := meanConfidence(all[mid:])
		switch {
		case newer > older*1.1:
			summary.Direction = models.TrendWorsening
		case newer < older*0.9:
			summary.Direction = models.TrendImproving
		}
	}
	return summary
}

// Load replaces in-memory state with the persisted snapshot. Entries that
// fail validation are skipped with a warning. Stored order is insertion
// order, so only the last Capacity entries per type are kept.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.backend.Load(ctx)
	if errors.Is(err, storage.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	decoded, skipped, err := decodeSnapshot(data, s.validate, s.logger)
	if err != nil {
		return err
	}
	for issueType, records := range decoded {
		if len(records) > s.capacity {
			records = records[len(records)-s.capacity:]
		}
		decoded[issueType] = records
	}

	s.mu.Lock()
	s.records = decoded
	s.rebuildLearningLocked()
	s.mu.Unlock()

	s.logger.Info("issue history loaded", "types", len(decoded), "skipped", skipped)
	return nil
}

// Close releases the persistence backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) validate(occ models.IssueOccurrence) error {
	if occ.IssueType == "" {
		return fmt.Errorf("%w: empty issue type", ErrUnknownIssueType)
	}
	if s.known != nil && !s.known.Has(occ.IssueType) {
		return fmt.Errorf("%w: %s", ErrUnknownIssueType, occ.IssueType)
	}
	if math.IsNaN(occ.MatchedConfidence) || occ.MatchedConfidence < 0 || occ.MatchedConfidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidOccurrence, occ.MatchedConfidence)
	}
	if occ.Outcome != "" && !occ.Outcome.Valid() {
		return fmt.Errorf("%w: outcome %q", ErrInvalidOccurrence, occ.Outcome)
	}
	return nil
}

// persistLocked writes the snapshot. Cancellation of ctx is ignored so the
// backend never lags behind memory.
func (s *Store) persistLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	data, err := encodeSnapshot(s.records)
	if err != nil {
		s.logger.Warn("persist issue history failed", "error", utils.NewAppError("history.save", "encode snapshot", err))
		return
	}
	if err := s.backend.Save(ctx, data); err != nil {
		s.logger.Warn("persist issue history failed", "error", utils.NewAppError("history.save", "write snapshot", err))
	}
}

func meanConfidence(records []models.IssueOccurrence) float64 {
	var sum float64
	for _, occ := range records {
		sum += occ.MatchedConfidence
	}
	return sum / float64(len(records))
}

func sortByTime(records []models.IssueOccurrence) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

func cloneRecords(records []models.IssueOccurrence) []models.IssueOccurrence {
	if len(records) == 0 {
		return nil
	}
	out := make([]models.IssueOccurrence, len(records))
	for i, occ := range records {
		out[i] = cloneOccurrence(occ)
	}
	return out
}

func cloneOccurrence(occ models.IssueOccurrence) models.IssueOccurrence {
	if occ.Evidence != nil {
		occ.Evidence = append([]string(nil), occ.Evidence...)
	}
	if occ.Steps != nil {
		occ.Steps = append([]models.StepOutcome(nil), occ.Steps...)
	}
	return occ
}
