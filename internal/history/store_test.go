package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/storage"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

type knownSet map[string]bool

func (k knownSet) Has(id string) bool { return k[id] }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, backend storage.Backend) (*Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(StoreConfig{
		Known:   knownSet{"disk_full": true, "k8s_pod_crashloop": true, "os_high_load": true},
		Backend: backend,
		Logger:  discardLogger(),
		Now:     c.Now,
	})
	return s, c
}

func record(t *testing.T, s *Store, issueType string, confidence float64) models.IssueOccurrence {
	t.Helper()
	occ, err := s.Record(context.Background(), models.IssueOccurrence{
		IssueType:         issueType,
		MatchedConfidence: confidence,
		PredictedCause:    "cause",
	})
	if err != nil {
		t.Fatalf("record %s: %v", issueType, err)
	}
	return occ
}

func TestRecordEvictsOldestBeyondCapacity(t *testing.T) {
	s, c := newTestStore(t, nil)

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, record(t, s, "disk_full", 0.8).ID)
		c.Advance(time.Minute)
	}

	got := s.HistoryFor("disk_full")
	if len(got) != 3 {
		t.Fatalf("expected 3 retained records, got %d", len(got))
	}
	for _, occ := range got {
		if occ.ID == ids[0] {
			t.Fatalf("first occurrence should have been evicted")
		}
	}
	for i, occ := range got {
		if occ.ID != ids[i+1] {
			t.Fatalf("expected order %v, got id %s at %d", ids[1:], occ.ID, i)
		}
	}
}

func TestRecordFillsDefaults(t *testing.T) {
	s, c := newTestStore(t, nil)
	occ := record(t, s, "disk_full", 0.5)

	if occ.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !occ.Timestamp.Equal(c.Now()) {
		t.Fatalf("expected timestamp %v, got %v", c.Now(), occ.Timestamp)
	}
	if occ.Outcome != models.OutcomeUnknown {
		t.Fatalf("expected unknown outcome, got %s", occ.Outcome)
	}
}

func TestRecordRejectsInvalidOccurrences(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		occ  models.IssueOccurrence
		want error
	}{
		{"empty type", models.IssueOccurrence{MatchedConfidence: 0.5}, ErrUnknownIssueType},
		{"unknown type", models.IssueOccurrence{IssueType: "nope", MatchedConfidence: 0.5}, ErrUnknownIssueType},
		{"confidence above one", models.IssueOccurrence{IssueType: "disk_full", MatchedConfidence: 1.2}, ErrInvalidOccurrence},
		{"negative confidence", models.IssueOccurrence{IssueType: "disk_full", MatchedConfidence: -0.1}, ErrInvalidOccurrence},
		{"bad outcome", models.IssueOccurrence{IssueType: "disk_full", Outcome: "meh"}, ErrInvalidOccurrence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Record(ctx, tc.occ); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := len(s.Snapshot()); n != 0 {
		t.Fatalf("rejected records must not be stored, have %d types", n)
	}
}

func TestSetOutcomeIsOneShot(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	occ := record(t, s, "disk_full", 0.7)

	updated, err := s.SetOutcome(ctx, "disk_full", occ.ID, models.OutcomeSuccess, "freed 2GiB")
	if err != nil {
		t.Fatalf("set outcome: %v", err)
	}
	if updated.Outcome != models.OutcomeSuccess || updated.Detail != "freed 2GiB" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := s.SetOutcome(ctx, "disk_full", occ.ID, models.OutcomeFailure, ""); !errors.Is(err, ErrOutcomeAlreadySet) {
		t.Fatalf("expected ErrOutcomeAlreadySet, got %v", err)
	}
	if _, err := s.SetOutcome(ctx, "disk_full", "missing", models.OutcomeFailure, ""); !errors.Is(err, ErrOccurrenceNotFound) {
		t.Fatalf("expected ErrOccurrenceNotFound, got %v", err)
	}
	if got := s.HistoryFor("disk_full")[0].Outcome; got != models.OutcomeSuccess {
		t.Fatalf("stored outcome changed to %s", got)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s, _ := newTestStore(t, nil)
	_, err := s.Record(context.Background(), models.IssueOccurrence{
		IssueType:         "disk_full",
		MatchedConfidence: 0.5,
		Evidence:          []string{"No space left on device"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got := s.HistoryFor("disk_full")
	got[0].Evidence[0] = "mutated"
	got[0].PredictedCause = "mutated"

	again := s.HistoryFor("disk_full")
	if again[0].Evidence[0] != "No space left on device" || again[0].PredictedCause == "mutated" {
		t.Fatalf("store state leaked through a read: %+v", again[0])
	}
}

func TestRecentWithinAndFrequency(t *testing.T) {
	s, c := newTestStore(t, nil)
	record(t, s, "disk_full", 0.5)
	c.Advance(2 * time.Hour)
	record(t, s, "k8s_pod_crashloop", 0.9)
	c.Advance(time.Minute)
	record(t, s, "k8s_pod_crashloop", 0.9)

	recent := s.RecentWithin(time.Hour)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent occurrences, got %d", len(recent))
	}
	if !recent[0].Timestamp.Before(recent[1].Timestamp) {
		t.Fatalf("expected oldest first")
	}

	freq := s.FrequencyByType()
	if freq["disk_full"] != 1 || freq["k8s_pod_crashloop"] != 2 || len(freq) != 2 {
		t.Fatalf("unexpected frequencies %v", freq)
	}
}

func TestTrend(t *testing.T) {
	s, c := newTestStore(t, nil)
	if got := s.Trend(""); got.TotalOccurrences != 0 || got.Direction != models.TrendStable {
		t.Fatalf("unexpected empty trend %+v", got)
	}

	record(t, s, "os_high_load", 0.4)
	c.Advance(25 * time.Hour)
	record(t, s, "os_high_load", 0.5)
	c.Advance(time.Hour)
	record(t, s, "disk_full", 0.9)

	got := s.Trend("")
	if got.TotalOccurrences != 3 || got.IssueTypes != 2 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if got.Recent24h != 2 {
		t.Fatalf("expected 2 occurrences in the last 24h, got %d", got.Recent24h)
	}
	if got.MostFrequentType != "os_high_load" || got.MostFrequentCount != 2 {
		t.Fatalf("unexpected most frequent %s/%d", got.MostFrequentType, got.MostFrequentCount)
	}
	if got.Direction != models.TrendWorsening {
		t.Fatalf("expected worsening, got %s", got.Direction)
	}

	single := s.Trend("disk_full")
	if single.TotalOccurrences != 1 || single.Direction != models.TrendStable {
		t.Fatalf("unexpected single-type trend %+v", single)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	backend, err := storage.NewFileBackend(path)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, c := newTestStore(t, backend)
	ctx := context.Background()

	first := record(t, s, "disk_full", 0.61)
	c.Advance(1500 * time.Microsecond)
	_, err = s.Record(ctx, models.IssueOccurrence{
		IssueType:         "k8s_pod_crashloop",
		MatchedConfidence: 1,
		PredictedCause:    "application error",
		ActionTaken:       "Inspect logs && Restart deployment",
		Outcome:           models.OutcomeFailure,
		Detail:            "exit status 1",
		Evidence:          []string{"CrashLoopBackOff"},
		Steps: []models.StepOutcome{
			{Description: "Inspect logs", Command: "kubectl logs web-1", Outcome: models.OutcomeSuccess},
			{Description: "Restart deployment", Command: "kubectl rollout restart deployment/web", Outcome: models.OutcomeFailure, Detail: "exit status 1"},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.SetOutcome(ctx, "disk_full", first.ID, models.OutcomeSuccess, ""); err != nil {
		t.Fatalf("set outcome: %v", err)
	}

	restored, _ := newTestStore(t, backend)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	want := s.Snapshot()
	got := restored.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(got))
	}
	for issueType, records := range want {
		if len(got[issueType]) != len(records) {
			t.Fatalf("%s: expected %d records, got %d", issueType, len(records), len(got[issueType]))
		}
		for i, w := range records {
			g := got[issueType][i]
			if !g.Timestamp.Equal(w.Timestamp) {
				t.Fatalf("%s[%d]: timestamp %v != %v", issueType, i, g.Timestamp, w.Timestamp)
			}
			g.Timestamp, w.Timestamp = time.Time{}, time.Time{}
			if fmt.Sprintf("%+v", g) != fmt.Sprintf("%+v", w) {
				t.Fatalf("%s[%d]: round trip mismatch\nwant %+v\ngot  %+v", issueType, i, w, g)
			}
		}
	}
}

func TestLoadSkipsCorruptEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	doc := `{
  "disk_full": [
    {"id": "a", "timestamp": "2024-05-01T10:00:00Z", "matched_confidence": 0.5, "outcome": "success"},
    {"id": "b", "timestamp": "not-a-time", "matched_confidence": 0.5},
    {"id": "c", "timestamp": "2024-05-01T11:00:00Z", "matched_confidence": 7},
    "garbage",
    {"timestamp": "2024-05-01T12:00:00Z", "matched_confidence": 0.9, "outcome": "failure"}
  ],
  "retired_type": [
    {"id": "d", "timestamp": "2024-05-01T10:00:00Z", "matched_confidence": 0.5}
  ]
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	backend, err := storage.NewFileBackend(path)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, _ := newTestStore(t, backend)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	got := s.HistoryFor("disk_full")
	if len(got) != 2 {
		t.Fatalf("expected 2 valid entries, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID == "" || got[1].Outcome != models.OutcomeFailure {
		t.Fatalf("unexpected entries %+v", got)
	}
	if len(s.HistoryFor("retired_type")) != 0 {
		t.Fatalf("entries for types missing from the catalog should be skipped")
	}
}

func TestLoadKeepsLastCapacityInStoredOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	doc := `{"disk_full": [
    {"id": "4", "timestamp": "2024-05-01T04:00:00Z", "matched_confidence": 0.5},
    {"id": "1", "timestamp": "2024-05-01T01:00:00Z", "matched_confidence": 0.5},
    {"id": "3", "timestamp": "2024-05-01T03:00:00Z", "matched_confidence": 0.5},
    {"id": "2", "timestamp": "2024-05-01T02:00:00Z", "matched_confidence": 0.5}
  ]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	backend, _ := storage.NewFileBackend(path)
	s, _ := newTestStore(t, backend)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	got := s.HistoryFor("disk_full")
	if len(got) != 3 || got[0].ID != "1" || got[1].ID != "3" || got[2].ID != "2" {
		t.Fatalf("expected ids 1,3,2 got %+v", got)
	}
}

func TestRoundTripKeepsInsertionOrder(t *testing.T) {
	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, c := newTestStore(t, backend)
	ctx := context.Background()

	base := c.Now()
	a, err := s.Record(ctx, models.IssueOccurrence{IssueType: "disk_full", MatchedConfidence: 0.5, Timestamp: base.Add(2 * time.Minute)})
	if err != nil {
		t.Fatalf("record a: %v", err)
	}
	b, err := s.Record(ctx, models.IssueOccurrence{IssueType: "disk_full", MatchedConfidence: 0.5, Timestamp: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("record b: %v", err)
	}

	restored, _ := newTestStore(t, backend)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := restored.HistoryFor("disk_full")
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("expected insertion order %s,%s got %+v", a.ID, b.ID, got)
	}
}

func TestLoadSkipsTypeThatIsNotAList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	doc := `{
  "disk_full": {"not": "a list"},
  "os_high_load": "garbage",
  "k8s_pod_crashloop": [
    {"id": "x", "timestamp": "2024-05-01T10:00:00Z", "matched_confidence": 1, "outcome": "success"}
  ]
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	backend, _ := storage.NewFileBackend(path)
	s, _ := newTestStore(t, backend)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("a malformed type should not fail the load: %v", err)
	}

	got := s.HistoryFor("k8s_pod_crashloop")
	if len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("expected the valid crashloop entry, got %+v", got)
	}
	if len(s.HistoryFor("disk_full")) != 0 || len(s.HistoryFor("os_high_load")) != 0 {
		t.Fatalf("malformed types should be empty")
	}
}

func TestPersistIgnoresCallerCancellation(t *testing.T) {
	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, _ := newTestStore(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	occ, err := s.Record(ctx, models.IssueOccurrence{IssueType: "disk_full", MatchedConfidence: 0.7})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.SetOutcome(ctx, "disk_full", occ.ID, models.OutcomeSuccess, "freed space"); err != nil {
		t.Fatalf("set outcome: %v", err)
	}

	restored, _ := newTestStore(t, backend)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := restored.HistoryFor("disk_full")
	if len(got) != 1 || got[0].Outcome != models.OutcomeSuccess || got[0].Detail != "freed space" {
		t.Fatalf("expected persisted settled occurrence, got %+v", got)
	}
}

func TestLearningCountsEvidenceAndAccuracy(t *testing.T) {
	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, _ := newTestStore(t, backend)
	ctx := context.Background()

	first, err := s.Record(ctx, models.IssueOccurrence{
		IssueType:         "disk_full",
		MatchedConfidence: 0.8,
		Evidence:          []string{"No space left on device", "disk quota exceeded"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.Record(ctx, models.IssueOccurrence{
		IssueType:         "disk_full",
		MatchedConfidence: 0.6,
		Outcome:           models.OutcomeFailure,
		Evidence:          []string{"no SPACE left"},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.SetOutcome(ctx, "disk_full", first.ID, models.OutcomeSuccess, ""); err != nil {
		t.Fatalf("set outcome: %v", err)
	}

	got := s.Learning("disk_full")
	if got.Occurrences != 2 || got.Predictions != 2 || got.Accurate != 1 || got.AccuracyRate != 0.5 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if len(got.Keywords) < 2 || got.Keywords[0] != (models.KeywordCount{Keyword: "left", Count: 2}) ||
		got.Keywords[1] != (models.KeywordCount{Keyword: "space", Count: 2}) {
		t.Fatalf("unexpected keywords %+v", got.Keywords)
	}
	for _, k := range got.Keywords {
		if len(k.Keyword) < minKeywordLength {
			t.Fatalf("short word %q should not be learned", k.Keyword)
		}
	}

	report := s.LearningReport()
	if len(report.Types) != 1 || report.PatternsLearned != 1 || report.Capacity != 3 || report.Trend.TotalOccurrences != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	restored, _ := newTestStore(t, backend)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	again := restored.Learning("disk_full")
	if again.Predictions != 2 || again.Accurate != 1 || len(again.Keywords) != len(got.Keywords) {
		t.Fatalf("learning should be rebuilt from retained history, got %+v", again)
	}
}

func TestLoadRejectsNonMappingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte(`[1,2,3]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	backend, _ := storage.NewFileBackend(path)
	s, _ := newTestStore(t, backend)
	err := s.Load(context.Background())
	if !utils.IsKind(err, utils.KindCorrupt) {
		t.Fatalf("expected corrupt-snapshot error, got %v", err)
	}
}

func TestConcurrentRecordAndRead(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := s.Record(ctx, models.IssueOccurrence{IssueType: "disk_full", MatchedConfidence: 0.5}); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if n := len(s.HistoryFor("disk_full")); n > 3 {
					t.Errorf("observed %d records", n)
					return
				}
				_ = s.Trend("")
			}
		}()
	}
	wg.Wait()

	if n := len(s.HistoryFor("disk_full")); n != 3 {
		t.Fatalf("expected 3 records after concurrent writes, got %d", n)
	}
}
