package history

import (
	"regexp"
	"sort"
	"strings"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

// MaxLearnedKeywords bounds the keywords reported per issue type.
const MaxLearnedKeywords = 10

// minKeywordLength drops short words such as "pod" or "the" from learning.
const minKeywordLength = 4

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// learned is the cumulative learning state of one issue type. Unlike the
// occurrence FIFO it is not bounded; Load rebuilds it from retained history.
type learned struct {
	keywords    map[string]int
	predictions int
	accurate    int
}

func (s *Store) learnedFor(issueType string) *learned {
	l, ok := s.learning[issueType]
	if !ok {
		l = &learned{keywords: make(map[string]int)}
		s.learning[issueType] = l
	}
	return l
}

// learnEvidenceLocked counts the words of occ's evidence.
func (s *Store) learnEvidenceLocked(occ models.IssueOccurrence) {
	if len(occ.Evidence) == 0 {
		return
	}
	l := s.learnedFor(occ.IssueType)
	for _, fragment := range occ.Evidence {
		for _, word := range wordPattern.FindAllString(strings.ToLower(fragment), -1) {
			if len(word) >= minKeywordLength {
				l.keywords[word]++
			}
		}
	}
}

// scoreLocked counts a settled outcome towards prediction accuracy.
func (s *Store) scoreLocked(issueType string, outcome models.Outcome) {
	if !outcome.Settled() {
		return
	}
	l := s.learnedFor(issueType)
	l.predictions++
	if outcome == models.OutcomeSuccess {
		l.accurate++
	}
}

func (s *Store) rebuildLearningLocked() {
	s.learning = make(map[string]*learned, len(s.records))
	for _, records := range s.records {
		for _, occ := range records {
			s.learnEvidenceLocked(occ)
			s.scoreLocked(occ.IssueType, occ.Outcome)
		}
	}
}

// Learning summarises what has been learned about issueType.
func (s *Store) Learning(issueType string) models.LearningSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked(issueType)
}

// LearningReport summarises learning state and trends for every issue type
// that has history or learned state, ordered by issue type.
func (s *Store) LearningReport() models.LearningReport {
	report := models.LearningReport{Trend: s.Trend(""), Capacity: s.capacity}

	s.mu.RLock()
	types := make(map[string]struct{}, len(s.records)+len(s.learning))
	for issueType, records := range s.records {
		if len(records) > 0 {
			types[issueType] = struct{}{}
		}
	}
	for issueType, l := range s.learning {
		types[issueType] = struct{}{}
		if len(l.keywords) > 0 {
			report.PatternsLearned++
		}
	}
	for issueType := range types {
		report.Types = append(report.Types, s.summaryLocked(issueType))
	}
	s.mu.RUnlock()

	sort.Slice(report.Types, func(i, j int) bool {
		return report.Types[i].IssueType < report.Types[j].IssueType
	})
	return report
}

func (s *Store) summaryLocked(issueType string) models.LearningSummary {
	summary := models.LearningSummary{IssueType: issueType}
	if records := s.records[issueType]; len(records) > 0 {
		summary.Occurrences = len(records)
		summary.AverageConfidence = meanConfidence(records)
	}

	l, ok := s.learning[issueType]
	if !ok {
		return summary
	}
	summary.Predictions = l.predictions
	summary.Accurate = l.accurate
	if l.predictions > 0 {
		summary.AccuracyRate = float64(l.accurate) / float64(l.predictions)
	}
	for word, n := range l.keywords {
		summary.Keywords = append(summary.Keywords, models.KeywordCount{Keyword: word, Count: n})
	}
	sort.Slice(summary.Keywords, func(i, j int) bool {
		a, b := summary.Keywords[i], summary.Keywords[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Keyword < b.Keyword
	})
	if len(summary.Keywords) > MaxLearnedKeywords {
		summary.Keywords = summary.Keywords[:MaxLearnedKeywords]
	}
	return summary
}
