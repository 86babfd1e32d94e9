package engine

import (
	"sort"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

const (
	// DefaultHistoryCapacity mirrors the history store bound and is the
	// denominator of the history term in the confidence blend.
	DefaultHistoryCapacity = 3
	// DefaultHistoryWeight is the share of prediction confidence derived from
	// how often the issue type recurred.
	DefaultHistoryWeight = 0.5
)

// HistoryReader exposes the retained occurrences of an issue type.
type HistoryReader interface {
	HistoryFor(issueType string) []models.IssueOccurrence
}

// PredictorConfig tunes the confidence blend. Capacity must equal the
// history store capacity.
type PredictorConfig struct {
	Capacity      int
	HistoryWeight float64
}

// Predictor combines a current match with recorded history of the same
// issue type.
type Predictor struct {
	history  HistoryReader
	capacity int
	weight   float64
}

// NewPredictor constructs a Predictor. Zero config values select defaults.
func NewPredictor(history HistoryReader, cfg PredictorConfig) *Predictor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultHistoryCapacity
	}
	if cfg.HistoryWeight <= 0 || cfg.HistoryWeight > 1 {
		cfg.HistoryWeight = DefaultHistoryWeight
	}
	return &Predictor{history: history, capacity: cfg.Capacity, weight: cfg.HistoryWeight}
}

// Predict estimates the root cause for issueType given the current match.
//
// With no history the match confidence is returned unchanged. Otherwise the
// confidence is (1-w)*match + w*min(count,capacity)/capacity: recurrence of
// the same signature is taken as evidence the diagnosis is right. This is a
// policy choice, not a calibrated probability.
func (p *Predictor) Predict(current models.Match, issueType string) models.Prediction {
	if issueType == "" {
		issueType = current.Pattern.ID
	}
	var records []models.IssueOccurrence
	if p.history != nil {
		records = p.history.HistoryFor(issueType)
	}

	prediction := models.Prediction{
		IssueType:       issueType,
		HistoricalCount: len(records),
		CommonCauses:    append([]string(nil), current.Pattern.CommonCauses...),
	}

	if len(records) == 0 {
		prediction.PredictedCause = current.Pattern.PrimaryCause()
		prediction.Confidence = current.Confidence
		prediction.Recommendations = templateRecommendations(current.Pattern, nil)
		return prediction
	}

	count := len(records)
	if count > p.capacity {
		count = p.capacity
	}
	historical := float64(count) / float64(p.capacity)
	prediction.Confidence = clampUnit((1-p.weight)*clampUnit(current.Confidence) + p.weight*historical)
	prediction.PredictedCause = dominantCause(records, current.Pattern.PrimaryCause())

	stats := actionStats(records)
	ranked := rankHistoricalActions(stats, current.Pattern)
	prediction.Recommendations = append(ranked, templateRecommendations(current.Pattern, stats)...)
	return prediction
}

type actionStat struct {
	action    string
	attempts  int
	successes int
	firstSeen int
}

func (s actionStat) rate() float64 {
	return float64(s.successes) / float64(s.attempts)
}

// actionStats counts occurrences and successes per ActionTaken.
func actionStats(records []models.IssueOccurrence) map[string]*actionStat {
	stats := make(map[string]*actionStat)
	for i, rec := range records {
		if rec.ActionTaken == "" {
			continue
		}
		st, ok := stats[rec.ActionTaken]
		if !ok {
			st = &actionStat{action: rec.ActionTaken, firstSeen: i}
			stats[rec.ActionTaken] = st
		}
		st.attempts++
		if rec.Outcome == models.OutcomeSuccess {
			st.successes++
		}
	}
	return stats
}

func rankHistoricalActions(stats map[string]*actionStat, pattern models.IssuePattern) []models.Recommendation {
	steps := make(map[string]models.RemediationStep, len(pattern.Remediation))
	for _, step := range pattern.Remediation {
		steps[step.Description] = step
	}

	list := make([]*actionStat, 0, len(stats))
	for _, st := range stats {
		list = append(list, st)
	}
	sort.Slice(list, func(i, j int) bool {
		ri, rj := list[i].rate(), list[j].rate()
		if ri != rj {
			return ri > rj
		}
		if list[i].attempts != list[j].attempts {
			return list[i].attempts > list[j].attempts
		}
		return list[i].firstSeen < list[j].firstSeen
	})

	recs := make([]models.Recommendation, 0, len(list))
	for _, st := range list {
		rate := st.rate()
		rec := models.Recommendation{
			Action:      st.action,
			SuccessRate: &rate,
			Attempts:    st.attempts,
		}
		if step, ok := steps[st.action]; ok {
			rec.Command = step.CommandTemplate
			rec.Risk = step.Risk
		}
		recs = append(recs, rec)
	}
	return recs
}

// templateRecommendations lists catalog steps that have no recorded attempt.
// Steps already covered by a historical action are skipped since that action
// is ranked above them.
func templateRecommendations(pattern models.IssuePattern, stats map[string]*actionStat) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(pattern.Remediation))
	for _, step := range pattern.Remediation {
		if _, seen := stats[step.Description]; seen {
			continue
		}
		recs = append(recs, models.Recommendation{
			Action:  step.Description,
			Command: step.CommandTemplate,
			Risk:    step.Risk,
		})
	}
	return recs
}

// dominantCause returns the most frequently recorded cause; ties go to the
// most recent occurrence.
func dominantCause(records []models.IssueOccurrence, fallback string) string {
	counts := make(map[string]int)
	lastSeen := make(map[string]int)
	for i, rec := range records {
		if rec.PredictedCause == "" {
			continue
		}
		counts[rec.PredictedCause]++
		lastSeen[rec.PredictedCause] = i
	}
	best, bestCount, bestSeen := "", 0, -1
	for cause, n := range counts {
		if n > bestCount || (n == bestCount && lastSeen[cause] > bestSeen) {
			best, bestCount, bestSeen = cause, n, lastSeen[cause]
		}
	}
	if best == "" {
		return fallback
	}
	return best
}
