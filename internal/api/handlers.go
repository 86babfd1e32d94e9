package api

import (
	"fmt"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/grpc/expertv1"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

// FromProtoAnalyzeRequest maps the gRPC request into a domain AnalysisRequest.
func FromProtoAnalyzeRequest(req *expertv1.AnalyzeRequest) (models.AnalysisRequest, error) {
	if req == nil {
		return models.AnalysisRequest{}, fmt.Errorf("request is nil")
	}
	if req.Observation == "" {
		return models.AnalysisRequest{}, fmt.Errorf("observation is required")
	}
	domain := models.Domain(req.Domain)
	if domain != "" && !domain.Valid() {
		return models.AnalysisRequest{}, fmt.Errorf("unknown domain %q", req.Domain)
	}

	vars := make(map[string]string, len(req.Variables))
	for k, v := range req.Variables {
		vars[k] = v
	}
	return models.AnalysisRequest{
		Observation: req.Observation,
		Domain:      domain,
		IssueType:   req.IssueType,
		Variables:   vars,
		SkipScan:    req.SkipScan,
	}, nil
}

// FromProtoRemediateRequest maps a remediation request.
func FromProtoRemediateRequest(req *expertv1.RemediateRequest) (models.RemediationRequest, error) {
	if req == nil {
		return models.RemediationRequest{}, fmt.Errorf("request is nil")
	}
	analysis, err := FromProtoAnalyzeRequest(req.Analyze)
	if err != nil {
		return models.RemediationRequest{}, err
	}
	return models.RemediationRequest{AnalysisRequest: analysis, Confirmed: req.Confirmed}, nil
}

// FromProtoOutcome validates an outcome label.
func FromProtoOutcome(value string) (models.Outcome, error) {
	outcome := models.Outcome(value)
	if !outcome.Valid() {
		return "", fmt.Errorf("unknown outcome %q", value)
	}
	return outcome, nil
}

// FromProtoWithin converts a seconds window into a duration.
func FromProtoWithin(seconds int64) (time.Duration, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("within_seconds must not be negative")
	}
	return time.Duration(seconds) * time.Second, nil
}

// ToProtoAnalyzeResponse converts a domain analysis.
func ToProtoAnalyzeResponse(a models.Analysis) *expertv1.AnalyzeResponse {
	resp := &expertv1.AnalyzeResponse{
		Matched:         a.Matched(),
		Message:         a.Message,
		ManualGuidance:  append([]string(nil), a.ManualGuidance...),
		ScannedRecorded: int32(a.ScannedRecorded),
	}
	for _, m := range a.Matches {
		resp.Matches = append(resp.Matches, &expertv1.Match{
			PatternID:  m.Pattern.ID,
			Name:       m.Pattern.Name,
			Domain:     string(m.Pattern.Domain),
			Severity:   string(m.Pattern.Severity),
			Confidence: m.Confidence,
			Evidence:   append([]string(nil), m.Evidence...),
		})
	}
	if a.Prediction != nil {
		resp.Prediction = toProtoPrediction(*a.Prediction)
	}
	if a.Plan != nil {
		resp.Plan = ToProtoPlan(*a.Plan)
	}
	return resp
}

func toProtoPrediction(p models.Prediction) *expertv1.Prediction {
	out := &expertv1.Prediction{
		IssueType:       p.IssueType,
		PredictedCause:  p.PredictedCause,
		Confidence:      p.Confidence,
		HistoricalCount: int32(p.HistoricalCount),
		CommonCauses:    append([]string(nil), p.CommonCauses...),
	}
	for _, r := range p.Recommendations {
		rec := &expertv1.Recommendation{
			Action:   r.Action,
			Command:  r.Command,
			Risk:     string(r.Risk),
			Attempts: int32(r.Attempts),
		}
		if r.SuccessRate != nil {
			rate := *r.SuccessRate
			rec.SuccessRate = &rate
		}
		out.Recommendations = append(out.Recommendations, rec)
	}
	return out
}

// ToProtoPlan converts a remediation plan.
func ToProtoPlan(p models.RemediationPlan) *expertv1.Plan {
	out := &expertv1.Plan{
		PatternID:  p.Pattern.ID,
		Confidence: p.Confidence,
		Decision:   string(p.Decision),
		Reason:     p.Reason,
	}
	for _, s := range p.Steps {
		out.Steps = append(out.Steps, &expertv1.PlanStep{
			Description:  s.Description,
			Command:      s.Command,
			Verification: s.Verification,
			Risk:         string(s.Risk),
			Unresolved:   append([]string(nil), s.Unresolved...),
		})
	}
	return out
}

// ToProtoOccurrence converts a history record.
func ToProtoOccurrence(o models.IssueOccurrence) *expertv1.Occurrence {
	out := &expertv1.Occurrence{
		ID:                o.ID,
		IssueType:         o.IssueType,
		Timestamp:         utils.FormatTimestamp(o.Timestamp),
		MatchedConfidence: o.MatchedConfidence,
		PredictedCause:    o.PredictedCause,
		ActionTaken:       o.ActionTaken,
		Outcome:           string(o.Outcome),
		Detail:            o.Detail,
		Evidence:          append([]string(nil), o.Evidence...),
	}
	for _, s := range o.Steps {
		out.Steps = append(out.Steps, &expertv1.StepOutcome{
			Description: s.Description,
			Command:     s.Command,
			Outcome:     string(s.Outcome),
			Detail:      s.Detail,
		})
	}
	return out
}

// ToProtoOccurrences converts a list of history records.
func ToProtoOccurrences(occs []models.IssueOccurrence) []*expertv1.Occurrence {
	out := make([]*expertv1.Occurrence, 0, len(occs))
	for _, o := range occs {
		out = append(out, ToProtoOccurrence(o))
	}
	return out
}

// ToProtoFrequency converts per-type counts.
func ToProtoFrequency(freq map[string]int) map[string]int32 {
	out := make(map[string]int32, len(freq))
	for k, v := range freq {
		out[k] = int32(v)
	}
	return out
}

// ToProtoPatterns converts catalog patterns with their remediation templates.
func ToProtoPatterns(patterns []models.IssuePattern) *expertv1.ListPatternsResponse {
	resp := &expertv1.ListPatternsResponse{Patterns: make([]*expertv1.Pattern, 0, len(patterns))}
	for _, p := range patterns {
		pattern := &expertv1.Pattern{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			Domain:       string(p.Domain),
			Severity:     string(p.Severity),
			CommonCauses: append([]string(nil), p.CommonCauses...),
		}
		for _, step := range p.Remediation {
			pattern.Steps = append(pattern.Steps, &expertv1.PlanStep{
				Description:  step.Description,
				Command:      step.CommandTemplate,
				Verification: step.Verification,
				Risk:         string(step.Risk),
			})
		}
		resp.Patterns = append(resp.Patterns, pattern)
	}
	return resp
}

// ToProtoTrend converts a trend summary.
func ToProtoTrend(t models.TrendSummary) *expertv1.TrendSummary {
	return &expertv1.TrendSummary{
		TotalOccurrences:  int32(t.TotalOccurrences),
		Recent24H:         int32(t.Recent24h),
		IssueTypes:        int32(t.IssueTypes),
		AverageConfidence: t.AverageConfidence,
		MostFrequentType:  t.MostFrequentType,
		MostFrequentCount: int32(t.MostFrequentCount),
		Direction:         string(t.Direction),
	}
}

// ToProtoLearningReport converts a learning report.
func ToProtoLearningReport(r models.LearningReport) *expertv1.GetLearningReportResponse {
	out := &expertv1.GetLearningReportResponse{
		Trend:           ToProtoTrend(r.Trend),
		PatternsLearned: int32(r.PatternsLearned),
		Capacity:        int32(r.Capacity),
	}
	for _, t := range r.Types {
		summary := &expertv1.LearningSummary{
			IssueType:         t.IssueType,
			Occurrences:       int32(t.Occurrences),
			AverageConfidence: t.AverageConfidence,
			Predictions:       int32(t.Predictions),
			Accurate:          int32(t.Accurate),
			AccuracyRate:      t.AccuracyRate,
		}
		for _, k := range t.Keywords {
			summary.Keywords = append(summary.Keywords, &expertv1.KeywordCount{Keyword: k.Keyword, Count: int32(k.Count)})
		}
		out.Types = append(out.Types, summary)
	}
	return out
}
