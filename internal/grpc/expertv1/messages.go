// Package expertv1 defines the expert.v1.ExpertEngine gRPC service. Messages
// are plain structs carried by the JSON codec registered in codec.go.
package expertv1

// AnalyzeRequest asks for a diagnosis of one observation.
type AnalyzeRequest struct {
	Observation string            `json:"observation"`
	Domain      string            `json:"domain,omitempty"`
	IssueType   string            `json:"issue_type,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	SkipScan    bool              `json:"skip_scan,omitempty"`
}

type Match struct {
	PatternID  string   `json:"pattern_id"`
	Name       string   `json:"name,omitempty"`
	Domain     string   `json:"domain"`
	Severity   string   `json:"severity"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Recommendation carries a nil SuccessRate when the action was never tried.
type Recommendation struct {
	Action      string   `json:"action"`
	Command     string   `json:"command,omitempty"`
	Risk        string   `json:"risk,omitempty"`
	SuccessRate *float64 `json:"success_rate"`
	Attempts    int32    `json:"attempts"`
}

type Prediction struct {
	IssueType       string            `json:"issue_type"`
	PredictedCause  string            `json:"predicted_cause"`
	Confidence      float64           `json:"confidence"`
	HistoricalCount int32             `json:"historical_count"`
	Recommendations []*Recommendation `json:"recommendations,omitempty"`
	CommonCauses    []string          `json:"common_causes,omitempty"`
}

type PlanStep struct {
	Description  string   `json:"description"`
	Command      string   `json:"command,omitempty"`
	Verification string   `json:"verification,omitempty"`
	Risk         string   `json:"risk"`
	Unresolved   []string `json:"unresolved,omitempty"`
}

type Plan struct {
	PatternID  string      `json:"pattern_id"`
	Confidence float64     `json:"confidence"`
	Decision   string      `json:"decision"`
	Reason     string      `json:"reason,omitempty"`
	Steps      []*PlanStep `json:"steps,omitempty"`
}

type AnalyzeResponse struct {
	Matched         bool        `json:"matched"`
	Message         string      `json:"message"`
	Matches         []*Match    `json:"matches,omitempty"`
	Prediction      *Prediction `json:"prediction,omitempty"`
	Plan            *Plan       `json:"plan,omitempty"`
	ManualGuidance  []string    `json:"manual_guidance,omitempty"`
	ScannedRecorded int32       `json:"scanned_recorded,omitempty"`
}

type RemediateRequest struct {
	Analyze   *AnalyzeRequest `json:"analyze"`
	Confirmed bool            `json:"confirmed,omitempty"`
}

type StepOutcome struct {
	Description string `json:"description"`
	Command     string `json:"command,omitempty"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
}

// Occurrence timestamps are RFC3339 with nanoseconds.
type Occurrence struct {
	ID                string         `json:"id"`
	IssueType         string         `json:"issue_type"`
	Timestamp         string         `json:"timestamp"`
	MatchedConfidence float64        `json:"matched_confidence"`
	PredictedCause    string         `json:"predicted_cause,omitempty"`
	ActionTaken       string         `json:"action_taken,omitempty"`
	Outcome           string         `json:"outcome"`
	Detail            string         `json:"detail,omitempty"`
	Evidence          []string       `json:"evidence,omitempty"`
	Steps             []*StepOutcome `json:"steps,omitempty"`
}

type RemediateResponse struct {
	Analysis   *AnalyzeResponse `json:"analysis"`
	Occurrence *Occurrence      `json:"occurrence,omitempty"`
}

type RecordOutcomeRequest struct {
	IssueType    string `json:"issue_type"`
	OccurrenceID string `json:"occurrence_id"`
	Outcome      string `json:"outcome"`
	Detail       string `json:"detail,omitempty"`
}

type RecordOutcomeResponse struct {
	Occurrence *Occurrence `json:"occurrence"`
}

// GetHistoryRequest selects one issue type, or every type newer than
// WithinSeconds when IssueType is empty.
type GetHistoryRequest struct {
	IssueType     string `json:"issue_type,omitempty"`
	WithinSeconds int64  `json:"within_seconds,omitempty"`
}

type GetHistoryResponse struct {
	Occurrences []*Occurrence    `json:"occurrences,omitempty"`
	Frequency   map[string]int32 `json:"frequency,omitempty"`
}

type ListPatternsRequest struct {
	Domain string `json:"domain,omitempty"`
}

type Pattern struct {
	ID           string      `json:"id"`
	Name         string      `json:"name,omitempty"`
	Description  string      `json:"description,omitempty"`
	Domain       string      `json:"domain"`
	Severity     string      `json:"severity"`
	CommonCauses []string    `json:"common_causes,omitempty"`
	Steps        []*PlanStep `json:"steps,omitempty"`
}

type ListPatternsResponse struct {
	Patterns []*Pattern `json:"patterns"`
}

type ScanRequest struct {
	Sources []string `json:"sources"`
}

type ScanResponse struct {
	Occurrences []*Occurrence `json:"occurrences,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
}

type GetTrendsRequest struct {
	IssueType string `json:"issue_type,omitempty"`
}

type TrendSummary struct {
	TotalOccurrences  int32   `json:"total_occurrences"`
	Recent24H         int32   `json:"recent_24h"`
	IssueTypes        int32   `json:"issue_types"`
	AverageConfidence float64 `json:"average_confidence"`
	MostFrequentType  string  `json:"most_frequent_type,omitempty"`
	MostFrequentCount int32   `json:"most_frequent_count,omitempty"`
	Direction         string  `json:"direction"`
}

type GetTrendsResponse struct {
	Trend *TrendSummary `json:"trend"`
}

type GetLearningReportRequest struct{}

type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int32  `json:"count"`
}

type LearningSummary struct {
	IssueType         string          `json:"issue_type"`
	Occurrences       int32           `json:"occurrences"`
	AverageConfidence float64         `json:"average_confidence"`
	Keywords          []*KeywordCount `json:"keywords,omitempty"`
	Predictions       int32           `json:"predictions"`
	Accurate          int32           `json:"accurate"`
	AccuracyRate      float64         `json:"accuracy_rate"`
}

type GetLearningReportResponse struct {
	Trend           *TrendSummary      `json:"trend"`
	Types           []*LearningSummary `json:"types,omitempty"`
	PatternsLearned int32              `json:"patterns_learned"`
	Capacity        int32              `json:"capacity"`
}
