package models

// AnalysisRequest asks the engine to diagnose one observation.
type AnalysisRequest struct {
	Observation string
	Domain      Domain
	// IssueType pins the diagnosis to a catalog pattern instead of the best match.
	IssueType string
	Variables map[string]string
	SkipScan  bool
}

// Analysis is the engine's answer to an AnalysisRequest. Prediction and Plan
// are nil when nothing matched.
type Analysis struct {
	Matches         []Match
	Prediction      *Prediction
	Plan            *RemediationPlan
	Message         string
	ManualGuidance  []string
	ScannedRecorded int
}

// Matched reports whether a catalog pattern was selected.
func (a Analysis) Matched() bool {
	return a.Plan != nil
}

// RemediationRequest asks the engine to plan and execute remediation.
type RemediationRequest struct {
	AnalysisRequest
	Confirmed bool
}

// RemediationResult couples the executed plan with the recorded occurrence.
type RemediationResult struct {
	Analysis   Analysis
	Occurrence IssueOccurrence
}
