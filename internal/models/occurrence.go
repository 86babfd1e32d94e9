package models

import "time"

// Outcome is the result of a remediation attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeFailure      Outcome = "failure"
	OutcomeUnknown      Outcome = "unknown"
	OutcomeNotAttempted Outcome = "not_attempted"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeUnknown, OutcomeNotAttempted:
		return true
	}
	return false
}

// Settled reports whether the outcome is final and may no longer change.
func (o Outcome) Settled() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// StepOutcome records what happened to a single executed plan step.
type StepOutcome struct {
	Description string  `json:"description"`
	Command     string  `json:"command,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Detail      string  `json:"detail,omitempty"`
}

// IssueOccurrence is one detected (and possibly remediated) instance of an
// issue type.
type IssueOccurrence struct {
	ID                string
	IssueType         string
	Timestamp         time.Time
	MatchedConfidence float64
	PredictedCause    string
	ActionTaken       string
	Outcome           Outcome
	Detail            string
	Evidence          []string
	Steps             []StepOutcome
}

// TrendDirection summarises whether recent occurrences look better or worse.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendWorsening TrendDirection = "worsening"
)

// TrendSummary aggregates retained history for reporting.
type TrendSummary struct {
	TotalOccurrences  int
	Recent24h         int
	IssueTypes        int
	AverageConfidence float64
	MostFrequentType  string
	MostFrequentCount int
	Direction         TrendDirection
}
