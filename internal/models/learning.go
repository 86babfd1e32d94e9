package models

// KeywordCount is how often a word appeared in the evidence of an issue type.
type KeywordCount struct {
	Keyword string
	Count   int
}

// LearningSummary is what the engine has learned about one issue type: the
// evidence words seen most often and how often its remediations succeeded.
type LearningSummary struct {
	IssueType         string
	Occurrences       int
	AverageConfidence float64
	Keywords          []KeywordCount
	// Predictions counts occurrences that reached a settled outcome;
	// Accurate counts the successful ones.
	Predictions  int
	Accurate     int
	AccuracyRate float64
}

// LearningReport aggregates learning state across issue types.
type LearningReport struct {
	Trend           TrendSummary
	Types           []LearningSummary
	PatternsLearned int
	Capacity        int
}
