package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeMatched labels analyses that produced a catalog match.
	OutcomeMatched = "matched"
	// OutcomeUnmatched labels analyses with no match above zero confidence.
	OutcomeUnmatched = "unmatched"
	// OutcomeError labels analyses that failed before a decision was made.
	OutcomeError = "error"

	// SourceScan labels occurrences recorded by the learning scanner.
	SourceScan = "scan"
	// SourceRemediation labels occurrences recorded after executing a plan.
	SourceRemediation = "remediation"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expert_engine",
			Name:      "analyses_total",
			Help:      "Total number of observations analysed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "expert_engine",
			Name:      "analysis_seconds",
			Help:      "Analysis latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	plansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expert_engine",
			Name:      "plans_total",
			Help:      "Remediation plans produced, partitioned by safety decision.",
		},
		[]string{"decision"},
	)

	occurrencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expert_engine",
			Name:      "occurrences_recorded_total",
			Help:      "Issue occurrences written to history, partitioned by source.",
		},
		[]string{"source"},
	)

	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expert_engine",
			Name:      "remediation_steps_total",
			Help:      "Executed remediation steps, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	scanDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "expert_engine",
			Name:      "scan_seconds",
			Help:      "Learning scan latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)
)

// Register attaches expert-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		plansTotal,
		occurrencesTotal,
		stepsTotal,
		scanDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeMatched, OutcomeUnmatched:
	default:
		outcome = OutcomeError
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	analysisDurationSeconds.Observe(nonNegative(duration).Seconds())
}

// ObservePlan counts a plan by its decision.
func ObservePlan(decision string) {
	plansTotal.WithLabelValues(decision).Inc()
}

// ObserveOccurrences counts n occurrences recorded from source.
func ObserveOccurrences(source string, n int) {
	if n <= 0 {
		return
	}
	occurrencesTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveStep counts an executed remediation step.
func ObserveStep(outcome string) {
	stepsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScan records how long a learning scan took.
func ObserveScan(duration time.Duration) {
	scanDurationSeconds.Observe(nonNegative(duration).Seconds())
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
