package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should tolerate existing collectors: %v", err)
	}
}

func TestObserveAnalysisNormalisesOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := counterValue(t, reg, "expert_engine_analyses_total", "outcome", OutcomeError)
	ObserveAnalysis(-time.Second, "bogus")
	after := counterValue(t, reg, "expert_engine_analyses_total", "outcome", OutcomeError)
	if after != before+1 {
		t.Fatalf("expected unknown outcome to count as error, before=%v after=%v", before, after)
	}
}

func TestObserveOccurrencesIgnoresEmptyBatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := counterValue(t, reg, "expert_engine_occurrences_recorded_total", "source", SourceScan)
	ObserveOccurrences(SourceScan, 0)
	ObserveOccurrences(SourceScan, 3)
	after := counterValue(t, reg, "expert_engine_occurrences_recorded_total", "source", SourceScan)
	if after != before+3 {
		t.Fatalf("expected +3, before=%v after=%v", before, after)
	}
}
