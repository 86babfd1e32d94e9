package utils

import (
	"math"
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent samples in a ring and reports
// percentiles over them.
type LatencyTracker struct {
	mu     sync.Mutex
	ring   []time.Duration
	next   int
	filled bool
	total  uint64
}

// LatencySummary is a point-in-time view of the retained samples.
type LatencySummary struct {
	Samples int
	P50     time.Duration
	P95     time.Duration
	Max     time.Duration
}

// NewLatencyTracker creates a tracker retaining up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, size)}
}

// Observe records a sample, overwriting the oldest once the ring is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.filled = true
	}
	l.total++
}

// Total counts every observation, including ones already overwritten.
func (l *LatencyTracker) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retained()
}

// Percentile returns the nearest-rank p-th percentile (0-100) of retained
// samples, or zero when there are none.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	return percentile(l.sorted(), p)
}

// Summary returns p50, p95 and max in one pass over the samples.
func (l *LatencyTracker) Summary() LatencySummary {
	sorted := l.sorted()
	if len(sorted) == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		Samples: len(sorted),
		P50:     percentile(sorted, 50),
		P95:     percentile(sorted, 95),
		Max:     sorted[len(sorted)-1],
	}
}

func (l *LatencyTracker) retained() int {
	if l.filled {
		return len(l.ring)
	}
	return l.next
}

func (l *LatencyTracker) sorted() []time.Duration {
	l.mu.Lock()
	out := slices.Clone(l.ring[:l.retained()])
	l.mu.Unlock()
	slices.Sort(out)
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
