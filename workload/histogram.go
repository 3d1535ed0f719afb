package workload

import (
	"math"
	"sync/atomic"
	"time"
)

var latencyBounds = []time.Duration{
	5 * time.Microsecond,
	10 * time.Microsecond,
	20 * time.Microsecond,
	50 * time.Microsecond,
	100 * time.Microsecond,
	200 * time.Microsecond,
	500 * time.Microsecond,
	1 * time.Millisecond,
	2 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
}

// Histogram is a fixed-bucket latency histogram shared by concurrent readers.
type Histogram struct {
	counts []atomic.Uint64
}

func NewHistogram() *Histogram {
	return &Histogram{counts: make([]atomic.Uint64, len(latencyBounds)+1)}
}

func (h *Histogram) Observe(d time.Duration) {
	for i, b := range latencyBounds {
		if d <= b {
			h.counts[i].Add(1)
			return
		}
	}
	h.counts[len(h.counts)-1].Add(1)
}

func (h *Histogram) Snapshot() HistogramSnapshot {
	s := HistogramSnapshot{Counts: make([]uint64, len(h.counts))}
	for i := range h.counts {
		c := h.counts[i].Load()
		s.Counts[i] = c
		s.Total += c
	}
	return s
}

type HistogramSnapshot struct {
	Counts []uint64
	Total  uint64
}

// Sub returns the observations made between prev and s.
func (s HistogramSnapshot) Sub(prev HistogramSnapshot) HistogramSnapshot {
	if len(prev.Counts) != len(s.Counts) {
		return s
	}
	out := HistogramSnapshot{Counts: make([]uint64, len(s.Counts))}
	for i := range s.Counts {
		out.Counts[i] = s.Counts[i] - prev.Counts[i]
		out.Total += out.Counts[i]
	}
	return out
}

// Percentile returns the upper bound of the bucket holding the p-th
// percentile; the overflow bucket reports the largest bound.
func (s HistogramSnapshot) Percentile(p float64) time.Duration {
	if s.Total == 0 {
		return 0
	}
	target := uint64(math.Ceil((p / 100.0) * float64(s.Total)))
	if target == 0 {
		target = 1
	}
	var seen uint64
	for i, c := range s.Counts {
		seen += c
		if seen >= target && i < len(latencyBounds) {
			return latencyBounds[i]
		}
	}
	return latencyBounds[len(latencyBounds)-1]
}

func (s HistogramSnapshot) P50() time.Duration { return s.Percentile(50) }
func (s HistogramSnapshot) P95() time.Duration { return s.Percentile(95) }
func (s HistogramSnapshot) P99() time.Duration { return s.Percentile(99) }
