package workload

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Sample holds the lookup activity of one reporting interval.
type Sample struct {
	Time     time.Time
	Interval time.Duration
	Found    uint64
	Missed   uint64
	Errors   uint64
	// QPS is (Found+Missed)/Interval; under the legacy count mode misses are
	// counted twice.
	QPS float64

	// Latency percentiles are zero without a histogram.
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

func (s Sample) String() string {
	line := fmt.Sprintf("Get Found: %d, Get Missed: %d, Get QPS: %d", s.Found, s.Missed, uint64(s.QPS))
	if s.P99 > 0 {
		line += fmt.Sprintf(", p50(us): %d, p95(us): %d, p99(us): %d",
			s.P50.Microseconds(), s.P95.Microseconds(), s.P99.Microseconds())
	}
	return line
}

// Sampler reports counter deltas every Interval.
type Sampler struct {
	counters *ReadCounters
	hist     *Histogram
	interval time.Duration
	out      io.Writer
	obs      Observer

	last     CounterSnapshot
	lastHist HistogramSnapshot
}

// NewSampler takes its baseline from the current counters. hist, out and obs
// may be nil.
func NewSampler(counters *ReadCounters, interval time.Duration, hist *Histogram, out io.Writer, obs Observer) *Sampler {
	if out == nil {
		out = io.Discard
	}
	s := &Sampler{
		counters: counters,
		hist:     hist,
		interval: interval,
		out:      out,
		obs:      observerOrNop(obs),
		last:     counters.Snapshot(),
	}
	if hist != nil {
		s.lastHist = hist.Snapshot()
	}
	return s
}

// Sample computes the deltas since the previous sample and moves the
// baseline. The rate uses the configured interval, not the wall time since
// the previous call.
func (s *Sampler) Sample(now time.Time) Sample {
	cur := s.counters.Snapshot()
	d := cur.Sub(s.last)
	s.last = cur

	smp := Sample{
		Time:     now,
		Interval: s.interval,
		Found:    d.Found,
		Missed:   d.Missed,
		Errors:   d.Errors,
	}
	if sec := s.interval.Seconds(); sec > 0 {
		smp.QPS = float64(d.Found+d.Missed) / sec
	}
	if s.hist != nil {
		h := s.hist.Snapshot()
		delta := h.Sub(s.lastHist)
		s.lastHist = h
		smp.P50, smp.P95, smp.P99 = delta.P50(), delta.P95(), delta.P99()
	}
	return smp
}

// Run prints a baseline line at once, then one report line per tick until
// ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.report(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.report(now)
		}
	}
}

func (s *Sampler) report(now time.Time) {
	smp := s.Sample(now)
	fmt.Fprintln(s.out, smp.String())
	s.obs.Sampled(smp)
}
