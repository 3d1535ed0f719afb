package main

import (
	"go.uber.org/zap"

	"github.com/ls4154/rangetest/workload"
)

// logObserver writes run events to the structured log. Per-write events are
// left to the metrics.
type logObserver struct {
	log *zap.Logger
}

var _ workload.Observer = logObserver{}

func (o logObserver) PhaseChanged(p workload.Phase) {
	o.log.Info("phase", zap.Stringer("phase", p))
}

func (logObserver) Wrote(int) {}

func (o logObserver) Flushed(round int) {
	o.log.Debug("flushed", zap.Int("round", round))
}

func (o logObserver) Compacted(res workload.CompactResult) {
	o.log.Info("compacted",
		zap.Stringer("policy", res.Policy),
		zap.ByteString("begin", res.Begin),
		zap.ByteString("end", res.End),
		zap.Duration("elapsed", res.Elapsed),
	)
}

func (o logObserver) Sampled(s workload.Sample) {
	o.log.Debug("sample",
		zap.Uint64("found", s.Found),
		zap.Uint64("missed", s.Missed),
		zap.Uint64("errors", s.Errors),
		zap.Float64("qps", s.QPS),
	)
}
