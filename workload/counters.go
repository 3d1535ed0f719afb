package workload

import (
	"errors"
	"sync/atomic"

	"github.com/ls4154/rangetest/db"
)

// RemainingWork is the shared budget of writes left in a load phase.
//
// Writers test Pending and call Done only after their write lands, so several
// writers can pass the test on the last unit: a phase may write up to
// writers-1 records beyond its target and end with a negative count.
type RemainingWork struct {
	n atomic.Int64
}

func NewRemainingWork(n int64) *RemainingWork {
	r := &RemainingWork{}
	r.n.Store(n)
	return r
}

func (r *RemainingWork) Reset(n int64) { r.n.Store(n) }

func (r *RemainingWork) Pending() bool { return r.n.Load() > 0 }

func (r *RemainingWork) Done() int64 { return r.n.Add(-1) }

func (r *RemainingWork) Load() int64 { return r.n.Load() }

// ReadCounters are the cumulative lookup counters shared by all readers.
type ReadCounters struct {
	found  atomic.Uint64
	missed atomic.Uint64
	errors atomic.Uint64
}

type CounterSnapshot struct {
	Found  uint64
	Missed uint64
	Errors uint64
}

// Record accounts one lookup result. Errors other than not-found count as
// misses and are also tallied separately.
func (c *ReadCounters) Record(err error, mode CountMode) {
	switch {
	case err == nil:
		if mode == CountExact {
			c.found.Add(1)
		}
	case errors.Is(err, db.ErrNotFound):
		c.missed.Add(1)
	default:
		c.missed.Add(1)
		c.errors.Add(1)
	}
	if mode == CountLegacy {
		c.found.Add(1)
	}
}

func (c *ReadCounters) Found() uint64 { return c.found.Load() }

func (c *ReadCounters) Missed() uint64 { return c.missed.Load() }

func (c *ReadCounters) Errors() uint64 { return c.errors.Load() }

func (c *ReadCounters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Found:  c.found.Load(),
		Missed: c.missed.Load(),
		Errors: c.errors.Load(),
	}
}

func (s CounterSnapshot) Sub(prev CounterSnapshot) CounterSnapshot {
	return CounterSnapshot{
		Found:  s.Found - prev.Found,
		Missed: s.Missed - prev.Missed,
		Errors: s.Errors - prev.Errors,
	}
}
