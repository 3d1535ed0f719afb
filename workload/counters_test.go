package workload

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ls4154/rangetest/db"
)

func TestReadCountersLegacy(t *testing.T) {
	var c ReadCounters
	c.Record(nil, CountLegacy)
	c.Record(db.ErrNotFound, CountLegacy)
	c.Record(errors.New("io"), CountLegacy)

	// Every attempt counts as found; both failures count as missed.
	require.Equal(t, CounterSnapshot{Found: 3, Missed: 2, Errors: 1}, c.Snapshot())
}

func TestReadCountersExact(t *testing.T) {
	var c ReadCounters
	c.Record(nil, CountExact)
	c.Record(nil, CountExact)
	c.Record(db.ErrNotFound, CountExact)
	c.Record(errors.New("io"), CountExact)

	require.Equal(t, CounterSnapshot{Found: 2, Missed: 2, Errors: 1}, c.Snapshot())
}

func TestRemainingWorkOvershoot(t *testing.T) {
	const target, writers = 1000, 8
	rw := NewRemainingWork(target)

	var mu sync.Mutex
	var done int64
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rw.Pending() {
				mu.Lock()
				done++
				mu.Unlock()
				rw.Done()
			}
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, done, int64(target))
	require.LessOrEqual(t, done, int64(target+writers-1))
	require.Equal(t, int64(target)-done, rw.Load())
	require.False(t, rw.Pending())
}

func TestHistogram(t *testing.T) {
	h := NewHistogram()
	for i := 0; i < 90; i++ {
		h.Observe(3 * time.Microsecond)
	}
	for i := 0; i < 10; i++ {
		h.Observe(800 * time.Microsecond)
	}
	s := h.Snapshot()
	require.Equal(t, uint64(100), s.Total)
	require.Equal(t, 5*time.Microsecond, s.P50())
	require.Equal(t, time.Millisecond, s.P95())

	h.Observe(5 * time.Second)
	d := h.Snapshot().Sub(s)
	require.Equal(t, uint64(1), d.Total)
	require.Equal(t, time.Second, d.P99())

	require.Zero(t, HistogramSnapshot{}.P50())
}
