package workload

import (
	"context"
	"sync"
	"time"

	"github.com/ls4154/rangetest/db"
)

// Reader issues point lookups for uniformly random keys until ctx is done.
type Reader struct {
	DB       db.DB
	Keys     KeyRange
	Counters *ReadCounters
	Mode     CountMode
	// Hist is optional.
	Hist *Histogram
	Seed int64
}

func (r *Reader) Run(ctx context.Context) {
	gen := NewGenerator(r.Seed, r.Keys, SizeRange{})
	ro := &db.ReadOptions{FillCache: true}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		key := gen.Key()
		if r.Hist == nil {
			_, err := r.DB.Get(key, ro)
			r.Counters.Record(err, r.Mode)
			continue
		}
		t0 := time.Now()
		_, err := r.DB.Get(key, ro)
		r.Hist.Observe(time.Since(t0))
		r.Counters.Record(err, r.Mode)
	}
}

// ReadLoop runs threads readers against ldb and blocks until ctx is done and
// every reader has returned.
func ReadLoop(ctx context.Context, ldb db.DB, cfg Config, counters *ReadCounters, hist *Histogram) {
	var wg sync.WaitGroup
	for i := 0; i < cfg.ReadThreads; i++ {
		r := &Reader{
			DB:       ldb,
			Keys:     cfg.ReadKeys(),
			Counters: counters,
			Mode:     cfg.CountMode,
			Hist:     hist,
			Seed:     SeedFor(cfg.Seed, cfg.LoadThreads+i),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}
	wg.Wait()
}
