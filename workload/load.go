package workload

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/util"
)

const (
	// Round targets are drawn from [record_per_table-jitter, record_per_table+jitter].
	roundTargetJitter = 10
	// One value in snappySampleEvery feeds the compressibility estimate.
	snappySampleEvery = 64
	// Worker id of the goroutine that draws round targets.
	coordinatorWorker = 1 << 16
)

type runError struct {
	mu  sync.Mutex
	err error
}

func (r *runError) set(err error, cancel context.CancelFunc) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = err
	cancel()
}

func (r *runError) get() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// LoadResult summarizes one batch of concurrent writes.
type LoadResult struct {
	Target int64
	Writes int64
	Bytes  int64
	// Remaining is the work counter after all writers stopped; it is zero or
	// negative when the target was met.
	Remaining   int64
	Elapsed     time.Duration
	SnappyRatio float64
}

func (r LoadResult) WritesPerSec() float64 {
	sec := r.Elapsed.Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(r.Writes) / sec
}

type RoundResult struct {
	Round int
	Keys  []KeyRange
	LoadResult
}

// Loader writes the initial data set.
type Loader struct {
	DB       db.DB
	Config   Config
	Log      *zap.Logger
	Out      io.Writer
	Observer Observer
}

type writer struct {
	id     int
	gen    *Generator
	key    func() []byte
	est    *util.SnappyEstimator
	writes int64
	bytes  int64
}

func (l *Loader) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}

func (l *Loader) out() io.Writer {
	if l.Out == nil {
		return io.Discard
	}
	return l.Out
}

// Load dispatches on the configured load mode.
func (l *Loader) Load(ctx context.Context) error {
	if l.Config.LoadMode == LoadBulk {
		_, err := l.BulkLoad(ctx)
		return err
	}
	_, err := l.RoundLoad(ctx)
	return err
}

// BulkLoad writes record_count records with load_threads writers over keys in
// [0, record_count], flushes once and prints "Load <n> records.".
func (l *Loader) BulkLoad(ctx context.Context) (LoadResult, error) {
	cfg := l.Config
	keys := KeyRange{Lo: 0, Hi: uint64(cfg.RecordCount)}
	sizes := SizeRange{Min: cfg.ValueMin, Max: cfg.ValueMax}

	var seq *Sequence
	if cfg.KeyOrder == KeySequential {
		seq = NewSequence(0)
	}

	writers := make([]*writer, cfg.LoadThreads)
	for i := range writers {
		w := &writer{
			id:  i,
			gen: NewGenerator(SeedFor(cfg.Seed, i), keys, sizes).WithCompressionRatio(cfg.CompressionRatio),
			est: util.NewSnappyEstimator(snappySampleEvery),
		}
		w.key = w.gen.Key
		if seq != nil {
			var buf []byte
			w.key = func() []byte {
				buf = FormatKey(buf[:0], seq.Next())
				return buf
			}
		}
		writers[i] = w
	}

	res, err := l.runWriters(ctx, NewRemainingWork(cfg.RecordCount), writers)
	if err != nil {
		return res, err
	}
	if err := l.DB.Flush(); err != nil {
		return res, fmt.Errorf("flush: %w", err)
	}
	observerOrNop(l.Observer).Flushed(0)

	fmt.Fprintf(l.out(), "Load %d records.\n", cfg.RecordCount)
	l.logger().Info("bulk load finished",
		zap.Int64("target", res.Target),
		zap.Int64("writes", res.Writes),
		zap.Int64("bytes", res.Bytes),
		zap.Int64("remaining", res.Remaining),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("writes_per_sec", res.WritesPerSec()),
		zap.Float64("snappy_ratio", res.SnappyRatio),
	)
	return res, nil
}

// RoundLoad runs table_merge_num rounds. Each round writes about
// record_per_table records, every writer drawing keys from its own random
// sub-range of [0, key_range], then flushes and prints "Flush: <round>".
func (l *Loader) RoundLoad(ctx context.Context) ([]RoundResult, error) {
	cfg := l.Config
	coord := rand.New(rand.NewSource(SeedFor(cfg.Seed, coordinatorWorker)))
	sizes := cfg.RoundValueSizes()

	gens := make([]*Generator, cfg.LoadThreads)
	for i := range gens {
		gens[i] = NewGenerator(SeedFor(cfg.Seed, i), KeyRange{}, sizes).WithCompressionRatio(cfg.CompressionRatio)
	}

	remaining := NewRemainingWork(0)
	results := make([]RoundResult, 0, cfg.TableMergeNum)
	for round := 0; round < cfg.TableMergeNum; round++ {
		target := RoundTarget(coord, cfg.RecordPerTable)
		remaining.Reset(target)

		rr := RoundResult{Round: round, Keys: make([]KeyRange, len(gens))}
		writers := make([]*writer, len(gens))
		for i, g := range gens {
			g.SetKeyRange(SubRange(g.Rand(), cfg.KeyRange, cfg.TableMergeNum))
			rr.Keys[i] = g.KeyRange()
			writers[i] = &writer{
				id:  i,
				gen: g,
				key: g.Key,
				est: util.NewSnappyEstimator(snappySampleEvery),
			}
		}

		res, err := l.runWriters(ctx, remaining, writers)
		if err != nil {
			return results, fmt.Errorf("round %d: %w", round, err)
		}
		if err := l.DB.Flush(); err != nil {
			return results, fmt.Errorf("round %d: flush: %w", round, err)
		}
		rr.LoadResult = res
		results = append(results, rr)

		fmt.Fprintf(l.out(), "Flush: %d\n", round)
		observerOrNop(l.Observer).Flushed(round)
		l.logger().Debug("round finished",
			zap.Int("round", round),
			zap.Int64("target", res.Target),
			zap.Int64("writes", res.Writes),
			zap.Duration("elapsed", res.Elapsed),
		)
	}

	var total LoadResult
	for _, r := range results {
		total.Target += r.Target
		total.Writes += r.Writes
		total.Bytes += r.Bytes
		total.Elapsed += r.Elapsed
	}
	l.logger().Info("round load finished",
		zap.Int("rounds", len(results)),
		zap.Int64("target", total.Target),
		zap.Int64("writes", total.Writes),
		zap.Int64("bytes", total.Bytes),
		zap.Duration("elapsed", total.Elapsed),
		zap.Float64("writes_per_sec", total.WritesPerSec()),
	)
	return results, nil
}

// RoundTarget draws a round's write target from [base-10, base+10], never
// below one.
func RoundTarget(r *rand.Rand, base int64) int64 {
	lo := base - roundTargetJitter
	if lo < 1 {
		lo = 1
	}
	hi := base + roundTargetJitter
	if hi < lo {
		hi = lo
	}
	return int64(uniformBetween(r, uint64(lo), uint64(hi)))
}

// SubRange draws a writer's key range for one round: a start anywhere in
// [0, keyRange] and an end at least keyRange/rounds past it, capped at
// keyRange.
func SubRange(r *rand.Rand, keyRange uint64, rounds int) KeyRange {
	if rounds < 1 {
		rounds = 1
	}
	start := uniformBetween(r, 0, keyRange)
	lo := start + keyRange/uint64(rounds)
	if lo > keyRange || lo < start {
		lo = keyRange
	}
	return KeyRange{Lo: start, Hi: uniformBetween(r, lo, keyRange)}
}

// runWriters runs one goroutine per writer until remaining is exhausted,
// ctx is cancelled or a write fails. The first write error is returned.
func (l *Loader) runWriters(parent context.Context, remaining *RemainingWork, writers []*writer) (LoadResult, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	obs := observerOrNop(l.Observer)
	wo := &db.WriteOptions{Sync: l.Config.Sync}
	target := remaining.Load()
	rs := &runError{}
	start := time.Now()

	var wg sync.WaitGroup
	for _, w := range writers {
		wg.Add(1)
		go func(w *writer) {
			defer wg.Done()
			for remaining.Pending() {
				select {
				case <-ctx.Done():
					return
				default:
				}

				key := w.key()
				value := w.gen.Value()
				if err := l.DB.Put(key, value, wo); err != nil {
					rs.set(fmt.Errorf("writer %d put %q: %w", w.id, key, err), cancel)
					return
				}
				n := len(key) + len(value)
				w.writes++
				w.bytes += int64(n)
				w.est.Observe(value)
				obs.Wrote(n)
				remaining.Done()
			}
		}(w)
	}
	wg.Wait()

	res := LoadResult{
		Target:    target,
		Remaining: remaining.Load(),
		Elapsed:   time.Since(start),
	}
	est := util.NewSnappyEstimator(snappySampleEvery)
	for _, w := range writers {
		res.Writes += w.writes
		res.Bytes += w.bytes
		est.Merge(w.est)
	}
	res.SnappyRatio = est.Ratio()

	if err := rs.get(); err != nil {
		return res, err
	}
	if err := parent.Err(); err != nil {
		return res, err
	}
	return res, nil
}
