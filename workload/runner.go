package workload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/util"
)

// Runner drives the load, compaction and read phases against one database.
type Runner struct {
	DB     db.DB
	Config Config
	// Path is the database directory; when set its size is logged around
	// the compaction.
	Path     string
	Log      *zap.Logger
	Out      io.Writer
	Observer Observer

	Counters *ReadCounters
	Hist     *Histogram
}

func NewRunner(ldb db.DB, cfg Config) *Runner {
	r := &Runner{
		DB:       ldb,
		Config:   cfg,
		Counters: &ReadCounters{},
	}
	if cfg.Histogram {
		r.Hist = NewHistogram()
	}
	return r
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

// Run executes load, compaction and reads. The read phase lasts until ctx is
// cancelled or read_duration elapses; ending it that way is not an error.
// Cancellation during the load or compaction is.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if r.Counters == nil {
		r.Counters = &ReadCounters{}
	}
	obs := observerOrNop(r.Observer)
	log := r.logger()

	obs.PhaseChanged(PhaseLoad)
	log.Info("load started",
		zap.Stringer("mode", r.Config.LoadMode),
		zap.Stringer("key_order", r.Config.KeyOrder),
		zap.Int("threads", r.Config.LoadThreads),
	)
	loader := &Loader{
		DB:       r.DB,
		Config:   r.Config,
		Log:      log,
		Out:      r.out(),
		Observer: obs,
	}
	if err := loader.Load(ctx); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	obs.PhaseChanged(PhaseCompact)
	r.logDirSize("before compaction")
	res, err := Compact(r.DB, r.Config.RangePolicy, r.Config.RecordCount, r.out())
	if err != nil {
		return err
	}
	obs.Compacted(res)
	log.Info("compaction finished",
		zap.Stringer("policy", res.Policy),
		zap.ByteString("begin", res.Begin),
		zap.ByteString("end", res.End),
		zap.Duration("elapsed", res.Elapsed),
	)
	r.logDirSize("after compaction")

	obs.PhaseChanged(PhaseRead)
	r.read(ctx, obs)
	obs.PhaseChanged(PhaseDone)
	return nil
}

func (r *Runner) read(ctx context.Context, obs Observer) {
	var (
		readCtx context.Context
		cancel  context.CancelFunc
	)
	if r.Config.ReadDuration > 0 {
		readCtx, cancel = context.WithTimeout(ctx, r.Config.ReadDuration)
	} else {
		readCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	sampler := NewSampler(r.Counters, r.Config.ReportInterval, r.Hist, r.out(), obs)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.Run(readCtx)
	}()
	r.logger().Info("read started",
		zap.Int("threads", r.Config.ReadThreads),
		zap.Stringer("count_mode", r.Config.CountMode),
		zap.Duration("report_interval", r.Config.ReportInterval),
	)
	ReadLoop(readCtx, r.DB, r.Config, r.Counters, r.Hist)
	wg.Wait()

	total := r.Counters.Snapshot()
	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.Uint64("found", total.Found),
		zap.Uint64("missed", total.Missed),
		zap.Uint64("errors", total.Errors),
		zap.Duration("elapsed", elapsed),
	}
	if sec := elapsed.Seconds(); sec > 0 {
		fields = append(fields, zap.Float64("qps", float64(total.Found+total.Missed)/sec))
	}
	if r.Hist != nil {
		h := r.Hist.Snapshot()
		fields = append(fields,
			zap.Duration("p50", h.P50()),
			zap.Duration("p95", h.P95()),
			zap.Duration("p99", h.P99()),
		)
	}
	r.logger().Info("read finished", fields...)
}

func (r *Runner) logDirSize(msg string) {
	if r.Path == "" {
		return
	}
	sz, err := util.DirSize(r.Path)
	if err != nil {
		r.logger().Warn("dir size", zap.String("path", r.Path), zap.Error(err))
		return
	}
	r.logger().Info(msg, zap.String("path", r.Path), zap.Float64("size_mb", float64(sz)/(1024.0*1024.0)))
}
