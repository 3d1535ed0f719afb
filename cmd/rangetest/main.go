package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ls4154/rangetest"
	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/monitor"
	"github.com/ls4154/rangetest/workload"
)

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	log.Info("rangetest starting",
		zap.String("db", cfg.DB),
		zap.String("engine", cfg.Engine),
		zap.String("compression", cfg.Compression),
		zap.Stringer("load_mode", cfg.LoadMode),
		zap.Stringer("range_policy", cfg.RangePolicy),
		zap.Stringer("count_mode", cfg.CountMode),
		zap.Int64("record_count", cfg.RecordCount),
		zap.Int64("record_per_table", cfg.RecordPerTable),
		zap.Int("table_merge_num", cfg.TableMergeNum),
		zap.Uint64("key_range", cfg.KeyRange),
		zap.Int("load_threads", cfg.LoadThreads),
		zap.Int("read_threads", cfg.ReadThreads),
		zap.Int64("seed", cfg.Seed),
	)

	ldb, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	metrics := monitor.NewMetrics(runID, cfg.Engine)
	if cfg.MetricsAddr != "" {
		hub := monitor.NewHub(log.Named("ws"))
		metrics.AttachHub(hub)
		srv := monitor.NewServer(metrics, hub, log.Named("http"))
		if err := srv.Start(cfg.MetricsAddr); err != nil {
			_ = ldb.Close()
			return fmt.Errorf("start monitor: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn("monitor shutdown", zap.Error(err))
			}
		}()
	}

	r := workload.NewRunner(ldb, cfg.Config)
	r.Log = log
	r.Out = os.Stdout
	r.Observer = workload.Observers{metrics, logObserver{log: log.Named("run")}}
	if cfg.Engine != db.EngineMemory {
		r.Path = cfg.DB
	}

	runErr := r.Run(ctx)
	closeErr := ldb.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("close db: %w", closeErr)
	}
	log.Info("rangetest finished")
	return nil
}

func openDB(cfg config, log *zap.Logger) (db.DB, error) {
	if cfg.Engine != db.EngineMemory {
		if cfg.FreshDB {
			if err := os.RemoveAll(cfg.DB); err != nil {
				return nil, fmt.Errorf("remove db dir: %w", err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
			return nil, err
		}
	}
	opt := cfg.dbOptions(engineLogger{s: log.Named("engine").Sugar()})
	return rangetest.Open(opt, cfg.DB)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rangetest: "+format+"\n", args...)
	os.Exit(1)
}
