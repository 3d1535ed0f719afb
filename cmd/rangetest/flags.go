package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/workload"
)

// config is everything one invocation needs. It loads from an optional YAML
// file; flags given on the command line override the file.
type config struct {
	workload.Config `yaml:",inline"`

	DB                     string `yaml:"db"`
	Engine                 string `yaml:"engine"`
	Compression            string `yaml:"compression"`
	WriteBufferSize        int    `yaml:"write_buffer_size"`
	TargetFileSize         int64  `yaml:"target_file_size"`
	CacheSize              int    `yaml:"cache_size"`
	DisableAutoCompactions bool   `yaml:"disable_auto_compactions"`
	FreshDB                bool   `yaml:"fresh_db"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

func defaultConfig() config {
	opt := db.DefaultOptions()
	return config{
		Config:                 workload.DefaultConfig(),
		DB:                     "/tmp/rangetest",
		Engine:                 opt.Engine,
		Compression:            opt.Compression.String(),
		WriteBufferSize:        opt.WriteBufferSize,
		TargetFileSize:         opt.TargetFileSize,
		CacheSize:              opt.BlockCacheSize,
		DisableAutoCompactions: opt.DisableAutoCompactions,
		LogLevel:               "info",
		LogFormat:              "console",
	}
}

func loadConfigFile(path string, cfg *config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// parseFlags reads --config first so that the file supplies the defaults
// of the full flag set.
func parseFlags(args []string, stderr io.Writer) (config, error) {
	cfg := defaultConfig()

	pre := pflag.NewFlagSet("rangetest", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.SetOutput(io.Discard)
	configPath := pre.String("config", "", "")
	if err := pre.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return cfg, err
	}
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	fs := pflag.NewFlagSet("rangetest", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", *configPath, "YAML file with default values for every flag")

	fs.StringVar(&cfg.DB, "db", cfg.DB, "database directory")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "storage engine: pebble|leveldb|badger|memory")
	fs.StringVar(&cfg.Compression, "compression", cfg.Compression, "table compression: no|snappy")
	fs.IntVar(&cfg.WriteBufferSize, "write_buffer_size", cfg.WriteBufferSize, "memtable size in bytes")
	fs.Int64Var(&cfg.TargetFileSize, "target_file_size", cfg.TargetFileSize, "target table file size in bytes")
	fs.IntVar(&cfg.CacheSize, "cache_size", cfg.CacheSize, "block cache size in bytes")
	fs.BoolVar(&cfg.DisableAutoCompactions, "disable_auto_compactions", cfg.DisableAutoCompactions, "leave compaction to the explicit CompactRange")
	fs.BoolVar(&cfg.FreshDB, "fresh_db", cfg.FreshDB, "remove the database directory before opening")

	w := &cfg.Config
	fs.Int64Var(&w.RecordCount, "record_count", w.RecordCount, "records written by a bulk load; upper bound of read keys")
	fs.Int64Var(&w.RecordPerTable, "record_per_table", w.RecordPerTable, "records written per round")
	fs.IntVar(&w.TableMergeNum, "table_merge_num", w.TableMergeNum, "number of load rounds")
	fs.Uint64Var(&w.KeyRange, "key_range", w.KeyRange, "upper bound of round-load keys")
	fs.IntVar(&w.ValueMin, "value_min", w.ValueMin, "minimum bulk-load value size")
	fs.IntVar(&w.ValueMax, "value_max", w.ValueMax, "maximum bulk-load value size")
	fs.IntVar(&w.ValueAvgSize, "val_avg_size", w.ValueAvgSize, "average round-load value size")
	fs.IntVar(&w.ValueSpread, "val_spread", w.ValueSpread, "round-load value size spread around the average")
	fs.IntVar(&w.LoadThreads, "load_threads", w.LoadThreads, "writer goroutines")
	fs.IntVar(&w.ReadThreads, "read_threads", w.ReadThreads, "reader goroutines")
	fs.Var(&w.LoadMode, "load_mode", "load entry point: rounds|bulk")
	fs.Var(&w.KeyOrder, "key_order", "bulk-load key order: random|sequential")
	fs.Var(&w.RangePolicy, "range_policy", "compaction range: full|user|seek")
	fs.Var(&w.CountMode, "count_mode", "found counter semantics: legacy|exact")
	useUserRange := fs.Bool("use_user_range", false, "same as --range_policy=user")
	useSeekRange := fs.Bool("use_seek_range", false, "same as --range_policy=seek")
	fs.DurationVar(&w.ReportInterval, "report_interval", w.ReportInterval, "interval between Get reports")
	fs.DurationVar(&w.ReadDuration, "read_duration", w.ReadDuration, "length of the read phase; 0 runs until interrupted")
	fs.Int64Var(&w.Seed, "seed", w.Seed, "base random seed; 0 picks one per run")
	fs.Float64Var(&w.CompressionRatio, "compression_ratio", w.CompressionRatio, "fraction of each value that is random")
	fs.BoolVar(&w.Histogram, "histogram", w.Histogram, "track Get latency percentiles")
	fs.BoolVar(&w.Sync, "sync", w.Sync, "sync every write")

	fs.StringVar(&cfg.MetricsAddr, "metrics_addr", cfg.MetricsAddr, "serve /metrics, /status and /ws on this address")
	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log_format", cfg.LogFormat, "console|json")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case *useUserRange:
		w.RangePolicy = workload.RangeUser
	case *useSeekRange:
		w.RangePolicy = workload.RangeSeek
	}
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg config) error {
	var errs []error
	if cfg.DB == "" && cfg.Engine != db.EngineMemory {
		errs = append(errs, errors.New("--db must not be empty"))
	}
	if _, err := db.ParseCompression(cfg.Compression); err != nil {
		errs = append(errs, err)
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid --log_format %q (allowed: console|json)", cfg.LogFormat))
	}
	if err := cfg.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (cfg config) dbOptions(logger db.Logger) *db.Options {
	opt := db.DefaultOptions()
	opt.Engine = cfg.Engine
	opt.CreateIfMissing = true
	opt.WriteBufferSize = cfg.WriteBufferSize
	opt.TargetFileSize = cfg.TargetFileSize
	opt.BlockCacheSize = cfg.CacheSize
	opt.DisableAutoCompactions = cfg.DisableAutoCompactions
	opt.Compression, _ = db.ParseCompression(cfg.Compression)
	opt.Logger = logger
	return opt
}
