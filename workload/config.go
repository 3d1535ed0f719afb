package workload

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RangePolicy selects the key range handed to CompactRange.
type RangePolicy int

const (
	// RangeFull compacts the whole keyspace.
	RangeFull RangePolicy = iota
	// RangeUser compacts ["0", str(record_count)].
	RangeUser
	// RangeSeek compacts [first key, last key] as seen by an iterator.
	RangeSeek
)

func (p RangePolicy) String() string {
	switch p {
	case RangeFull:
		return "full"
	case RangeUser:
		return "user"
	case RangeSeek:
		return "seek"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

func ParseRangePolicy(s string) (RangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return RangeFull, nil
	case "user":
		return RangeUser, nil
	case "seek":
		return RangeSeek, nil
	default:
		return RangeFull, fmt.Errorf("invalid range policy %q (allowed: full|user|seek)", s)
	}
}

func (p *RangePolicy) Set(s string) error {
	v, err := ParseRangePolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p *RangePolicy) Type() string { return "policy" }

func (p RangePolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *RangePolicy) UnmarshalText(b []byte) error { return p.Set(string(b)) }

// LoadMode selects the load entry point.
type LoadMode int

const (
	// LoadRounds builds table_merge_num tables of about record_per_table
	// records each, flushing after every round.
	LoadRounds LoadMode = iota
	// LoadBulk writes record_count records and flushes once.
	LoadBulk
)

func (m LoadMode) String() string {
	switch m {
	case LoadRounds:
		return "rounds"
	case LoadBulk:
		return "bulk"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

func (m *LoadMode) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rounds", "round", "":
		*m = LoadRounds
	case "bulk":
		*m = LoadBulk
	default:
		return fmt.Errorf("invalid load mode %q (allowed: rounds|bulk)", s)
	}
	return nil
}

func (m *LoadMode) Type() string { return "mode" }

func (m LoadMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *LoadMode) UnmarshalText(b []byte) error { return m.Set(string(b)) }

// KeyOrder selects how bulk-load writers pick keys.
type KeyOrder int

const (
	KeyRandom KeyOrder = iota
	// KeySequential hands out 0, 1, 2, ... from a shared sequence.
	KeySequential
)

func (o KeyOrder) String() string {
	switch o {
	case KeyRandom:
		return "random"
	case KeySequential:
		return "sequential"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

func (o *KeyOrder) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random", "":
		*o = KeyRandom
	case "sequential", "seq":
		*o = KeySequential
	default:
		return fmt.Errorf("invalid key order %q (allowed: random|sequential)", s)
	}
	return nil
}

func (o *KeyOrder) Type() string { return "order" }

func (o KeyOrder) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *KeyOrder) UnmarshalText(b []byte) error { return o.Set(string(b)) }

// CountMode selects what the found counter means.
type CountMode int

const (
	// CountLegacy bumps found on every lookup attempt and missed on failures,
	// so found counts attempts and QPS counts misses twice.
	CountLegacy CountMode = iota
	// CountExact bumps found only on hits.
	CountExact
)

func (c CountMode) String() string {
	switch c {
	case CountLegacy:
		return "legacy"
	case CountExact:
		return "exact"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

func (c *CountMode) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "":
		*c = CountLegacy
	case "exact":
		*c = CountExact
	default:
		return fmt.Errorf("invalid count mode %q (allowed: legacy|exact)", s)
	}
	return nil
}

func (c *CountMode) Type() string { return "mode" }

func (c CountMode) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CountMode) UnmarshalText(b []byte) error { return c.Set(string(b)) }

// Config describes one harness run. It is read-only once the run starts.
type Config struct {
	RecordCount    int64  `yaml:"record_count"`
	RecordPerTable int64  `yaml:"record_per_table"`
	TableMergeNum  int    `yaml:"table_merge_num"`
	KeyRange       uint64 `yaml:"key_range"`

	ValueMin     int `yaml:"value_min"`
	ValueMax     int `yaml:"value_max"`
	ValueAvgSize int `yaml:"val_avg_size"`
	ValueSpread  int `yaml:"val_spread"`

	LoadThreads int `yaml:"load_threads"`
	ReadThreads int `yaml:"read_threads"`

	LoadMode    LoadMode    `yaml:"load_mode"`
	KeyOrder    KeyOrder    `yaml:"key_order"`
	RangePolicy RangePolicy `yaml:"range_policy"`
	CountMode   CountMode   `yaml:"count_mode"`

	ReportInterval time.Duration `yaml:"report_interval"`
	// ReadDuration bounds the read phase; zero runs it until cancelled.
	ReadDuration time.Duration `yaml:"read_duration"`

	// CompressionRatio below 1 makes generated values compressible.
	CompressionRatio float64 `yaml:"compression_ratio"`
	// Seed zero seeds every worker from crypto/rand.
	Seed      int64 `yaml:"seed"`
	Histogram bool  `yaml:"histogram"`
	Sync      bool  `yaml:"sync"`
}

func DefaultConfig() Config {
	return Config{
		RecordCount:      1000000,
		RecordPerTable:   100000,
		TableMergeNum:    10,
		KeyRange:         1000000,
		ValueMin:         64,
		ValueMax:         512,
		ValueAvgSize:     1100,
		ValueSpread:      1000,
		LoadThreads:      8,
		ReadThreads:      1,
		LoadMode:         LoadRounds,
		KeyOrder:         KeyRandom,
		RangePolicy:      RangeFull,
		CountMode:        CountLegacy,
		ReportInterval:   60 * time.Second,
		CompressionRatio: 1.0,
	}
}

// RoundValueSizes is the value size band used by round-based loads.
func (c Config) RoundValueSizes() SizeRange {
	lo := c.ValueAvgSize - c.ValueSpread
	if lo < 0 {
		lo = 0
	}
	return SizeRange{Min: lo, Max: c.ValueAvgSize + c.ValueSpread}
}

// ReadKeys is the key range probed by readers.
func (c Config) ReadKeys() KeyRange {
	return KeyRange{Lo: 0, Hi: uint64(c.RecordCount)}
}

func (c Config) Validate() error {
	var errs []error
	if c.RecordCount <= 0 {
		errs = append(errs, errors.New("record_count must be > 0"))
	}
	if c.LoadMode == LoadRounds {
		if c.RecordPerTable <= 0 {
			errs = append(errs, errors.New("record_per_table must be > 0"))
		}
		if c.TableMergeNum <= 0 {
			errs = append(errs, errors.New("table_merge_num must be > 0"))
		}
		if c.KeyRange == 0 {
			errs = append(errs, errors.New("key_range must be > 0"))
		}
		if c.KeyOrder == KeySequential {
			errs = append(errs, errors.New("key_order=sequential requires load_mode=bulk"))
		}
	}
	if c.ValueMin < 0 || c.ValueMax < c.ValueMin {
		errs = append(errs, fmt.Errorf("value size bounds [%d, %d] are invalid", c.ValueMin, c.ValueMax))
	}
	if c.ValueAvgSize < 0 || c.ValueSpread < 0 {
		errs = append(errs, errors.New("val_avg_size/val_spread must be >= 0"))
	}
	if c.LoadThreads <= 0 {
		errs = append(errs, errors.New("load_threads must be > 0"))
	}
	if c.ReadThreads <= 0 {
		errs = append(errs, errors.New("read_threads must be > 0"))
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, errors.New("report_interval must be > 0"))
	}
	if c.ReadDuration < 0 {
		errs = append(errs, errors.New("read_duration must be >= 0"))
	}
	if c.CompressionRatio <= 0 || c.CompressionRatio > 1 {
		errs = append(errs, errors.New("compression_ratio must be in (0, 1]"))
	}
	return errors.Join(errs...)
}
