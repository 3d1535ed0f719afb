package db

import (
	"errors"
	"fmt"
	"strings"
)

// DB is the surface the harness drives. Implementations must be safe for
// concurrent use by multiple goroutines.
type DB interface {
	Get(key []byte, options *ReadOptions) ([]byte, error)
	Put(key, value []byte, options *WriteOptions) error
	// Flush persists buffered writes into an immutable on-disk table.
	Flush() error
	// CompactRange compacts [begin, end]. A nil bound is unbounded on that side.
	CompactRange(begin, end []byte) error
	NewIterator(options *ReadOptions) (Iterator, error)
	Close() error
}

type Iterator interface {
	Valid() bool
	SeekToFirst()
	SeekToLast()
	Seek(target []byte)
	Next()
	Prev()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

type Logger interface {
	Printf(format string, v ...any)
}

type CompressionType uint8

const (
	NoCompression CompressionType = iota
	SnappyCompression
)

func (t CompressionType) String() string {
	switch t {
	case SnappyCompression:
		return "snappy"
	default:
		return "no"
	}
}

func ParseCompression(raw string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "no", "none":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	default:
		return NoCompression, fmt.Errorf("invalid compression %q (allowed: no|snappy): %w", raw, ErrInvalidArgument)
	}
}

const (
	EnginePebble  = "pebble"
	EngineLevelDB = "leveldb"
	EngineBadger  = "badger"
	EngineMemory  = "memory"
)

var Engines = []string{EnginePebble, EngineLevelDB, EngineBadger, EngineMemory}

type Options struct {
	Engine          string
	CreateIfMissing bool
	WriteBufferSize int
	// TargetFileSize is the size of tables produced by flush and compaction.
	TargetFileSize int64
	BlockCacheSize int
	Compression    CompressionType
	// DisableAutoCompactions leaves compaction to explicit CompactRange calls.
	DisableAutoCompactions bool
	Logger                 Logger
}

func DefaultOptions() *Options {
	return &Options{
		Engine:                 EnginePebble,
		CreateIfMissing:        true,
		WriteBufferSize:        4 * 1024 * 1024,
		TargetFileSize:         2 * 1024 * 1024,
		BlockCacheSize:         64 << 20,
		Compression:            SnappyCompression,
		DisableAutoCompactions: true,
	}
}

type ReadOptions struct {
	FillCache bool
}

type WriteOptions struct {
	Sync bool
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("closed")
)
