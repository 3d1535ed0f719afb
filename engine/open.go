package engine

import (
	"fmt"
	"strings"

	"github.com/ls4154/rangetest/db"
)

// Open opens the engine named by options.Engine at path.
func Open(options *db.Options, path string) (db.DB, error) {
	if options == nil {
		options = db.DefaultOptions()
	}
	switch strings.ToLower(options.Engine) {
	case db.EnginePebble, "":
		return openPebble(options, path)
	case db.EngineLevelDB:
		return openLevelDB(options, path)
	case db.EngineBadger:
		return openBadger(options, path)
	case db.EngineMemory:
		return OpenMemory(options), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (allowed: %s): %w",
			options.Engine, strings.Join(db.Engines, "|"), db.ErrInvalidArgument)
	}
}

// widenEnd converts an inclusive upper bound into the smallest exclusive
// limit that still covers it.
func widenEnd(end []byte) []byte {
	if end == nil {
		return nil
	}
	out := make([]byte, len(end)+1)
	copy(out, end)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
