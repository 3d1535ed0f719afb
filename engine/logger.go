package engine

import (
	"fmt"
	"os"

	"github.com/ls4154/rangetest/db"
)

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func loggerOrNop(l db.Logger) db.Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// pebbleLogger satisfies pebble.Logger.
type pebbleLogger struct {
	db.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.Printf(format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	l.Printf("ERROR: "+format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...any) {
	l.Printf("FATAL: "+format, args...)
	fmt.Fprintf(os.Stderr, "pebble: "+format+"\n", args...)
	os.Exit(1)
}

// badgerLogger satisfies badger.Logger. Debug output is dropped.
type badgerLogger struct {
	db.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.Printf("ERROR: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Printf("WARN: "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.Printf(format, args...)
}

func (badgerLogger) Debugf(string, ...any) {}
