package rangetest

import (
	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/engine"
)

func Open(options *db.Options, path string) (db.DB, error) {
	return engine.Open(options, path)
}
