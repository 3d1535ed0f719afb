package util

import (
	"github.com/golang/snappy"
)

// SnappyEstimator estimates how well generated values compress by running
// snappy over one value in every `every`. Not safe for concurrent use; give
// each writer its own and Merge them afterwards.
type SnappyEstimator struct {
	every      int
	seen       int
	raw        int64
	compressed int64
	buf        []byte
}

func NewSnappyEstimator(every int) *SnappyEstimator {
	if every <= 0 {
		every = 1
	}
	return &SnappyEstimator{every: every}
}

func (e *SnappyEstimator) Observe(value []byte) {
	e.seen++
	if (e.seen-1)%e.every != 0 {
		return
	}
	if n := snappy.MaxEncodedLen(len(value)); n > len(e.buf) {
		e.buf = make([]byte, n)
	}
	out := snappy.Encode(e.buf, value)
	e.raw += int64(len(value))
	e.compressed += int64(len(out))
}

func (e *SnappyEstimator) Merge(other *SnappyEstimator) {
	if other == nil {
		return
	}
	e.seen += other.seen
	e.raw += other.raw
	e.compressed += other.compressed
}

// Ratio is compressed/raw over the sampled values, or 1 when nothing was
// sampled.
func (e *SnappyEstimator) Ratio() float64 {
	if e.raw == 0 {
		return 1
	}
	return float64(e.compressed) / float64(e.raw)
}
