package workload

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand"
	"strconv"
	"sync/atomic"
)

// KeyRange is an inclusive range of key numbers.
type KeyRange struct {
	Lo uint64
	Hi uint64
}

func (r KeyRange) Contains(n uint64) bool {
	return n >= r.Lo && n <= r.Hi
}

// SizeRange is an inclusive range of value sizes in bytes.
type SizeRange struct {
	Min int
	Max int
}

// FormatKey appends the decimal form of n to dst. Keys compare as byte
// strings, so "10" sorts before "9".
func FormatKey(dst []byte, n uint64) []byte {
	return strconv.AppendUint(dst, n, 10)
}

// SeedFor derives the seed of one worker. A zero base seeds from crypto/rand
// so that separate runs differ.
func SeedFor(base int64, worker int) int64 {
	if base == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err == nil {
			return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
		}
		return rand.Int63()
	}
	return base + 1000 + int64(worker)*7919
}

// Generator produces random keys and values for a single worker. It is not
// safe for concurrent use; Key and Value reuse their buffers between calls.
type Generator struct {
	rng    *rand.Rand
	keys   KeyRange
	values SizeRange
	ratio  float64

	keyBuf []byte
	valBuf []byte
}

func NewGenerator(seed int64, keys KeyRange, values SizeRange) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		keys:   keys,
		values: values,
		ratio:  1,
	}
}

// WithCompressionRatio makes values repeat a random fragment covering ratio
// of their length. Ratios outside (0, 1) produce incompressible values.
func (g *Generator) WithCompressionRatio(ratio float64) *Generator {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	g.ratio = ratio
	return g
}

func (g *Generator) Rand() *rand.Rand { return g.rng }

func (g *Generator) KeyRange() KeyRange { return g.keys }

func (g *Generator) SetKeyRange(r KeyRange) { g.keys = r }

// KeyNum returns a key number drawn uniformly from the key range.
func (g *Generator) KeyNum() uint64 {
	return g.keys.Lo + uniformUint64n(g.rng, g.keys.Hi-g.keys.Lo)
}

func (g *Generator) Key() []byte {
	g.keyBuf = FormatKey(g.keyBuf[:0], g.KeyNum())
	return g.keyBuf
}

func (g *Generator) ValueSize() int {
	if g.values.Max <= g.values.Min {
		return g.values.Min
	}
	return g.values.Min + g.rng.Intn(g.values.Max-g.values.Min+1)
}

// Value returns ValueSize() bytes drawn over the full byte range.
func (g *Generator) Value() []byte {
	n := g.ValueSize()
	if cap(g.valBuf) < n {
		g.valBuf = make([]byte, n)
	}
	v := g.valBuf[:n]
	if n == 0 {
		return v
	}

	raw := n
	if g.ratio < 1 {
		raw = int(float64(n) * g.ratio)
		if raw < 1 {
			raw = 1
		}
	}
	g.fill(v[:raw])
	for i := raw; i < n; i++ {
		v[i] = v[i%raw]
	}
	return v
}

func (g *Generator) fill(b []byte) {
	for len(b) >= 8 {
		binary.LittleEndian.PutUint64(b, g.rng.Uint64())
		b = b[8:]
	}
	if len(b) > 0 {
		var tail [8]byte
		binary.LittleEndian.PutUint64(tail[:], g.rng.Uint64())
		copy(b, tail[:])
	}
}

// uniformUint64n returns a value in [0, span].
func uniformUint64n(r *rand.Rand, span uint64) uint64 {
	if span < math.MaxInt64 {
		return uint64(r.Int63n(int64(span) + 1))
	}
	if span == math.MaxUint64 {
		return r.Uint64()
	}
	limit := span + 1
	// Reject the tail that would bias the modulo.
	ceil := math.MaxUint64 - math.MaxUint64%limit
	for {
		v := r.Uint64()
		if v < ceil {
			return v % limit
		}
	}
}

// uniformBetween returns a value in [lo, hi]; hi below lo yields lo.
func uniformBetween(r *rand.Rand, lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	return lo + uniformUint64n(r, hi-lo)
}

// Sequence hands out consecutive key numbers to concurrent writers.
type Sequence struct {
	next atomic.Uint64
}

func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.next.Store(start)
	return s
}

func (s *Sequence) Next() uint64 {
	return s.next.Add(1) - 1
}
