package engine

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/skiplist"
)

const (
	memArenaBlockSize = 64 << 10
	// Table count that triggers a full merge when auto compactions are on.
	memAutoCompactTrigger = 4
)

// MemDB is an in-process engine: a skiplist memtable in front of a stack of
// immutable sorted tables. Flush turns the memtable into a table and
// CompactRange merges the tables overlapping the range into one.
type MemDB struct {
	opts *db.Options
	log  db.Logger

	mu     sync.RWMutex
	mem    *skiplist.SkipList
	tables []*memTable // oldest first
	stats  MemStats
	closed bool
}

// MemStats records what the harness asked the engine to do.
type MemStats struct {
	Flushes     int
	AutoFlushes int
	Compactions int
	// CompactedRanges holds the bounds of every CompactRange call; nil bounds
	// are kept as nil.
	CompactedRanges []MemRange
}

type MemRange struct {
	Begin []byte
	End   []byte
}

type memTable struct {
	keys   [][]byte
	values [][]byte
}

func OpenMemory(options *db.Options) *MemDB {
	if options == nil {
		options = db.DefaultOptions()
	}
	return &MemDB{
		opts: options,
		log:  loggerOrNop(options.Logger),
		mem:  newMemtable(),
	}
}

func newMemtable() *skiplist.SkipList {
	return skiplist.NewSkipList(skiplist.ByteComparator, skiplist.NewArena(memArenaBlockSize))
}

func (m *MemDB) Get(key []byte, _ *db.ReadOptions) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, db.ErrClosed
	}

	if v, ok := m.mem.Get(key); ok {
		return cloneBytes(v), nil
	}
	for i := len(m.tables) - 1; i >= 0; i-- {
		if v, ok := m.tables[i].get(key); ok {
			return cloneBytes(v), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *MemDB) Put(key, value []byte, _ *db.WriteOptions) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return db.ErrClosed
	}
	mem := m.mem
	mem.Put(key, value)
	m.mu.RUnlock()

	if m.opts.WriteBufferSize > 0 && mem.MemoryUsage() >= m.opts.WriteBufferSize {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Another writer may have rotated it already.
		if m.mem == mem && !m.closed {
			m.flushLocked()
			m.stats.AutoFlushes++
			m.maybeCompactLocked()
		}
	}
	return nil
}

func (m *MemDB) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return db.ErrClosed
	}

	m.flushLocked()
	m.stats.Flushes++
	m.maybeCompactLocked()
	return nil
}

func (m *MemDB) flushLocked() {
	if m.mem.Len() == 0 {
		return
	}
	t := &memTable{
		keys:   make([][]byte, 0, m.mem.Len()),
		values: make([][]byte, 0, m.mem.Len()),
	}
	it := m.mem.Iterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		t.keys = append(t.keys, it.Key())
		t.values = append(t.values, it.Value())
	}
	m.tables = append(m.tables, t)
	m.mem = newMemtable()
	m.log.Printf("memory: flushed table #%d entries=%d", len(m.tables), len(t.keys))
}

func (m *MemDB) maybeCompactLocked() {
	if m.opts.DisableAutoCompactions || len(m.tables) < memAutoCompactTrigger {
		return
	}
	m.compactLocked(nil, nil)
}

func (m *MemDB) CompactRange(begin, end []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return db.ErrClosed
	}

	m.stats.Compactions++
	m.stats.CompactedRanges = append(m.stats.CompactedRanges, MemRange{
		Begin: cloneBytes(begin),
		End:   cloneBytes(end),
	})

	m.flushLocked()
	m.compactLocked(begin, end)
	return nil
}

// compactLocked merges the tables from the oldest to the newest one
// overlapping [begin, end] into a single table at the oldest one's position.
// Tables in between are merged too, so no older value moves past a newer one.
func (m *MemDB) compactLocked(begin, end []byte) {
	lo, hi := -1, -1
	for i, t := range m.tables {
		if t.overlaps(begin, end) {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	if lo < 0 || lo == hi {
		return
	}

	merged := mergeTables(m.tables[lo : hi+1])
	out := make([]*memTable, 0, len(m.tables)-(hi-lo))
	out = append(out, m.tables[:lo]...)
	out = append(out, merged)
	out = append(out, m.tables[hi+1:]...)
	m.log.Printf("memory: compacted %d tables into 1 entries=%d", hi-lo+1, len(merged.keys))
	m.tables = out
}

func (m *MemDB) NewIterator(_ *db.ReadOptions) (db.Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, db.ErrClosed
	}

	snapshot := make([]*memTable, 0, len(m.tables)+1)
	snapshot = append(snapshot, m.tables...)
	live := &memTable{}
	it := m.mem.Iterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		live.keys = append(live.keys, it.Key())
		live.values = append(live.values, it.Value())
	}
	snapshot = append(snapshot, live)

	merged := mergeTables(snapshot)
	return &sliceIterator{keys: merged.keys, values: merged.values, pos: -1}, nil
}

func (m *MemDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Stats returns a copy of the engine's call record.
func (m *MemDB) Stats() MemStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.stats
	st.CompactedRanges = append([]MemRange(nil), m.stats.CompactedRanges...)
	return st
}

// NumTables reports the number of immutable tables.
func (m *MemDB) NumTables() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

func (t *memTable) get(key []byte) ([]byte, bool) {
	i := sort.Search(len(t.keys), func(i int) bool {
		return bytes.Compare(t.keys[i], key) >= 0
	})
	if i < len(t.keys) && bytes.Equal(t.keys[i], key) {
		return t.values[i], true
	}
	return nil, false
}

func (t *memTable) overlaps(begin, end []byte) bool {
	if len(t.keys) == 0 {
		return false
	}
	if begin != nil && bytes.Compare(t.keys[len(t.keys)-1], begin) < 0 {
		return false
	}
	if end != nil && bytes.Compare(t.keys[0], end) > 0 {
		return false
	}
	return true
}

// mergeTables merges sorted tables; for duplicate keys the later table wins.
func mergeTables(tables []*memTable) *memTable {
	latest := make(map[string][]byte)
	for _, t := range tables {
		for i, k := range t.keys {
			latest[string(k)] = t.values[i]
		}
	}
	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &memTable{
		keys:   make([][]byte, len(keys)),
		values: make([][]byte, len(keys)),
	}
	for i, k := range keys {
		out.keys[i] = []byte(k)
		out.values[i] = latest[k]
	}
	return out
}

type sliceIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
	closed bool
}

func (it *sliceIterator) Valid() bool {
	return !it.closed && it.pos >= 0 && it.pos < len(it.keys)
}

func (it *sliceIterator) SeekToFirst() {
	it.pos = 0
}

func (it *sliceIterator) SeekToLast() {
	it.pos = len(it.keys) - 1
}

func (it *sliceIterator) Seek(target []byte) {
	it.pos = sort.Search(len(it.keys), func(i int) bool {
		return bytes.Compare(it.keys[i], target) >= 0
	})
}

func (it *sliceIterator) Next() {
	if it.pos < len(it.keys) {
		it.pos++
	}
}

func (it *sliceIterator) Prev() {
	if it.pos >= 0 {
		it.pos--
	}
}

func (it *sliceIterator) Key() []byte {
	return it.keys[it.pos]
}

func (it *sliceIterator) Value() []byte {
	return it.values[it.pos]
}

func (it *sliceIterator) Error() error {
	return nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	return nil
}
