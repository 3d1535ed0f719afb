package skiplist

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

// Concurrency: lock-free readers, writers serialized by an internal mutex.
// Readers can run concurrently with a writer and may miss in-flight inserts.
type SkipList struct {
	cmp       Comparator
	arena     *Arena
	head      *node
	maxHeight atomic.Int32
	length    atomic.Int64

	mu  sync.Mutex
	rnd *rand.Rand // guarded by mu
}

const maxHeight = 12

type node struct {
	key   []byte
	value atomic.Pointer[[]byte]
	next  [maxHeight]atomic.Pointer[node]
}

func NewSkipList(cmp Comparator, arena *Arena) *SkipList {
	sl := &SkipList{
		cmp:   cmp,
		arena: arena,
		head:  &node{},
		rnd:   rand.New(rand.NewSource(0xdeadbeef)),
	}
	sl.maxHeight.Store(1)
	return sl
}

// Put inserts key with value, replacing the value of an existing key.
// Key and value are copied into the arena. Reports whether the key was new.
func (s *SkipList) Put(key, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev [maxHeight]*node
	x := s.findGreaterOrEqual(key, prev[:])
	v := s.arena.Copy(value)
	if x != nil && s.cmp.Compare(key, x.key) == 0 {
		x.value.Store(&v)
		return false
	}

	height := s.randomHeight()
	curMaxHeight := s.maxHeight.Load()
	if height > curMaxHeight {
		for i := curMaxHeight; i < height; i++ {
			prev[i] = s.head
		}
		s.maxHeight.Store(height)
	}

	x = &node{key: s.arena.Copy(key)}
	x.value.Store(&v)
	for i := int32(0); i < height; i++ {
		x.next[i].Store(prev[i].next[i].Load())
		prev[i].next[i].Store(x)
	}
	s.length.Add(1)
	return true
}

func (s *SkipList) Contains(key []byte) bool {
	x := s.findGreaterOrEqual(key, nil)
	return x != nil && s.cmp.Compare(key, x.key) == 0
}

func (s *SkipList) Get(key []byte) ([]byte, bool) {
	x := s.findGreaterOrEqual(key, nil)
	if x != nil && s.cmp.Compare(key, x.key) == 0 {
		return x.Value(), true
	}
	return nil, false
}

func (s *SkipList) Len() int {
	return int(s.length.Load())
}

// MemoryUsage reports bytes held by the backing arena.
func (s *SkipList) MemoryUsage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.MemoryUsage()
}

func (s *SkipList) Iterator() *Iterator {
	return &Iterator{
		list: s,
	}
}

func (s *SkipList) findGreaterOrEqual(key []byte, prev []*node) *node {
	cur := s.head
	lv := s.maxHeight.Load() - 1
	for {
		next := cur.next[lv].Load()
		if s.keyIsAfterNode(key, next) {
			cur = next
			continue
		}
		if prev != nil {
			prev[lv] = cur
		}
		if lv == 0 {
			return next
		}
		lv--
	}
}

func (s *SkipList) findLessThan(key []byte) *node {
	cur := s.head
	lv := s.maxHeight.Load() - 1
	for {
		next := cur.next[lv].Load()
		if s.keyIsAfterNode(key, next) {
			cur = next
			continue
		}
		if lv == 0 {
			return cur
		}
		lv--
	}
}

func (s *SkipList) findLast() *node {
	cur := s.head
	lv := s.maxHeight.Load() - 1
	for {
		next := cur.next[lv].Load()
		if next != nil {
			cur = next
			continue
		}
		if lv == 0 {
			return cur
		}
		lv--
	}
}

func (s *SkipList) keyIsAfterNode(key []byte, x *node) bool {
	return x != nil && s.cmp.Compare(x.key, key) < 0
}

func (s *SkipList) randomHeight() int32 {
	const branching = 4
	height := int32(1)
	for height < maxHeight && s.rnd.Intn(branching) == 0 {
		height++
	}
	return height
}

func (n *node) Value() []byte {
	if v := n.value.Load(); v != nil {
		return *v
	}
	return nil
}

type Iterator struct {
	list *SkipList
	node *node
}

func (it *Iterator) Valid() bool {
	return it.node != nil
}

func (it *Iterator) Next() {
	it.node = it.node.next[0].Load()
}

func (it *Iterator) Prev() {
	it.node = it.list.findLessThan(it.node.key)
	if it.node == it.list.head {
		it.node = nil
	}
}

func (it *Iterator) SeekToFirst() {
	it.node = it.list.head.next[0].Load()
}

func (it *Iterator) SeekToLast() {
	it.node = it.list.findLast()
	if it.node == it.list.head {
		it.node = nil
	}
}

func (it *Iterator) Seek(key []byte) {
	it.node = it.list.findGreaterOrEqual(key, nil)
}

func (it *Iterator) Key() []byte {
	return it.node.key
}

func (it *Iterator) Value() []byte {
	return it.node.Value()
}
