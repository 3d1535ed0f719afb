package engine

import (
	"bytes"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/pkg/errors"

	"github.com/ls4154/rangetest/db"
)

type badgerDB struct {
	d   *badger.DB
	log db.Logger
}

// openBadger maps the common options onto badger. Badger keeps its own
// compactors running: with none, level-0 stalls block writers for good.
func openBadger(o *db.Options, path string) (db.DB, error) {
	compression := options.None
	if o.Compression == db.SnappyCompression {
		compression = options.Snappy
	}

	bo := badger.DefaultOptions(path).
		WithCompression(compression).
		WithLogger(nil)
	if o.WriteBufferSize > 0 {
		bo = bo.WithMemTableSize(int64(o.WriteBufferSize))
		bo = bo.WithValueThreshold(badgerValueThreshold(bo.ValueThreshold, bo.MemTableSize))
	}
	if o.TargetFileSize > 0 {
		bo = bo.WithBaseTableSize(o.TargetFileSize)
	}
	if o.BlockCacheSize > 0 {
		bo = bo.WithBlockCacheSize(int64(o.BlockCacheSize))
	}
	if o.Logger != nil {
		bo = bo.WithLogger(badgerLogger{o.Logger})
	}

	d, err := badger.Open(bo)
	if err != nil {
		return nil, errors.Wrapf(err, "badger: open %s", path)
	}
	return &badgerDB{d: d, log: loggerOrNop(o.Logger)}, nil
}

// badgerValueThreshold caps the value threshold at badger's maximum batch
// size, which is 15% of the memtable. Open rejects anything larger.
func badgerValueThreshold(threshold, memTableSize int64) int64 {
	return max(1, min(threshold, memTableSize*15/100))
}

func (b *badgerDB) Get(key []byte, _ *db.ReadOptions) ([]byte, error) {
	var value []byte
	err := b.d.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, errors.Wrap(err, "badger: get")
	}
	return value, nil
}

func (b *badgerDB) Put(key, value []byte, _ *db.WriteOptions) error {
	err := b.d.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	return errors.Wrap(err, "badger: set")
}

// Flush syncs the value log. Badger exposes no memtable flush.
func (b *badgerDB) Flush() error {
	return errors.Wrap(b.d.Sync(), "badger: sync")
}

// CompactRange flattens the whole tree; badger cannot bound a manual
// compaction by key.
func (b *badgerDB) CompactRange(begin, end []byte) error {
	if begin != nil || end != nil {
		b.log.Printf("badger: compact range [%q, %q] widened to the full tree", begin, end)
	}
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return errors.Wrap(b.d.Flatten(workers), "badger: flatten")
}

func (b *badgerDB) NewIterator(_ *db.ReadOptions) (db.Iterator, error) {
	return &badgerIterator{txn: b.d.NewTransaction(false)}, nil
}

func (b *badgerDB) Close() error {
	return errors.Wrap(b.d.Close(), "badger: close")
}

// badgerIterator emulates a bidirectional iterator with one forward and one
// reverse badger iterator over the same read-only transaction.
type badgerIterator struct {
	txn     *badger.Txn
	fwd     *badger.Iterator
	rev     *badger.Iterator
	cur     *badger.Iterator
	key     []byte
	value   []byte
	err     error
	invalid bool
}

func (i *badgerIterator) forward() *badger.Iterator {
	if i.fwd == nil {
		i.fwd = i.txn.NewIterator(badger.DefaultIteratorOptions)
	}
	return i.fwd
}

func (i *badgerIterator) reverse() *badger.Iterator {
	if i.rev == nil {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		i.rev = i.txn.NewIterator(opts)
	}
	return i.rev
}

func (i *badgerIterator) load(it *badger.Iterator) {
	i.cur = it
	i.key, i.value = nil, nil
	i.invalid = !it.Valid()
	if i.invalid {
		return
	}
	item := it.Item()
	i.key = item.KeyCopy(nil)
	i.value, i.err = item.ValueCopy(nil)
	if i.err != nil {
		i.invalid = true
	}
}

func (i *badgerIterator) Valid() bool {
	return i.cur != nil && !i.invalid
}

func (i *badgerIterator) SeekToFirst() {
	it := i.forward()
	it.Rewind()
	i.load(it)
}

func (i *badgerIterator) SeekToLast() {
	it := i.reverse()
	it.Rewind()
	i.load(it)
}

func (i *badgerIterator) Seek(target []byte) {
	it := i.forward()
	it.Seek(target)
	i.load(it)
}

func (i *badgerIterator) Next() {
	if !i.Valid() {
		return
	}
	if i.cur == i.fwd {
		i.fwd.Next()
		i.load(i.fwd)
		return
	}
	it := i.forward()
	it.Seek(i.key)
	if it.Valid() && bytes.Equal(it.Item().Key(), i.key) {
		it.Next()
	}
	i.load(it)
}

func (i *badgerIterator) Prev() {
	if !i.Valid() {
		return
	}
	if i.cur == i.rev {
		i.rev.Next()
		i.load(i.rev)
		return
	}
	it := i.reverse()
	it.Seek(i.key)
	if it.Valid() && bytes.Equal(it.Item().Key(), i.key) {
		it.Next()
	}
	i.load(it)
}

func (i *badgerIterator) Key() []byte { return i.key }
func (i *badgerIterator) Value() []byte { return i.value }
func (i *badgerIterator) Error() error { return i.err }

func (i *badgerIterator) Close() error {
	if i.fwd != nil {
		i.fwd.Close()
	}
	if i.rev != nil {
		i.rev.Close()
	}
	i.txn.Discard()
	return i.err
}
