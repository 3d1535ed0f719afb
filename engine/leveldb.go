package engine

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ls4154/rangetest/db"
)

// Level-0 table count used in place of "never" when auto compactions are
// disabled. The write stall triggers must stay above it.
const leveldbDisabledL0Trigger = 1 << 20

type levelDB struct {
	d *leveldb.DB
}

func openLevelDB(options *db.Options, path string) (db.DB, error) {
	o := &opt.Options{
		ErrorIfMissing:      !options.CreateIfMissing,
		BlockCacheCapacity:  options.BlockCacheSize,
		WriteBuffer:         options.WriteBufferSize,
		CompactionTableSize: int(options.TargetFileSize),
		Compression:         opt.NoCompression,
	}
	if options.Compression == db.SnappyCompression {
		o.Compression = opt.SnappyCompression
	}
	if options.DisableAutoCompactions {
		o.CompactionL0Trigger = leveldbDisabledL0Trigger
		o.WriteL0SlowdownTrigger = leveldbDisabledL0Trigger + 1
		o.WriteL0PauseTrigger = leveldbDisabledL0Trigger + 2
		o.DisableSeeksCompaction = true
	}

	d, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, errors.Wrapf(err, "leveldb: open %s", path)
	}
	return &levelDB{d: d}, nil
}

func (l *levelDB) Get(key []byte, options *db.ReadOptions) ([]byte, error) {
	var ro *opt.ReadOptions
	if options != nil {
		ro = &opt.ReadOptions{DontFillCache: !options.FillCache}
	}
	v, err := l.d.Get(key, ro)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, errors.Wrap(err, "leveldb: get")
	}
	return v, nil
}

func (l *levelDB) Put(key, value []byte, options *db.WriteOptions) error {
	var wo *opt.WriteOptions
	if options != nil {
		wo = &opt.WriteOptions{Sync: options.Sync}
	}
	return errors.Wrap(l.d.Put(key, value, wo), "leveldb: put")
}

// Flush writes the memdb out as a table. Opening a transaction rotates a
// non-empty memdb and waits for it to reach disk; discarding it releases the
// write lock without touching the data.
func (l *levelDB) Flush() error {
	tr, err := l.d.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "leveldb: flush")
	}
	tr.Discard()
	return nil
}

func (l *levelDB) CompactRange(begin, end []byte) error {
	r := util.Range{Start: begin, Limit: widenEnd(end)}
	return errors.Wrapf(l.d.CompactRange(r), "leveldb: compact [%q, %q]", begin, end)
}

func (l *levelDB) NewIterator(options *db.ReadOptions) (db.Iterator, error) {
	var ro *opt.ReadOptions
	if options != nil {
		ro = &opt.ReadOptions{DontFillCache: !options.FillCache}
	}
	return &levelIterator{it: l.d.NewIterator(nil, ro)}, nil
}

func (l *levelDB) Close() error {
	return errors.Wrap(l.d.Close(), "leveldb: close")
}

type levelIterator struct {
	it iterator.Iterator
}

func (i *levelIterator) Valid() bool { return i.it.Valid() }
func (i *levelIterator) SeekToFirst() { i.it.First() }
func (i *levelIterator) SeekToLast() { i.it.Last() }
func (i *levelIterator) Seek(target []byte) { i.it.Seek(target) }
func (i *levelIterator) Next() { i.it.Next() }
func (i *levelIterator) Prev() { i.it.Prev() }
func (i *levelIterator) Key() []byte { return i.it.Key() }
func (i *levelIterator) Value() []byte { return i.it.Value() }
func (i *levelIterator) Error() error { return i.it.Error() }

func (i *levelIterator) Close() error {
	err := i.it.Error()
	i.it.Release()
	return err
}
