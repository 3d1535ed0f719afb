package engine

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/ls4154/rangetest/db"
)

const (
	pebbleNumLevels = 7
	// L0 file count at which writes stop. With automatic compactions off
	// nothing drains L0, so the limit is lifted out of reach.
	pebbleDisabledL0Stop = 1 << 20
)

type pebbleDB struct {
	d   *pebble.DB
	log db.Logger
}

func openPebble(options *db.Options, path string) (db.DB, error) {
	cache := pebble.NewCache(int64(options.BlockCacheSize))
	defer cache.Unref()

	compression := pebble.NoCompression
	if options.Compression == db.SnappyCompression {
		compression = pebble.SnappyCompression
	}

	po := &pebble.Options{
		Cache:                       cache,
		ErrorIfNotExists:            !options.CreateIfMissing,
		DisableAutomaticCompactions: options.DisableAutoCompactions,
		Levels:                      make([]pebble.LevelOptions, pebbleNumLevels),
	}
	if options.DisableAutoCompactions {
		po.L0StopWritesThreshold = pebbleDisabledL0Stop
	}
	if options.WriteBufferSize > 0 {
		po.MemTableSize = uint64(options.WriteBufferSize)
	}
	for i := range po.Levels {
		l := &po.Levels[i]
		l.Compression = compression
		l.TargetFileSize = options.TargetFileSize
		if i > 0 && options.TargetFileSize > 0 {
			l.TargetFileSize = po.Levels[i-1].TargetFileSize * 2
		}
	}
	if options.Logger != nil {
		po.Logger = pebbleLogger{options.Logger}
	}

	d, err := pebble.Open(path, po)
	if err != nil {
		return nil, errors.Wrapf(err, "pebble: open %s", path)
	}
	return &pebbleDB{d: d, log: loggerOrNop(options.Logger)}, nil
}

func (p *pebbleDB) Get(key []byte, _ *db.ReadOptions) ([]byte, error) {
	v, closer, err := p.d.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, errors.Wrap(err, "pebble: get")
	}
	out := cloneBytes(v)
	if err := closer.Close(); err != nil {
		return nil, errors.Wrap(err, "pebble: release value")
	}
	return out, nil
}

func (p *pebbleDB) Put(key, value []byte, options *db.WriteOptions) error {
	wo := pebble.NoSync
	if options != nil && options.Sync {
		wo = pebble.Sync
	}
	return errors.Wrap(p.d.Set(key, value, wo), "pebble: set")
}

func (p *pebbleDB) Flush() error {
	return errors.Wrap(p.d.Flush(), "pebble: flush")
}

// CompactRange fills open bounds from the current key extent because pebble
// requires both. The inclusive end is widened to pebble's exclusive limit.
func (p *pebbleDB) CompactRange(begin, end []byte) error {
	if begin == nil || end == nil {
		first, last, ok, err := p.extent()
		if err != nil {
			return err
		}
		if !ok {
			p.log.Printf("pebble: compact range skipped on empty db")
			return nil
		}
		if begin == nil {
			begin = first
		}
		if end == nil {
			end = last
		}
	}
	return errors.Wrapf(p.d.Compact(begin, widenEnd(end), true), "pebble: compact [%q, %q]", begin, end)
}

func (p *pebbleDB) extent() (first, last []byte, ok bool, err error) {
	it, err := p.d.NewIter(nil)
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "pebble: new iterator")
	}
	defer it.Close()

	if !it.First() {
		return nil, nil, false, errors.Wrap(it.Error(), "pebble: seek first")
	}
	first = cloneBytes(it.Key())
	if !it.Last() {
		return nil, nil, false, errors.Wrap(it.Error(), "pebble: seek last")
	}
	last = cloneBytes(it.Key())
	return first, last, true, nil
}

func (p *pebbleDB) NewIterator(_ *db.ReadOptions) (db.Iterator, error) {
	it, err := p.d.NewIter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "pebble: new iterator")
	}
	return &pebbleIterator{it: it}, nil
}

func (p *pebbleDB) Close() error {
	return errors.Wrap(p.d.Close(), "pebble: close")
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func (i *pebbleIterator) Valid() bool { return i.it.Valid() }
func (i *pebbleIterator) SeekToFirst() { i.it.First() }
func (i *pebbleIterator) SeekToLast() { i.it.Last() }
func (i *pebbleIterator) Seek(target []byte) { i.it.SeekGE(target) }
func (i *pebbleIterator) Next() { i.it.Next() }
func (i *pebbleIterator) Prev() { i.it.Prev() }
func (i *pebbleIterator) Key() []byte { return i.it.Key() }
func (i *pebbleIterator) Value() []byte { return i.it.Value() }
func (i *pebbleIterator) Error() error { return i.it.Error() }
func (i *pebbleIterator) Close() error { return i.it.Close() }
