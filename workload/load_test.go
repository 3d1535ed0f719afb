package workload

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ls4154/rangetest/db"
	"github.com/ls4154/rangetest/engine"
)

func newMemDB(t *testing.T) *engine.MemDB {
	t.Helper()
	opt := db.DefaultOptions()
	opt.Engine = db.EngineMemory
	opt.WriteBufferSize = 0
	m := engine.OpenMemory(opt)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RecordCount = 1000
	cfg.RecordPerTable = 100
	cfg.TableMergeNum = 3
	cfg.KeyRange = 1000
	cfg.ValueMin, cfg.ValueMax = 8, 32
	cfg.ValueAvgSize, cfg.ValueSpread = 32, 16
	cfg.LoadThreads = 8
	cfg.ReadThreads = 2
	cfg.Seed = 7
	return cfg
}

func countKeys(t *testing.T, ldb db.DB) (int, []string) {
	t.Helper()
	it, err := ldb.NewIterator(nil)
	require.NoError(t, err)
	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.NoError(t, it.Close())
	return len(keys), keys
}

func TestBulkLoadSequential(t *testing.T) {
	m := newMemDB(t)
	cfg := testConfig()
	cfg.LoadMode = LoadBulk
	cfg.KeyOrder = KeySequential

	var out bytes.Buffer
	l := &Loader{DB: m, Config: cfg, Out: &out}
	res, err := l.BulkLoad(context.Background())
	require.NoError(t, err)

	require.GreaterOrEqual(t, res.Writes, int64(1000))
	require.LessOrEqual(t, res.Writes, int64(1000+cfg.LoadThreads-1))
	require.Equal(t, 1000-res.Writes, res.Remaining)
	require.Equal(t, "Load 1000 records.\n", out.String())
	require.Equal(t, 1, m.Stats().Flushes)

	n, keys := countKeys(t, m)
	require.Equal(t, int(res.Writes), n)
	for _, k := range keys {
		v, err := strconv.ParseUint(k, 10, 64)
		require.NoError(t, err)
		require.Less(t, v, uint64(res.Writes))
	}
}

func TestBulkLoadRandom(t *testing.T) {
	m := newMemDB(t)
	cfg := testConfig()
	cfg.LoadMode = LoadBulk

	l := &Loader{DB: m, Config: cfg}
	res, err := l.BulkLoad(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Writes, int64(1000))

	n, keys := countKeys(t, m)
	require.LessOrEqual(t, n, int(res.Writes))
	for _, k := range keys {
		v, err := strconv.ParseUint(k, 10, 64)
		require.NoError(t, err)
		require.LessOrEqual(t, v, uint64(1000))
	}
}

func TestRoundLoad(t *testing.T) {
	m := newMemDB(t)
	cfg := testConfig()

	var out bytes.Buffer
	l := &Loader{DB: m, Config: cfg, Out: &out}
	rounds, err := l.RoundLoad(context.Background())
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	require.Equal(t, "Flush: 0\nFlush: 1\nFlush: 2\n", out.String())
	require.Equal(t, 3, m.Stats().Flushes)
	require.Equal(t, 3, m.NumTables())

	var total int64
	for _, r := range rounds {
		require.GreaterOrEqual(t, r.Target, int64(90))
		require.LessOrEqual(t, r.Target, int64(110))
		require.GreaterOrEqual(t, r.Writes, r.Target)
		require.LessOrEqual(t, r.Writes, r.Target+int64(cfg.LoadThreads-1))
		require.Len(t, r.Keys, cfg.LoadThreads)
		for _, kr := range r.Keys {
			require.LessOrEqual(t, kr.Lo, kr.Hi)
			require.LessOrEqual(t, kr.Hi, cfg.KeyRange)
		}
		total += r.Writes
	}

	n, keys := countKeys(t, m)
	require.LessOrEqual(t, n, int(total))
	for _, k := range keys {
		v, err := strconv.ParseUint(k, 10, 64)
		require.NoError(t, err)
		require.LessOrEqual(t, v, cfg.KeyRange)
	}
}

func TestRoundTarget(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		n := RoundTarget(r, 100)
		require.GreaterOrEqual(t, n, int64(90))
		require.LessOrEqual(t, n, int64(110))
	}
	for i := 0; i < 100; i++ {
		n := RoundTarget(r, 3)
		require.GreaterOrEqual(t, n, int64(1))
		require.LessOrEqual(t, n, int64(13))
	}
}

func TestSubRange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		kr := SubRange(r, 1000, 4)
		require.LessOrEqual(t, kr.Lo, kr.Hi)
		require.LessOrEqual(t, kr.Hi, uint64(1000))
		want := kr.Lo + 250
		if want > 1000 {
			want = 1000
		}
		require.GreaterOrEqual(t, kr.Hi, want)
	}

	kr := SubRange(r, 0, 4)
	require.Equal(t, KeyRange{}, kr)
}

type failingDB struct {
	db.DB
	after int64
	puts  atomic.Int64
}

var errInjected = errors.New("injected put failure")

func (f *failingDB) Put(key, value []byte, wo *db.WriteOptions) error {
	if f.puts.Add(1) > f.after {
		return errInjected
	}
	return f.DB.Put(key, value, wo)
}

func TestLoadStopsOnWriteError(t *testing.T) {
	f := &failingDB{DB: newMemDB(t), after: 50}
	cfg := testConfig()
	cfg.LoadMode = LoadBulk

	l := &Loader{DB: f, Config: cfg}
	_, err := l.BulkLoad(context.Background())
	require.ErrorIs(t, err, errInjected)
	require.Contains(t, err.Error(), "put")

	f = &failingDB{DB: newMemDB(t), after: 150}
	cfg = testConfig()
	var out bytes.Buffer
	l = &Loader{DB: f, Config: cfg, Out: &out}
	rounds, err := l.RoundLoad(context.Background())
	require.ErrorIs(t, err, errInjected)
	require.True(t, strings.HasPrefix(err.Error(), "round 1:"), err.Error())
	require.Len(t, rounds, 1)
	require.Equal(t, "Flush: 0\n", out.String())
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	cfg.LoadMode = LoadBulk
	l := &Loader{DB: newMemDB(t), Config: cfg}
	_, err := l.BulkLoad(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
