package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ls4154/rangetest/db"
)

func newTestMemDB(autoCompact bool) *MemDB {
	opt := db.DefaultOptions()
	opt.Engine = db.EngineMemory
	opt.WriteBufferSize = 0
	opt.DisableAutoCompactions = !autoCompact
	return OpenMemory(opt)
}

func TestMemDBFlushBuildsTables(t *testing.T) {
	m := newTestMemDB(false)
	defer m.Close()

	for round := 0; round < 3; round++ {
		for i := 0; i < 10; i++ {
			key := []byte(fmt.Sprintf("%d", round*10+i))
			require.NoError(t, m.Put(key, []byte("x"), nil))
		}
		require.NoError(t, m.Flush())
	}

	require.Equal(t, 3, m.NumTables())
	require.Equal(t, 3, m.Stats().Flushes)

	// An empty memtable does not produce a table.
	require.NoError(t, m.Flush())
	require.Equal(t, 3, m.NumTables())
	require.Equal(t, 4, m.Stats().Flushes)
}

func TestMemDBNewerTableWins(t *testing.T) {
	m := newTestMemDB(false)
	defer m.Close()

	require.NoError(t, m.Put([]byte("k"), []byte("old"), nil))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Put([]byte("k"), []byte("new"), nil))
	require.NoError(t, m.Flush())

	v, err := m.Get([]byte("k"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)

	require.NoError(t, m.CompactRange(nil, nil))
	require.Equal(t, 1, m.NumTables())

	v, err = m.Get([]byte("k"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestMemDBCompactRangeMergesOverlapping(t *testing.T) {
	m := newTestMemDB(false)
	defer m.Close()

	for _, batch := range [][]string{{"a", "c"}, {"b", "d"}, {"x", "z"}} {
		for _, k := range batch {
			require.NoError(t, m.Put([]byte(k), []byte(k), nil))
		}
		require.NoError(t, m.Flush())
	}
	require.Equal(t, 3, m.NumTables())

	require.NoError(t, m.CompactRange([]byte("a"), []byte("d")))
	require.Equal(t, 2, m.NumTables())

	st := m.Stats()
	require.Equal(t, 1, st.Compactions)
	require.Equal(t, []MemRange{{Begin: []byte("a"), End: []byte("d")}}, st.CompactedRanges)

	require.NoError(t, m.CompactRange(nil, nil))
	require.Equal(t, 1, m.NumTables())
	require.Nil(t, m.Stats().CompactedRanges[1].Begin)
	require.Nil(t, m.Stats().CompactedRanges[1].End)
}

func TestMemDBCompactRangeKeepsNewestValue(t *testing.T) {
	m := newTestMemDB(false)
	defer m.Close()

	for _, batch := range [][][2]string{
		{{"1", "a"}, {"5", "old"}},
		{{"5", "new"}},
		{{"2", "b"}},
	} {
		for _, kv := range batch {
			require.NoError(t, m.Put([]byte(kv[0]), []byte(kv[1]), nil))
		}
		require.NoError(t, m.Flush())
	}

	// Only the first and last tables overlap ["2", "3"]; the middle one is
	// merged with them so its "5" still shadows the older one.
	require.NoError(t, m.CompactRange([]byte("2"), []byte("3")))
	require.Equal(t, 1, m.NumTables())

	v, err := m.Get([]byte("5"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestMemDBCompactRangeLeavesOuterTables(t *testing.T) {
	m := newTestMemDB(false)
	defer m.Close()

	for _, k := range []string{"a", "m", "n", "z"} {
		require.NoError(t, m.Put([]byte(k), []byte("old"), nil))
		require.NoError(t, m.Flush())
	}
	require.NoError(t, m.Put([]byte("m"), []byte("new"), nil))
	require.NoError(t, m.Flush())

	require.NoError(t, m.CompactRange([]byte("m"), []byte("n")))
	// Table "a" stays. Tables 1..4 merge, "z" included.
	require.Equal(t, 2, m.NumTables())

	v, err := m.Get([]byte("m"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestMemDBAutoCompaction(t *testing.T) {
	m := newTestMemDB(true)
	defer m.Close()

	for i := 0; i < memAutoCompactTrigger; i++ {
		require.NoError(t, m.Put([]byte(fmt.Sprintf("%d", i)), nil, nil))
		require.NoError(t, m.Flush())
	}
	require.Equal(t, 1, m.NumTables())
}

func TestMemDBWriteBufferRotation(t *testing.T) {
	opt := db.DefaultOptions()
	opt.WriteBufferSize = memArenaBlockSize
	m := OpenMemory(opt)
	defer m.Close()

	value := make([]byte, 1024)
	for i := 0; i < 200; i++ {
		require.NoError(t, m.Put([]byte(fmt.Sprintf("%d", i)), value, nil))
	}
	require.Positive(t, m.Stats().AutoFlushes)
	require.Zero(t, m.Stats().Flushes)

	for i := 0; i < 200; i++ {
		_, err := m.Get([]byte(fmt.Sprintf("%d", i)), nil)
		require.NoError(t, err)
	}
}

func TestMemDBConcurrentPutFlush(t *testing.T) {
	m := newTestMemDB(false)
	defer m.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := []byte(fmt.Sprintf("%d", w*1000+i))
				if err := m.Put(key, key, nil); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Flush())
	}
	wg.Wait()
	require.NoError(t, m.Flush())

	it, err := m.NewIterator(nil)
	require.NoError(t, err)
	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		count++
	}
	require.NoError(t, it.Close())
	require.Equal(t, 8*500, count)
}

func TestMemDBClosed(t *testing.T) {
	m := newTestMemDB(false)
	require.NoError(t, m.Close())

	require.ErrorIs(t, m.Put([]byte("a"), nil, nil), db.ErrClosed)
	_, err := m.Get([]byte("a"), nil)
	require.ErrorIs(t, err, db.ErrClosed)
	require.ErrorIs(t, m.Flush(), db.ErrClosed)
}
