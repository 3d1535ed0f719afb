package skiplist

// Arena hands out byte slices carved from large blocks so that memtable keys
// and values share a few allocations. Not safe for concurrent use.
type Arena struct {
	blocks    int
	current   []byte
	bytesLeft int
	blockSize int
	memUsage  int
}

func NewArena(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &Arena{
		blockSize: blockSize,
	}
}

func (a *Arena) Allocate(bytes int) []byte {
	if a.bytesLeft < bytes {
		return a.allocateFallBack(bytes)
	}

	m := a.current[:bytes:bytes]
	a.current = a.current[bytes:]
	a.bytesLeft -= bytes
	return m
}

// Copy returns an arena-owned copy of b.
func (a *Arena) Copy(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	m := a.Allocate(len(b))
	copy(m, b)
	return m
}

func (a *Arena) allocateFallBack(bytes int) []byte {
	if bytes > a.blockSize/4 {
		return a.allocateNewBlock(bytes)
	}

	block := a.allocateNewBlock(a.blockSize)
	a.current = block[bytes:]
	a.bytesLeft = a.blockSize - bytes
	return block[:bytes:bytes]
}

func (a *Arena) allocateNewBlock(bytes int) []byte {
	a.blocks++
	a.memUsage += bytes
	return make([]byte, bytes)
}

func (a *Arena) MemoryUsage() int {
	return a.memUsage
}
