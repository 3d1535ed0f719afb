package skiplist

import "bytes"

type Comparator interface {
	Compare(a []byte, b []byte) int
}

var ByteComparator byteComparator

type byteComparator struct{}

func (byteComparator) Compare(a []byte, b []byte) int {
	return bytes.Compare(a, b)
}
