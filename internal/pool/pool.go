package pool

import "sync"

const minCap = 64

var bufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, minCap)
	},
}

// Get returns a zero-length buffer with capacity of at least size.
func Get(size int) []byte {
	buf := bufPool.Get().([]byte)
	if cap(buf) < size {
		bufPool.Put(buf) //nolint:staticcheck
		return make([]byte, 0, size)
	}
	return buf[:0]
}

// Put returns buf to the pool. The caller must not touch buf afterwards.
func Put(buf []byte) {
	if buf == nil {
		return
	}
	bufPool.Put(buf[:0]) //nolint:staticcheck
}
