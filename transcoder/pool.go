package transcoder

import "sync"

// flatPool recycles the core slot buffers used while flattening call
// arguments. Oversized buffers are dropped instead of pooled.
var flatPool = sync.Pool{
	New: func() any {
		buf := make([]uint64, 0, MaxFlatParams)
		return &buf
	},
}

const maxPooledFlatCapacity = 4 * MaxFlatParams

func getFlat() *[]uint64 {
	return flatPool.Get().(*[]uint64)
}

func putFlat(buf *[]uint64) {
	if buf == nil || cap(*buf) > maxPooledFlatCapacity {
		return
	}
	*buf = (*buf)[:0]
	flatPool.Put(buf)
}
