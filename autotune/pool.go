package autotune

import "sync"

// stagingPool hands out host-side byte buffers for alias backup/restore,
// sized to the runtime's typical aliased-buffer footprint rather than
// reallocating per call.
var stagingPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 4096)
		return &buf
	},
}

func getStagingBuf(size int) []byte {
	p := stagingPool.Get().(*[]byte)
	buf := *p
	if cap(buf) < size {
		buf = make([]byte, size)
	} else {
		buf = buf[:size]
	}
	return buf
}

func putStagingBuf(buf []byte) {
	buf = buf[:0]
	stagingPool.Put(&buf)
}
