package peerstream

import "sync"

// DefaultChunkSize is the read/write unit for file bodies.
const DefaultChunkSize = 1 << 20

// chunkPool recycles file body buffers across the sessions of a node.
type chunkPool struct {
	pool sync.Pool
	size int
}

func newChunkPool(size int) *chunkPool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	p := &chunkPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

func (p *chunkPool) get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *chunkPool) put(buf *[]byte) {
	if cap(*buf) < p.size {
		return
	}
	*buf = (*buf)[:p.size]
	p.pool.Put(buf)
}
