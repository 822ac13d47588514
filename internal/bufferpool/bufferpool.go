// Package bufferpool provides a pool of growable byte buffers shared by the
// framing codec's compressed-write path, so that compressing many small
// messages per call doesn't allocate a fresh buffer every time.
package bufferpool

import (
	"bytes"
	"sync"
)

// maxPooledCapacity bounds how large a buffer we'll return to the pool;
// an oversized message shouldn't pin a huge backing array in the pool
// indefinitely.
const maxPooledCapacity = 1 << 20 // 1 MiB

// Pool is a sync.Pool of *bytes.Buffer. The zero value is ready to use.
type Pool struct {
	pool sync.Pool
}

// Get returns a reset, empty buffer.
func (p *Pool) Get() *bytes.Buffer {
	if b, ok := p.pool.Get().(*bytes.Buffer); ok {
		b.Reset()
		return b
	}
	return new(bytes.Buffer)
}

// Put returns b to the pool, unless it grew unreasonably large.
func (p *Pool) Put(b *bytes.Buffer) {
	if b.Cap() > maxPooledCapacity {
		return
	}
	p.pool.Put(b)
}
