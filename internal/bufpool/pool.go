// Package bufpool provides reusable byte buffers for encode paths.
package bufpool

import "sync"

const (
	defaultSize      = 512
	defaultMaxRetain = 64 * 1024
)

// Buffer is a pooled byte slice. B may be grown by the holder; the grown
// slice is what goes back to the pool.
type Buffer struct {
	B []byte
}

// Pool hands out buffers for the duration of one operation.
type Pool struct {
	p         sync.Pool
	maxRetain int
}

// New creates a pool whose fresh buffers have the given capacity. Buffers that
// grew past maxRetain are dropped on Put instead of being kept alive. A
// maxRetain below size falls back to the larger of size and 64 KiB.
func New(size, maxRetain int) *Pool {
	if size <= 0 {
		size = defaultSize
	}
	if maxRetain < size {
		maxRetain = max(size, defaultMaxRetain)
	}
	pool := &Pool{maxRetain: maxRetain}
	pool.p.New = func() any {
		return &Buffer{B: make([]byte, 0, size)}
	}
	return pool
}

// Default returns a pool with default sizes.
func Default() *Pool {
	return New(defaultSize, defaultMaxRetain)
}

// Get rents an empty buffer.
func (p *Pool) Get() *Buffer {
	b := p.p.Get().(*Buffer)
	b.B = b.B[:0]
	return b
}

// Put returns a buffer. The caller must not touch b afterwards.
func (p *Pool) Put(b *Buffer) {
	if b == nil || cap(b.B) > p.maxRetain {
		return
	}
	b.B = b.B[:0]
	p.p.Put(b)
}

// With rents a buffer for the duration of fn and always returns it.
func (p *Pool) With(fn func(b *Buffer) error) error {
	b := p.Get()
	defer p.Put(b)
	return fn(b)
}
