// Package buffer implements the bounded FIFO byte store the rest of the
// core is built on: a contiguous region with a consumer cursor and a
// producer cursor, zero-copy peek/consume/produce, and compaction.
package buffer

import "fmt"

// Buffer is a contiguous byte region with capacity C, a consumer index b
// and a producer index t, 0 <= b <= t <= C. It may either own its storage
// or be a read-only view over externally owned memory (see NewView); the
// two are indistinguishable to callers except that a view panics if asked
// to produce into it.
type Buffer struct {
	data   []byte
	bottom int // consumer cursor
	top    int // producer cursor
	isView bool
}

// NewOwned allocates a buffer with the given capacity.
func NewOwned(capacity int) *Buffer {
	if capacity < 0 {
		panic(fmt.Errorf("buffer: negative capacity %d", capacity))
	}
	return &Buffer{data: make([]byte, capacity)}
}

// NewView wraps data as a read-only buffer: bottom=0, top=len(data). It is
// used to hand body/frame slices to callbacks without copying; the
// protocol must never attempt to Produce into a view.
func NewView(data []byte) *Buffer {
	return &Buffer{data: data, bottom: 0, top: len(data), isView: true}
}

// Usage returns the number of bytes currently held.
func (b *Buffer) Usage() int { return b.top - b.bottom }

// DirectAvail returns the number of bytes available to produce as a flat
// run without compaction.
func (b *Buffer) DirectAvail() int { return len(b.data) - b.top }

// TotalAvail returns the total number of bytes available to produce,
// including what compaction would reclaim.
func (b *Buffer) TotalAvail() int { return (len(b.data) - b.top) + b.bottom }

// Compact slides [bottom,top) down to [0,top-bottom). Idempotent when
// bottom==0. Returns DirectAvail() after compaction.
func (b *Buffer) Compact() int {
	if b.bottom != 0 {
		n := b.Usage()
		copy(b.data, b.data[b.bottom:b.top])
		b.bottom = 0
		b.top = n
	}
	return b.DirectAvail()
}

// Peek returns the next byte (0..255) without consuming it, or -1 when
// empty.
func (b *Buffer) Peek() int {
	if b.bottom >= b.top {
		return -1
	}
	return int(b.data[b.bottom])
}

// Consume removes and returns one byte. It panics if the buffer is empty:
// callers must check Usage() first, per spec the error here is a
// programmer/protocol-logic error, not a peer error.
func (b *Buffer) Consume() byte {
	if b.bottom >= b.top {
		panic(fmt.Errorf("buffer: consume on empty buffer"))
	}
	c := b.data[b.bottom]
	b.bottom++
	return c
}

// ToConsume returns a slice of the bytes currently available to consume,
// for zero-copy I/O (e.g. a reactor's send(2) call).
func (b *Buffer) ToConsume() []byte {
	return b.data[b.bottom:b.top]
}

// Consumed advances the consumer cursor by n bytes already read out-of-band
// via ToConsume.
func (b *Buffer) Consumed(n int) {
	if n < 0 || n > b.Usage() {
		panic(fmt.Errorf("buffer: consumed underflow/overflow n=%d usage=%d", n, b.Usage()))
	}
	b.bottom += n
}

// ToProduce returns a slice of the bytes available to write into, for
// zero-copy I/O (e.g. a reactor's recv(2) call). Callers must call
// Produced with the number of bytes actually written.
func (b *Buffer) ToProduce() []byte {
	if b.isView {
		panic(fmt.Errorf("buffer: cannot produce into a view buffer"))
	}
	return b.data[b.top:len(b.data)]
}

// Produced advances the producer cursor by n bytes already written
// out-of-band via ToProduce.
func (b *Buffer) Produced(n int) {
	if b.isView {
		panic(fmt.Errorf("buffer: cannot produce into a view buffer"))
	}
	if n > b.DirectAvail() {
		panic(fmt.Errorf("buffer: produced overflow n=%d avail=%d", n, b.DirectAvail()))
	}
	b.top += n
}

// Produce writes a single byte, compacting first if there is no direct
// room. Panics if there is still no space after compaction.
func (b *Buffer) Produce(c byte) {
	if b.isView {
		panic(fmt.Errorf("buffer: cannot produce into a view buffer"))
	}
	if b.DirectAvail() < 1 {
		if b.Compact() < 1 {
			panic(fmt.Errorf("buffer: no space available to produce"))
		}
	}
	b.data[b.top] = c
	b.top++
}

// ProduceFrom transfers up to min(source.Usage(), b.TotalAvail()) bytes
// from source into b, compacting b as needed.
func (b *Buffer) ProduceFrom(source *Buffer) {
	toCopy := source.Usage()
	if avail := b.TotalAvail(); toCopy > avail {
		toCopy = avail
	}
	b.ProduceFromN(source, toCopy)
}

// ProduceFromN transfers exactly n bytes from source into b. It panics if
// source lacks n bytes, or if b lacks room for n bytes even after
// compaction.
func (b *Buffer) ProduceFromN(source *Buffer, n int) {
	if b.isView {
		panic(fmt.Errorf("buffer: cannot produce into a view buffer"))
	}
	if source.Usage() < n {
		panic(fmt.Errorf("buffer: source has %d bytes, need %d", source.Usage(), n))
	}
	if b.DirectAvail() < n {
		if b.Compact() < n {
			panic(fmt.Errorf("buffer: not enough space to take %d copied bytes", n))
		}
	}
	copy(b.data[b.top:b.top+n], source.data[source.bottom:source.bottom+n])
	b.Produced(n)
	source.Consumed(n)
}

// String returns the currently-held bytes as a string, for debugging and
// tests.
func (b *Buffer) String() string {
	return string(b.data[b.bottom:b.top])
}
