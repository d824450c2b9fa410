// Package buffer implements the zero-copy packet buffer used across the
// datalink layer: a contiguous byte region with head/data/tail/end indices,
// modelled on a Linux sk_buff.
package buffer

import "fmt"

// PacketBuffer is a contiguous byte region with four indices into buf:
//
//	head <= data <= tail <= end
//
// head/data/tail/end are offsets into buf, not pointers; this keeps the type
// copyable and avoids aliasing surprises when a buffer is reset and reused.
type PacketBuffer struct {
	buf  []byte
	head int
	data int
	tail int
	end  int
}

// Alloc returns a new buffer of the given capacity with head=data=tail=0.
func Alloc(size int) *PacketBuffer {
	return &PacketBuffer{buf: make([]byte, size), head: 0, data: 0, tail: 0, end: size}
}

// Reset reinitializes the buffer to the state Alloc(size) would produce,
// reusing the existing backing array.
func (p *PacketBuffer) Reset(size int) {
	if cap(p.buf) < size {
		p.buf = make([]byte, size)
	} else {
		p.buf = p.buf[:size]
	}
	p.head, p.data, p.tail, p.end = 0, 0, 0, size
}

// Reserve carves out n bytes of headroom for headers synthesised later by
// Push. Valid only once, immediately after Alloc/Reset (head == data == tail).
func (p *PacketBuffer) Reserve(n int) {
	if p.head != p.data || p.data != p.tail {
		panic("buffer: Reserve called on a non-empty buffer")
	}
	if p.data+n > p.end {
		panic("buffer: Reserve overflows buffer")
	}
	p.data += n
	p.tail += n
}

// Put appends n bytes at the tail, returning the offset the caller should
// write them at. It panics if the buffer has insufficient room.
func (p *PacketBuffer) Put(n int) int {
	if p.tail+n > p.end {
		panic("buffer: Put overflows buffer")
	}
	old := p.tail
	p.tail += n
	return old
}

// Push moves data back by n bytes into the reserved headroom, returning the
// new data offset. Used to prepend a header after the payload is in place.
func (p *PacketBuffer) Push(n int) int {
	if p.data-n < p.head {
		panic("buffer: Push underflows headroom")
	}
	p.data -= n
	return p.data
}

// Pull advances data forward by n bytes, returning the new data offset.
// Used to strip a header that has already been consumed.
func (p *PacketBuffer) Pull(n int) int {
	if p.data+n > p.tail {
		panic("buffer: Pull overflows data region")
	}
	p.data += n
	return p.data
}

// Len returns the number of live payload bytes (tail - data).
func (p *PacketBuffer) Len() int { return p.tail - p.data }

// Bytes returns the live data region (data:tail). The slice aliases the
// buffer's backing array and is only valid until the next mutation.
func (p *PacketBuffer) Bytes() []byte { return p.buf[p.data:p.tail] }

// Head returns the full head-to-tail region, including any headroom already
// filled by a header. Used by Datalink-TX to hand the whole frame to Link.
func (p *PacketBuffer) Head() []byte { return p.buf[p.head:p.tail] }

// At returns a byte at an absolute buffer offset, for writing header/tail
// fields obtained from Put/Push.
func (p *PacketBuffer) At(offset int) *byte {
	if offset < 0 || offset >= p.end {
		panic(fmt.Sprintf("buffer: offset %d out of range [0,%d)", offset, p.end))
	}
	return &p.buf[offset]
}

// Raw exposes the backing array for bulk copies (e.g. memcpy'ing a payload
// into a Put-allocated window). Bounds are the caller's responsibility.
func (p *PacketBuffer) Raw() []byte { return p.buf }
