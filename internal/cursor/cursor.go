// Package cursor provides a bounds-checked sequential reader over a byte
// slice. Every read must be gated by CanRead: reading past the end is a
// programming error and panics rather than returning an error.
//
// View returns a sub-slice that aliases the underlying buffer and is only
// valid as long as the caller's buffer is. Slice returns an owned copy and
// must be used for anything retained across Push calls.
package cursor

import "encoding/binary"

// Cursor reads big-endian fields from a byte slice.
type Cursor struct {
	buf []byte
	pos int
}

// New returns a Cursor positioned at the start of b.
func New(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// NewAt returns a Cursor positioned at off within b.
func NewAt(b []byte, off int) *Cursor {
	return &Cursor{buf: b, pos: off}
}

// CanRead reports whether n more bytes are available.
func (c *Cursor) CanRead(n int) bool {
	return n >= 0 && c.pos+n <= len(c.buf)
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	if c.pos >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.pos
}

// Tell returns the current offset from the start of the buffer.
func (c *Cursor) Tell() int {
	return c.pos
}

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n int) {
	c.pos += n
}

func (c *Cursor) U8() uint8 {
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *Cursor) U16() uint16 {
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v
}

func (c *Cursor) U24() uint32 {
	b := c.buf[c.pos : c.pos+3]
	c.pos += 3
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func (c *Cursor) U32() uint32 {
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v
}

// U40 reads a 40-bit field, such as an MJD+BCD start time.
func (c *Cursor) U40() uint64 {
	b := c.buf[c.pos : c.pos+5]
	c.pos += 5
	return uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
}

func (c *Cursor) U64() uint64 {
	v := binary.BigEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v
}

// View returns the next n bytes without copying.
func (c *Cursor) View(n int) []byte {
	v := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return v
}

// Slice returns a copy of the next n bytes.
func (c *Cursor) Slice(n int) []byte {
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out
}

// Rest returns a view of all unread bytes and moves to the end.
func (c *Cursor) Rest() []byte {
	if c.pos >= len(c.buf) {
		c.pos = len(c.buf)
		return nil
	}
	v := c.buf[c.pos:len(c.buf):len(c.buf)]
	c.pos = len(c.buf)
	return v
}
