// Package tlv frames TLV packets out of a raw byte stream and tracks the
// header-compression contexts (HCfB) that compressed IPv6/UDP packets refer
// to.
package tlv

import (
	"bytes"
	"encoding/binary"
)

const (
	SyncByte   = 0x7F
	HeaderSize = 4
)

// TLV packet types.
const (
	TypeIPv6       = 0x02
	TypeCompressed = 0x03
	TypeSignaling  = 0xFE
	TypeNull       = 0xFF
)

// Frame is one TLV packet. Data includes the 4-byte header and aliases the
// framer's buffer: it is only valid for the duration of the emit callback.
type Frame struct {
	Type   uint8
	Offset uint64
	Data   []byte
}

// Payload returns the bytes following the TLV header.
func (f Frame) Payload() []byte {
	return f.Data[HeaderSize:]
}

// Framer accumulates pushed bytes and extracts complete TLV packets,
// resynchronizing on the sync byte after corruption.
type Framer struct {
	buf   []byte
	base  uint64
	total uint64
}

// Push appends b and calls emit for every complete frame now buffered. Any
// incomplete tail is kept for the next call.
func (f *Framer) Push(b []byte, emit func(Frame)) {
	if len(b) == 0 {
		return
	}
	f.total += uint64(len(b))
	f.buf = append(f.buf, b...)

	pos := 0
	for pos < len(f.buf) {
		n, frame := scan(f.buf[pos:])
		if n == 0 {
			break
		}
		if frame != nil {
			start := pos + n - len(frame)
			emit(Frame{Type: frame[1], Offset: f.base + uint64(start), Data: frame})
		}
		pos += n
	}

	f.base += uint64(pos)
	f.buf = f.buf[:copy(f.buf, f.buf[pos:])]
}

// Bytes returns the number of bytes pushed since construction or Reset.
func (f *Framer) Bytes() uint64 {
	return f.total
}

// Buffered returns the size of the carry-over tail.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops the carry-over buffer and byte counters.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.base = 0
	f.total = 0
}

func validType(t byte) bool {
	switch t {
	case TypeIPv6, TypeCompressed, TypeSignaling, TypeNull:
		return true
	}
	return false
}

// scan looks for one frame at the start of buf. It returns the number of
// bytes to consume and the frame, if one is complete. A zero count means more
// data is needed before anything can be decided.
func scan(buf []byte) (int, []byte) {
	sync := bytes.IndexByte(buf, SyncByte)
	if sync < 0 {
		return len(buf), nil
	}
	if len(buf) < sync+HeaderSize {
		return sync, nil
	}
	typ := buf[sync+1]
	if !validType(typ) {
		// False sync. The type byte may itself be the real sync byte.
		if typ == SyncByte {
			return sync + 1, nil
		}
		return sync + 2, nil
	}
	end := sync + HeaderSize + int(binary.BigEndian.Uint16(buf[sync+2:]))
	if len(buf) < end {
		return sync, nil
	}
	return end, buf[sync:end:end]
}
