package tlv

import (
	"encoding/binary"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// Compressed header types carried in HCfB packets.
const (
	HeaderTypeFull       = 0x60
	HeaderTypeCompressed = 0x61
)

const (
	compressedPrefixSize = 3
	sequenceModulus      = 16
)

// Context is a snapshot of a header-compression context. IPv6 and UDP are
// nil until a full-header packet has been seen for the context id. The
// pointed-to headers are never mutated once cached.
type Context struct {
	ID   uint16
	IPv6 *IPv6Header
	UDP  *UDPHeader
}

// Established reports whether a full header has been cached.
func (c Context) Established() bool {
	return c.IPv6 != nil
}

// CompressedPacket is a decoded type 0x03 TLV packet.
type CompressedPacket struct {
	Context    Context
	Sequence   uint8
	HeaderType uint8
	// Payload is the MMTP packet and aliases the frame.
	Payload []byte
}

// Discontinuity reports a gap in a context's 4-bit sequence number.
type Discontinuity struct {
	Context     Context
	Expected    uint8
	Actual      uint8
	PacketID    uint16
	HasPacketID bool
}

type contextState struct {
	ctx      Context
	seq      uint8
	seqKnown bool
}

// ContextTable holds the compression contexts of one stream.
type ContextTable struct {
	contexts map[uint16]*contextState
}

// NewContextTable returns an empty table.
func NewContextTable() *ContextTable {
	return &ContextTable{contexts: make(map[uint16]*contextState)}
}

// Reset forgets every context.
func (t *ContextTable) Reset() {
	clear(t.contexts)
}

// Len returns the number of known contexts.
func (t *ContextTable) Len() int {
	return len(t.contexts)
}

// Lookup returns the current snapshot of a context.
func (t *ContextTable) Lookup(id uint16) (Context, bool) {
	s, ok := t.contexts[id]
	if !ok {
		return Context{}, false
	}
	return s.ctx, true
}

// Decode processes the payload of a compressed TLV packet (the bytes after
// the TLV header). A full-header packet replaces the context's cached
// headers. A sequence gap is returned as a non-nil Discontinuity; the new
// sequence number is stored either way. Packets with an unknown header type
// leave all state untouched.
func (t *ContextTable) Decode(payload []byte) (CompressedPacket, *Discontinuity, error) {
	c := cursor.New(payload)
	if !c.CanRead(compressedPrefixSize) {
		return CompressedPacket{}, nil, fmt.Errorf("%w: compressed prefix", ErrTruncated)
	}
	br := nazabits.NewBitReader(c.View(2))
	id, _ := br.ReadBits16(12)
	seq, _ := br.ReadBits8(4)
	headerType := c.U8()

	var (
		ip  *IPv6Header
		udp *UDPHeader
		err error
	)
	switch headerType {
	case HeaderTypeFull:
		if ip, err = readCompressedIPv6(c); err != nil {
			return CompressedPacket{}, nil, err
		}
		if udp, err = readCompressedUDP(c); err != nil {
			return CompressedPacket{}, nil, err
		}
	case HeaderTypeCompressed:
	default:
		return CompressedPacket{}, nil, fmt.Errorf("%w: 0x%02x", ErrUnknownHeaderType, headerType)
	}

	s, ok := t.contexts[id]
	if !ok {
		s = &contextState{ctx: Context{ID: id}}
		t.contexts[id] = s
	}
	if headerType == HeaderTypeFull {
		s.ctx.IPv6 = ip
		s.ctx.UDP = udp
	}

	rest := c.Rest()
	var disc *Discontinuity
	if s.seqKnown {
		expected := (s.seq + 1) % sequenceModulus
		if seq != expected {
			disc = &Discontinuity{Context: s.ctx, Expected: expected, Actual: seq}
			if len(rest) >= 4 {
				disc.PacketID = binary.BigEndian.Uint16(rest[2:])
				disc.HasPacketID = true
			}
		}
	}
	s.seq = seq
	s.seqKnown = true

	return CompressedPacket{
		Context:    s.ctx,
		Sequence:   seq,
		HeaderType: headerType,
		Payload:    rest,
	}, disc, nil
}
