package tlv

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// Sentinel errors for TLV header decoding.
var (
	ErrTruncated         = errors.New("tlv: truncated packet")
	ErrUnknownHeaderType = errors.New("tlv: unknown compressed header type")
	ErrNotUDP            = errors.New("tlv: IPv6 next header is not UDP")
	ErrLength            = errors.New("tlv: length field out of range")
)

const (
	ipv6HeaderSize           = 40
	compressedIPv6HeaderSize = 38
	udpHeaderSize            = 8
	compressedUDPHeaderSize  = 4

	nextHeaderUDP = 17
)

// IPv6Header holds the fields of an IPv6 header. PayloadLength is zero for
// headers carried in a compressed (HCfB full-header) packet, which omit it.
type IPv6Header struct {
	Version       uint8
	TrafficClass  uint8
	FlowLabel     uint32
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	Source        netip.Addr
	Destination   netip.Addr
}

// UDPHeader holds the fields of a UDP header. Length and Checksum are zero
// for headers carried in a compressed packet.
type UDPHeader struct {
	SourcePort      uint16
	DestinationPort uint16
	Length          uint16
	Checksum        uint16
}

func readVersionClassFlow(c *cursor.Cursor) (version, class uint8, flow uint32) {
	br := nazabits.NewBitReader(c.View(4))
	version, _ = br.ReadBits8(4)
	class, _ = br.ReadBits8(8)
	flow, _ = br.ReadBits32(20)
	return version, class, flow
}

func readAddr(c *cursor.Cursor) netip.Addr {
	var a [16]byte
	copy(a[:], c.View(16))
	return netip.AddrFrom16(a)
}

// readCompressedIPv6 reads the 38-byte IPv6 header form used by HCfB, which
// drops the payload length.
func readCompressedIPv6(c *cursor.Cursor) (*IPv6Header, error) {
	if !c.CanRead(compressedIPv6HeaderSize) {
		return nil, fmt.Errorf("%w: IPv6 header", ErrTruncated)
	}
	h := &IPv6Header{}
	h.Version, h.TrafficClass, h.FlowLabel = readVersionClassFlow(c)
	h.NextHeader = c.U8()
	h.HopLimit = c.U8()
	h.Source = readAddr(c)
	h.Destination = readAddr(c)
	return h, nil
}

func readCompressedUDP(c *cursor.Cursor) (*UDPHeader, error) {
	if !c.CanRead(compressedUDPHeaderSize) {
		return nil, fmt.Errorf("%w: UDP header", ErrTruncated)
	}
	return &UDPHeader{SourcePort: c.U16(), DestinationPort: c.U16()}, nil
}

// ParseIPv6UDP decodes an uncompressed IPv6 packet carrying UDP and returns
// both headers and the UDP payload. The payload aliases b.
func ParseIPv6UDP(b []byte) (*IPv6Header, *UDPHeader, []byte, error) {
	c := cursor.New(b)
	if !c.CanRead(ipv6HeaderSize) {
		return nil, nil, nil, fmt.Errorf("%w: IPv6 header", ErrTruncated)
	}
	ip := &IPv6Header{}
	ip.Version, ip.TrafficClass, ip.FlowLabel = readVersionClassFlow(c)
	ip.PayloadLength = c.U16()
	ip.NextHeader = c.U8()
	ip.HopLimit = c.U8()
	ip.Source = readAddr(c)
	ip.Destination = readAddr(c)

	if !c.CanRead(int(ip.PayloadLength)) {
		return nil, nil, nil, fmt.Errorf("%w: IPv6 payload length %d, have %d", ErrLength, ip.PayloadLength, c.Len())
	}
	if ip.NextHeader != nextHeaderUDP {
		return nil, nil, nil, fmt.Errorf("%w: %d", ErrNotUDP, ip.NextHeader)
	}
	if ip.PayloadLength < udpHeaderSize {
		return nil, nil, nil, fmt.Errorf("%w: UDP header", ErrTruncated)
	}
	udp := &UDPHeader{
		SourcePort:      c.U16(),
		DestinationPort: c.U16(),
		Length:          c.U16(),
		Checksum:        c.U16(),
	}
	if udp.Length < udpHeaderSize || udp.Length > ip.PayloadLength {
		return nil, nil, nil, fmt.Errorf("%w: UDP length %d", ErrLength, udp.Length)
	}
	return ip, udp, c.View(int(udp.Length) - udpHeaderSize), nil
}
