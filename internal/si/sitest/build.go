// Package sitest builds SI sections for tests.
package sitest

import (
	"encoding/binary"
	"net/netip"

	"github.com/zsiec/mmttlv/internal/crc"
)

// Section encodes a long-form section with a valid CRC.
func Section(id uint8, ext uint16, version uint8, body []byte) []byte {
	n := 5 + len(body) + 4
	b := []byte{id, 0xB0 | byte(n>>8&0x0F), byte(n)}
	b = binary.BigEndian.AppendUint16(b, ext)
	b = append(b, 0xC1|version<<1, 0, 0)
	b = append(b, body...)
	return crc.Append(b)
}

// ShortSection encodes a short-form section with a trailing CRC, as the TOT
// carries.
func ShortSection(id uint8, body []byte) []byte {
	n := len(body) + 4
	b := []byte{id, 0x70 | byte(n>>8&0x0F), byte(n)}
	b = append(b, body...)
	return crc.Append(b)
}

func Descriptor(tag uint8, data []byte) []byte {
	return append([]byte{tag, byte(len(data))}, data...)
}

func loop(descriptors [][]byte) []byte {
	var body []byte
	for _, d := range descriptors {
		body = append(body, d...)
	}
	return append(binary.BigEndian.AppendUint16(nil, 0xF000|uint16(len(body))), body...)
}

// Stream is one transport loop entry of a NIT.
type Stream struct {
	ID                uint16
	OriginalNetworkID uint16
	Descriptors       [][]byte
}

// NIT encodes a NIT section.
func NIT(id uint8, networkID uint16, version uint8, descriptors [][]byte, streams ...Stream) []byte {
	body := loop(descriptors)
	var ts []byte
	for _, s := range streams {
		ts = binary.BigEndian.AppendUint16(ts, s.ID)
		ts = binary.BigEndian.AppendUint16(ts, s.OriginalNetworkID)
		ts = append(ts, loop(s.Descriptors)...)
	}
	body = binary.BigEndian.AppendUint16(body, 0xF000|uint16(len(ts)))
	body = append(body, ts...)
	return Section(id, networkID, version, body)
}

// AMTService is one service of an AMT.
type AMTService struct {
	ServiceID   uint16
	Source      netip.Prefix
	Destination netip.Prefix
	PrivateData []byte
}

// AMT encodes an AMT section.
func AMT(version uint8, services ...AMTService) []byte {
	body := binary.BigEndian.AppendUint16(nil, uint16(len(services))<<6|0x3F)
	for _, s := range services {
		var addrs []byte
		addrs = append(addrs, s.Source.Addr().AsSlice()...)
		addrs = append(addrs, byte(s.Source.Bits()))
		addrs = append(addrs, s.Destination.Addr().AsSlice()...)
		addrs = append(addrs, byte(s.Destination.Bits()))
		addrs = append(addrs, s.PrivateData...)
		h := 0x7C00 | uint16(len(addrs))
		if s.Source.Addr().Is6() {
			h |= 0x8000
		}
		body = binary.BigEndian.AppendUint16(body, s.ServiceID)
		body = binary.BigEndian.AppendUint16(body, h)
		body = append(body, addrs...)
	}
	return Section(0xFE, 0, version, body)
}

// Event is one event of an EIT.
type Event struct {
	EventID     uint16
	StartTime   uint64
	Duration    uint32
	Descriptors [][]byte
}

// EIT encodes an EIT section.
func EIT(id uint8, serviceID, tsid, onid uint16, events ...Event) []byte {
	body := binary.BigEndian.AppendUint16(nil, tsid)
	body = binary.BigEndian.AppendUint16(body, onid)
	body = append(body, 0, id)
	for _, e := range events {
		body = binary.BigEndian.AppendUint16(body, e.EventID)
		body = append(body, byte(e.StartTime>>32), byte(e.StartTime>>24), byte(e.StartTime>>16), byte(e.StartTime>>8), byte(e.StartTime))
		body = append(body, byte(e.Duration>>16), byte(e.Duration>>8), byte(e.Duration))
		l := loop(e.Descriptors)
		l[0] = 0x80 | l[0]&0x0F
		body = append(body, l...)
	}
	return Section(id, serviceID, 0, body)
}

// TOT encodes a TOT.
func TOT(jst uint64, descriptors ...[]byte) []byte {
	body := []byte{byte(jst >> 32), byte(jst >> 24), byte(jst >> 16), byte(jst >> 8), byte(jst)}
	return ShortSection(0x73, append(body, loop(descriptors)...))
}
