// Package mmtsitest builds MMT-SI messages for tests.
package mmtsitest

import (
	"encoding/binary"

	"github.com/zsiec/mmttlv/internal/crc"
	"github.com/zsiec/mmttlv/internal/mmtsi"
)

// SameDataflow encodes a same-dataflow general location info.
func SameDataflow(pid uint16) []byte {
	return []byte{mmtsi.LocationSameDataflow, byte(pid >> 8), byte(pid)}
}

// Descriptor encodes one descriptor, choosing the length field size from the
// tag.
func Descriptor(tag uint16, data []byte) []byte {
	b := binary.BigEndian.AppendUint16(nil, tag)
	switch {
	case tag >= 0x4000 && tag <= 0x6FFF, tag >= 0xF000:
		b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	case tag >= 0x7000 && tag <= 0x7FFF:
		b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	default:
		b = append(b, byte(len(data)))
	}
	return append(b, data...)
}

// AccessControl encodes an access control descriptor pointing at pid.
func AccessControl(caSystemID, pid uint16) []byte {
	data := binary.BigEndian.AppendUint16(nil, caSystemID)
	return Descriptor(mmtsi.TagAccessControl, append(data, SameDataflow(pid)...))
}

// ApplicationService encodes an application service descriptor. A zero dt
// omits the data transmission location.
func ApplicationService(ait, dt uint16, emts ...uint16) []byte {
	flags := byte(0x80) | byte(len(emts)&0x0F)
	if dt != 0 {
		flags |= 0x40
	}
	data := []byte{0x10, 0x00, flags}
	data = append(data, SameDataflow(ait)...)
	if dt != 0 {
		data = append(data, SameDataflow(dt)...)
	}
	for i, pid := range emts {
		data = append(data, byte(i))
		data = append(data, SameDataflow(pid)...)
	}
	return Descriptor(mmtsi.TagApplicationService, data)
}

// Message wraps payload in a message header with the length field size the
// message id calls for.
func Message(id uint16, version uint8, payload []byte) []byte {
	b := binary.BigEndian.AppendUint16(nil, id)
	b = append(b, version)
	switch id {
	case mmtsi.MessagePA, mmtsi.MessageDataTransmission:
		b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	default:
		b = binary.BigEndian.AppendUint16(b, uint16(len(payload)))
	}
	return append(b, payload...)
}

// PATable encodes one table of a PA message.
func PATable(id, version uint8, body []byte) []byte {
	b := []byte{id, version}
	b = binary.BigEndian.AppendUint16(b, uint16(len(body)))
	return append(b, body...)
}

// PA encodes a PA message holding the given encoded tables.
func PA(tables ...[]byte) []byte {
	payload := []byte{0}
	for _, t := range tables {
		payload = append(payload, t...)
	}
	return Message(mmtsi.MessagePA, 0, payload)
}

// PLT encodes a PA message with a PLT listing one package per MPT packet
// id. Package ids are 2 bytes, numbered from 1.
func PLT(version uint8, mptPIDs ...uint16) []byte {
	body := []byte{byte(len(mptPIDs))}
	for i, pid := range mptPIDs {
		body = append(body, 2, 0, byte(i+1))
		body = append(body, SameDataflow(pid)...)
	}
	return PA(PATable(mmtsi.TablePLT, version, body))
}

// Asset describes one MPT asset.
type Asset struct {
	Type        uint32
	PacketID    uint16
	Descriptors []byte
}

// MPT describes an MPT to encode.
type MPT struct {
	Version     uint8
	ServiceID   uint16
	Descriptors []byte
	Assets      []Asset
}

// Bytes encodes m as a PA message.
func (m MPT) Bytes() []byte {
	body := []byte{0x03, 2, byte(m.ServiceID >> 8), byte(m.ServiceID)}
	body = binary.BigEndian.AppendUint16(body, uint16(len(m.Descriptors)))
	body = append(body, m.Descriptors...)
	body = append(body, byte(len(m.Assets)))
	for i, a := range m.Assets {
		body = append(body, 0)
		body = binary.BigEndian.AppendUint32(body, 0)
		body = append(body, 1, byte(i))
		body = binary.BigEndian.AppendUint32(body, a.Type)
		body = append(body, 0, 1)
		body = append(body, SameDataflow(a.PacketID)...)
		body = binary.BigEndian.AppendUint16(body, uint16(len(a.Descriptors)))
		body = append(body, a.Descriptors...)
	}
	return PA(PATable(mmtsi.TableMPT, m.Version, body))
}

// CAT encodes a CA message carrying a CAT.
func CAT(version uint8, descriptors ...[]byte) []byte {
	var ds []byte
	for _, d := range descriptors {
		ds = append(ds, d...)
	}
	payload := []byte{mmtsi.TableCAT, version}
	payload = binary.BigEndian.AppendUint16(payload, uint16(len(ds)))
	payload = append(payload, ds...)
	return Message(mmtsi.MessageCA, 0, payload)
}

// Section encodes a long-form section with a valid CRC.
func Section(id uint8, ext uint16, version uint8, body []byte) []byte {
	n := 5 + len(body) + 4
	b := []byte{id, 0xB0 | byte(n>>8&0x0F), byte(n)}
	b = binary.BigEndian.AppendUint16(b, ext)
	b = append(b, 0xC1|version<<1, 0, 0)
	b = append(b, body...)
	return crc.Append(b)
}

// ShortSection encodes a short-form section with a valid CRC.
func ShortSection(id uint8, body []byte) []byte {
	n := len(body) + 4
	b := []byte{id, 0x70 | byte(n>>8&0x0F), byte(n)}
	b = append(b, body...)
	return crc.Append(b)
}

// M2Section wraps a section in an M2 section message.
func M2Section(section []byte) []byte {
	return Message(mmtsi.MessageM2Section, 0, section)
}
