// Package mmtsi decodes MMT-SI signaling messages and the tables they carry:
// the package access message (PLT, MPT), M2 sections (MH-EIT, MH-SDT,
// MH-BIT, MH-CDT, MH-AIT, EMT), M2 short sections (MH-TOT), the CA message
// (CAT) and data transmission messages (DDMT, DAMT).
//
// Decoded values alias the input buffer wherever they carry raw bytes.
package mmtsi

import (
	"errors"
	"fmt"

	"github.com/zsiec/mmttlv/internal/crc"
	"github.com/zsiec/mmttlv/internal/cursor"
)

var (
	ErrTruncated   = errors.New("mmtsi: truncated")
	ErrUnsupported = errors.New("mmtsi: unsupported")
	ErrSyntax      = errors.New("mmtsi: section syntax indicator mismatch")
	ErrCRC         = errors.New("mmtsi: section CRC mismatch")
)

// Message ids.
const (
	MessagePA               = 0x0000
	MessageM2Section        = 0x8000
	MessageCA               = 0x8001
	MessageM2ShortSection   = 0x8002
	MessageDataTransmission = 0x8003
)

// Table ids.
const (
	TableMPT                    = 0x20
	TablePLT                    = 0x80
	TableECM                    = 0x82
	TableEMM                    = 0x84
	TableEMMMessage             = 0x85
	TableCAT                    = 0x86
	TableEITPresentFollowing    = 0x8B
	TableEITScheduleBasic       = 0x8C
	TableEITScheduleBasicEnd    = 0x93
	TableEITScheduleExtended    = 0x94
	TableEITScheduleExtendedEnd = 0x9B
	TableAIT                    = 0x9C
	TableBIT                    = 0x9D
	TableSDTT                   = 0x9E
	TableSDTActual              = 0x9F
	TableSDTOther               = 0xA0
	TableTOT                    = 0xA1
	TableCDT                    = 0xA2
	TableDDMT                   = 0xA3
	TableDAMT                   = 0xA4
	TableEMT                    = 0xA6
)

// Well-known packet ids of MMT/TLV broadcasts.
const (
	PacketIDPLT  = 0x0000
	PacketIDCAT  = 0x0001
	PacketIDEIT  = 0x8000
	PacketIDBIT  = 0x8002
	PacketIDSDTT = 0x8003
	PacketIDSDT  = 0x8004
	PacketIDTOT  = 0x8005
	PacketIDCDT  = 0x8006
)

// Table is one decoded table. The set of implementations is closed; callers
// dispatch with a type switch.
type Table interface {
	TableID() uint8
	isTable()
}

// Message is a decoded MMT-SI message. PA messages may carry several
// tables; every other message carries exactly one.
type Message struct {
	ID      uint16
	Version uint8
	Tables  []Table
}

// Table returns the first table of the message.
func (m *Message) Table() Table {
	if len(m.Tables) == 0 {
		return nil
	}
	return m.Tables[0]
}

// DecodeMessage decodes one complete signaling message.
func DecodeMessage(b []byte) (*Message, error) {
	c := cursor.New(b)
	if !c.CanRead(3) {
		return nil, fmt.Errorf("%w: message header", ErrTruncated)
	}
	m := &Message{ID: c.U16(), Version: c.U8()}

	var length int
	switch m.ID {
	case MessagePA, MessageDataTransmission:
		if !c.CanRead(4) {
			return nil, fmt.Errorf("%w: message length", ErrTruncated)
		}
		l := c.U32()
		if uint64(l) > uint64(c.Len()) {
			return nil, fmt.Errorf("%w: message length %d, have %d", ErrTruncated, l, c.Len())
		}
		length = int(l)
	case MessageM2Section, MessageCA, MessageM2ShortSection:
		if !c.CanRead(2) {
			return nil, fmt.Errorf("%w: message length", ErrTruncated)
		}
		length = int(c.U16())
	default:
		return nil, fmt.Errorf("%w: message id 0x%04x", ErrUnsupported, m.ID)
	}
	if !c.CanRead(length) {
		return nil, fmt.Errorf("%w: message length %d, have %d", ErrTruncated, length, c.Len())
	}
	payload := c.View(length)

	var (
		t   Table
		err error
	)
	switch m.ID {
	case MessagePA:
		m.Tables, err = decodePA(payload)
		if err != nil {
			return nil, err
		}
		return m, nil
	case MessageM2Section:
		t, err = decodeM2Section(payload)
	case MessageM2ShortSection:
		t, err = decodeM2ShortSection(payload)
	case MessageCA:
		t, err = decodeCA(payload)
	case MessageDataTransmission:
		t, err = decodeDataTransmission(payload)
	}
	if err != nil {
		return nil, err
	}
	m.Tables = []Table{t}
	return m, nil
}

func decodePA(b []byte) ([]Table, error) {
	c := cursor.New(b)
	if !c.CanRead(1) {
		return nil, fmt.Errorf("%w: PA message", ErrTruncated)
	}
	// The table index preceding the tables repeats their headers.
	n := int(c.U8()) * 4
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: PA table index", ErrTruncated)
	}
	c.Skip(n)

	var (
		tables  []Table
		lastErr error
	)
	for c.CanRead(4) {
		id, version, length := c.U8(), c.U8(), int(c.U16())
		if !c.CanRead(length) {
			lastErr = fmt.Errorf("%w: table 0x%02x length %d", ErrTruncated, id, length)
			break
		}
		body := c.View(length)
		var (
			t   Table
			err error
		)
		switch id {
		case TableMPT:
			t, err = decodeMPT(version, body)
		case TablePLT:
			t, err = decodePLT(version, body)
		default:
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: PA message without known tables", ErrUnsupported)
	}
	return tables, nil
}

// section splits an M2 (short) section into its table id and the body
// between the section length and the CRC, verifying the CRC.
func section(b []byte, long bool) (uint8, []byte, error) {
	c := cursor.New(b)
	if !c.CanRead(3) {
		return 0, nil, fmt.Errorf("%w: section header", ErrTruncated)
	}
	id := c.U8()
	h := c.U16()
	if (h&0x8000 != 0) != long {
		return 0, nil, fmt.Errorf("%w: table 0x%02x", ErrSyntax, id)
	}
	n := int(h & 0x0FFF)
	if n < 4 || !c.CanRead(n) {
		return 0, nil, fmt.Errorf("%w: section length %d", ErrTruncated, n)
	}
	if err := crc.Verify(b[:3+n]); err != nil {
		return 0, nil, fmt.Errorf("%w: table 0x%02x", ErrCRC, id)
	}
	return id, c.View(n - 4), nil
}

func decodeM2Section(b []byte) (Table, error) {
	id, body, err := section(b, true)
	if err != nil {
		return nil, err
	}
	switch {
	case id >= TableEITPresentFollowing && id <= TableEITScheduleExtendedEnd:
		return decodeEIT(id, body)
	case id == TableSDTActual || id == TableSDTOther:
		return decodeSDT(id, body)
	case id == TableBIT:
		return decodeBIT(id, body)
	case id == TableCDT:
		return decodeCDT(id, body)
	case id == TableAIT:
		return decodeAIT(id, body)
	case id == TableEMT:
		return decodeEMT(id, body)
	}
	return nil, fmt.Errorf("%w: M2 section table 0x%02x", ErrUnsupported, id)
}

func decodeM2ShortSection(b []byte) (Table, error) {
	id, body, err := section(b, false)
	if err != nil {
		return nil, err
	}
	if id != TableTOT {
		return nil, fmt.Errorf("%w: M2 short section table 0x%02x", ErrUnsupported, id)
	}
	return decodeTOT(body)
}

func decodeDataTransmission(b []byte) (Table, error) {
	id, body, err := section(b, true)
	if err != nil {
		return nil, err
	}
	switch id {
	case TableDDMT:
		return decodeDDMT(id, body)
	case TableDAMT:
		return decodeDAMT(id, body)
	}
	return nil, fmt.Errorf("%w: data transmission table 0x%02x", ErrUnsupported, id)
}

func decodeCA(b []byte) (Table, error) {
	c := cursor.New(b)
	if !c.CanRead(4) {
		return nil, fmt.Errorf("%w: CA message", ErrTruncated)
	}
	id, version, length := c.U8(), c.U8(), int(c.U16())
	if id != TableCAT {
		return nil, fmt.Errorf("%w: CA table 0x%02x", ErrUnsupported, id)
	}
	if !c.CanRead(length) {
		return nil, fmt.Errorf("%w: CAT length %d", ErrTruncated, length)
	}
	return &CAT{Version: version, Descriptors: ReadDescriptors(c.View(length))}, nil
}
