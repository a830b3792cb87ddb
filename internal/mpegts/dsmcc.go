package mpegts

import (
	"fmt"

	"github.com/zsiec/mmttlv/internal/cursor"
	"github.com/zsiec/mmttlv/internal/si"
)

const downloadDataHeaderSize = 12

// DownloadDataHeader is the DSM-CC download data header that precedes DII
// and DDB messages.
type DownloadDataHeader struct {
	ProtocolDiscriminator uint8
	Type                  uint8
	MessageID             uint16
	// TransactionID carries the download id in a DDB.
	TransactionID  uint32
	AdaptationType uint8
	AdaptationData []byte
}

// Module is one module announced by a DII.
type Module struct {
	ID      uint16
	Size    uint32
	Version uint8
	Info    []byte
}

// DownloadInfoIndication is the body of a DII section.
type DownloadInfoIndication struct {
	DownloadID         uint32
	BlockSize          uint16
	WindowSize         uint8
	AckPeriod          uint8
	TCDownloadWindow   uint32
	TCDownloadScenario uint32
	Modules            []Module
	PrivateData        []byte
}

// DownloadDataBlock is the body of a DDB section.
type DownloadDataBlock struct {
	ModuleID      uint16
	ModuleVersion uint8
	BlockNumber   uint16
	Data          []byte
}

// DSMCC is a data carousel section. Header and one of DII or DDB are set
// for download messages; stream descriptor sections only carry Section.
// Byte slices alias the section.
type DSMCC struct {
	Section *si.Section
	Header  *DownloadDataHeader
	DII     *DownloadInfoIndication
	DDB     *DownloadDataBlock
}

func decodeDSMCC(s *si.Section) (*DSMCC, error) {
	d := &DSMCC{Section: s}
	switch s.TableID {
	case TableIDDSMCCDII, TableIDDSMCCDDB:
	case TableIDDSMCCStreamEvents:
		return d, nil
	default:
		return nil, fmt.Errorf("mpegts: table 0x%02x is not DSM-CC", s.TableID)
	}

	h, msg, err := readDownloadDataHeader(cursor.New(s.Body))
	if err != nil {
		return nil, err
	}
	d.Header = h
	if s.TableID == TableIDDSMCCDDB {
		d.DDB, err = readDDB(msg)
	} else {
		d.DII, err = readDII(msg)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func readDownloadDataHeader(c *cursor.Cursor) (*DownloadDataHeader, []byte, error) {
	if !c.CanRead(downloadDataHeaderSize) {
		return nil, nil, fmt.Errorf("mpegts: DSM-CC header too short")
	}
	h := &DownloadDataHeader{
		ProtocolDiscriminator: c.U8(),
		Type:                  c.U8(),
		MessageID:             c.U16(),
		TransactionID:         c.U32(),
	}
	c.Skip(1)
	adaptation := int(c.U8())
	n := int(c.U16())
	if n < adaptation || !c.CanRead(n) {
		return nil, nil, fmt.Errorf("mpegts: DSM-CC message length %d", n)
	}
	if adaptation > 0 {
		h.AdaptationType = c.U8()
		h.AdaptationData = c.View(adaptation - 1)
	}
	return h, c.View(n - adaptation), nil
}

func readDDB(b []byte) (*DownloadDataBlock, error) {
	c := cursor.New(b)
	if !c.CanRead(6) {
		return nil, fmt.Errorf("mpegts: DDB too short")
	}
	d := &DownloadDataBlock{ModuleID: c.U16(), ModuleVersion: c.U8()}
	c.Skip(1)
	d.BlockNumber = c.U16()
	d.Data = c.Rest()
	return d, nil
}

func readDII(b []byte) (*DownloadInfoIndication, error) {
	c := cursor.New(b)
	if !c.CanRead(4 + 2 + 1 + 1 + 4 + 4 + 2) {
		return nil, fmt.Errorf("mpegts: DII too short")
	}
	d := &DownloadInfoIndication{
		DownloadID:         c.U32(),
		BlockSize:          c.U16(),
		WindowSize:         c.U8(),
		AckPeriod:          c.U8(),
		TCDownloadWindow:   c.U32(),
		TCDownloadScenario: c.U32(),
	}
	// compatibility descriptor
	n := int(c.U16())
	if !c.CanRead(n + 2) {
		return nil, fmt.Errorf("mpegts: DII compatibility descriptor length %d", n)
	}
	c.Skip(n)
	modules := int(c.U16())
	for range modules {
		if !c.CanRead(2 + 4 + 1 + 1) {
			return nil, fmt.Errorf("mpegts: DII module list truncated")
		}
		m := Module{ID: c.U16(), Size: c.U32(), Version: c.U8()}
		n := int(c.U8())
		if !c.CanRead(n) {
			return nil, fmt.Errorf("mpegts: DII module info length %d", n)
		}
		m.Info = c.View(n)
		d.Modules = append(d.Modules, m)
	}
	if !c.CanRead(2) {
		return nil, fmt.Errorf("mpegts: DII private data missing")
	}
	n = int(c.U16())
	if !c.CanRead(n) {
		return nil, fmt.Errorf("mpegts: DII private data length %d", n)
	}
	d.PrivateData = c.View(n)
	return d, nil
}
