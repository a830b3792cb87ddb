package mmtsi

import (
	"fmt"
	"time"

	"github.com/zsiec/mmttlv/internal/aribtime"
	"github.com/zsiec/mmttlv/internal/cursor"
)

// Section holds the common header fields of a long-form M2 section. The
// 16-bit table id extension is interpreted by each table.
type Section struct {
	ID                uint8
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
}

func (s *Section) TableID() uint8 { return s.ID }
func (*Section) isTable() {}

const longHeaderSize = 5

func readLongHeader(id uint8, c *cursor.Cursor) (Section, uint16) {
	ext := c.U16()
	b := c.U8()
	return Section{
		ID:                id,
		Version:           (b >> 1) & 0x1F,
		CurrentNext:       b&0x01 != 0,
		SectionNumber:     c.U8(),
		LastSectionNumber: c.U8(),
	}, ext
}

// readLoop reads a 12-bit loop length and returns the descriptors it
// covers.
func readLoop(c *cursor.Cursor, what string) ([]Descriptor, error) {
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: %s length", ErrTruncated, what)
	}
	n := int(c.U16() & 0x0FFF)
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: %s", ErrTruncated, what)
	}
	return ReadDescriptors(c.View(n)), nil
}

// Event is one event of an MH-EIT.
type Event struct {
	EventID uint16
	// StartTime is MJD+BCD; all ones when undefined.
	StartTime uint64
	// Duration is BCD hhmmss; all ones when undefined.
	Duration      uint32
	RunningStatus uint8
	FreeCAMode    bool
	Descriptors   []Descriptor
}

// Start returns the event start time in JST.
func (e Event) Start() (time.Time, bool) {
	return aribtime.Time(e.StartTime)
}

// Length returns the event duration.
func (e Event) Length() (time.Duration, bool) {
	return aribtime.Duration(e.Duration)
}

// EIT is the MH-event information table, present/following or schedule.
type EIT struct {
	Section
	ServiceID                uint16
	TLVStreamID              uint16
	OriginalNetworkID        uint16
	SegmentLastSectionNumber uint8
	LastTableID              uint8
	Events                   []Event
}

func eitIndex(id uint8) int {
	switch {
	case id == TableEITPresentFollowing:
		return 0
	case id <= TableEITScheduleBasicEnd:
		return int(id - TableEITScheduleBasic)
	}
	return int(id - TableEITScheduleExtended)
}

// PresentFollowing reports whether t is the p/f table.
func (t *EIT) PresentFollowing() bool { return t.ID == TableEITPresentFollowing }

// Extended reports whether t is an extended schedule table.
func (t *EIT) Extended() bool { return t.ID >= TableEITScheduleExtended }

// TableIndex is the position of the table within its schedule.
func (t *EIT) TableIndex() int { return eitIndex(t.ID) }

// LastTableIndex is the index of the last table of the schedule.
func (t *EIT) LastTableIndex() int { return eitIndex(t.LastTableID) }

func decodeEIT(id uint8, b []byte) (*EIT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize + 6) {
		return nil, fmt.Errorf("%w: EIT", ErrTruncated)
	}
	t := &EIT{}
	t.Section, t.ServiceID = readLongHeader(id, c)
	t.TLVStreamID = c.U16()
	t.OriginalNetworkID = c.U16()
	t.SegmentLastSectionNumber = c.U8()
	t.LastTableID = c.U8()
	for c.CanRead(2 + 5 + 3 + 2) {
		e := Event{EventID: c.U16(), StartTime: c.U40(), Duration: c.U24()}
		f := c.U16()
		e.RunningStatus = uint8(f >> 13)
		e.FreeCAMode = f&0x1000 != 0
		n := int(f & 0x0FFF)
		if !c.CanRead(n) {
			break
		}
		e.Descriptors = ReadDescriptors(c.View(n))
		t.Events = append(t.Events, e)
	}
	return t, nil
}

// ServiceEntry is one service of an MH-SDT.
type ServiceEntry struct {
	ServiceID           uint16
	EITUserDefinedFlags uint8
	EITSchedule         bool
	EITPresentFollowing bool
	RunningStatus       uint8
	FreeCAMode          bool
	Descriptors         []Descriptor
}

// SDT is the MH-service description table.
type SDT struct {
	Section
	TLVStreamID       uint16
	OriginalNetworkID uint16
	Services          []ServiceEntry
}

// Actual reports whether t describes the current TLV stream.
func (t *SDT) Actual() bool { return t.ID == TableSDTActual }

func decodeSDT(id uint8, b []byte) (*SDT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize + 3) {
		return nil, fmt.Errorf("%w: SDT", ErrTruncated)
	}
	t := &SDT{}
	t.Section, t.TLVStreamID = readLongHeader(id, c)
	t.OriginalNetworkID = c.U16()
	c.Skip(1)
	for c.CanRead(2 + 1 + 2) {
		s := ServiceEntry{ServiceID: c.U16()}
		f := c.U8()
		s.EITUserDefinedFlags = (f >> 5) & 0x07
		s.EITSchedule = f&0x02 != 0
		s.EITPresentFollowing = f&0x01 != 0
		h := c.U16()
		s.RunningStatus = uint8(h >> 13)
		s.FreeCAMode = h&0x1000 != 0
		n := int(h & 0x0FFF)
		if !c.CanRead(n) {
			break
		}
		s.Descriptors = ReadDescriptors(c.View(n))
		t.Services = append(t.Services, s)
	}
	return t, nil
}

// Logo is the data module of a logo CDT.
type Logo struct {
	Type    uint8
	ID      uint16
	Version uint16
	Data    []byte
}

// CDT is the MH-common data table, used for station logos.
type CDT struct {
	Section
	DownloadDataID    uint16
	OriginalNetworkID uint16
	DataType          uint8
	Descriptors       []Descriptor
	Logo              Logo
}

func decodeCDT(id uint8, b []byte) (*CDT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize + 3) {
		return nil, fmt.Errorf("%w: CDT", ErrTruncated)
	}
	t := &CDT{}
	t.Section, t.DownloadDataID = readLongHeader(id, c)
	t.OriginalNetworkID = c.U16()
	t.DataType = c.U8()
	var err error
	if t.Descriptors, err = readLoop(c, "CDT descriptors"); err != nil {
		return nil, err
	}
	if !c.CanRead(1 + 2 + 2 + 2) {
		return nil, fmt.Errorf("%w: CDT data module", ErrTruncated)
	}
	t.Logo.Type = c.U8()
	t.Logo.ID = c.U16() & 0x01FF
	t.Logo.Version = c.U16() & 0x0FFF
	n := int(c.U16())
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: CDT logo data", ErrTruncated)
	}
	t.Logo.Data = c.View(n)
	return t, nil
}

// Broadcaster is one broadcaster loop entry of an MH-BIT.
type Broadcaster struct {
	ID          uint8
	Descriptors []Descriptor
}

// BIT is the MH-broadcaster information table.
type BIT struct {
	Section
	OriginalNetworkID      uint16
	BroadcastViewPropriety bool
	Descriptors            []Descriptor
	Broadcasters           []Broadcaster
}

func decodeBIT(id uint8, b []byte) (*BIT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize + 2) {
		return nil, fmt.Errorf("%w: BIT", ErrTruncated)
	}
	t := &BIT{}
	t.Section, t.OriginalNetworkID = readLongHeader(id, c)
	h := c.U16()
	t.BroadcastViewPropriety = h&0x1000 != 0
	n := int(h & 0x0FFF)
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: BIT descriptors", ErrTruncated)
	}
	t.Descriptors = ReadDescriptors(c.View(n))
	for c.CanRead(1 + 2) {
		br := Broadcaster{ID: c.U8()}
		n := int(c.U16() & 0x0FFF)
		if !c.CanRead(n) {
			break
		}
		br.Descriptors = ReadDescriptors(c.View(n))
		t.Broadcasters = append(t.Broadcasters, br)
	}
	return t, nil
}

// Application control codes of the MH-AIT.
const (
	ControlAutostart = 0x01
	ControlPresent   = 0x02
	ControlKill      = 0x04
)

// Application is one application of an MH-AIT.
type Application struct {
	OrganizationID uint16
	ApplicationID  uint32
	ControlCode    uint8
	Descriptors    []Descriptor
}

// AIT is the MH-application information table.
type AIT struct {
	Section
	ApplicationType   uint16
	CommonDescriptors []Descriptor
	Applications      []Application
}

func decodeAIT(id uint8, b []byte) (*AIT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize) {
		return nil, fmt.Errorf("%w: AIT", ErrTruncated)
	}
	t := &AIT{}
	t.Section, t.ApplicationType = readLongHeader(id, c)
	var err error
	if t.CommonDescriptors, err = readLoop(c, "AIT common descriptors"); err != nil {
		return nil, err
	}
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: AIT application loop length", ErrTruncated)
	}
	n := int(c.U16() & 0x0FFF)
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: AIT application loop", ErrTruncated)
	}
	ac := cursor.New(c.View(n))
	for ac.CanRead(2 + 4 + 1 + 2) {
		a := Application{OrganizationID: ac.U16(), ApplicationID: ac.U32(), ControlCode: ac.U8()}
		dl := int(ac.U16() & 0x0FFF)
		if !ac.CanRead(dl) {
			return nil, fmt.Errorf("%w: AIT application descriptors", ErrTruncated)
		}
		a.Descriptors = ReadDescriptors(ac.View(dl))
		t.Applications = append(t.Applications, a)
	}
	return t, nil
}

// EMT is the event message table.
type EMT struct {
	Section
	DataEventID         uint8
	EventMessageGroupID uint16
	Descriptors         []Descriptor
}

func decodeEMT(id uint8, b []byte) (*EMT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize) {
		return nil, fmt.Errorf("%w: EMT", ErrTruncated)
	}
	t := &EMT{}
	var ext uint16
	t.Section, ext = readLongHeader(id, c)
	t.DataEventID = uint8(ext >> 12)
	t.EventMessageGroupID = ext & 0x0FFF
	t.Descriptors = ReadDescriptors(c.Rest())
	return t, nil
}

// TOT is the MH-time offset table.
type TOT struct {
	// JSTTime is MJD+BCD.
	JSTTime     uint64
	Descriptors []Descriptor
}

func (*TOT) TableID() uint8 { return TableTOT }
func (*TOT) isTable() {}

// Time returns the broadcast wall clock.
func (t *TOT) Time() (time.Time, bool) {
	return aribtime.Time(t.JSTTime)
}

func decodeTOT(b []byte) (*TOT, error) {
	c := cursor.New(b)
	if !c.CanRead(5) {
		return nil, fmt.Errorf("%w: TOT", ErrTruncated)
	}
	t := &TOT{JSTTime: c.U40()}
	var err error
	if t.Descriptors, err = readLoop(c, "TOT descriptors"); err != nil {
		return nil, err
	}
	return t, nil
}

// DirectoryFile is a file entry of a DDMT directory node.
type DirectoryFile struct {
	NodeTag uint16
	Name    []byte
}

// DirectoryNode is one directory of a DDMT.
type DirectoryNode struct {
	NodeTag uint16
	Version uint8
	Path    []byte
	Files   []DirectoryFile
}

// DDMT is the data directory management table.
type DDMT struct {
	Section
	SessionID         uint8
	BaseDirectoryPath []byte
	Nodes             []DirectoryNode
}

func decodeDDMT(id uint8, b []byte) (*DDMT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize + 1) {
		return nil, fmt.Errorf("%w: DDMT", ErrTruncated)
	}
	t := &DDMT{}
	var ext uint16
	t.Section, ext = readLongHeader(id, c)
	t.SessionID = uint8(ext >> 8)
	n := int(c.U8())
	if !c.CanRead(n + 1) {
		return nil, fmt.Errorf("%w: DDMT base directory", ErrTruncated)
	}
	t.BaseDirectoryPath = c.View(n)
	nodes := int(c.U8())
	for i := 0; i < nodes; i++ {
		if !c.CanRead(2 + 1 + 1) {
			return nil, fmt.Errorf("%w: DDMT node %d", ErrTruncated, i)
		}
		node := DirectoryNode{NodeTag: c.U16(), Version: c.U8()}
		n := int(c.U8())
		if !c.CanRead(n + 2) {
			return nil, fmt.Errorf("%w: DDMT node %d path", ErrTruncated, i)
		}
		node.Path = c.View(n)
		files := int(c.U16())
		for j := 0; j < files; j++ {
			if !c.CanRead(2 + 1) {
				return nil, fmt.Errorf("%w: DDMT node %d file %d", ErrTruncated, i, j)
			}
			f := DirectoryFile{NodeTag: c.U16()}
			n := int(c.U8())
			if !c.CanRead(n) {
				return nil, fmt.Errorf("%w: DDMT node %d file %d name", ErrTruncated, i, j)
			}
			f.Name = c.View(n)
			node.Files = append(node.Files, f)
		}
		t.Nodes = append(t.Nodes, node)
	}
	return t, nil
}

// Index item compression types of a DAMT MPU.
const (
	CompressionZlib = 0x0
	CompressionNone = 0x3
)

// DataItem is an item of a DAMT MPU.
type DataItem struct {
	NodeTag     uint16
	ItemID      uint32
	Size        uint32
	Version     uint8
	HasChecksum bool
	Checksum    uint32
	Info        []byte
}

// DataMPU is one MPU entry of a DAMT. When IndexItem is set the MPU carries
// an index item and only node tags are listed.
type DataMPU struct {
	SequenceNumber  uint32
	Size            uint32
	IndexItem       bool
	CompressionType uint8
	HasIndexItemID  bool
	IndexItemID     uint32
	NodeTags        []uint16
	Items           []DataItem
	Info            []Descriptor
}

// DAMT is the data asset management table.
type DAMT struct {
	Section
	SessionID     uint8
	TransactionID uint32
	ComponentTag  uint16
	DownloadID    uint32
	MPUs          []DataMPU
	ComponentInfo []byte
}

// DataEventID returns the data event id encoded in the download id.
func (t *DAMT) DataEventID() uint8 {
	return uint8(t.DownloadID>>28) & 0x0F
}

func decodeDAMT(id uint8, b []byte) (*DAMT, error) {
	c := cursor.New(b)
	if !c.CanRead(longHeaderSize + 4 + 2 + 4 + 1) {
		return nil, fmt.Errorf("%w: DAMT", ErrTruncated)
	}
	t := &DAMT{}
	var ext uint16
	t.Section, ext = readLongHeader(id, c)
	t.SessionID = uint8(ext >> 8)
	t.TransactionID = c.U32()
	t.ComponentTag = c.U16()
	t.DownloadID = c.U32()
	n := int(c.U8())
	for i := 0; i < n; i++ {
		m, err := readDataMPU(c)
		if err != nil {
			return nil, fmt.Errorf("DAMT MPU %d: %w", i, err)
		}
		t.MPUs = append(t.MPUs, m)
	}
	if !c.CanRead(1) {
		return nil, fmt.Errorf("%w: DAMT component info length", ErrTruncated)
	}
	n = int(c.U8())
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: DAMT component info", ErrTruncated)
	}
	t.ComponentInfo = c.View(n)
	return t, nil
}

func readDataMPU(c *cursor.Cursor) (DataMPU, error) {
	if !c.CanRead(4 + 4 + 1) {
		return DataMPU{}, ErrTruncated
	}
	m := DataMPU{SequenceNumber: c.U32(), Size: c.U32()}
	h := c.U8()
	m.IndexItem = h&0x80 != 0
	m.HasIndexItemID = m.IndexItem && h&0x40 != 0
	m.CompressionType = (h >> 4) & 0x03
	if m.HasIndexItemID {
		if !c.CanRead(4) {
			return DataMPU{}, ErrTruncated
		}
		m.IndexItemID = c.U32()
	}
	if !c.CanRead(2) {
		return DataMPU{}, ErrTruncated
	}
	items := int(c.U16())
	if m.IndexItem {
		if !c.CanRead(2 * items) {
			return DataMPU{}, ErrTruncated
		}
		for i := 0; i < items; i++ {
			m.NodeTags = append(m.NodeTags, c.U16())
		}
	} else {
		for i := 0; i < items; i++ {
			if !c.CanRead(2 + 4 + 4 + 1 + 1) {
				return DataMPU{}, ErrTruncated
			}
			it := DataItem{NodeTag: c.U16(), ItemID: c.U32(), Size: c.U32(), Version: c.U8()}
			it.HasChecksum = c.U8()&0x80 != 0
			if it.HasChecksum {
				if !c.CanRead(4) {
					return DataMPU{}, ErrTruncated
				}
				it.Checksum = c.U32()
			}
			if !c.CanRead(1) {
				return DataMPU{}, ErrTruncated
			}
			n := int(c.U8())
			if !c.CanRead(n) {
				return DataMPU{}, ErrTruncated
			}
			it.Info = c.View(n)
			m.Items = append(m.Items, it)
		}
	}
	if !c.CanRead(1) {
		return DataMPU{}, ErrTruncated
	}
	n := int(c.U8())
	if !c.CanRead(n) {
		return DataMPU{}, ErrTruncated
	}
	m.Info = ReadDescriptors(c.View(n))
	return m, nil
}
