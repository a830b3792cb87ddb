package si

import (
	"fmt"
	"time"

	"github.com/zsiec/mmttlv/internal/aribtime"
	"github.com/zsiec/mmttlv/internal/crc"
	"github.com/zsiec/mmttlv/internal/cursor"
)

// SDTService is one service of an SDT.
type SDTService struct {
	ServiceID           uint16
	EITUserDefinedFlags uint8
	EITSchedule         bool
	EITPresentFollowing bool
	RunningStatus       uint8
	FreeCAMode          bool
	Descriptors         []Descriptor
}

// SDT is the service description table.
type SDT struct {
	ID                uint8
	TransportStreamID uint16
	Version           uint8
	SectionNumber     uint8
	LastSectionNumber uint8
	OriginalNetworkID uint16
	Services          []SDTService
}

// Actual reports whether t describes the transport stream carrying it.
func (t *SDT) Actual() bool { return t.ID == TableSDTActual }

func DecodeSDT(s *Section) (*SDT, error) {
	if err := requireLong(s, "SDT"); err != nil {
		return nil, err
	}
	c := cursor.New(s.Body)
	if !c.CanRead(3) {
		return nil, fmt.Errorf("%w: SDT", ErrTruncated)
	}
	t := &SDT{
		ID:                s.TableID,
		TransportStreamID: s.Extension,
		Version:           s.Version,
		SectionNumber:     s.SectionNumber,
		LastSectionNumber: s.LastSectionNumber,
		OriginalNetworkID: c.U16(),
	}
	c.Skip(1)
	for c.CanRead(5) {
		svc := SDTService{ServiceID: c.U16()}
		f := c.U8()
		svc.EITUserDefinedFlags = (f >> 2) & 0x07
		svc.EITSchedule = f&0x02 != 0
		svc.EITPresentFollowing = f&0x01 != 0
		h := c.U16()
		svc.RunningStatus = uint8(h >> 13)
		svc.FreeCAMode = h&0x1000 != 0
		n := int(h & 0x0FFF)
		if !c.CanRead(n) {
			break
		}
		svc.Descriptors = ReadDescriptors(c.View(n))
		t.Services = append(t.Services, svc)
	}
	return t, nil
}

// Event is one event of an EIT.
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
func (e Event) Start() (time.Time, bool) { return aribtime.Time(e.StartTime) }

// Length returns the event duration.
func (e Event) Length() (time.Duration, bool) { return aribtime.Duration(e.Duration) }

// EIT is the event information table, present/following or schedule.
type EIT struct {
	ID                       uint8
	ServiceID                uint16
	Version                  uint8
	SectionNumber            uint8
	LastSectionNumber        uint8
	TransportStreamID        uint16
	OriginalNetworkID        uint16
	SegmentLastSectionNumber uint8
	LastTableID              uint8
	Events                   []Event
}

// PresentFollowing reports whether t is a present/following table.
func (t *EIT) PresentFollowing() bool {
	return t.ID == TableEITPresentFollowingActual || t.ID == TableEITPresentFollowingOther
}

// IsEIT reports whether id is in the EIT table id range.
func IsEIT(id uint8) bool {
	return id >= TableEITPresentFollowingActual && id <= TableEITScheduleLast
}

func DecodeEIT(s *Section) (*EIT, error) {
	if err := requireLong(s, "EIT"); err != nil {
		return nil, err
	}
	c := cursor.New(s.Body)
	if !c.CanRead(6) {
		return nil, fmt.Errorf("%w: EIT", ErrTruncated)
	}
	t := &EIT{
		ID:                       s.TableID,
		ServiceID:                s.Extension,
		Version:                  s.Version,
		SectionNumber:            s.SectionNumber,
		LastSectionNumber:        s.LastSectionNumber,
		TransportStreamID:        c.U16(),
		OriginalNetworkID:        c.U16(),
		SegmentLastSectionNumber: c.U8(),
		LastTableID:              c.U8(),
	}
	for c.CanRead(12) {
		e := Event{EventID: c.U16(), StartTime: c.U40(), Duration: c.U24()}
		h := c.U16()
		e.RunningStatus = uint8(h >> 13)
		e.FreeCAMode = h&0x1000 != 0
		n := int(h & 0x0FFF)
		if !c.CanRead(n) {
			break
		}
		e.Descriptors = ReadDescriptors(c.View(n))
		t.Events = append(t.Events, e)
	}
	return t, nil
}

// TOT is the time offset table.
type TOT struct {
	// JSTTime is MJD+BCD.
	JSTTime     uint64
	Descriptors []Descriptor
}

// Time returns the carried time in JST.
func (t *TOT) Time() (time.Time, bool) { return aribtime.Time(t.JSTTime) }

// DecodeTOT decodes a TOT. The TOT is a short section that still carries a
// CRC32, which is verified.
func DecodeTOT(s *Section) (*TOT, error) {
	if len(s.Raw) < shortHeaderSize+5+2+4 {
		return nil, fmt.Errorf("%w: TOT", ErrTruncated)
	}
	if err := crc.Verify(s.Raw); err != nil {
		return nil, fmt.Errorf("%w: TOT", ErrCRC)
	}
	c := cursor.New(s.Raw[shortHeaderSize : len(s.Raw)-4])
	t := &TOT{JSTTime: c.U40()}
	var err error
	if t.Descriptors, err = readLoop(c, "TOT descriptors"); err != nil {
		return nil, err
	}
	return t, nil
}
