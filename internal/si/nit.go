package si

import (
	"fmt"
	"net/netip"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// TransportStream is one entry of the NIT transport loop. In a TLV-NIT the
// id is a TLV stream id.
type TransportStream struct {
	ID                uint16
	OriginalNetworkID uint16
	Descriptors       []Descriptor
}

// NIT is the network information table. TLV-NIT shares the layout of the
// transport stream NIT.
type NIT struct {
	ID                uint8
	NetworkID         uint16
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	Descriptors       []Descriptor
	Streams           []TransportStream
}

func (t *NIT) TableID() uint8 { return t.ID }

// Actual reports whether t describes the network carrying it.
func (t *NIT) Actual() bool { return t.ID == TableNITActual }

// DecodeNIT decodes a NIT section. A truncated stream entry ends the loop.
func DecodeNIT(s *Section) (*NIT, error) {
	if err := requireLong(s, "NIT"); err != nil {
		return nil, err
	}
	t := &NIT{
		ID:                s.TableID,
		NetworkID:         s.Extension,
		Version:           s.Version,
		CurrentNext:       s.CurrentNext,
		SectionNumber:     s.SectionNumber,
		LastSectionNumber: s.LastSectionNumber,
	}
	c := cursor.New(s.Body)
	var err error
	if t.Descriptors, err = readLoop(c, "network descriptors"); err != nil {
		return nil, err
	}
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: transport stream loop length", ErrTruncated)
	}
	n := int(c.U16() & 0x0FFF)
	if !c.CanRead(n) {
		n = c.Len()
	}
	loop := cursor.New(c.View(n))
	for loop.CanRead(6) {
		ts := TransportStream{ID: loop.U16(), OriginalNetworkID: loop.U16()}
		l := int(loop.U16() & 0x0FFF)
		if !loop.CanRead(l) {
			break
		}
		ts.Descriptors = ReadDescriptors(loop.View(l))
		t.Streams = append(t.Streams, ts)
	}
	return t, nil
}

// AMTService maps a service to the IP dataflow carrying it.
type AMTService struct {
	ServiceID   uint16
	IPv6        bool
	Source      netip.Prefix
	Destination netip.Prefix
	PrivateData []byte
}

// AMT is the address map table.
type AMT struct {
	TableIDExtension  uint16
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	Services          []AMTService
}

func (*AMT) TableID() uint8 { return TableAMT }

// DecodeAMT decodes an AMT section. A service entry that overruns the
// section or carries an invalid prefix ends the list.
func DecodeAMT(s *Section) (*AMT, error) {
	if err := requireLong(s, "AMT"); err != nil {
		return nil, err
	}
	t := &AMT{
		TableIDExtension:  s.Extension,
		Version:           s.Version,
		CurrentNext:       s.CurrentNext,
		SectionNumber:     s.SectionNumber,
		LastSectionNumber: s.LastSectionNumber,
	}
	c := cursor.New(s.Body)
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: AMT service count", ErrTruncated)
	}
	count := int(c.U16() >> 6)
	for i := 0; i < count && c.CanRead(4); i++ {
		svc := AMTService{ServiceID: c.U16()}
		h := c.U16()
		svc.IPv6 = h&0x8000 != 0
		n := int(h & 0x03FF)
		if !c.CanRead(n) {
			break
		}
		entry, ok := readAMTAddresses(cursor.New(c.View(n)), svc)
		if !ok {
			break
		}
		t.Services = append(t.Services, entry)
	}
	return t, nil
}

func readAMTAddresses(c *cursor.Cursor, svc AMTService) (AMTService, bool) {
	size := 4
	if svc.IPv6 {
		size = 16
	}
	if !c.CanRead(2 * (size + 1)) {
		return svc, false
	}
	var ok bool
	if svc.Source, ok = readPrefix(c, size); !ok {
		return svc, false
	}
	if svc.Destination, ok = readPrefix(c, size); !ok {
		return svc, false
	}
	svc.PrivateData = c.Rest()
	return svc, true
}

func readPrefix(c *cursor.Cursor, size int) (netip.Prefix, bool) {
	addr, _ := netip.AddrFromSlice(c.View(size))
	bits := int(c.U8())
	if bits > addr.BitLen() {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(addr, bits), true
}
