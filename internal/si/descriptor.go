package si

import (
	"fmt"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// Descriptor tags with a typed decoder.
const (
	TagNetworkName             = 0x40
	TagServiceList             = 0x41
	TagSatelliteDeliverySystem = 0x43
	TagService                 = 0x48
	TagShortEvent              = 0x4D
	TagRemoteControlKey        = 0xCD
	TagSystemManagement        = 0xFE
)

// Descriptor is an undecoded descriptor.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// ReadDescriptors splits a descriptor loop. A truncated trailing descriptor
// ends the loop.
func ReadDescriptors(b []byte) []Descriptor {
	var out []Descriptor
	c := cursor.New(b)
	for c.CanRead(2) {
		tag := c.U8()
		n := int(c.U8())
		if !c.CanRead(n) {
			break
		}
		out = append(out, Descriptor{Tag: tag, Data: c.View(n)})
	}
	return out
}

// Find returns the first descriptor with tag.
func Find(ds []Descriptor, tag uint8) (Descriptor, bool) {
	for _, d := range ds {
		if d.Tag == tag {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ServiceListEntry is one service of a service list descriptor.
type ServiceListEntry struct {
	ServiceID   uint16
	ServiceType uint8
}

// DecodeServiceList decodes a service list descriptor. A trailing partial
// entry is ignored.
func DecodeServiceList(d Descriptor) []ServiceListEntry {
	var out []ServiceListEntry
	c := cursor.New(d.Data)
	for c.CanRead(3) {
		out = append(out, ServiceListEntry{ServiceID: c.U16(), ServiceType: c.U8()})
	}
	return out
}

type SatelliteDeliverySystem struct {
	// Frequency is 8 BCD digits in units of 10 kHz.
	Frequency uint32
	// OrbitalPosition is 4 BCD digits in units of 0.1 degree.
	OrbitalPosition uint16
	WestEast        bool
	Polarization    uint8
	Modulation      uint8
	// SymbolRate is 7 BCD digits in units of 100 symbols/s.
	SymbolRate uint32
	FECInner   uint8
}

func DecodeSatelliteDeliverySystem(d Descriptor) (*SatelliteDeliverySystem, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(11) {
		return nil, fmt.Errorf("%w: satellite delivery system descriptor", ErrTruncated)
	}
	s := &SatelliteDeliverySystem{Frequency: c.U32(), OrbitalPosition: c.U16()}
	f := c.U8()
	s.WestEast = f&0x80 != 0
	s.Polarization = (f >> 5) & 0x03
	s.Modulation = f & 0x1F
	r := c.U32()
	s.SymbolRate = r >> 4
	s.FECInner = uint8(r & 0x0F)
	return s, nil
}

// Service is the service descriptor. Names are ARIB 8-unit coded text.
type Service struct {
	ServiceType  uint8
	ProviderName []byte
	Name         []byte
}

func DecodeService(d Descriptor) (*Service, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: service descriptor", ErrTruncated)
	}
	s := &Service{ServiceType: c.U8()}
	n := int(c.U8())
	if !c.CanRead(n + 1) {
		return nil, fmt.Errorf("%w: service provider name", ErrTruncated)
	}
	s.ProviderName = c.View(n)
	n = int(c.U8())
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: service name", ErrTruncated)
	}
	s.Name = c.View(n)
	return s, nil
}

// ShortEvent is the short event descriptor. Language is an ISO 639 code
// packed into 24 bits.
type ShortEvent struct {
	Language uint32
	Name     []byte
	Text     []byte
}

func DecodeShortEvent(d Descriptor) (*ShortEvent, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(4) {
		return nil, fmt.Errorf("%w: short event descriptor", ErrTruncated)
	}
	e := &ShortEvent{Language: c.U24()}
	n := int(c.U8())
	if !c.CanRead(n + 1) {
		return nil, fmt.Errorf("%w: event name", ErrTruncated)
	}
	e.Name = c.View(n)
	n = int(c.U8())
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: event text", ErrTruncated)
	}
	e.Text = c.View(n)
	return e, nil
}

// RemoteControlKey maps a remote control button to a service.
type RemoteControlKey struct {
	KeyID     uint8
	ServiceID uint16
}

// DecodeRemoteControlKeys decodes a remote control key descriptor. Entries
// beyond the descriptor end are dropped.
func DecodeRemoteControlKeys(d Descriptor) []RemoteControlKey {
	c := cursor.New(d.Data)
	if !c.CanRead(1) {
		return nil
	}
	n := int(c.U8())
	out := make([]RemoteControlKey, 0, n)
	for i := 0; i < n && c.CanRead(5); i++ {
		k := RemoteControlKey{KeyID: c.U8(), ServiceID: c.U16()}
		c.Skip(2)
		out = append(out, k)
	}
	return out
}

type SystemManagement struct {
	BroadcastingFlag                     uint8
	BroadcastingIdentifier               uint8
	AdditionalBroadcastingIdentification uint8
	AdditionalIdentificationInfo         []byte
}

func DecodeSystemManagement(d Descriptor) (*SystemManagement, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: system management descriptor", ErrTruncated)
	}
	b := c.U8()
	return &SystemManagement{
		BroadcastingFlag:                     b >> 6,
		BroadcastingIdentifier:               b & 0x3F,
		AdditionalBroadcastingIdentification: c.U8(),
		AdditionalIdentificationInfo:         c.Rest(),
	}, nil
}
