package mmtsi

import (
	"fmt"

	"github.com/zsiec/mmttlv/internal/cursor"
	"github.com/zsiec/mmttlv/internal/ntp"
)

// Descriptor tags with a typed decoder.
const (
	TagMPUTimestamp       = 0x0001
	TagAccessControl      = 0x8004
	TagStreamIdentifier   = 0x8011
	TagService            = 0x8019
	TagApplicationService = 0x8034
	TagMPUNode            = 0x8035
	TagShortEvent         = 0xF001
)

// Descriptor is an undecoded MMT-SI descriptor. Data aliases the message
// buffer it was read from.
type Descriptor struct {
	Tag  uint16
	Data []byte
}

// descriptorLengthSize returns the size of the length field that follows a
// tag: 2 bytes for 0x4000-0x6FFF and 0xF000 upward, 4 bytes for
// 0x7000-0x7FFF, otherwise 1.
func descriptorLengthSize(tag uint16) int {
	switch {
	case tag >= 0x4000 && tag <= 0x6FFF, tag >= 0xF000:
		return 2
	case tag >= 0x7000 && tag <= 0x7FFF:
		return 4
	}
	return 1
}

// ReadDescriptors splits a descriptor loop. A truncated trailing descriptor
// ends the loop.
func ReadDescriptors(b []byte) []Descriptor {
	var out []Descriptor
	c := cursor.New(b)
	for c.CanRead(3) {
		tag := c.U16()
		n := descriptorLengthSize(tag)
		if !c.CanRead(n) {
			break
		}
		var length int
		switch n {
		case 1:
			length = int(c.U8())
		case 2:
			length = int(c.U16())
		case 4:
			l := c.U32()
			if uint64(l) > uint64(c.Len()) {
				return out
			}
			length = int(l)
		}
		if !c.CanRead(length) {
			break
		}
		out = append(out, Descriptor{Tag: tag, Data: c.View(length)})
	}
	return out
}

// Find returns the first descriptor with tag.
func Find(ds []Descriptor, tag uint16) (Descriptor, bool) {
	for _, d := range ds {
		if d.Tag == tag {
			return d, true
		}
	}
	return Descriptor{}, false
}

// AccessControl is the access control descriptor: the CA system and where
// its ECMs are carried.
type AccessControl struct {
	CASystemID  uint16
	Location    Location
	PrivateData []byte
}

// DecodeAccessControl decodes d as an access control descriptor.
func DecodeAccessControl(d Descriptor) (*AccessControl, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: access control descriptor", ErrTruncated)
	}
	ac := &AccessControl{CASystemID: c.U16()}
	loc, err := readLocation(c)
	if err != nil {
		return nil, fmt.Errorf("access control location: %w", err)
	}
	ac.Location = loc
	ac.PrivateData = c.Rest()
	return ac, nil
}

// EMTLocation is one event message table reference of an application
// service descriptor.
type EMTLocation struct {
	Tag      uint8
	Location Location
}

// ApplicationService is the application service descriptor, which locates
// the AIT, the data transmission messages and the EMTs of a package.
type ApplicationService struct {
	ApplicationFormat  uint8
	DocumentResolution uint8
	DefaultAIT         bool
	AIT                Location
	// DTMessage is set when the package carries DDMT/DAMT messages.
	DTMessage   *Location
	EMTs        []EMTLocation
	PrivateData []byte
}

// DecodeApplicationService decodes d as an application service descriptor.
func DecodeApplicationService(d Descriptor) (*ApplicationService, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(3) {
		return nil, fmt.Errorf("%w: application service descriptor", ErrTruncated)
	}
	as := &ApplicationService{
		ApplicationFormat:  c.U8() >> 4,
		DocumentResolution: c.U8() >> 4,
	}
	flags := c.U8()
	as.DefaultAIT = flags&0x80 != 0
	hasDT := flags&0x40 != 0
	emtNum := int(flags & 0x0F)

	var err error
	if as.AIT, err = readLocation(c); err != nil {
		return nil, fmt.Errorf("AIT location: %w", err)
	}
	if hasDT {
		loc, err := readLocation(c)
		if err != nil {
			return nil, fmt.Errorf("DT message location: %w", err)
		}
		as.DTMessage = &loc
	}
	for i := 0; i < emtNum && c.CanRead(1); i++ {
		tag := c.U8()
		loc, err := readLocation(c)
		if err != nil {
			return nil, fmt.Errorf("EMT location: %w", err)
		}
		as.EMTs = append(as.EMTs, EMTLocation{Tag: tag, Location: loc})
	}
	as.PrivateData = c.Rest()
	return as, nil
}

// MPUTimestamp maps an MPU sequence number to its presentation time.
type MPUTimestamp struct {
	SequenceNumber   uint32
	PresentationTime ntp.Timestamp
}

// DecodeMPUTimestamps decodes d as an MPU timestamp descriptor.
func DecodeMPUTimestamps(d Descriptor) []MPUTimestamp {
	var out []MPUTimestamp
	c := cursor.New(d.Data)
	for c.CanRead(4 + 8) {
		seq := c.U32()
		out = append(out, MPUTimestamp{SequenceNumber: seq, PresentationTime: ntp.ReadTimestamp(c)})
	}
	return out
}

// Service is the MH-service descriptor.
type Service struct {
	Type         uint8
	ProviderName []byte
	Name         []byte
}

// DecodeService decodes d as an MH-service descriptor. Names are ARIB
// 8-bit coded strings and are returned undecoded.
func DecodeService(d Descriptor) (*Service, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: service descriptor", ErrTruncated)
	}
	s := &Service{Type: c.U8()}
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

// ShortEvent is the MH-short event descriptor.
type ShortEvent struct {
	Language uint32
	Name     []byte
	Text     []byte
}

// DecodeShortEvent decodes d as an MH-short event descriptor.
func DecodeShortEvent(d Descriptor) (*ShortEvent, error) {
	c := cursor.New(d.Data)
	if !c.CanRead(4) {
		return nil, fmt.Errorf("%w: short event descriptor", ErrTruncated)
	}
	e := &ShortEvent{Language: c.U24()}
	n := int(c.U8())
	if !c.CanRead(n + 2) {
		return nil, fmt.Errorf("%w: event name", ErrTruncated)
	}
	e.Name = c.View(n)
	n = int(c.U16())
	if !c.CanRead(n) {
		return nil, fmt.Errorf("%w: event text", ErrTruncated)
	}
	e.Text = c.View(n)
	return e, nil
}

// DecodeStreamIdentifier returns the component tag of an MH-stream
// identifier descriptor.
func DecodeStreamIdentifier(d Descriptor) (uint16, error) {
	if len(d.Data) < 2 {
		return 0, fmt.Errorf("%w: stream identifier descriptor", ErrTruncated)
	}
	return uint16(d.Data[0])<<8 | uint16(d.Data[1]), nil
}

// DecodeMPUNode returns the node tag of an MPU node descriptor.
func DecodeMPUNode(d Descriptor) (uint16, error) {
	if len(d.Data) < 2 {
		return 0, fmt.Errorf("%w: MPU node descriptor", ErrTruncated)
	}
	return uint16(d.Data[0])<<8 | uint16(d.Data[1]), nil
}
