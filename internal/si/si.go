// Package si decodes sections whose descriptors carry 8-bit tags: the
// TLV-SI tables (TLV-NIT, AMT) found in TLV signaling frames and the ARIB SI
// tables of a legacy transport stream (NIT, SDT, EIT, TOT).
//
// Slices in decoded values alias the section they were read from.
package si

import (
	"errors"
	"fmt"

	"github.com/zsiec/mmttlv/internal/crc"
	"github.com/zsiec/mmttlv/internal/cursor"
)

var (
	ErrTruncated   = errors.New("si: truncated")
	ErrUnsupported = errors.New("si: unsupported table")
	ErrSyntax      = errors.New("si: section syntax indicator mismatch")
	ErrCRC         = errors.New("si: section CRC mismatch")
)

// Table ids.
const (
	TableNITActual                 = 0x40
	TableNITOther                  = 0x41
	TableSDTActual                 = 0x42
	TableSDTOther                  = 0x46
	TableEITPresentFollowingActual = 0x4E
	TableEITPresentFollowingOther  = 0x4F
	TableEITScheduleFirst          = 0x50
	TableEITScheduleLast           = 0x6F
	TableTOT                       = 0x73
	TableAMT                       = 0xFE
)

// Table is a decoded TLV-SI table.
type Table interface {
	TableID() uint8
}

// Section is one PSI/SI section split into its header and body.
type Section struct {
	TableID uint8
	// Syntax is the section syntax indicator. The fields up to
	// LastSectionNumber are only set when it is.
	Syntax            bool
	Extension         uint16
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	// Body follows the header. The CRC of a long section is not included.
	Body []byte
	// Raw is the complete section, CRC included.
	Raw []byte
}

const (
	shortHeaderSize = 3
	longHeaderSize  = 8
)

// SectionLength returns the total length of the section starting at b, or
// -1 when b does not hold the 3-byte header.
func SectionLength(b []byte) int {
	if len(b) < shortHeaderSize {
		return -1
	}
	return shortHeaderSize + (int(b[1]&0x0F)<<8 | int(b[2]))
}

// ParseSection parses the section at the start of b and returns it with the
// number of bytes it occupies. Long sections must carry a valid CRC32. On a
// CRC mismatch the consumed length is still returned so the caller can skip
// the section.
func ParseSection(b []byte) (*Section, int, error) {
	n := SectionLength(b)
	if n < 0 || len(b) < n {
		return nil, 0, fmt.Errorf("%w: section", ErrTruncated)
	}
	raw := b[:n:n]
	s := &Section{TableID: raw[0], Syntax: raw[1]&0x80 != 0, Raw: raw}
	if !s.Syntax {
		s.Body = raw[shortHeaderSize:]
		return s, n, nil
	}
	if n < longHeaderSize+4 {
		return nil, n, fmt.Errorf("%w: long section header", ErrTruncated)
	}
	if err := crc.Verify(raw); err != nil {
		return nil, n, fmt.Errorf("%w: table 0x%02x", ErrCRC, s.TableID)
	}
	c := cursor.NewAt(raw, shortHeaderSize)
	s.Extension = c.U16()
	v := c.U8()
	s.Version = (v >> 1) & 0x1F
	s.CurrentNext = v&0x01 != 0
	s.SectionNumber = c.U8()
	s.LastSectionNumber = c.U8()
	s.Body = raw[longHeaderSize : n-4]
	return s, n, nil
}

func requireLong(s *Section, what string) error {
	if !s.Syntax {
		return fmt.Errorf("%w: %s", ErrSyntax, what)
	}
	return nil
}

// readLoop reads a 12-bit loop length and the descriptors it covers.
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

// DecodeTLV decodes the payload of a TLV signaling frame, which is a single
// TLV-NIT or AMT section.
func DecodeTLV(b []byte) (Table, error) {
	s, _, err := ParseSection(b)
	if err != nil {
		return nil, err
	}
	switch s.TableID {
	case TableNITActual, TableNITOther:
		return DecodeNIT(s)
	case TableAMT:
		return DecodeAMT(s)
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupported, s.TableID)
}
