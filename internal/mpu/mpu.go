// Package mpu decodes MMTP payloads of type MPU (media processing unit).
// Only MFU fragments are decoded; MPU and movie fragment metadata are
// reported as unsupported.
package mpu

import (
	"errors"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// MPU fragment types.
const (
	FragmentTypeMPUMetadata           = 0
	FragmentTypeMovieFragmentMetadata = 1
	FragmentTypeMFU                   = 2
)

// HeaderSize is the size of the MPU payload header that precedes MFU data.
const HeaderSize = 6

const (
	timedMFUHeaderSize    = 14
	nonTimedMFUHeaderSize = 4
)

var (
	ErrTruncated   = errors.New("mpu: truncated payload")
	ErrUnsupported = errors.New("mpu: unsupported fragment type")
)

// MFU is one media fragment unit. The timing fields are only set for timed
// media; ItemID is only set for non-timed media.
type MFU struct {
	MovieFragmentSequenceNumber uint32
	SampleNumber                uint32
	Offset                      uint32
	Priority                    uint8
	DependencyCounter           uint8
	ItemID                      uint32
	// Data aliases the decoded buffer.
	Data []byte
}

// MPU is a decoded MPU payload carrying MFUs.
type MPU struct {
	FragmentType           uint8
	Timed                  bool
	FragmentationIndicator uint8
	Aggregated             bool
	FragmentCounter        uint8
	SequenceNumber         uint32
	MFUs                   []MFU
}

// Header is the fixed part of an MPU payload.
type Header struct {
	FragmentType           uint8
	Timed                  bool
	FragmentationIndicator uint8
	Aggregated             bool
	FragmentCounter        uint8
	SequenceNumber         uint32
}

// ReadHeader decodes the 6-byte MPU payload header.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header", ErrTruncated)
	}
	c := cursor.New(b)
	br := nazabits.NewBitReader(c.View(1))
	var h Header
	h.FragmentType, _ = br.ReadBits8(4)
	timed, _ := br.ReadBits8(1)
	h.FragmentationIndicator, _ = br.ReadBits8(2)
	agg, _ := br.ReadBits8(1)
	h.Timed = timed == 1
	h.Aggregated = agg == 1
	h.FragmentCounter = c.U8()
	h.SequenceNumber = c.U32()
	return h, nil
}

// Decode decodes an MPU payload starting at the header byte (after the
// 16-bit payload length). MFU data slices alias b.
func Decode(b []byte) (*MPU, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	if h.FragmentType != FragmentTypeMFU {
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, h.FragmentType)
	}
	m := &MPU{
		FragmentType:           h.FragmentType,
		Timed:                  h.Timed,
		FragmentationIndicator: h.FragmentationIndicator,
		Aggregated:             h.Aggregated,
		FragmentCounter:        h.FragmentCounter,
		SequenceNumber:         h.SequenceNumber,
	}
	c := cursor.NewAt(b, HeaderSize)

	unitHeader := nonTimedMFUHeaderSize
	if h.Timed {
		unitHeader = timedMFUHeaderSize
	}

	if !h.Aggregated {
		if !c.CanRead(unitHeader) {
			return nil, fmt.Errorf("%w: MFU header", ErrTruncated)
		}
		mfu := readUnitHeader(c, h.Timed)
		mfu.Data = c.Rest()
		m.MFUs = []MFU{mfu}
		return m, nil
	}

	// Aggregated data units: a malformed trailing unit ends the list.
	for c.CanRead(2) {
		n := int(c.U16())
		if !c.CanRead(n) || n < unitHeader {
			break
		}
		mfu := readUnitHeader(c, h.Timed)
		mfu.Data = c.View(n - unitHeader)
		m.MFUs = append(m.MFUs, mfu)
	}
	return m, nil
}

func readUnitHeader(c *cursor.Cursor, timed bool) MFU {
	if !timed {
		return MFU{ItemID: c.U32()}
	}
	return MFU{
		MovieFragmentSequenceNumber: c.U32(),
		SampleNumber:                c.U32(),
		Offset:                      c.U32(),
		Priority:                    c.U8(),
		DependencyCounter:           c.U8(),
	}
}
