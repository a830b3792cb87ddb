package mmtp

import (
	"errors"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// Payload types.
const (
	PayloadTypeMPU       = 0x00
	PayloadTypeSignaling = 0x02
)

// Header extension types. Only the multi-type extension is split into
// sub-extensions.
const (
	ExtensionMultiType = 0x0000

	SubExtensionScramble      = 0x0001
	SubExtensionDownloadID    = 0x0002
	SubExtensionItemFragment  = 0x0003
	subExtensionHeaderSize    = 4
	itemFragmentExtensionSize = 8
)

// Scramble control values.
const (
	ScrambleNone = 0
	ScrambleEven = 2
	ScrambleOdd  = 3
)

const (
	headerSize        = 12
	packetCounterSize = 4
)

var (
	ErrTruncated = errors.New("mmtp: truncated packet")
)

// Scramble is the scramble information sub-extension.
type Scramble struct {
	Control uint8
	// Data is the full sub-extension body.
	Data []byte
}

// ItemFragment is the item fragmentation sub-extension used by data
// transmission.
type ItemFragment struct {
	Number     uint32
	LastNumber uint32
}

// Extension is a decoded header extension.
type Extension struct {
	Type uint16
	// Data is the raw extension body.
	Data          []byte
	Scramble      *Scramble
	DownloadID    uint32
	HasDownloadID bool
	ItemFragment  *ItemFragment
}

// Header is the MMTP packet header.
type Header struct {
	Version           uint8
	PacketCounterFlag bool
	FECType           uint8
	ExtensionFlag     bool
	RAPFlag           bool
	PayloadType       uint8
	PacketID          uint16
	Timestamp         uint32
	SequenceNumber    uint32
	// PacketCounter is only valid when PacketCounterFlag is set.
	PacketCounter uint32
	Extension     *Extension
}

// Scrambled reports whether the payload is scrambled.
func (h *Header) Scrambled() bool {
	return h.Extension != nil && h.Extension.Scramble != nil && h.Extension.Scramble.Control != ScrambleNone
}

// ReadHeader decodes the MMTP header at the start of b and returns it with
// the payload that follows.
func ReadHeader(b []byte) (*Header, []byte, error) {
	c := cursor.New(b)
	if !c.CanRead(headerSize) {
		return nil, nil, fmt.Errorf("%w: header", ErrTruncated)
	}
	br := nazabits.NewBitReader(c.View(1))
	h := &Header{}
	h.Version, _ = br.ReadBits8(2)
	counter, _ := br.ReadBits8(1)
	h.FECType, _ = br.ReadBits8(2)
	_, _ = br.ReadBits8(1)
	ext, _ := br.ReadBits8(1)
	rap, _ := br.ReadBits8(1)
	h.PacketCounterFlag = counter == 1
	h.ExtensionFlag = ext == 1
	h.RAPFlag = rap == 1
	h.PayloadType = c.U8() & 0x3F
	h.PacketID = c.U16()
	h.Timestamp = c.U32()
	h.SequenceNumber = c.U32()

	if h.PacketCounterFlag {
		if !c.CanRead(packetCounterSize) {
			return nil, nil, fmt.Errorf("%w: packet counter", ErrTruncated)
		}
		h.PacketCounter = c.U32()
	}
	if h.ExtensionFlag {
		if !c.CanRead(4) {
			return nil, nil, fmt.Errorf("%w: extension header", ErrTruncated)
		}
		e := &Extension{Type: c.U16()}
		n := int(c.U16())
		if !c.CanRead(n) {
			return nil, nil, fmt.Errorf("%w: extension", ErrTruncated)
		}
		e.Data = c.View(n)
		if e.Type == ExtensionMultiType {
			readSubExtensions(e)
		}
		h.Extension = e
	}
	return h, c.Rest(), nil
}

// readSubExtensions walks the sub-extension list. Unknown types are skipped
// and an entry overrunning the extension ends the walk.
func readSubExtensions(e *Extension) {
	c := cursor.New(e.Data)
	for c.CanRead(subExtensionHeaderSize) {
		h := c.U16()
		last := h&0x8000 != 0
		typ := h & 0x7FFF
		n := int(c.U16())
		if !c.CanRead(n) {
			return
		}
		body := c.View(n)
		switch typ {
		case SubExtensionScramble:
			if n >= 1 {
				e.Scramble = &Scramble{Control: (body[0] >> 3) & 0x03, Data: body}
			}
		case SubExtensionDownloadID:
			if n >= 4 {
				e.DownloadID = uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
				e.HasDownloadID = true
			}
		case SubExtensionItemFragment:
			if n >= itemFragmentExtensionSize {
				fc := cursor.New(body)
				e.ItemFragment = &ItemFragment{Number: fc.U32(), LastNumber: fc.U32()}
			}
		}
		if last {
			return
		}
	}
}
