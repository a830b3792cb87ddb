package mmtsi

import (
	"fmt"
	"net/netip"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// Location types of MMT general location info.
const (
	LocationSameDataflow = 0x00
	LocationIPv6Dataflow = 0x02
)

// Location is MMT general location info. Only the same-dataflow and
// IPv6-dataflow forms are used on MMT/TLV broadcasts. Every form carries a
// packet id.
type Location struct {
	Type            uint8
	PacketID        uint16
	Source          netip.Addr
	Destination     netip.Addr
	DestinationPort uint16
}

// SameDataflow reports whether the location points into the current stream.
func (l Location) SameDataflow() bool {
	return l.Type == LocationSameDataflow
}

func readLocation(c *cursor.Cursor) (Location, error) {
	if !c.CanRead(1) {
		return Location{}, fmt.Errorf("%w: location type", ErrTruncated)
	}
	l := Location{Type: c.U8()}
	switch l.Type {
	case LocationSameDataflow:
		if !c.CanRead(2) {
			return Location{}, fmt.Errorf("%w: location", ErrTruncated)
		}
		l.PacketID = c.U16()
	case LocationIPv6Dataflow:
		if !c.CanRead(16 + 16 + 2 + 2) {
			return Location{}, fmt.Errorf("%w: IPv6 location", ErrTruncated)
		}
		var a [16]byte
		copy(a[:], c.View(16))
		l.Source = netip.AddrFrom16(a)
		copy(a[:], c.View(16))
		l.Destination = netip.AddrFrom16(a)
		l.DestinationPort = c.U16()
		l.PacketID = c.U16()
	default:
		return Location{}, fmt.Errorf("%w: location type 0x%02x", ErrUnsupported, l.Type)
	}
	return l, nil
}
