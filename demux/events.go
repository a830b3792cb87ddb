package demux

import (
	"github.com/zsiec/mmttlv/internal/event"
	"github.com/zsiec/mmttlv/internal/mmtp"
	"github.com/zsiec/mmttlv/internal/mpegts"
	"github.com/zsiec/mmttlv/internal/ntp"
	"github.com/zsiec/mmttlv/internal/si"
	"github.com/zsiec/mmttlv/internal/tlv"
	"github.com/zsiec/mmttlv/internal/topology"
)

// Subscription identifies a handler registered on a topic.
type Subscription = event.Subscription

// Event payloads published by a TLVReader.
type (
	MPUEvent           = mmtp.MPUEvent
	MFUEvent           = mmtp.MFUEvent
	ScrambledEvent     = mmtp.ScrambledEvent
	MMTDiscontinuity   = mmtp.DiscontinuityEvent
	MMTTable[T any]    = mmtp.Table[T]
	TLVDiscontinuity   = tlv.Discontinuity
	AssetStats         = topology.AssetStats
	CompressionContext = tlv.Context
)

// Event payloads published by a TSReader.
type (
	TSEvents       = mpegts.Events
	TSTable[T any] = mpegts.Table[T]
	TSPacketEvent  = mpegts.PacketEvent
	PIDStats       = mpegts.PIDStats
)

// NTPEvent is a clock reference carried in an uncompressed IPv6 TLV
// packet. Offset is the stream position of the TLV packet.
type NTPEvent struct {
	Offset uint64
	IPv6   *tlv.IPv6Header
	UDP    *tlv.UDPHeader
	Packet *ntp.Packet
}

// TLVDiscontinuityEvent reports a header-compression sequence gap. Offset
// is the stream position of the TLV packet that revealed it.
type TLVDiscontinuityEvent struct {
	Offset uint64
	TLVDiscontinuity
}

// TLVEvents are the topics of a TLVReader. The MMT-SI, media and MMTP
// diagnostic topics are promoted from the embedded mmtp.Events.
type TLVEvents struct {
	mmtp.Events

	NIT event.Topic[*si.NIT]
	AMT event.Topic[*si.AMT]
	NTP event.Topic[NTPEvent]

	TLVDiscontinuity event.Topic[TLVDiscontinuityEvent]
}

// Close detaches every subscriber.
func (e *TLVEvents) Close() {
	e.Events.Close()
	e.NIT.Close()
	e.AMT.Close()
	e.NTP.Close()
	e.TLVDiscontinuity.Close()
}
