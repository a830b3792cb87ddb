package mmtp

import (
	"github.com/zsiec/mmttlv/internal/event"
	"github.com/zsiec/mmttlv/internal/mmtsi"
	"github.com/zsiec/mmttlv/internal/mpu"
	"github.com/zsiec/mmttlv/internal/tlv"
)

// Table is a decoded MMT-SI table with the packet id that carried it.
type Table[T any] struct {
	PacketID uint16
	Table    T
}

// MPUEvent is a decoded MPU payload. Offset is the stream position of the
// TLV packet that carried it.
type MPUEvent struct {
	Offset  uint64
	Header  *Header
	Context tlv.Context
	MPU     *mpu.MPU
}

// MFUEvent is a media fragment unit, reassembled when it spanned several
// MMTP packets. Data is owned by the event only when reassembled; a unit
// carried in one packet aliases the input. Offset locates the TLV packet
// carrying the first fragment.
type MFUEvent struct {
	Offset   uint64
	PacketID uint16
	Context  tlv.Context
	Timed    bool
	// SequenceNumber is the MPU sequence number.
	SequenceNumber uint32
	RAP            bool
	MFU            mpu.MFU
}

// DiscontinuityEvent reports a packet sequence gap on a referenced asset.
type DiscontinuityEvent struct {
	Offset   uint64
	PacketID uint16
	Expected uint32
	Actual   uint32
	Context  tlv.Context
}

// ScrambledEvent reports a packet whose payload is scrambled.
type ScrambledEvent struct {
	Offset  uint64
	Header  *Header
	Context tlv.Context
}

// Events are the topics fed by a Reassembler.
type Events struct {
	PLT  event.Topic[Table[*mmtsi.PLT]]
	MPT  event.Topic[Table[*mmtsi.MPT]]
	CAT  event.Topic[Table[*mmtsi.CAT]]
	EIT  event.Topic[Table[*mmtsi.EIT]]
	SDT  event.Topic[Table[*mmtsi.SDT]]
	CDT  event.Topic[Table[*mmtsi.CDT]]
	TOT  event.Topic[Table[*mmtsi.TOT]]
	BIT  event.Topic[Table[*mmtsi.BIT]]
	AIT  event.Topic[Table[*mmtsi.AIT]]
	EMT  event.Topic[Table[*mmtsi.EMT]]
	DDMT event.Topic[Table[*mmtsi.DDMT]]
	DAMT event.Topic[Table[*mmtsi.DAMT]]

	MPU event.Topic[MPUEvent]
	MFU event.Topic[MFUEvent]

	MMTDiscontinuity event.Topic[DiscontinuityEvent]
	Scrambled        event.Topic[ScrambledEvent]
}

// Close detaches every subscriber.
func (e *Events) Close() {
	e.PLT.Close()
	e.MPT.Close()
	e.CAT.Close()
	e.EIT.Close()
	e.SDT.Close()
	e.CDT.Close()
	e.TOT.Close()
	e.BIT.Close()
	e.AIT.Close()
	e.EMT.Close()
	e.DDMT.Close()
	e.DAMT.Close()
	e.MPU.Close()
	e.MFU.Close()
	e.MMTDiscontinuity.Close()
	e.Scrambled.Close()
}

// appTables reports whether anyone listens for tables that may arrive on
// packet ids announced by an MPT.
func (e *Events) appTables() bool {
	return event.Any(&e.AIT, &e.EMT, &e.DDMT, &e.DAMT, &e.MPT)
}
