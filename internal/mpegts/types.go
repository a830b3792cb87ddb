// Package mpegts reads legacy MPEG-2 transport streams as broadcast under
// ARIB STD-B10. It locks onto 188, 192 or 204 byte packets, reassembles PSI
// and SI sections per PID and delivers them as typed events.
//
// PES payloads are not reassembled; only section-carrying PIDs produce
// output besides the per-packet event.
package mpegts

import (
	"github.com/zsiec/mmttlv/internal/event"
	"github.com/zsiec/mmttlv/internal/si"
)

// Well-known PIDs.
const (
	PIDPAT  = 0x0000
	PIDCAT  = 0x0001
	PIDNIT  = 0x0010
	PIDSDT  = 0x0011
	PIDEIT  = 0x0012
	PIDTOT  = 0x0014
	PIDBIT  = 0x0024
	PIDMEIT = 0x0026
	PIDLEIT = 0x0027
	PIDCDT  = 0x0029
	PIDNull = 0x1FFF
)

// Table ids of the sections handled here. SI tables decoded into typed
// values use the si package constants.
const (
	TableIDPAT               = 0x00
	TableIDCAT               = 0x01
	TableIDPMT               = 0x02
	TableIDDSMCCDII          = 0x3B
	TableIDDSMCCDDB          = 0x3C
	TableIDDSMCCStreamEvents = 0x3D
	TableIDBIT               = 0xC4
	TableIDCDT               = 0xC8
)

// Packet is one accepted transport packet. Payload aliases the reader's
// buffer and is only valid during the callback.
type Packet struct {
	PID                       uint16
	PayloadUnitStartIndicator bool
	TransportPriority         bool
	AdaptationFieldControl    uint8
	ContinuityCounter         uint8
	DiscontinuityIndicator    bool
	Payload                   []byte
}

// PacketEvent is a Packet with the stream byte offset of its sync byte.
type PacketEvent struct {
	Offset uint64
	Packet Packet
}

// PATData is a decoded Program Association Table.
type PATData struct {
	TransportStreamID uint16
	Version           uint8
	// NetworkPID is the PID announced under program number 0, or 0.
	NetworkPID uint16
	Programs   []*PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramMapID  uint16
	ProgramNumber uint16
}

// PMTData is a decoded Program Map Table.
type PMTData struct {
	ProgramNumber     uint16
	Version           uint8
	PCRPID            uint16
	Descriptors       []si.Descriptor
	ElementaryStreams []*PMTElementaryStream
}

// PMTElementaryStream describes one elementary stream of a program.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
	Descriptors   []si.Descriptor
}

// Table is a decoded table with the PID that carried it.
type Table[T any] struct {
	PID   uint16
	Table T
}

// Events are the topics fed by a Reader.
type Events struct {
	PAT   event.Topic[Table[*PATData]]
	PMT   event.Topic[Table[*PMTData]]
	CAT   event.Topic[Table[*si.Section]]
	NIT   event.Topic[Table[*si.NIT]]
	SDT   event.Topic[Table[*si.SDT]]
	EIT   event.Topic[Table[*si.EIT]]
	TOT   event.Topic[Table[*si.TOT]]
	BIT   event.Topic[Table[*si.Section]]
	CDT   event.Topic[Table[*si.Section]]
	DSMCC event.Topic[Table[*DSMCC]]

	Packet event.Topic[PacketEvent]
}

// Close detaches every subscriber.
func (e *Events) Close() {
	e.PAT.Close()
	e.PMT.Close()
	e.CAT.Close()
	e.NIT.Close()
	e.SDT.Close()
	e.EIT.Close()
	e.TOT.Close()
	e.BIT.Close()
	e.CDT.Close()
	e.DSMCC.Close()
	e.Packet.Close()
}

// PIDStats are the per-PID counters of a Reader.
type PIDStats struct {
	PID             uint16 `json:"pid"`
	Packets         uint64 `json:"packets"`
	Discontinuities uint64 `json:"discontinuities"`
	Duplicates      uint64 `json:"duplicates"`
	TransportErrors uint64 `json:"transport_errors"`
	Scrambled       uint64 `json:"scrambled"`
}
