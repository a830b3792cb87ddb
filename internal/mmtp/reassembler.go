// Package mmtp reassembles MMTP packets, as carried in compressed TLV
// frames, into MMT-SI tables and media fragments.
//
// Every packet runs through the asset's fragmentation state machine and
// sequence check in the topology tracker before its payload is looked at, so
// continuity is monitored even for payloads nobody decodes. Payloads are
// only decoded when a topic that would receive the result has subscribers.
// PLT, MPT and CAT messages are an exception: the tracker needs them.
package mmtp

import (
	"bytes"
	"log/slog"

	"github.com/zsiec/mmttlv/internal/cursor"
	"github.com/zsiec/mmttlv/internal/event"
	"github.com/zsiec/mmttlv/internal/mmtsi"
	"github.com/zsiec/mmttlv/internal/mpu"
	"github.com/zsiec/mmttlv/internal/tlv"
	"github.com/zsiec/mmttlv/internal/topology"
)

// queue collects the fragments of one unit on one packet id.
type queue struct {
	payloadType uint8
	// seq is the packet sequence number of the last fragment.
	seq   uint32
	parts [][]byte
	// first holds the MFU header of the head fragment.
	first MFUEvent
}

// Reassembler turns MMTP packets into events. It is driven synchronously
// by the TLV reader and is not safe for concurrent use.
type Reassembler struct {
	log     *slog.Logger
	events  *Events
	tracker *topology.Tracker
	queues  map[uint16]*queue

	decodeMessage func([]byte) (*mmtsi.Message, error)
	decodeMPU     func([]byte) (*mpu.MPU, error)
}

// ReassemblerOptLogger sets the logger (default slog.Default()).
func ReassemblerOptLogger(l *slog.Logger) func(*Reassembler) {
	return func(r *Reassembler) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Reassembler publishing to events and keeping asset state in
// tracker.
func New(events *Events, tracker *topology.Tracker, opts ...func(*Reassembler)) *Reassembler {
	r := &Reassembler{
		log:           slog.Default(),
		events:        events,
		tracker:       tracker,
		queues:        make(map[uint16]*queue),
		decodeMessage: mmtsi.DecodeMessage,
		decodeMPU:     mpu.Decode,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "mmtp")
	return r
}

// Reset discards every unit in progress. The tracker is owned by the caller
// and reset separately.
func (r *Reassembler) Reset() {
	clear(r.queues)
}

// Pending returns the number of packet ids with a unit in progress.
func (r *Reassembler) Pending() int {
	return len(r.queues)
}

// Push processes one MMTP packet. offset is the stream position of the TLV
// packet that carried it and ctx the compression context it arrived on.
func (r *Reassembler) Push(b []byte, offset uint64, ctx tlv.Context) {
	h, payload, err := ReadHeader(b)
	if err != nil {
		r.log.Debug("dropping MMTP packet", "offset", offset, "error", err)
		return
	}
	switch h.PayloadType {
	case PayloadTypeMPU:
		r.pushMPU(h, payload, offset, ctx)
	case PayloadTypeSignaling:
		r.pushSignaling(h, payload, offset, ctx)
	}
}

// observe runs the tracker for one packet. fi is FragmentNone when the
// payload header could not be read.
func (r *Reassembler) observe(h *Header, fi topology.Fragment, offset uint64, ctx tlv.Context) {
	o := r.tracker.Observe(h.PacketID, fi, h.SequenceNumber)
	if o.Dropped {
		delete(r.queues, h.PacketID)
	}
	if o.Gap == nil {
		return
	}
	r.log.Debug("MMTP sequence discontinuity",
		"packet_id", h.PacketID,
		"expected", o.Gap.Expected,
		"actual", o.Gap.Actual,
		"offset", offset)
	r.events.MMTDiscontinuity.Publish(DiscontinuityEvent{
		Offset:   offset,
		PacketID: h.PacketID,
		Expected: o.Gap.Expected,
		Actual:   o.Gap.Actual,
		Context:  ctx,
	})
}

// scrambled counts and reports a scrambled packet. Its payload cannot be
// read, so any unit in progress is lost.
func (r *Reassembler) scrambled(h *Header, offset uint64, ctx tlv.Context) bool {
	if !h.Scrambled() {
		return false
	}
	r.tracker.Scrambled(h.PacketID)
	delete(r.queues, h.PacketID)
	r.events.Scrambled.Publish(ScrambledEvent{Offset: offset, Header: h, Context: ctx})
	return true
}

// extend appends a middle or tail fragment to the unit in progress on pid.
// It returns nil when there is no such unit or a packet was lost since the
// previous fragment, in which case the unit is discarded.
func (r *Reassembler) extend(pid uint16, payloadType uint8, seq uint32, data []byte) *queue {
	q, ok := r.queues[pid]
	if !ok || q.payloadType != payloadType {
		return nil
	}
	if seq != q.seq+1 {
		r.log.Debug("fragment lost, discarding unit", "packet_id", pid, "fragments", len(q.parts))
		delete(r.queues, pid)
		return nil
	}
	q.seq = seq
	q.parts = append(q.parts, bytes.Clone(data))
	return q
}

func (r *Reassembler) pushMPU(h *Header, payload []byte, offset uint64, ctx tlv.Context) {
	c := cursor.New(payload)
	if !c.CanRead(2) {
		r.observe(h, topology.FragmentNone, offset, ctx)
		return
	}
	n := int(c.U16())
	if !c.CanRead(n) {
		r.log.Debug("MPU payload overruns packet", "packet_id", h.PacketID, "length", n)
		r.observe(h, topology.FragmentNone, offset, ctx)
		return
	}
	body := c.View(n)
	mh, err := mpu.ReadHeader(body)
	if err != nil {
		r.observe(h, topology.FragmentNone, offset, ctx)
		return
	}
	r.observe(h, topology.Fragment(mh.FragmentationIndicator), offset, ctx)
	if r.scrambled(h, offset, ctx) {
		return
	}
	if !event.Any(&r.events.MPU, &r.events.MFU) {
		return
	}
	m, err := r.decodeMPU(body)
	if err != nil {
		r.log.Debug("dropping MPU payload", "packet_id", h.PacketID, "error", err)
		delete(r.queues, h.PacketID)
		return
	}
	r.events.MPU.Publish(MPUEvent{Offset: offset, Header: h, Context: ctx, MPU: m})
	if r.events.MFU.Count() > 0 {
		r.reassembleMFU(h, m, offset, ctx)
	}
}

func (r *Reassembler) reassembleMFU(h *Header, m *mpu.MPU, offset uint64, ctx tlv.Context) {
	pid := h.PacketID
	unit := func(u mpu.MFU) MFUEvent {
		return MFUEvent{
			Offset:         offset,
			PacketID:       pid,
			Context:        ctx,
			Timed:          m.Timed,
			SequenceNumber: m.SequenceNumber,
			RAP:            h.RAPFlag,
			MFU:            u,
		}
	}

	if m.Aggregated {
		delete(r.queues, pid)
		for _, u := range m.MFUs {
			r.events.MFU.Publish(unit(u))
		}
		return
	}
	if len(m.MFUs) != 1 {
		return
	}
	u := m.MFUs[0]
	switch topology.Fragment(m.FragmentationIndicator) {
	case topology.FragmentComplete:
		delete(r.queues, pid)
		r.events.MFU.Publish(unit(u))
	case topology.FragmentHead:
		r.queues[pid] = &queue{
			payloadType: PayloadTypeMPU,
			seq:         h.SequenceNumber,
			parts:       [][]byte{bytes.Clone(u.Data)},
			first:       unit(u),
		}
	case topology.FragmentMiddle:
		r.extend(pid, PayloadTypeMPU, h.SequenceNumber, u.Data)
	case topology.FragmentTail:
		q := r.extend(pid, PayloadTypeMPU, h.SequenceNumber, u.Data)
		if q == nil {
			return
		}
		delete(r.queues, pid)
		ev := q.first
		ev.MFU.Data = bytes.Join(q.parts, nil)
		r.events.MFU.Publish(ev)
	}
}

func (r *Reassembler) pushSignaling(h *Header, payload []byte, offset uint64, ctx tlv.Context) {
	c := cursor.New(payload)
	if !c.CanRead(2) {
		r.observe(h, topology.FragmentNone, offset, ctx)
		return
	}
	flags := c.U8()
	fi := topology.Fragment(flags >> 6)
	aggregated := flags&0x01 != 0
	c.Skip(1) // fragment counter

	r.observe(h, fi, offset, ctx)
	if r.scrambled(h, offset, ctx) {
		return
	}
	if aggregated {
		r.log.Debug("aggregated signaling payload not supported", "packet_id", h.PacketID)
		return
	}
	pid := h.PacketID
	if !r.wanted(pid) {
		return
	}
	data := c.Rest()
	switch fi {
	case topology.FragmentComplete:
		delete(r.queues, pid)
		r.signal(pid, data)
	case topology.FragmentHead:
		r.queues[pid] = &queue{
			payloadType: PayloadTypeSignaling,
			seq:         h.SequenceNumber,
			parts:       [][]byte{bytes.Clone(data)},
		}
	case topology.FragmentMiddle:
		r.extend(pid, PayloadTypeSignaling, h.SequenceNumber, data)
	case topology.FragmentTail:
		if q := r.extend(pid, PayloadTypeSignaling, h.SequenceNumber, data); q != nil {
			delete(r.queues, pid)
			r.signal(pid, bytes.Join(q.parts, nil))
		}
	}
}

// wanted reports whether signaling on pid has to be decoded.
func (r *Reassembler) wanted(pid uint16) bool {
	e := r.events
	switch pid {
	case mmtsi.PacketIDPLT, mmtsi.PacketIDCAT:
		return true
	case mmtsi.PacketIDEIT:
		return e.EIT.Count() > 0
	case mmtsi.PacketIDBIT:
		return e.BIT.Count() > 0
	case mmtsi.PacketIDSDT:
		return e.SDT.Count() > 0
	case mmtsi.PacketIDTOT:
		return e.TOT.Count() > 0
	case mmtsi.PacketIDCDT:
		return e.CDT.Count() > 0
	case mmtsi.PacketIDSDTT:
		return false
	}
	switch r.tracker.Role(pid) {
	case topology.RoleMPT:
		return true
	case topology.RoleECM, topology.RoleEMM:
		return false
	}
	return e.appTables()
}

// signal decodes a complete signaling message. Malformed messages are
// routine on air and are dropped.
func (r *Reassembler) signal(pid uint16, b []byte) {
	m, err := r.decodeMessage(b)
	if err != nil {
		r.log.Debug("dropping signaling message", "packet_id", pid, "error", err)
		return
	}
	for _, t := range m.Tables {
		r.dispatch(pid, t)
	}
}

func (r *Reassembler) dispatch(pid uint16, t mmtsi.Table) {
	e := r.events
	switch t := t.(type) {
	case *mmtsi.PLT:
		if pid != mmtsi.PacketIDPLT {
			return
		}
		if r.tracker.ApplyPLT(pid, t) {
			r.log.Debug("PLT updated", "version", t.Version, "packages", len(t.Packages))
		}
		e.PLT.Publish(Table[*mmtsi.PLT]{PacketID: pid, Table: t})
	case *mmtsi.MPT:
		if r.tracker.ApplyMPT(pid, t) {
			r.log.Debug("MPT updated", "packet_id", pid, "version", t.Version, "assets", len(t.Assets))
		}
		e.MPT.Publish(Table[*mmtsi.MPT]{PacketID: pid, Table: t})
	case *mmtsi.CAT:
		if pid != mmtsi.PacketIDCAT {
			return
		}
		r.tracker.ApplyCAT(pid, t)
		e.CAT.Publish(Table[*mmtsi.CAT]{PacketID: pid, Table: t})
	case *mmtsi.EIT:
		if pid == mmtsi.PacketIDEIT {
			e.EIT.Publish(Table[*mmtsi.EIT]{PacketID: pid, Table: t})
		}
	case *mmtsi.SDT:
		if pid == mmtsi.PacketIDSDT {
			e.SDT.Publish(Table[*mmtsi.SDT]{PacketID: pid, Table: t})
		}
	case *mmtsi.CDT:
		if pid == mmtsi.PacketIDCDT {
			e.CDT.Publish(Table[*mmtsi.CDT]{PacketID: pid, Table: t})
		}
	case *mmtsi.BIT:
		if pid == mmtsi.PacketIDBIT {
			e.BIT.Publish(Table[*mmtsi.BIT]{PacketID: pid, Table: t})
		}
	case *mmtsi.TOT:
		if pid == mmtsi.PacketIDTOT {
			e.TOT.Publish(Table[*mmtsi.TOT]{PacketID: pid, Table: t})
		}
	case *mmtsi.AIT:
		e.AIT.Publish(Table[*mmtsi.AIT]{PacketID: pid, Table: t})
	case *mmtsi.EMT:
		e.EMT.Publish(Table[*mmtsi.EMT]{PacketID: pid, Table: t})
	case *mmtsi.DDMT:
		e.DDMT.Publish(Table[*mmtsi.DDMT]{PacketID: pid, Table: t})
	case *mmtsi.DAMT:
		e.DAMT.Publish(Table[*mmtsi.DAMT]{PacketID: pid, Table: t})
	}
}
