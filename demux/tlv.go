package demux

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/zsiec/mmttlv/internal/event"
	"github.com/zsiec/mmttlv/internal/mmtp"
	"github.com/zsiec/mmttlv/internal/ntp"
	"github.com/zsiec/mmttlv/internal/si"
	"github.com/zsiec/mmttlv/internal/tlv"
	"github.com/zsiec/mmttlv/internal/topology"
)

// TLVReader demultiplexes an MMT/TLV byte stream. Bytes are pushed in
// chunks of any size and every event is published synchronously from Push.
// A TLVReader is not safe for concurrent use.
type TLVReader struct {
	log    *slog.Logger
	events *TLVEvents

	framer   tlv.Framer
	contexts *tlv.ContextTable
	tracker  *topology.Tracker
	mmtp     *mmtp.Reassembler
}

// TLVReaderOptLogger sets the logger (default slog.Default()).
func TLVReaderOptLogger(l *slog.Logger) func(*TLVReader) {
	return func(r *TLVReader) {
		if l != nil {
			r.log = l
		}
	}
}

// NewTLVReader creates an independent TLV session.
func NewTLVReader(opts ...func(*TLVReader)) *TLVReader {
	r := &TLVReader{
		log:      slog.Default(),
		events:   &TLVEvents{},
		contexts: tlv.NewContextTable(),
		tracker:  topology.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("session", uuid.NewString())
	r.mmtp = mmtp.New(&r.events.Events, r.tracker, mmtp.ReassemblerOptLogger(r.log))
	r.log = r.log.With("component", "tlv")
	return r
}

// Events returns the topics to subscribe to.
func (r *TLVReader) Events() *TLVEvents {
	return r.events
}

// Push feeds the next chunk of the stream.
func (r *TLVReader) Push(b []byte) {
	r.framer.Push(b, r.frame)
}

// Reset returns the session to its initial state, keeping subscribers.
func (r *TLVReader) Reset() {
	r.framer.Reset()
	r.contexts.Reset()
	r.tracker.Reset()
	r.mmtp.Reset()
}

// Close detaches every subscriber. Later pushes are parsed but deliver
// nothing.
func (r *TLVReader) Close() {
	r.events.Close()
}

// Bytes returns the number of bytes pushed since creation or Reset.
func (r *TLVReader) Bytes() uint64 {
	return r.framer.Bytes()
}

// Statistics returns a snapshot of every known asset.
func (r *TLVReader) Statistics() []AssetStats {
	return r.tracker.Statistics()
}

func (r *TLVReader) frame(f tlv.Frame) {
	switch f.Type {
	case tlv.TypeCompressed:
		r.compressed(f)
	case tlv.TypeSignaling:
		r.signaling(f)
	case tlv.TypeIPv6:
		r.ipv6(f)
	}
}

func (r *TLVReader) compressed(f tlv.Frame) {
	p, disc, err := r.contexts.Decode(f.Payload())
	if err != nil {
		r.log.Debug("dropping compressed packet", "offset", f.Offset, "error", err)
		return
	}
	if disc != nil {
		r.log.Debug("TLV sequence discontinuity",
			"context_id", disc.Context.ID,
			"expected", disc.Expected,
			"actual", disc.Actual,
			"offset", f.Offset)
		r.events.TLVDiscontinuity.Publish(TLVDiscontinuityEvent{Offset: f.Offset, TLVDiscontinuity: *disc})
	}
	r.mmtp.Push(p.Payload, f.Offset, p.Context)
}

func (r *TLVReader) signaling(f tlv.Frame) {
	e := r.events
	if !event.Any(&e.NIT, &e.AMT) {
		return
	}
	t, err := si.DecodeTLV(f.Payload())
	if err != nil {
		r.log.Debug("dropping TLV-SI table", "offset", f.Offset, "error", err)
		return
	}
	switch t := t.(type) {
	case *si.NIT:
		e.NIT.Publish(t)
	case *si.AMT:
		e.AMT.Publish(t)
	}
}

func (r *TLVReader) ipv6(f tlv.Frame) {
	if r.events.NTP.Count() == 0 {
		return
	}
	ip, udp, payload, err := tlv.ParseIPv6UDP(f.Payload())
	if err != nil {
		r.log.Debug("dropping IPv6 packet", "offset", f.Offset, "error", err)
		return
	}
	p, err := ntp.Decode(payload)
	if err != nil {
		r.log.Debug("dropping NTP packet", "offset", f.Offset, "error", err)
		return
	}
	r.events.NTP.Publish(NTPEvent{Offset: f.Offset, IPv6: ip, UDP: udp, Packet: p})
}
