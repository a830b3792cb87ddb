package pipeline

import (
	"github.com/zsiec/mmttlv/demux"
	"github.com/zsiec/mmttlv/internal/event"
	"github.com/zsiec/mmttlv/internal/stats"
)

// count subscribes a handler that records one table of family name per
// event on topic.
func count[T any](topic *event.Topic[T], rec *stats.Recorder, name string) {
	topic.Subscribe(func(T) { rec.RecordTable(name) })
}

// ObserveTLV feeds rec from the events of a TLV session. Subscribing makes
// the session decode every table family it can.
func ObserveTLV(e *demux.TLVEvents, rec *stats.Recorder) {
	count(&e.NIT, rec, "NIT")
	count(&e.AMT, rec, "AMT")
	count(&e.PLT, rec, "PLT")
	count(&e.MPT, rec, "MPT")
	count(&e.CAT, rec, "CAT")
	count(&e.EIT, rec, "EIT")
	count(&e.SDT, rec, "SDT")
	count(&e.CDT, rec, "CDT")
	count(&e.TOT, rec, "TOT")
	count(&e.BIT, rec, "BIT")
	count(&e.AIT, rec, "AIT")
	count(&e.EMT, rec, "EMT")
	count(&e.DDMT, rec, "DDMT")
	count(&e.DAMT, rec, "DAMT")

	e.MPU.Subscribe(func(demux.MPUEvent) { rec.RecordMPU() })
	e.MFU.Subscribe(func(m demux.MFUEvent) { rec.RecordMFU(len(m.MFU.Data)) })
	e.NTP.Subscribe(func(n demux.NTPEvent) { rec.RecordClock(n.Packet.TransmitTimestamp.Time()) })
	e.TLVDiscontinuity.Subscribe(func(demux.TLVDiscontinuityEvent) { rec.RecordTLVDiscontinuity() })
	e.MMTDiscontinuity.Subscribe(func(demux.MMTDiscontinuity) { rec.RecordMMTDiscontinuity() })
	e.Scrambled.Subscribe(func(demux.ScrambledEvent) { rec.RecordScrambled() })
}

// ObserveTS feeds rec from the events of a TS session.
func ObserveTS(e *demux.TSEvents, rec *stats.Recorder) {
	count(&e.PAT, rec, "PAT")
	count(&e.PMT, rec, "PMT")
	count(&e.CAT, rec, "CAT")
	count(&e.NIT, rec, "NIT")
	count(&e.SDT, rec, "SDT")
	count(&e.EIT, rec, "EIT")
	count(&e.TOT, rec, "TOT")
	count(&e.BIT, rec, "BIT")
	count(&e.CDT, rec, "CDT")
	count(&e.DSMCC, rec, "DSMCC")
	e.Packet.Subscribe(func(demux.TSPacketEvent) { rec.RecordTSPacket() })
}
