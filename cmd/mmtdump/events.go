package main

import (
	"log/slog"

	"github.com/zsiec/mmttlv/demux"
	"github.com/zsiec/mmttlv/internal/mmtsi"
	"github.com/zsiec/mmttlv/internal/mpegts"
	"github.com/zsiec/mmttlv/internal/si"
)

// logTLVEvents logs control tables and diagnostics of a TLV session.
func logTLVEvents(log *slog.Logger, e *demux.TLVEvents) {
	e.PLT.Subscribe(func(t demux.MMTTable[*mmtsi.PLT]) {
		log.Info("PLT", "version", t.Table.Version, "packages", len(t.Table.Packages))
	})
	e.MPT.Subscribe(func(t demux.MMTTable[*mmtsi.MPT]) {
		log.Info("MPT", "packet_id", t.PacketID, "version", t.Table.Version, "assets", len(t.Table.Assets))
	})
	e.TOT.Subscribe(func(t demux.MMTTable[*mmtsi.TOT]) {
		if jst, ok := t.Table.Time(); ok {
			log.Info("TOT", "jst", jst)
		}
	})
	e.NIT.Subscribe(func(t *si.NIT) {
		log.Info("TLV-NIT", "network_id", t.NetworkID, "version", t.Version, "streams", len(t.Streams))
	})
	e.AMT.Subscribe(func(t *si.AMT) {
		for _, s := range t.Services {
			log.Info("AMT", "service_id", s.ServiceID, "destination", s.Destination)
		}
	})
	e.NTP.Subscribe(func(n demux.NTPEvent) {
		log.Info("NTP", "offset", n.Offset, "transmit", n.Packet.TransmitTimestamp.Time())
	})
	e.TLVDiscontinuity.Subscribe(func(d demux.TLVDiscontinuityEvent) {
		log.Warn("TLV discontinuity", "offset", d.Offset, "context_id", d.Context.ID,
			"expected", d.Expected, "actual", d.Actual)
	})
	e.MMTDiscontinuity.Subscribe(func(d demux.MMTDiscontinuity) {
		log.Warn("MMTP discontinuity", "offset", d.Offset, "packet_id", d.PacketID, "expected", d.Expected, "actual", d.Actual)
	})
	e.Scrambled.Subscribe(func(s demux.ScrambledEvent) {
		log.Debug("scrambled packet", "packet_id", s.Header.PacketID)
	})
}

// logTSEvents logs PSI/SI tables of a TS session.
func logTSEvents(log *slog.Logger, e *demux.TSEvents) {
	e.PAT.Subscribe(func(t demux.TSTable[*mpegts.PATData]) {
		log.Info("PAT", "transport_stream_id", t.Table.TransportStreamID, "programs", len(t.Table.Programs))
	})
	e.PMT.Subscribe(func(t demux.TSTable[*mpegts.PMTData]) {
		log.Info("PMT", "pid", t.PID, "program", t.Table.ProgramNumber, "streams", len(t.Table.ElementaryStreams))
	})
	e.NIT.Subscribe(func(t demux.TSTable[*si.NIT]) {
		log.Info("NIT", "network_id", t.Table.NetworkID, "version", t.Table.Version)
	})
	e.TOT.Subscribe(func(t demux.TSTable[*si.TOT]) {
		if jst, ok := t.Table.Time(); ok {
			log.Info("TOT", "jst", jst)
		}
	})
	e.DSMCC.Subscribe(func(t demux.TSTable[*mpegts.DSMCC]) {
		if t.Table.DDB != nil {
			log.Debug("DDB", "pid", t.PID, "module", t.Table.DDB.ModuleID, "block", t.Table.DDB.BlockNumber)
		}
	})
}
