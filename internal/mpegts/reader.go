package mpegts

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/zsiec/mmttlv/internal/si"
)

// Sizes a transport packet may be stored in: plain, with a 4-byte
// timestamp prefix, and with 16 bytes of Reed-Solomon parity.
var packetSizes = []int{188, 192, 204}

const (
	defaultMinSyncCount = 6
	maxPacketSize       = 204
)

// Reader locks onto a transport stream fed in arbitrary chunks and
// publishes packets and tables to its Events. It is not safe for concurrent
// use.
type Reader struct {
	log              *slog.Logger
	events           *Events
	minSync          int
	discardThreshold int

	buf []byte
	// size is the locked packet size, 0 while searching.
	size  int
	bytes uint64

	programs *programMap
	pids     map[uint16]*pidState
}

// ReaderOptLogger sets the logger (default slog.Default()).
func ReaderOptLogger(l *slog.Logger) func(*Reader) {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// ReaderOptMinSyncCount sets how many sync bytes in a row, one packet
// apart, are required to lock (default 6).
func ReaderOptMinSyncCount(n int) func(*Reader) {
	return func(r *Reader) {
		if n > 0 {
			r.minSync = n
		}
	}
}

// ReaderOptDiscardThreshold sets how many unsynchronized bytes are kept
// before the buffer is dropped (default twice min sync count largest
// packets).
func ReaderOptDiscardThreshold(n int) func(*Reader) {
	return func(r *Reader) {
		if n > 0 {
			r.discardThreshold = n
		}
	}
}

// NewReader returns a Reader publishing to events.
func NewReader(events *Events, opts ...func(*Reader)) *Reader {
	r := &Reader{
		log:      slog.Default(),
		events:   events,
		minSync:  defaultMinSyncCount,
		programs: newProgramMap(),
		pids:     make(map[uint16]*pidState),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.discardThreshold == 0 {
		r.discardThreshold = r.minSync * maxPacketSize * 2
	}
	r.log = r.log.With("component", "mpegts")
	return r
}

// Bytes returns the number of bytes pushed since creation or the last Reset.
func (r *Reader) Bytes() uint64 {
	return r.bytes
}

// PacketSize returns the locked packet size, or 0 while searching.
func (r *Reader) PacketSize() int {
	return r.size
}

// Reset drops buffered bytes, the lock, section buffers and program state.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
	r.size = 0
	r.bytes = 0
	r.programs.reset()
	clear(r.pids)
}

// Statistics returns per-PID counters ordered by PID.
func (r *Reader) Statistics() []PIDStats {
	out := make([]PIDStats, 0, len(r.pids))
	for _, s := range r.pids {
		out = append(out, s.stats)
	}
	slices.SortFunc(out, func(a, b PIDStats) int { return int(a.PID) - int(b.PID) })
	return out
}

// Push appends b to the stream and processes every complete packet.
func (r *Reader) Push(b []byte) {
	base := r.bytes - uint64(len(r.buf))
	r.bytes += uint64(len(b))
	r.buf = append(r.buf, b...)

	pos := 0
	for {
		if r.size == 0 {
			size, at, ok := resync(r.buf[pos:], r.minSync)
			if !ok {
				if len(r.buf)-pos > r.discardThreshold {
					r.log.Debug("no sync found, discarding buffer", "bytes", len(r.buf)-pos)
					pos = len(r.buf)
				}
				break
			}
			pos += at
			r.size = size
			r.log.Debug("locked", "packet_size", size, "offset", base+uint64(pos))
		}
		if len(r.buf)-pos < r.size {
			break
		}
		if r.buf[pos] != syncByte {
			r.log.Debug("sync lost", "offset", base+uint64(pos))
			r.size = 0
			pos++
			continue
		}
		r.packet(base+uint64(pos), r.buf[pos:pos+packetSize])
		pos += r.size
	}
	r.buf = append(r.buf[:0], r.buf[pos:]...)
}

// resync finds the first offset in b where minSync sync bytes follow one
// another at one of the known packet sizes.
func resync(b []byte, minSync int) (int, int, bool) {
	for _, size := range packetSizes {
	scan:
		for offset := 0; offset+size*minSync < len(b); offset++ {
			for n := range minSync {
				if b[offset+n*size] != syncByte {
					continue scan
				}
			}
			return size, offset, true
		}
	}
	return 0, 0, false
}

func (r *Reader) state(pid uint16) *pidState {
	s, ok := r.pids[pid]
	if !ok {
		s = &pidState{stats: PIDStats{PID: pid}}
		r.pids[pid] = s
	}
	return s
}

func (r *Reader) packet(offset uint64, raw []byte) {
	p, err := parsePacket(raw)
	s := r.state(p.PID)
	switch {
	case errors.Is(err, errTransport):
		s.stats.TransportErrors++
		return
	case errors.Is(err, errScrambled):
		s.stats.Scrambled++
		return
	case err != nil:
		return
	}
	s.stats.Packets++

	if r.events.Packet.Count() > 0 {
		r.events.Packet.Publish(PacketEvent{Offset: offset, Packet: p})
	}
	if p.PID == PIDNull {
		return
	}
	if s.continuity(p) == continuityDuplicate {
		return
	}
	if !r.wanted(p.PID) {
		s.section = nil
		return
	}
	s.sections(p, func(b []byte) { r.section(p.PID, b) })
}

// wanted reports whether sections on pid have to be assembled.
func (r *Reader) wanted(pid uint16) bool {
	e := r.events
	switch pid {
	case PIDPAT:
		return true
	case PIDCAT:
		return e.CAT.Count() > 0
	case PIDNIT:
		return e.NIT.Count() > 0
	case PIDSDT:
		return e.SDT.Count() > 0
	case PIDEIT, PIDMEIT, PIDLEIT:
		return e.EIT.Count() > 0
	case PIDTOT:
		return e.TOT.Count() > 0
	case PIDBIT:
		return e.BIT.Count() > 0
	case PIDCDT:
		return e.CDT.Count() > 0
	}
	if r.programs.isPMTPID(pid) {
		return true
	}
	return r.programs.isStreamPID(pid) && e.DSMCC.Count() > 0
}

// section decodes one complete section. Malformed sections are dropped.
func (r *Reader) section(pid uint16, b []byte) {
	s, _, err := si.ParseSection(b)
	if err != nil {
		r.log.Debug("dropping section", "pid", pid, "error", err)
		return
	}
	if err := r.dispatch(pid, s); err != nil {
		r.log.Debug("dropping table", "pid", pid, "table_id", s.TableID, "error", err)
	}
}

func (r *Reader) dispatch(pid uint16, s *si.Section) error {
	e := r.events
	id := s.TableID
	switch pid {
	case PIDPAT:
		if id != TableIDPAT {
			return nil
		}
		pat, err := parsePATSection(s)
		if err != nil {
			return err
		}
		for _, p := range pat.Programs {
			r.programs.addPMTPID(p.ProgramMapID)
		}
		e.PAT.Publish(Table[*PATData]{PID: pid, Table: pat})
	case PIDCAT:
		if id == TableIDCAT {
			e.CAT.Publish(Table[*si.Section]{PID: pid, Table: s})
		}
	case PIDNIT:
		if id != si.TableNITActual && id != si.TableNITOther {
			return nil
		}
		nit, err := si.DecodeNIT(s)
		if err != nil {
			return err
		}
		e.NIT.Publish(Table[*si.NIT]{PID: pid, Table: nit})
	case PIDSDT:
		if id != si.TableSDTActual && id != si.TableSDTOther {
			return nil
		}
		sdt, err := si.DecodeSDT(s)
		if err != nil {
			return err
		}
		e.SDT.Publish(Table[*si.SDT]{PID: pid, Table: sdt})
	case PIDEIT, PIDMEIT, PIDLEIT:
		if !si.IsEIT(id) {
			return nil
		}
		eit, err := si.DecodeEIT(s)
		if err != nil {
			return err
		}
		e.EIT.Publish(Table[*si.EIT]{PID: pid, Table: eit})
	case PIDTOT:
		if id != si.TableTOT {
			return nil
		}
		tot, err := si.DecodeTOT(s)
		if err != nil {
			return err
		}
		e.TOT.Publish(Table[*si.TOT]{PID: pid, Table: tot})
	case PIDBIT:
		if id == TableIDBIT {
			e.BIT.Publish(Table[*si.Section]{PID: pid, Table: s})
		}
	case PIDCDT:
		if id == TableIDCDT {
			e.CDT.Publish(Table[*si.Section]{PID: pid, Table: s})
		}
	default:
		switch {
		case id == TableIDPMT && r.programs.isPMTPID(pid):
			pmt, err := parsePMTSection(s)
			if err != nil {
				return err
			}
			for _, es := range pmt.ElementaryStreams {
				r.programs.addStreamPID(es.ElementaryPID)
			}
			e.PMT.Publish(Table[*PMTData]{PID: pid, Table: pmt})
		case id >= TableIDDSMCCDII && id <= TableIDDSMCCStreamEvents && r.programs.isStreamPID(pid):
			if e.DSMCC.Count() == 0 {
				return nil
			}
			d, err := decodeDSMCC(s)
			if err != nil {
				return err
			}
			e.DSMCC.Publish(Table[*DSMCC]{PID: pid, Table: d})
		}
	}
	return nil
}
