package mpegts

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/zsiec/mmttlv/internal/si"
	"github.com/zsiec/mmttlv/internal/si/sitest"
)

// sectionPackets splits sections into packets on pid, counting from cc. The
// first packet carries a zero pointer field; unused bytes are stuffing.
func sectionPackets(pid uint16, cc uint8, sections ...[]byte) [][]byte {
	data := []byte{0}
	for _, s := range sections {
		data = append(data, s...)
	}
	var out [][]byte
	for i := 0; len(data) > 0; i++ {
		n := min(184, len(data))
		pkt := makePacket(pid, cc+uint8(i), i == 0, data[:n])
		for j := 4 + n; j < packetSize; j++ {
			pkt[j] = 0xFF
		}
		out = append(out, pkt)
		data = data[n:]
	}
	return out
}

// tsStream joins packets and appends enough null packets for the reader to
// lock and flush.
func tsStream(pkts ...[]byte) []byte {
	var b []byte
	for _, p := range pkts {
		b = append(b, p...)
	}
	for range defaultMinSyncCount + 1 {
		b = append(b, makePacket(PIDNull, 0, false, nil)...)
	}
	return b
}

func longNIT(version uint8) []byte {
	var streams []sitest.Stream
	for i := range 3 {
		streams = append(streams, sitest.Stream{
			ID:                uint16(i + 1),
			OriginalNetworkID: 4,
			Descriptors:       [][]byte{sitest.Descriptor(si.TagServiceList, bytes.Repeat([]byte{0x01, 0x00, 0x01}, 33))},
		})
	}
	name := sitest.Descriptor(si.TagNetworkName, bytes.Repeat([]byte("N"), 200))
	return sitest.NIT(si.TableNITActual, 4, version, [][]byte{name}, streams...)
}

func statsFor(r *Reader, pid uint16) PIDStats {
	for _, s := range r.Statistics() {
		if s.PID == pid {
			return s
		}
	}
	return PIDStats{}
}

func TestReader_Resync(t *testing.T) {
	t.Parallel()
	for _, size := range packetSizes {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			t.Parallel()
			noise := bytes.Repeat([]byte{0x12, 0x34, 0x56}, 13)
			stream := append([]byte(nil), noise...)
			for i := range 8 {
				rec := make([]byte, size)
				copy(rec, makePacket(0x100, uint8(i), false, nil))
				stream = append(stream, rec...)
			}

			var offsets []uint64
			events := &Events{}
			events.Packet.Subscribe(func(e PacketEvent) { offsets = append(offsets, e.Offset) })
			r := NewReader(events)
			r.Push(stream)

			if r.PacketSize() != size {
				t.Fatalf("packet size = %d, want %d", r.PacketSize(), size)
			}
			if len(offsets) != 8 {
				t.Fatalf("packets = %d, want 8", len(offsets))
			}
			for i, off := range offsets {
				if want := uint64(len(noise) + i*size); off != want {
					t.Errorf("packet %d offset = %d, want %d", i, off, want)
				}
			}
		})
	}
}

func TestReader_NeedsMinSyncRun(t *testing.T) {
	t.Parallel()
	r := NewReader(&Events{})
	var b []byte
	for i := range defaultMinSyncCount {
		b = append(b, makePacket(0x100, uint8(i), false, nil)...)
	}
	r.Push(b)
	if r.PacketSize() != 0 {
		t.Fatalf("locked on %d sync bytes", defaultMinSyncCount)
	}
	r.Push(makePacket(0x100, 6, false, nil)[:1])
	if r.PacketSize() != packetSize {
		t.Fatalf("packet size = %d, want %d", r.PacketSize(), packetSize)
	}
}

func TestReader_SyncLoss(t *testing.T) {
	t.Parallel()
	var stream []byte
	for i := range 20 {
		stream = append(stream, makePacket(0x100, uint8(i), false, nil)...)
	}
	stream[7*packetSize] = 0x00

	var offsets []uint64
	events := &Events{}
	events.Packet.Subscribe(func(e PacketEvent) { offsets = append(offsets, e.Offset) })
	r := NewReader(events)
	r.Push(stream)

	if len(offsets) != 19 {
		t.Fatalf("packets = %d, want 19", len(offsets))
	}
	if offsets[7] != 8*packetSize {
		t.Errorf("offset after resync = %d, want %d", offsets[7], 8*packetSize)
	}
	if got := statsFor(r, 0x100).Discontinuities; got != 1 {
		t.Errorf("discontinuities = %d, want 1", got)
	}
}

func TestReader_DiscardThreshold(t *testing.T) {
	t.Parallel()
	if r := NewReader(&Events{}); r.discardThreshold != 6*204*2 {
		t.Errorf("default threshold = %d", r.discardThreshold)
	}

	r := NewReader(&Events{}, ReaderOptDiscardThreshold(1000))
	r.Push(bytes.Repeat([]byte{0xAB}, 999))
	if len(r.buf) != 999 {
		t.Fatalf("buffered = %d, want 999", len(r.buf))
	}
	r.Push([]byte{0xAB, 0xAB})
	if len(r.buf) != 0 {
		t.Fatalf("buffered = %d, want 0 after discard", len(r.buf))
	}
	if r.Bytes() != 1001 {
		t.Errorf("bytes = %d, want 1001", r.Bytes())
	}
}

// transcript records every event of a Reader as text.
func transcript(events *Events) *[]string {
	var out []string
	events.Packet.Subscribe(func(e PacketEvent) {
		out = append(out, fmt.Sprintf("packet %d pid=%d", e.Offset, e.Packet.PID))
	})
	events.PAT.Subscribe(func(e Table[*PATData]) {
		out = append(out, fmt.Sprintf("pat programs=%d", len(e.Table.Programs)))
	})
	events.PMT.Subscribe(func(e Table[*PMTData]) {
		out = append(out, fmt.Sprintf("pmt pid=%d streams=%d", e.PID, len(e.Table.ElementaryStreams)))
	})
	events.NIT.Subscribe(func(e Table[*si.NIT]) {
		out = append(out, fmt.Sprintf("nit network=%d streams=%d", e.Table.NetworkID, len(e.Table.Streams)))
	})
	events.EIT.Subscribe(func(e Table[*si.EIT]) {
		out = append(out, fmt.Sprintf("eit pid=%d service=%d", e.PID, e.Table.ServiceID))
	})
	return &out
}

func TestReader_ChunkingInvariance(t *testing.T) {
	t.Parallel()
	var pkts [][]byte
	pkts = append(pkts, sectionPackets(PIDPAT, 0, buildPAT(1, program{1, 0x1000}))...)
	pkts = append(pkts, sectionPackets(0x1000, 0, buildPMT(1, 0x200, stream{streamType: 0x0D, pid: 0x200}))...)
	pkts = append(pkts, sectionPackets(PIDNIT, 0, longNIT(0))...)
	pkts = append(pkts, sectionPackets(PIDEIT, 0,
		sitest.EIT(si.TableEITPresentFollowingActual, 1, 1, 4),
		sitest.EIT(si.TableEITPresentFollowingActual, 2, 1, 4))...)
	stream := tsStream(pkts...)

	whole := &Events{}
	want := transcript(whole)
	NewReader(whole).Push(stream)
	if len(*want) == 0 {
		t.Fatal("no events")
	}

	chunked := &Events{}
	got := transcript(chunked)
	r := NewReader(chunked)
	sizes := []int{1, 7, 100, 188, 333}
	for i, rest := 0, stream; len(rest) > 0; i++ {
		n := min(sizes[i%len(sizes)], len(rest))
		r.Push(rest[:n])
		rest = rest[n:]
	}

	if len(*got) != len(*want) {
		t.Fatalf("chunked events = %d, want %d", len(*got), len(*want))
	}
	for i := range *want {
		if (*got)[i] != (*want)[i] {
			t.Errorf("event %d = %q, want %q", i, (*got)[i], (*want)[i])
		}
	}
}

func TestReader_SectionSpanningPackets(t *testing.T) {
	t.Parallel()
	nit := longNIT(1)
	pkts := sectionPackets(PIDNIT, 0, nit)
	if len(pkts) < 3 {
		t.Fatalf("test section spans %d packets", len(pkts))
	}

	var got []*si.NIT
	events := &Events{}
	events.NIT.Subscribe(func(e Table[*si.NIT]) { got = append(got, e.Table) })
	NewReader(events).Push(tsStream(pkts...))

	if len(got) != 1 {
		t.Fatalf("NIT events = %d, want 1", len(got))
	}
	if got[0].NetworkID != 4 || got[0].Version != 1 || len(got[0].Streams) != 3 {
		t.Errorf("NIT = network %d version %d streams %d", got[0].NetworkID, got[0].Version, len(got[0].Streams))
	}
}

func TestReader_MultipleSectionsPerPacket(t *testing.T) {
	t.Parallel()
	long := sitest.EIT(0x50, 2, 1, 4, sitest.Event{
		EventID:     1,
		Descriptors: [][]byte{sitest.Descriptor(si.TagShortEvent, bytes.Repeat([]byte{0x20}, 200))},
	})
	first := append([]byte{0}, long[:183]...)
	second := append([]byte{byte(len(long) - 183)}, long[183:]...)
	second = append(second, sitest.EIT(si.TableEITPresentFollowingActual, 3, 1, 4)...)
	second = append(second, sitest.EIT(si.TableEITPresentFollowingActual, 4, 1, 4)...)

	var services []uint16
	events := &Events{}
	events.EIT.Subscribe(func(e Table[*si.EIT]) { services = append(services, e.Table.ServiceID) })
	NewReader(events).Push(tsStream(
		makePacket(PIDEIT, 0, true, first),
		makePacket(PIDEIT, 1, true, second),
	))

	want := []uint16{2, 3, 4}
	if fmt.Sprint(services) != fmt.Sprint(want) {
		t.Errorf("EIT services = %v, want %v", services, want)
	}
}

func TestReader_Continuity(t *testing.T) {
	t.Parallel()
	a := sectionPackets(PIDNIT, 0, longNIT(0))
	b := sectionPackets(PIDNIT, uint8(len(a)), longNIT(1))

	var versions []uint8
	events := &Events{}
	events.NIT.Subscribe(func(e Table[*si.NIT]) { versions = append(versions, e.Table.Version) })
	r := NewReader(events)

	// a is delivered with its second packet duplicated; b loses its second.
	pkts := [][]byte{a[0], a[1], a[1]}
	pkts = append(pkts, a[2:]...)
	pkts = append(pkts, b[0])
	pkts = append(pkts, b[2:]...)
	r.Push(tsStream(pkts...))

	if len(versions) != 1 || versions[0] != 0 {
		t.Errorf("NIT versions = %v, want [0]", versions)
	}
	s := statsFor(r, PIDNIT)
	if s.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", s.Duplicates)
	}
	if s.Discontinuities != 1 {
		t.Errorf("discontinuities = %d, want 1", s.Discontinuities)
	}
}

func TestReader_ListenerGating(t *testing.T) {
	t.Parallel()
	events := &Events{}
	r := NewReader(events)

	a := sectionPackets(PIDNIT, 0, longNIT(0))
	r.Push(tsStream(a[:len(a)-1]...))
	if r.pids[PIDNIT].section != nil {
		t.Fatal("section buffered without subscribers")
	}

	var got int
	events.NIT.Subscribe(func(Table[*si.NIT]) { got++ })
	r.Push(tsStream(sectionPackets(PIDNIT, uint8(len(a)-1), longNIT(1))...))
	if got != 1 {
		t.Errorf("NIT events = %d, want 1", got)
	}
}

func TestReader_DSMCCOnAnnouncedStreams(t *testing.T) {
	t.Parallel()
	var pmts int
	var blocks []Table[*DSMCC]
	events := &Events{}
	events.PMT.Subscribe(func(Table[*PMTData]) { pmts++ })
	events.DSMCC.Subscribe(func(e Table[*DSMCC]) { blocks = append(blocks, e) })

	var pkts [][]byte
	pkts = append(pkts, sectionPackets(PIDPAT, 0, buildPAT(1, program{1, 0x1000}))...)
	pkts = append(pkts, sectionPackets(0x1000, 0, buildPMT(1, 0x1FFF, stream{streamType: 0x0D, pid: 0x200}))...)
	pkts = append(pkts, sectionPackets(0x200, 0, buildDDB(7, 0, []byte("carousel")))...)
	pkts = append(pkts, sectionPackets(0x300, 0, buildDDB(8, 0, []byte("stray")))...)
	NewReader(events).Push(tsStream(pkts...))

	if pmts != 1 {
		t.Errorf("PMT events = %d, want 1", pmts)
	}
	if len(blocks) != 1 {
		t.Fatalf("DSMCC events = %d, want 1", len(blocks))
	}
	if blocks[0].PID != 0x200 || blocks[0].Table.DDB == nil || string(blocks[0].Table.DDB.Data) != "carousel" {
		t.Errorf("DSMCC = pid 0x%X %+v", blocks[0].PID, blocks[0].Table.DDB)
	}
}

func TestReader_PMTRequiresPAT(t *testing.T) {
	t.Parallel()
	var pmts int
	events := &Events{}
	events.PMT.Subscribe(func(Table[*PMTData]) { pmts++ })
	NewReader(events).Push(tsStream(sectionPackets(0x1000, 0, buildPMT(1, 0x100))...))
	if pmts != 0 {
		t.Errorf("PMT on unannounced PID delivered")
	}
}

func TestReader_SITables(t *testing.T) {
	t.Parallel()
	const jst = 0xE4E9_123456
	var (
		tots []*si.TOT
		eits []uint16
		cdts int
		cats int
	)
	events := &Events{}
	events.TOT.Subscribe(func(e Table[*si.TOT]) { tots = append(tots, e.Table) })
	events.EIT.Subscribe(func(e Table[*si.EIT]) { eits = append(eits, e.PID) })
	events.CDT.Subscribe(func(Table[*si.Section]) { cdts++ })
	events.CAT.Subscribe(func(Table[*si.Section]) { cats++ })

	var pkts [][]byte
	pkts = append(pkts, sectionPackets(PIDTOT, 0, sitest.TOT(jst))...)
	pkts = append(pkts, sectionPackets(PIDMEIT, 0, sitest.EIT(si.TableEITPresentFollowingActual, 1, 1, 4))...)
	pkts = append(pkts, sectionPackets(PIDLEIT, 0, sitest.EIT(0x58, 1, 1, 4))...)
	pkts = append(pkts, sectionPackets(PIDCDT, 0, sitest.Section(TableIDCDT, 0x0004, 0, []byte{0, 1, 2, 3}))...)
	pkts = append(pkts, sectionPackets(PIDCAT, 0, sitest.Section(TableIDCAT, 0xFFFF, 0, nil))...)
	// A NIT on the SDT PID is ignored.
	pkts = append(pkts, sectionPackets(PIDSDT, 0, longNIT(0))...)
	NewReader(events).Push(tsStream(pkts...))

	if len(tots) != 1 || tots[0].JSTTime != jst {
		t.Errorf("TOT = %v", tots)
	}
	if fmt.Sprint(eits) != fmt.Sprint([]uint16{PIDMEIT, PIDLEIT}) {
		t.Errorf("EIT PIDs = %v", eits)
	}
	if cdts != 1 || cats != 1 {
		t.Errorf("CDT %d CAT %d, want 1 each", cdts, cats)
	}
}

func TestReader_RejectedPackets(t *testing.T) {
	t.Parallel()
	tei := makePacket(0x100, 0, false, nil)
	tei[1] |= 0x80
	scrambled := makePacket(0x100, 1, false, nil)
	scrambled[3] |= 0xC0

	var packets int
	events := &Events{}
	events.Packet.Subscribe(func(e PacketEvent) {
		if e.Packet.PID == 0x100 {
			packets++
		}
	})
	r := NewReader(events)
	r.Push(tsStream(tei, scrambled, makePacket(0x100, 2, false, nil)))

	if packets != 1 {
		t.Errorf("packet events = %d, want 1", packets)
	}
	s := statsFor(r, 0x100)
	if s.TransportErrors != 1 || s.Scrambled != 1 || s.Packets != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestReader_Reset(t *testing.T) {
	t.Parallel()
	r := NewReader(&Events{})
	r.Push(tsStream(sectionPackets(PIDPAT, 0, buildPAT(1, program{1, 0x1000}))...))
	if r.PacketSize() == 0 || !r.programs.isPMTPID(0x1000) {
		t.Fatal("reader did not lock")
	}
	r.Reset()
	if r.PacketSize() != 0 || r.Bytes() != 0 || len(r.Statistics()) != 0 || r.programs.isPMTPID(0x1000) {
		t.Error("state survived Reset")
	}
}

func TestReader_Close(t *testing.T) {
	t.Parallel()
	var got int
	events := &Events{}
	events.PAT.Subscribe(func(Table[*PATData]) { got++ })
	events.Close()
	NewReader(events).Push(tsStream(sectionPackets(PIDPAT, 0, buildPAT(1, program{1, 0x1000}))...))
	if got != 0 {
		t.Error("event delivered after Close")
	}
}

func FuzzReader(f *testing.F) {
	f.Add(tsStream(sectionPackets(PIDPAT, 0, buildPAT(1, program{1, 0x1000}))...))
	f.Add(tsStream(sectionPackets(PIDNIT, 0, longNIT(0))...))
	f.Add(bytes.Repeat([]byte{0x47}, 3000))

	f.Fuzz(func(t *testing.T, data []byte) {
		events := &Events{}
		events.Packet.Subscribe(func(PacketEvent) {})
		events.NIT.Subscribe(func(Table[*si.NIT]) {})
		events.EIT.Subscribe(func(Table[*si.EIT]) {})
		events.SDT.Subscribe(func(Table[*si.SDT]) {})
		events.TOT.Subscribe(func(Table[*si.TOT]) {})
		events.DSMCC.Subscribe(func(Table[*DSMCC]) {})
		r := NewReader(events)
		half := len(data) / 2
		r.Push(data[:half])
		r.Push(data[half:])
		if r.Bytes() != uint64(len(data)) {
			t.Fatalf("bytes = %d, want %d", r.Bytes(), len(data))
		}
	})
}
