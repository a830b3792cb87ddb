package mpegts

// programMap tracks the PIDs announced by PAT and PMT.
type programMap struct {
	pmt     map[uint16]bool
	streams map[uint16]bool
}

func newProgramMap() *programMap {
	return &programMap{
		pmt:     make(map[uint16]bool),
		streams: make(map[uint16]bool),
	}
}

func (pm *programMap) addPMTPID(pid uint16) {
	pm.pmt[pid] = true
}

func (pm *programMap) isPMTPID(pid uint16) bool {
	return pm.pmt[pid]
}

func (pm *programMap) addStreamPID(pid uint16) {
	pm.streams[pid] = true
}

func (pm *programMap) isStreamPID(pid uint16) bool {
	return pm.streams[pid]
}

func (pm *programMap) reset() {
	clear(pm.pmt)
	clear(pm.streams)
}

type ccResult int

const (
	continuityOK ccResult = iota
	continuityDuplicate
	continuityBroken
)

// pidState is the per-PID continuity and section reassembly state.
type pidState struct {
	stats  PIDStats
	cc     uint8
	synced bool
	// section is the section in progress, nil when none is open.
	section []byte
}

// continuity checks p's counter against the previous packet. A signalled
// discontinuity resets the check. A broken run drops the open section.
func (s *pidState) continuity(p Packet) ccResult {
	defer func() {
		s.cc, s.synced = p.ContinuityCounter, true
	}()
	if !s.synced || p.DiscontinuityIndicator {
		return continuityOK
	}
	switch p.ContinuityCounter {
	case s.cc:
		s.stats.Duplicates++
		return continuityDuplicate
	case (s.cc + 1) & 0x0F:
		return continuityOK
	}
	s.stats.Discontinuities++
	s.section = nil
	return continuityBroken
}

// sections feeds p's payload to the section buffer and calls emit for every
// section completed by it. emit must not retain the slice.
func (s *pidState) sections(p Packet, emit func([]byte)) {
	payload := p.Payload
	if !p.PayloadUnitStartIndicator {
		if s.section == nil {
			return
		}
		s.section = append(s.section, payload...)
		s.flush(emit)
		return
	}

	if len(payload) == 0 || isPESPayload(payload) {
		s.section = nil
		return
	}
	pointer := 1 + int(payload[0])
	if pointer > len(payload) {
		s.section = nil
		return
	}
	if s.section != nil {
		s.section = append(s.section, payload[1:pointer]...)
		s.flush(emit)
		s.section = nil
	}

	rest := payload[pointer:]
	for len(rest) > 0 && rest[0] != 0xFF {
		if len(rest) >= 2 && !validSectionHeader(rest) {
			return
		}
		n := sectionSize(rest)
		if n < 0 || len(rest) < n {
			s.section = append([]byte(nil), rest...)
			return
		}
		emit(rest[:n])
		rest = rest[n:]
	}
}

func (s *pidState) flush(emit func([]byte)) {
	if len(s.section) >= 2 && !validSectionHeader(s.section) {
		s.section = nil
		return
	}
	n := sectionSize(s.section)
	if n < 0 || len(s.section) < n {
		return
	}
	section := s.section[:n]
	s.section = nil
	emit(section)
}

// validSectionHeader checks the two reserved bits after the syntax and
// private indicators. Zero or random padding after the last section fails
// it.
func validSectionHeader(b []byte) bool {
	return b[1]>>4&0x03 == 0x03
}

// sectionSize returns the total size of the section starting at b, or -1
// when the length field is not buffered yet.
func sectionSize(b []byte) int {
	if len(b) < 3 {
		return -1
	}
	return 3 + (int(b[1]&0x0F)<<8 | int(b[2]))
}

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}
