package mpegts

import (
	"fmt"

	"github.com/zsiec/mmttlv/internal/cursor"
	"github.com/zsiec/mmttlv/internal/si"
)

func parsePATSection(s *si.Section) (*PATData, error) {
	if s.TableID != TableIDPAT || !s.Syntax {
		return nil, fmt.Errorf("mpegts: table 0x%02x is not a PAT", s.TableID)
	}
	pat := &PATData{TransportStreamID: s.Extension, Version: s.Version}
	c := cursor.New(s.Body)
	for c.CanRead(4) {
		programNumber := c.U16()
		pid := c.U16() & 0x1FFF
		if programNumber == 0 {
			pat.NetworkPID = pid
			continue
		}
		pat.Programs = append(pat.Programs, &PATProgram{
			ProgramNumber: programNumber,
			ProgramMapID:  pid,
		})
	}
	return pat, nil
}

func parsePMTSection(s *si.Section) (*PMTData, error) {
	if s.TableID != TableIDPMT || !s.Syntax {
		return nil, fmt.Errorf("mpegts: table 0x%02x is not a PMT", s.TableID)
	}
	c := cursor.New(s.Body)
	if !c.CanRead(4) {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}
	pmt := &PMTData{
		ProgramNumber: s.Extension,
		Version:       s.Version,
		PCRPID:        c.U16() & 0x1FFF,
	}
	n := int(c.U16() & 0x0FFF)
	if !c.CanRead(n) {
		return nil, fmt.Errorf("mpegts: PMT program info length %d", n)
	}
	pmt.Descriptors = si.ReadDescriptors(c.View(n))

	for c.CanRead(5) {
		es := &PMTElementaryStream{
			StreamType:    c.U8(),
			ElementaryPID: c.U16() & 0x1FFF,
		}
		n := int(c.U16() & 0x0FFF)
		if !c.CanRead(n) {
			break
		}
		es.Descriptors = si.ReadDescriptors(c.View(n))
		pmt.ElementaryStreams = append(pmt.ElementaryStreams, es)
	}
	return pmt, nil
}
