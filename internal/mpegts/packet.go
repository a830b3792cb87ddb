package mpegts

import (
	"errors"
	"fmt"

	"github.com/Comcast/gots/v2/packet"
)

const (
	packetSize = packet.PacketSize
	syncByte   = packet.SyncByte
)

var (
	errTransport = errors.New("mpegts: transport error indicator set")
	errScrambled = errors.New("mpegts: scrambled packet")
	errNoPayload = errors.New("mpegts: packet without payload")
)

// parsePacket decodes and validates the packet at the start of raw, which
// must begin with the sync byte. The header is returned even when the packet
// is rejected; the payload aliases raw.
func parsePacket(raw []byte) (Packet, error) {
	if len(raw) < packetSize {
		return Packet{}, fmt.Errorf("mpegts: packet size %d, expected %d", len(raw), packetSize)
	}
	if raw[0] != syncByte {
		return Packet{}, fmt.Errorf("mpegts: invalid sync byte 0x%02X", raw[0])
	}
	pkt := (*packet.Packet)(raw[:packetSize])

	p := Packet{
		PID:                       uint16(pkt.PID()),
		PayloadUnitStartIndicator: pkt.PayloadUnitStartIndicator(),
		TransportPriority:         pkt.TransportPriority(),
		AdaptationFieldControl:    uint8(pkt.AdaptationFieldControl()),
		ContinuityCounter:         uint8(pkt.ContinuityCounter()),
	}
	if af, err := pkt.AdaptationField(); err == nil {
		// A zero-length field has no flags byte.
		p.DiscontinuityIndicator, _ = af.Discontinuity()
	}

	if pkt.TransportErrorIndicator() {
		return p, errTransport
	}
	if pkt.TransportScramblingControl() != packet.NoScrambleFlag {
		return p, errScrambled
	}
	if !pkt.HasPayload() {
		return p, errNoPayload
	}
	if pkt.HasAdaptationField() && 5+int(raw[4]) >= packetSize {
		return p, fmt.Errorf("mpegts: adaptation field length %d leaves no payload", raw[4])
	}
	payload, err := packet.Payload(pkt)
	if err != nil {
		return p, fmt.Errorf("mpegts: %w", err)
	}
	p.Payload = payload
	return p, nil
}
