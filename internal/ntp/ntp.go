// Package ntp decodes NTPv4 packets carried as the clock reference of an
// MMT/TLV stream.
package ntp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// PacketSize is the size of an NTPv4 packet without extension fields.
const PacketSize = 48

var ErrTruncated = errors.New("ntp: truncated packet")

// eraOffset is added to timestamps whose seconds field has the high bit
// clear: those belong to NTP era 1, which starts in 2036.
const eraOffset = 1 << 32

// unixToNTP is the number of seconds between 1900-01-01 and 1970-01-01.
const unixToNTP = 2208988800

// Timestamp is a 64-bit NTP fixed-point timestamp. Seconds counts from
// 1900-01-01 and may exceed 32 bits after era adjustment.
type Timestamp struct {
	Seconds    uint64
	Fractional uint32
}

// IsZero reports whether the timestamp is unset on the wire.
func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Fractional == 0
}

// Time converts t to wall clock time.
func (t Timestamp) Time() time.Time {
	frac := time.Duration(float64(t.Fractional) * float64(time.Second) / math.Exp2(32))
	return time.Unix(int64(t.Seconds)-unixToNTP, 0).Add(frac).UTC()
}

// ShortFormat is the 32-bit NTP short format used by root delay and
// dispersion: 16 bits of seconds and 16 bits of fraction.
type ShortFormat uint32

// Duration converts s to a time.Duration.
func (s ShortFormat) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second) / 65536)
}

// Packet is a decoded NTPv4 packet.
type Packet struct {
	LeapIndicator      uint8
	Version            uint8
	Mode               uint8
	Stratum            uint8
	Poll               int8
	Precision          int8
	RootDelay          ShortFormat
	RootDispersion     ShortFormat
	ReferenceID        uint32
	ReferenceTimestamp Timestamp
	OriginTimestamp    Timestamp
	ReceiveTimestamp   Timestamp
	TransmitTimestamp  Timestamp
}

// ReadTimestamp reads a 64-bit timestamp, applying era adjustment. The
// caller must have checked that 8 bytes are available.
func ReadTimestamp(c *cursor.Cursor) Timestamp {
	sec := uint64(c.U32())
	frac := c.U32()
	if sec&(1<<31) == 0 {
		sec += eraOffset
	}
	return Timestamp{Seconds: sec, Fractional: frac}
}

// ReadRawTimestamp reads a 64-bit timestamp without era adjustment, for
// fields holding relative times.
func ReadRawTimestamp(c *cursor.Cursor) Timestamp {
	sec := uint64(c.U32())
	return Timestamp{Seconds: sec, Fractional: c.U32()}
}

// Decode parses an NTP packet. Trailing extension fields are ignored.
func Decode(b []byte) (*Packet, error) {
	c := cursor.New(b)
	if !c.CanRead(PacketSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}
	p := &Packet{}
	h := c.U8()
	p.LeapIndicator = h >> 6
	p.Version = (h >> 3) & 0x7
	p.Mode = h & 0x7
	p.Stratum = c.U8()
	p.Poll = int8(c.U8())
	p.Precision = int8(c.U8())
	p.RootDelay = ShortFormat(c.U32())
	p.RootDispersion = ShortFormat(c.U32())
	p.ReferenceID = c.U32()
	p.ReferenceTimestamp = ReadTimestamp(c)
	p.OriginTimestamp = ReadTimestamp(c)
	p.ReceiveTimestamp = ReadTimestamp(c)
	p.TransmitTimestamp = ReadTimestamp(c)
	return p, nil
}
