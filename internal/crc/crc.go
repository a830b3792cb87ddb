// Package crc checks the MPEG-2 CRC32 carried at the end of PSI, ARIB SI,
// TLV-SI and MMT-SI M2 sections.
package crc

import (
	"encoding/binary"
	"errors"

	"github.com/Comcast/gots/v2"
)

var (
	// ErrMismatch is returned by Verify when the trailing CRC32 does not match.
	ErrMismatch = errors.New("crc: CRC32 mismatch")
	// ErrShort is returned by Verify when data cannot hold a CRC32.
	ErrShort = errors.New("crc: data too short for CRC32")
)

// Checksum computes the MPEG-2 CRC32 (polynomial 0x04C11DB7) of data.
func Checksum(data []byte) uint32 {
	return binary.BigEndian.Uint32(gots.ComputeCRC(data))
}

// Verify checks a complete section whose last four bytes are its CRC32.
func Verify(data []byte) error {
	if len(data) < 4 {
		return ErrShort
	}
	n := len(data) - 4
	if Checksum(data[:n]) != binary.BigEndian.Uint32(data[n:]) {
		return ErrMismatch
	}
	return nil
}

// Append returns data with its CRC32 appended.
func Append(data []byte) []byte {
	return append(data, gots.ComputeCRC(data)...)
}
