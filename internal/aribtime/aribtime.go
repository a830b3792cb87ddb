// Package aribtime converts the MJD+BCD date and BCD duration fields used by
// ARIB SI tables (EIT, TOT and their MMT counterparts) into Go time values.
package aribtime

import "time"

// JST is the zone every ARIB broadcast time is expressed in.
var JST = time.FixedZone("JST", 9*60*60)

const (
	undefinedTime     = 0xFFFFFFFFFF
	undefinedDuration = 0xFFFFFF
)

var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, JST)

func bcd(b uint8) (int, bool) {
	hi, lo := int(b>>4), int(b&0x0F)
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return hi*10 + lo, true
}

func hms(v uint32) (time.Duration, bool) {
	h, ok1 := bcd(uint8(v >> 16))
	m, ok2 := bcd(uint8(v >> 8))
	s, ok3 := bcd(uint8(v))
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, true
}

// Time decodes a 40-bit field holding a 16-bit Modified Julian Date followed
// by hours, minutes and seconds in BCD. It reports false for the all-ones
// "undefined" value and for invalid BCD digits.
func Time(v uint64) (time.Time, bool) {
	if v == undefinedTime {
		return time.Time{}, false
	}
	d, ok := hms(uint32(v & 0xFFFFFF))
	if !ok {
		return time.Time{}, false
	}
	mjd := int(v >> 24)
	return mjdEpoch.AddDate(0, 0, mjd).Add(d), true
}

// Duration decodes a 24-bit BCD hhmmss duration. It reports false for the
// all-ones "undefined" value and for invalid BCD digits.
func Duration(v uint32) (time.Duration, bool) {
	if v == undefinedDuration {
		return 0, false
	}
	return hms(v)
}
