package mmtsi

import (
	"fmt"

	"github.com/zsiec/mmttlv/internal/cursor"
)

// Asset types carried in the MPT, as four-character codes.
const (
	AssetTypeHEVC        = 0x68657631 // hev1
	AssetTypeAAC         = 0x6D703461 // mp4a
	AssetTypeTimedText   = 0x73747070 // stpp
	AssetTypeApplication = 0x61617070 // aapp
)

// FourCC renders an asset type as its four-character code. Non-printable
// codes are rendered in hex.
func FourCC(v uint32) string {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("0x%08x", v)
		}
	}
	return string(b)
}

// PackageEntry is one package listed in the PLT.
type PackageEntry struct {
	PackageID []byte
	Location  Location
}

// ServiceID returns the service id for the usual 2-byte package id.
func (p PackageEntry) ServiceID() (uint16, bool) {
	return serviceID(p.PackageID)
}

func serviceID(id []byte) (uint16, bool) {
	if len(id) != 2 {
		return 0, false
	}
	return uint16(id[0])<<8 | uint16(id[1]), true
}

// PLT is the package list table.
type PLT struct {
	Version  uint8
	Packages []PackageEntry
}

func (*PLT) TableID() uint8 { return TablePLT }
func (*PLT) isTable() {}

func decodePLT(version uint8, b []byte) (*PLT, error) {
	c := cursor.New(b)
	if !c.CanRead(1) {
		return nil, fmt.Errorf("%w: PLT", ErrTruncated)
	}
	t := &PLT{Version: version}
	n := int(c.U8())
	for i := 0; i < n; i++ {
		if !c.CanRead(1) {
			break
		}
		idLen := int(c.U8())
		if !c.CanRead(idLen) {
			break
		}
		p := PackageEntry{PackageID: c.View(idLen)}
		loc, err := readLocation(c)
		if err != nil {
			return nil, fmt.Errorf("PLT package %d: %w", i, err)
		}
		p.Location = loc
		t.Packages = append(t.Packages, p)
	}
	return t, nil
}

// Asset is one asset of an MPT.
type Asset struct {
	IdentifierType uint8
	IDScheme       uint32
	ID             []byte
	Type           uint32
	ClockRelation  bool
	Locations      []Location
	Descriptors    []Descriptor
}

// MPT is the MMT package table.
type MPT struct {
	Version     uint8
	Mode        uint8
	PackageID   []byte
	Descriptors []Descriptor
	Assets      []Asset
}

func (*MPT) TableID() uint8 { return TableMPT }
func (*MPT) isTable() {}

// ServiceID returns the service id for the usual 2-byte package id.
func (t *MPT) ServiceID() (uint16, bool) {
	return serviceID(t.PackageID)
}

func decodeMPT(version uint8, b []byte) (*MPT, error) {
	c := cursor.New(b)
	if !c.CanRead(2) {
		return nil, fmt.Errorf("%w: MPT", ErrTruncated)
	}
	t := &MPT{Version: version, Mode: c.U8() & 0x03}
	idLen := int(c.U8())
	if !c.CanRead(idLen + 2) {
		return nil, fmt.Errorf("%w: MPT package id", ErrTruncated)
	}
	t.PackageID = c.View(idLen)
	dl := int(c.U16())
	if !c.CanRead(dl + 1) {
		return nil, fmt.Errorf("%w: MPT descriptors", ErrTruncated)
	}
	t.Descriptors = ReadDescriptors(c.View(dl))

	// A truncated asset ends the list; the assets before it are kept.
	n := int(c.U8())
	for i := 0; i < n; i++ {
		if !c.CanRead(1 + 4 + 1) {
			break
		}
		a := Asset{IdentifierType: c.U8(), IDScheme: c.U32()}
		idLen := int(c.U8())
		if !c.CanRead(idLen + 4 + 1 + 1) {
			break
		}
		a.ID = c.View(idLen)
		a.Type = c.U32()
		a.ClockRelation = c.U8()&0x01 != 0
		locs := int(c.U8())
		for j := 0; j < locs; j++ {
			loc, err := readLocation(c)
			if err != nil {
				return nil, fmt.Errorf("MPT asset %d location: %w", i, err)
			}
			a.Locations = append(a.Locations, loc)
		}
		if !c.CanRead(2) {
			break
		}
		dl := int(c.U16())
		if !c.CanRead(dl) {
			break
		}
		a.Descriptors = ReadDescriptors(c.View(dl))
		t.Assets = append(t.Assets, a)
	}
	return t, nil
}

// CAT is the conditional access table of the CA message.
type CAT struct {
	Version     uint8
	Descriptors []Descriptor
}

func (*CAT) TableID() uint8 { return TableCAT }
func (*CAT) isTable() {}
