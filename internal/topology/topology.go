// Package topology tracks the package and asset graph of an MMT multiplex.
//
// Control tables (PLT, MPT, CAT) say which packet ids currently carry
// something meaningful. The Tracker keeps, for every packet id, the set of
// tables that vouch for it, and only reports sequence discontinuities for
// assets that are vouched for. When the last reference to an asset goes
// away its sequence tracking is reset, so a packet id that is reused later
// does not produce a spurious discontinuity.
package topology

import (
	"slices"

	"github.com/zsiec/mmttlv/internal/mmtsi"
)

// Roles of assets that carry control information.
const (
	RolePLT              = "PLT"
	RoleCAT              = "CAT"
	RoleMPT              = "MPT"
	RoleECM              = "ECM"
	RoleEMM              = "EMM"
	RoleAIT              = "AIT"
	RoleDataTransmission = "DDMT/DAMT"
	RoleEMT              = "EMT"
	RoleEIT              = "EIT"
	RoleBIT              = "BIT"
	RoleSDTT             = "SDTT"
	RoleSDT              = "SDT"
	RoleTOT              = "TOT"
	RoleCDT              = "CDT"
)

var fixed = []struct {
	pid  uint16
	role string
}{
	{mmtsi.PacketIDPLT, RolePLT},
	{mmtsi.PacketIDCAT, RoleCAT},
	{mmtsi.PacketIDEIT, RoleEIT},
	{mmtsi.PacketIDBIT, RoleBIT},
	{mmtsi.PacketIDSDTT, RoleSDTT},
	{mmtsi.PacketIDSDT, RoleSDT},
	{mmtsi.PacketIDTOT, RoleTOT},
	{mmtsi.PacketIDCDT, RoleCDT},
}

// Fixed reports whether pid is one of the well-known packet ids that are
// always tracked.
func Fixed(pid uint16) bool {
	for _, f := range fixed {
		if f.pid == pid {
			return true
		}
	}
	return false
}

type asset struct {
	pid       uint16
	role      string
	assetType uint32

	seq      uint32
	seqKnown bool
	fragment Fragment

	refs map[uint16]struct{}

	packets   uint64
	dropped   uint64
	scrambled uint64
}

func (a *asset) label(role string, assetType uint32) {
	a.role = role
	a.assetType = assetType
}

type pkg struct {
	active bool
	// version of the last applied MPT, -1 when none has been seen.
	version int
}

// AssetStats is a point-in-time view of one asset.
type AssetStats struct {
	PacketID uint16 `json:"packetId"`
	// Role is set for assets carrying control information.
	Role string `json:"role,omitempty"`
	// AssetType is set for media assets listed in an MPT.
	AssetType  uint32 `json:"assetType,omitempty"`
	Referenced bool   `json:"referenced"`
	Packets    uint64 `json:"packets"`
	Dropped    uint64 `json:"dropped"`
	Scrambled  uint64 `json:"scrambled"`
}

// Label returns the role, or the asset type as a four-character code for
// media assets.
func (s AssetStats) Label() string {
	if s.Role != "" || s.AssetType == 0 {
		return s.Role
	}
	return mmtsi.FourCC(s.AssetType)
}

// Tracker is the package/asset graph of one reader session. It is not safe
// for concurrent use.
type Tracker struct {
	assets   map[uint16]*asset
	packages map[uint16]*pkg

	pltVersion int
	catVersion int
}

// New returns a Tracker with the well-known packet ids registered.
func New() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset drops the whole graph, counters included, and registers the
// well-known packet ids again.
func (t *Tracker) Reset() {
	t.assets = make(map[uint16]*asset)
	t.packages = make(map[uint16]*pkg)
	t.pltVersion = -1
	t.catVersion = -1
	for _, f := range fixed {
		a := t.asset(f.pid)
		a.label(f.role, 0)
		a.refs[f.pid] = struct{}{}
	}
}

func (t *Tracker) asset(pid uint16) *asset {
	a, ok := t.assets[pid]
	if !ok {
		a = &asset{pid: pid, fragment: FragmentNone, refs: make(map[uint16]struct{})}
		t.assets[pid] = a
	}
	return a
}

func (t *Tracker) reference(pid, by uint16, role string, assetType uint32) {
	a := t.asset(pid)
	a.label(role, assetType)
	a.refs[by] = struct{}{}
}

// unreference withdraws every reference made by the table on packet id by.
// The self reference of a well-known packet id is kept.
func (t *Tracker) unreference(by uint16) {
	for _, a := range t.assets {
		if a.pid == by && Fixed(by) {
			continue
		}
		delete(a.refs, by)
	}
}

// prune stops expecting continuity on assets nothing vouches for.
func (t *Tracker) prune() {
	for _, a := range t.assets {
		if len(a.refs) == 0 {
			a.seqKnown = false
		}
	}
}

// Referenced reports whether some table currently vouches for pid.
func (t *Tracker) Referenced(pid uint16) bool {
	a, ok := t.assets[pid]
	return ok && len(a.refs) > 0
}

// Role returns the control role of pid, or "" for media and unknown assets.
func (t *Tracker) Role(pid uint16) string {
	if a, ok := t.assets[pid]; ok {
		return a.role
	}
	return ""
}

// ApplyPLT updates the graph from a package list table carried on pid. It
// reports whether the table was new; a repeated version is ignored.
func (t *Tracker) ApplyPLT(pid uint16, plt *mmtsi.PLT) bool {
	if int(plt.Version) == t.pltVersion {
		return false
	}
	t.pltVersion = int(plt.Version)

	for _, p := range t.packages {
		p.active = false
	}
	t.unreference(pid)
	for _, e := range plt.Packages {
		mpt := e.Location.PacketID
		t.reference(mpt, pid, RoleMPT, 0)
		p, ok := t.packages[mpt]
		if !ok {
			p = &pkg{}
			t.packages[mpt] = p
		}
		p.active = true
		p.version = -1
	}
	for id, p := range t.packages {
		if !p.active {
			t.unreference(id)
		}
	}
	t.prune()
	return true
}

// ApplyMPT updates the graph from a package table carried on pid. Tables on
// packet ids not listed by the current PLT are ignored, as are repeated
// versions.
func (t *Tracker) ApplyMPT(pid uint16, mpt *mmtsi.MPT) bool {
	p, ok := t.packages[pid]
	if !ok || !p.active || p.version == int(mpt.Version) {
		return false
	}
	p.version = int(mpt.Version)

	t.unreference(pid)
	t.referenceDescriptors(pid, mpt.Descriptors)
	for _, a := range mpt.Assets {
		for _, l := range a.Locations {
			if l.SameDataflow() {
				t.reference(l.PacketID, pid, "", a.Type)
			}
		}
		t.referenceDescriptors(pid, a.Descriptors)
	}
	t.prune()
	return true
}

func (t *Tracker) referenceDescriptors(pid uint16, ds []mmtsi.Descriptor) {
	for _, d := range ds {
		switch d.Tag {
		case mmtsi.TagAccessControl:
			ac, err := mmtsi.DecodeAccessControl(d)
			if err == nil && ac.Location.SameDataflow() {
				t.reference(ac.Location.PacketID, pid, RoleECM, 0)
			}
		case mmtsi.TagApplicationService:
			as, err := mmtsi.DecodeApplicationService(d)
			if err != nil {
				continue
			}
			if as.AIT.SameDataflow() {
				t.reference(as.AIT.PacketID, pid, RoleAIT, 0)
			}
			if as.DTMessage != nil && as.DTMessage.SameDataflow() {
				t.reference(as.DTMessage.PacketID, pid, RoleDataTransmission, 0)
			}
			for _, e := range as.EMTs {
				if e.Location.SameDataflow() {
					t.reference(e.Location.PacketID, pid, RoleEMT, 0)
				}
			}
		}
	}
}

// ApplyCAT updates the EMM references of the conditional access table
// carried on pid.
func (t *Tracker) ApplyCAT(pid uint16, cat *mmtsi.CAT) bool {
	if int(cat.Version) == t.catVersion {
		return false
	}
	t.catVersion = int(cat.Version)

	t.unreference(pid)
	for _, d := range cat.Descriptors {
		if d.Tag != mmtsi.TagAccessControl {
			continue
		}
		ac, err := mmtsi.DecodeAccessControl(d)
		if err == nil && ac.Location.SameDataflow() {
			t.reference(ac.Location.PacketID, pid, RoleEMM, 0)
		}
	}
	t.prune()
	return true
}

// Statistics returns a snapshot of every tracked asset ordered by packet id.
func (t *Tracker) Statistics() []AssetStats {
	out := make([]AssetStats, 0, len(t.assets))
	for _, a := range t.assets {
		out = append(out, AssetStats{
			PacketID:   a.pid,
			Role:       a.role,
			AssetType:  a.assetType,
			Referenced: len(a.refs) > 0,
			Packets:    a.packets,
			Dropped:    a.dropped,
			Scrambled:  a.scrambled,
		})
	}
	slices.SortFunc(out, func(a, b AssetStats) int { return int(a.PacketID) - int(b.PacketID) })
	return out
}
