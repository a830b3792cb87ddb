package topology

// Fragment is the 2-bit fragmentation indicator of an MMTP payload, plus
// FragmentNone for an asset that has not been seen yet.
type Fragment uint8

const (
	FragmentComplete Fragment = 0
	FragmentHead     Fragment = 1
	FragmentMiddle   Fragment = 2
	FragmentTail     Fragment = 3
	FragmentNone     Fragment = 0xFF
)

func (f Fragment) String() string {
	switch f {
	case FragmentComplete:
		return "complete"
	case FragmentHead:
		return "head"
	case FragmentMiddle:
		return "middle"
	case FragmentTail:
		return "tail"
	case FragmentNone:
		return "none"
	}
	return "invalid"
}

// open reports whether a unit is in progress after f.
func (f Fragment) open() bool {
	return f == FragmentHead || f == FragmentMiddle
}

// Gap is a packet sequence discontinuity on a vouched-for asset.
type Gap struct {
	Expected uint32
	Actual   uint32
}

// Observation is the outcome of one packet on an asset.
type Observation struct {
	// Boundary is set when the packet starts a new unit.
	Boundary bool
	// Dropped is set when the fragmentation indicator is not a legal
	// successor of the previous one, so any unit in progress is broken.
	Dropped bool
	// Gap is set when the packet sequence number skipped.
	Gap *Gap
}

// Observe runs the fragmentation state machine and sequence check for one
// packet on pid. Unknown packet ids are tracked from their first packet but
// report no gaps until a table references them.
func (t *Tracker) Observe(pid uint16, fi Fragment, seq uint32) Observation {
	a := t.asset(pid)
	a.packets++

	var o Observation
	if a.fragment.open() {
		o.Dropped = fi != FragmentMiddle && fi != FragmentTail
	} else {
		o.Boundary = true
		o.Dropped = fi != FragmentHead && fi != FragmentComplete
	}
	if (o.Boundary || o.Dropped) && a.seqKnown && len(a.refs) > 0 {
		if want := a.seq + 1; want != seq {
			a.dropped++
			o.Gap = &Gap{Expected: want, Actual: seq}
		}
	}
	a.fragment = fi
	a.seq = seq
	a.seqKnown = true
	return o
}

// Scrambled counts a packet on pid whose payload could not be read.
func (t *Tracker) Scrambled(pid uint16) {
	t.asset(pid).scrambled++
}
