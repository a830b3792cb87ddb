// Package stats accumulates stream telemetry from a demux session for
// periodic reporting. A Recorder is fed from event handlers on the session
// goroutine and may be read concurrently through Snapshot.
package stats

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// rateWindow is the span over which the ingest bitrate is averaged.
const rateWindow = 2 * time.Second

// Snapshot is a point-in-time copy of a Recorder, serialized as JSON by
// the CLI.
type Snapshot struct {
	Timestamp   int64   `json:"ts"`
	UptimeMs    int64   `json:"uptimeMs"`
	Format      string  `json:"format"`
	IngestBytes int64   `json:"ingestBytes"`
	IngestKbps  float64 `json:"ingestKbps"`

	Tables map[string]int64 `json:"tables,omitempty"`

	MPUs     int64 `json:"mpus"`
	MFUs     int64 `json:"mfus"`
	MFUBytes int64 `json:"mfuBytes"`

	TLVDiscontinuities int64 `json:"tlvDiscontinuities"`
	MMTDiscontinuities int64 `json:"mmtDiscontinuities"`
	Scrambled          int64 `json:"scrambled"`
	TSPackets          int64 `json:"tsPackets,omitempty"`

	// Clock is the last NTP transmit time in Unix milliseconds.
	Clock int64 `json:"clock,omitempty"`
}

type rateEntry struct {
	ts    time.Time
	bytes int64
}

// Recorder accumulates session telemetry.
//
// Counters are atomic; the table map, the clock and the rate window each
// have their own mutex.
type Recorder struct {
	format string
	start  time.Time
	now    func() time.Time

	bytes     atomic.Int64
	mpus      atomic.Int64
	mfus      atomic.Int64
	mfuBytes  atomic.Int64
	tlvGaps   atomic.Int64
	mmtGaps   atomic.Int64
	scrambled atomic.Int64
	tsPackets atomic.Int64

	tablesMu sync.Mutex
	tables   map[string]int64

	clockMu sync.RWMutex
	clock   time.Time

	rateMu sync.Mutex
	rate   []rateEntry
}

// New returns a Recorder for a session of the given format ("tlv" or "ts").
func New(format string) *Recorder {
	return newRecorder(format, time.Now)
}

func newRecorder(format string, now func() time.Time) *Recorder {
	return &Recorder{
		format: format,
		start:  now(),
		now:    now,
		tables: make(map[string]int64),
	}
}

// RecordBytes counts n ingested bytes.
func (r *Recorder) RecordBytes(n int) {
	r.bytes.Add(int64(n))

	now := r.now()
	r.rateMu.Lock()
	r.rate = append(r.rate, rateEntry{ts: now, bytes: int64(n)})
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(r.rate) && r.rate[i].ts.Before(cutoff) {
		i++
	}
	r.rate = r.rate[i:]
	r.rateMu.Unlock()
}

// RecordTable counts one decoded table of the named family.
func (r *Recorder) RecordTable(name string) {
	r.tablesMu.Lock()
	r.tables[name]++
	r.tablesMu.Unlock()
}

// RecordMPU counts one decoded MPU payload.
func (r *Recorder) RecordMPU() {
	r.mpus.Add(1)
}

// RecordMFU counts one complete media fragment unit of size bytes.
func (r *Recorder) RecordMFU(size int) {
	r.mfus.Add(1)
	r.mfuBytes.Add(int64(size))
}

func (r *Recorder) RecordTLVDiscontinuity() {
	r.tlvGaps.Add(1)
}

func (r *Recorder) RecordMMTDiscontinuity() {
	r.mmtGaps.Add(1)
}

func (r *Recorder) RecordScrambled() {
	r.scrambled.Add(1)
}

// RecordTSPacket counts one accepted transport stream packet.
func (r *Recorder) RecordTSPacket() {
	r.tsPackets.Add(1)
}

// RecordClock stores the latest clock reference.
func (r *Recorder) RecordClock(t time.Time) {
	r.clockMu.Lock()
	r.clock = t
	r.clockMu.Unlock()
}

// IngestKbps computes the ingest bitrate over the sliding window.
func (r *Recorder) IngestKbps() float64 {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	if len(r.rate) < 2 {
		return 0
	}
	dur := r.rate[len(r.rate)-1].ts.Sub(r.rate[0].ts).Seconds()
	if dur <= 0 {
		return 0
	}
	var total int64
	// The first entry opens the window; its bytes arrived before it.
	for _, e := range r.rate[1:] {
		total += e.bytes
	}
	return float64(total*8) / dur / 1000
}

// Snapshot returns the current counters.
func (r *Recorder) Snapshot() Snapshot {
	now := r.now()
	s := Snapshot{
		Timestamp:          now.UnixMilli(),
		UptimeMs:           now.Sub(r.start).Milliseconds(),
		Format:             r.format,
		IngestBytes:        r.bytes.Load(),
		IngestKbps:         r.IngestKbps(),
		MPUs:               r.mpus.Load(),
		MFUs:               r.mfus.Load(),
		MFUBytes:           r.mfuBytes.Load(),
		TLVDiscontinuities: r.tlvGaps.Load(),
		MMTDiscontinuities: r.mmtGaps.Load(),
		Scrambled:          r.scrambled.Load(),
		TSPackets:          r.tsPackets.Load(),
	}

	r.tablesMu.Lock()
	if len(r.tables) > 0 {
		s.Tables = maps.Clone(r.tables)
	}
	r.tablesMu.Unlock()

	r.clockMu.RLock()
	if !r.clock.IsZero() {
		s.Clock = r.clock.UnixMilli()
	}
	r.clockMu.RUnlock()
	return s
}
