package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRecorder() (*Recorder, *fakeClock) {
	c := &fakeClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	return newRecorder("tlv", c.Now), c
}

func TestRecorderCounters(t *testing.T) {
	t.Parallel()

	r, c := newTestRecorder()
	r.RecordBytes(100)
	r.RecordTable("MPT")
	r.RecordTable("MPT")
	r.RecordTable("PLT")
	r.RecordMPU()
	r.RecordMFU(40)
	r.RecordMFU(60)
	r.RecordTLVDiscontinuity()
	r.RecordMMTDiscontinuity()
	r.RecordMMTDiscontinuity()
	r.RecordScrambled()
	c.Advance(1500 * time.Millisecond)

	s := r.Snapshot()
	if s.Format != "tlv" {
		t.Errorf("Format = %q, want tlv", s.Format)
	}
	if s.UptimeMs != 1500 {
		t.Errorf("UptimeMs = %d, want 1500", s.UptimeMs)
	}
	if s.IngestBytes != 100 {
		t.Errorf("IngestBytes = %d, want 100", s.IngestBytes)
	}
	if s.Tables["MPT"] != 2 || s.Tables["PLT"] != 1 {
		t.Errorf("Tables = %v", s.Tables)
	}
	if s.MPUs != 1 || s.MFUs != 2 || s.MFUBytes != 100 {
		t.Errorf("MPUs %d MFUs %d MFUBytes %d", s.MPUs, s.MFUs, s.MFUBytes)
	}
	if s.TLVDiscontinuities != 1 || s.MMTDiscontinuities != 2 || s.Scrambled != 1 {
		t.Errorf("diagnostics = %d/%d/%d", s.TLVDiscontinuities, s.MMTDiscontinuities, s.Scrambled)
	}
	if s.Clock != 0 {
		t.Errorf("Clock = %d before any clock reference", s.Clock)
	}
}

func TestRecorderSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder()
	r.RecordTable("EIT")
	s := r.Snapshot()
	s.Tables["EIT"] = 99
	if got := r.Snapshot().Tables["EIT"]; got != 1 {
		t.Errorf("EIT count = %d after mutating a snapshot, want 1", got)
	}
}

func TestRecorderIngestKbps(t *testing.T) {
	t.Parallel()

	r, c := newTestRecorder()
	if kbps := r.IngestKbps(); kbps != 0 {
		t.Fatalf("IngestKbps = %f with no data, want 0", kbps)
	}

	r.RecordBytes(1000)
	for range 4 {
		c.Advance(250 * time.Millisecond)
		r.RecordBytes(1000)
	}
	// 4000 bytes over one second.
	if kbps := r.IngestKbps(); kbps != 32 {
		t.Errorf("IngestKbps = %f, want 32", kbps)
	}

	c.Advance(5 * time.Second)
	r.RecordBytes(1000)
	if kbps := r.IngestKbps(); kbps != 0 {
		t.Errorf("IngestKbps = %f after the window expired, want 0", kbps)
	}
}

func TestRecorderClock(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder()
	clock := time.Date(2026, 4, 1, 21, 0, 0, 0, time.UTC)
	r.RecordClock(clock)
	if got := r.Snapshot().Clock; got != clock.UnixMilli() {
		t.Errorf("Clock = %d, want %d", got, clock.UnixMilli())
	}
}

func TestRecorderJSON(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder()
	r.RecordTable("NIT")
	b, err := json.Marshal(r.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"ts", "uptimeMs", "format", "ingestBytes", "tables", "mmtDiscontinuities"} {
		if _, ok := m[key]; !ok {
			t.Errorf("snapshot JSON lacks %q: %s", key, b)
		}
	}
	if _, ok := m["clock"]; ok {
		t.Errorf("unset clock serialized: %s", b)
	}
}

func TestRecorderConcurrent(t *testing.T) {
	t.Parallel()

	r := New("ts")
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				r.RecordBytes(188)
				r.RecordTSPacket()
				r.RecordTable("PAT")
			}
		}()
	}
	for range 100 {
		_ = r.Snapshot()
	}
	wg.Wait()

	s := r.Snapshot()
	if s.TSPackets != 4000 || s.Tables["PAT"] != 4000 || s.IngestBytes != 4000*188 {
		t.Errorf("snapshot = %+v", s)
	}
}
