package demux

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/zsiec/mmttlv/internal/mpegts"
)

// TSReader demultiplexes a legacy transport stream carrying ARIB SI and
// DSM-CC data. Like TLVReader it is driven synchronously by Push and is not
// safe for concurrent use.
type TSReader struct {
	log    *slog.Logger
	events *mpegts.Events
	opts   []func(*mpegts.Reader)
	reader *mpegts.Reader
}

// TSReaderOptLogger sets the logger (default slog.Default()).
func TSReaderOptLogger(l *slog.Logger) func(*TSReader) {
	return func(r *TSReader) {
		if l != nil {
			r.log = l
		}
	}
}

// TSReaderOptMinSyncCount sets how many sync bytes one packet apart are
// needed to lock onto a packet size (default 6).
func TSReaderOptMinSyncCount(n int) func(*TSReader) {
	return func(r *TSReader) {
		r.opts = append(r.opts, mpegts.ReaderOptMinSyncCount(n))
	}
}

// TSReaderOptDiscardThreshold sets how many bytes may be buffered without
// sync before they are dropped (default min sync count * 204 * 2).
func TSReaderOptDiscardThreshold(n int) func(*TSReader) {
	return func(r *TSReader) {
		r.opts = append(r.opts, mpegts.ReaderOptDiscardThreshold(n))
	}
}

// NewTSReader creates an independent TS session.
func NewTSReader(opts ...func(*TSReader)) *TSReader {
	r := &TSReader{
		log:    slog.Default(),
		events: &mpegts.Events{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("session", uuid.NewString())
	r.reader = mpegts.NewReader(r.events, append(r.opts, mpegts.ReaderOptLogger(r.log))...)
	return r
}

// Events returns the topics to subscribe to.
func (r *TSReader) Events() *TSEvents {
	return r.events
}

// Push feeds the next chunk of the stream.
func (r *TSReader) Push(b []byte) {
	r.reader.Push(b)
}

// Reset drops the packet lock, section buffers and program state, keeping
// subscribers.
func (r *TSReader) Reset() {
	r.reader.Reset()
}

// Close detaches every subscriber.
func (r *TSReader) Close() {
	r.events.Close()
}

// Bytes returns the number of bytes pushed since creation or Reset.
func (r *TSReader) Bytes() uint64 {
	return r.reader.Bytes()
}

// PacketSize returns the locked packet size, or 0 while searching for sync.
func (r *TSReader) PacketSize() int {
	return r.reader.PacketSize()
}

// Statistics returns per-PID packet counters ordered by PID.
func (r *TSReader) Statistics() []PIDStats {
	return r.reader.Statistics()
}
