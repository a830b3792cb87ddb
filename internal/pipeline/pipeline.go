// Package pipeline drives a demux session from an io.Reader, collecting
// telemetry for the session along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/mmttlv/internal/stats"
)

const defaultReadSize = 64 * 1024

// Session is the part of a demux reader the pipeline drives. Both
// demux.TLVReader and demux.TSReader implement it.
type Session interface {
	Push(b []byte)
	Bytes() uint64
	Close()
}

// Pipeline feeds one input into one Session.
type Pipeline struct {
	log      *slog.Logger
	name     string
	input    io.Reader
	session  Session
	stats    *stats.Recorder
	readSize int

	chunks atomic.Int64
}

// OptReadSize sets the size of each read from the input (default 64 KiB).
func OptReadSize(n int) func(*Pipeline) {
	return func(p *Pipeline) {
		if n > 0 {
			p.readSize = n
		}
	}
}

// OptLogger sets the logger (default slog.Default()).
func OptLogger(l *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Pipeline reading from input into session. rec may be
// shared with the event observers attached to the session.
func New(name string, input io.Reader, session Session, rec *stats.Recorder, opts ...func(*Pipeline)) *Pipeline {
	p := &Pipeline{
		log:      slog.Default(),
		name:     name,
		input:    input,
		session:  session,
		stats:    rec,
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "pipeline", "input", name)
	return p
}

// Stats returns the recorder fed by this pipeline.
func (p *Pipeline) Stats() *stats.Recorder {
	return p.stats
}

// Chunks returns the number of reads pushed into the session so far.
func (p *Pipeline) Chunks() int64 {
	return p.chunks.Load()
}

// Run reads the input until EOF and pushes every chunk into the session.
// It returns nil on EOF or when ctx is cancelled, and the read error
// otherwise. The session is closed before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.session.Close()

	buf := make([]byte, p.readSize)
	for {
		if ctx.Err() != nil {
			p.log.Info("pipeline cancelled", "bytes", p.session.Bytes())
			return nil
		}
		n, err := p.input.Read(buf)
		if n > 0 {
			p.session.Push(buf[:n])
			p.stats.RecordBytes(n)
			p.chunks.Add(1)
		}
		if errors.Is(err, io.EOF) {
			p.log.Info("input finished", "bytes", p.session.Bytes(), "chunks", p.chunks.Load())
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: read %s: %w", p.name, err)
		}
	}
}
