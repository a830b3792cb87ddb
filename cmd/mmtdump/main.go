// Command mmtdump demultiplexes MMT/TLV or transport stream captures and
// prints a JSON report of the decoded tables, media and stream health for
// each input.
//
// Usage:
//
//	mmtdump capture.mmts [capture.ts ...]
//	mmtdump - < capture.mmts
//
// Inputs are processed concurrently. Behavior is tuned by environment
// variables: DEBUG, FORMAT (tlv or ts; empty picks by extension, then by
// content), READ_SIZE, LOG_EVENTS and TS_MIN_SYNC.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/mmttlv/demux"
	"github.com/zsiec/mmttlv/internal/pipeline"
	"github.com/zsiec/mmttlv/internal/stats"
)

var version = "dev"

const (
	formatTLV = "tlv"
	formatTS  = "ts"

	tsSyncByte = 0x47
)

// tsPacketSizes are plain, timestamped (M2TS) and FEC-trailed packets.
var tsPacketSizes = []int{188, 192, 204}

type config struct {
	format    string
	readSize  int
	logEvents bool
	minSync   int
}

// report is the JSON document written for one input.
type report struct {
	Input  string             `json:"input"`
	Stats  stats.Snapshot     `json:"stats"`
	Assets []demux.AssetStats `json:"assets,omitempty"`
	PIDs   []demux.PIDStats   `json:"pids,omitempty"`
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	inputs := os.Args[1:]
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mmtdump FILE|- [FILE ...]")
		os.Exit(2)
	}
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("mmtdump starting", "version", version, "inputs", len(inputs))

	out := &reportWriter{enc: json.NewEncoder(os.Stdout)}
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range inputs {
		g.Go(func() error {
			return dump(ctx, cfg, name, out)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("dump failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (config, error) {
	cfg := config{
		format:    strings.ToLower(envOr("FORMAT", "")),
		logEvents: os.Getenv("LOG_EVENTS") != "",
	}
	switch cfg.format {
	case "", formatTLV, formatTS:
	default:
		return cfg, fmt.Errorf("FORMAT %q: want tlv or ts", cfg.format)
	}
	var err error
	if cfg.readSize, err = strconv.Atoi(envOr("READ_SIZE", "65536")); err != nil || cfg.readSize <= 0 {
		return cfg, fmt.Errorf("READ_SIZE: %q is not a positive integer", os.Getenv("READ_SIZE"))
	}
	if cfg.minSync, err = strconv.Atoi(envOr("TS_MIN_SYNC", "6")); err != nil || cfg.minSync <= 0 {
		return cfg, fmt.Errorf("TS_MIN_SYNC: %q is not a positive integer", os.Getenv("TS_MIN_SYNC"))
	}
	return cfg, nil
}

// detectFormat picks the demuxer from the extension of name, or returns ""
// when the extension says nothing.
func detectFormat(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts", ".m2t", ".m2ts", ".mts", ".trp":
		return formatTS
	case ".mmts", ".tlv":
		return formatTLV
	}
	return ""
}

// sniffFormat looks for three transport stream sync bytes one packet
// apart at the start of br, for each known packet size. Anything else is
// taken for TLV.
func sniffFormat(br *bufio.Reader) string {
	b, _ := br.Peek(3 * tsPacketSizes[len(tsPacketSizes)-1])
	for _, size := range tsPacketSizes {
		for i := 0; i+2*size < len(b) && i < size; i++ {
			if b[i] == tsSyncByte && b[i+size] == tsSyncByte && b[i+2*size] == tsSyncByte {
				return formatTS
			}
		}
	}
	return formatTLV
}

func dump(ctx context.Context, cfg config, name string, out *reportWriter) error {
	var input io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	format := cfg.format
	if format == "" {
		format = detectFormat(name)
	}
	br := bufio.NewReader(input)
	if format == "" {
		format = sniffFormat(br)
	}
	log := slog.With("input", name, "format", format)
	rec := stats.New(format)
	rep := report{Input: name}

	var (
		session pipeline.Session
		finish  func()
	)
	switch format {
	case formatTS:
		r := demux.NewTSReader(demux.TSReaderOptLogger(log), demux.TSReaderOptMinSyncCount(cfg.minSync))
		pipeline.ObserveTS(r.Events(), rec)
		if cfg.logEvents {
			logTSEvents(log, r.Events())
		}
		session = r
		finish = func() { rep.PIDs = r.Statistics() }
	default:
		r := demux.NewTLVReader(demux.TLVReaderOptLogger(log))
		pipeline.ObserveTLV(r.Events(), rec)
		if cfg.logEvents {
			logTLVEvents(log, r.Events())
		}
		session = r
		finish = func() { rep.Assets = r.Statistics() }
	}

	p := pipeline.New(name, br, session, rec,
		pipeline.OptReadSize(cfg.readSize),
		pipeline.OptLogger(log))
	if err := p.Run(ctx); err != nil {
		return err
	}
	finish()
	rep.Stats = rec.Snapshot()
	return out.write(rep)
}

// reportWriter serializes reports from concurrent dumps.
type reportWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *reportWriter) write(r report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
