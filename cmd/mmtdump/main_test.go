package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want string
	}{
		{"capture.ts", formatTS},
		{"capture.M2TS", formatTS},
		{"dir/capture.mmts", formatTLV},
		{"capture.tlv", formatTLV},
		{"capture.bin", ""},
		{"-", ""},
	}
	for _, tc := range tests {
		if got := detectFormat(tc.name); got != tc.want {
			t.Errorf("detectFormat(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSniffFormat(t *testing.T) {
	t.Parallel()
	ts := func(size, lead int) []byte {
		b := make([]byte, lead+4*size)
		for i := range 4 {
			b[lead+i*size] = tsSyncByte
		}
		return b
	}
	// Signaling frames whose payload carries 0x47 at a 9-byte period.
	tlv := bytes.Repeat([]byte{0x7F, 0x03, 0x00, 0x05, 0x47, 0, 0, 0, 0}, 100)
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"ts with leading bytes", ts(188, 5), formatTS},
		{"m2ts", ts(192, 4), formatTS},
		{"ts with fec", ts(204, 0), formatTS},
		{"tlv", tlv, formatTLV},
		{"short", []byte{0x47}, formatTLV},
	}
	for _, tc := range tests {
		if got := sniffFormat(bufio.NewReader(bytes.NewReader(tc.input))); got != tc.want {
			t.Errorf("%s: sniffFormat = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("FORMAT", "TS")
	t.Setenv("READ_SIZE", "4096")
	t.Setenv("TS_MIN_SYNC", "")
	t.Setenv("LOG_EVENTS", "1")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.format != formatTS || cfg.readSize != 4096 || cfg.minSync != 6 || !cfg.logEvents {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	for _, env := range []struct{ key, value string }{
		{"FORMAT", "mp4"},
		{"READ_SIZE", "0"},
		{"TS_MIN_SYNC", "many"},
	} {
		t.Run(env.key, func(t *testing.T) {
			t.Setenv(env.key, env.value)
			if _, err := loadConfig(); err == nil {
				t.Errorf("%s=%q accepted", env.key, env.value)
			}
		})
	}
}

func TestDumpTS(t *testing.T) {
	t.Parallel()

	var stream []byte
	for i := range 8 {
		pkt := make([]byte, 188)
		pkt[0] = 0x47
		pkt[1] = 0x01
		pkt[3] = 0x10 | byte(i)
		stream = append(stream, pkt...)
	}
	name := filepath.Join(t.TempDir(), "capture.ts")
	if err := os.WriteFile(name, stream, 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	out := &reportWriter{enc: json.NewEncoder(&buf)}
	cfg := config{readSize: 100, minSync: 6}
	if err := dump(context.Background(), cfg, name, out); err != nil {
		t.Fatal(err)
	}

	var rep report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Stats.Format != formatTS || rep.Stats.TSPackets != 8 {
		t.Errorf("stats = %+v", rep.Stats)
	}
	if len(rep.PIDs) != 1 || rep.PIDs[0].PID != 0x100 || rep.PIDs[0].Packets != 8 {
		t.Errorf("pids = %+v", rep.PIDs)
	}
}

func TestDumpMissingFile(t *testing.T) {
	t.Parallel()
	out := &reportWriter{enc: json.NewEncoder(&bytes.Buffer{})}
	if err := dump(context.Background(), config{readSize: 10}, filepath.Join(t.TempDir(), "absent.mmts"), out); err == nil {
		t.Error("missing input accepted")
	}
}
