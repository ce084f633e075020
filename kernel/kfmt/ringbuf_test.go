package kfmt

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	bootLog := "[INFO][kmain] kernel image at 0x100000-0x180000\n"

	specs := []struct {
		name       string
		head       int
		writes     []string
		expData    string
		expDropped uint64
	}{
		{"empty", 0, nil, "", 0},
		{"single write", 0, []string{bootLog}, bootLog, 0},
		{"split writes", 0, []string{"[WARN][ps2] ", "no ACK\n"}, "[WARN][ps2] no ACK\n", 0},
		{"wraps at the end of the array", ringBufferSize - 5, []string{bootLog}, bootLog, 0},
		{
			"overflow keeps the newest bytes",
			0,
			[]string{strings.Repeat("-", ringBufferSize-4), bootLog},
			strings.Repeat("-", ringBufferSize-len(bootLog)) + bootLog,
			uint64(len(bootLog) - 4),
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			rb := ringBuffer{head: spec.head}
			for _, w := range spec.writes {
				if n, err := rb.Write([]byte(w)); err != nil || n != len(w) {
					t.Fatalf("expected Write to accept %d bytes; got %d, %v", len(w), n, err)
				}
			}

			if got := rb.Len(); got != len(spec.expData) {
				t.Fatalf("expected Len() to return %d; got %d", len(spec.expData), got)
			}
			if rb.dropped != spec.expDropped {
				t.Fatalf("expected %d dropped bytes; got %d", spec.expDropped, rb.dropped)
			}

			var out bytes.Buffer
			buf := make([]byte, 7)
			for {
				n, err := rb.Read(buf)
				out.Write(buf[:n])
				if err == io.EOF {
					break
				}
			}

			if got := out.String(); got != spec.expData {
				t.Fatalf("expected to read back %q; got %q", spec.expData, got)
			}
			if rb.Len() != 0 {
				t.Fatal("expected the buffer to be empty after draining it")
			}
		})
	}
}

func TestEarlyDropped(t *testing.T) {
	defer func() {
		earlyBuf = ringBuffer{}
	}()

	earlyBuf = ringBuffer{dropped: 12}
	if got := EarlyDropped(); got != 12 {
		t.Fatalf("expected EarlyDropped() to return 12; got %d", got)
	}
}
