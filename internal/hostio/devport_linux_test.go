package hostio

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newPortFile returns a regular file standing in for /dev/port. pread and
// pwrite address it the same way.
func newPortFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "port")
	if err := os.WriteFile(path, make([]byte, 0x400), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDevPortAccess(t *testing.T) {
	path := newPortFile(t)

	p, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	p.PortWriteByte(0x64, 0xae)
	p.PortWriteWord(0x100, 0xbeef)
	p.PortWriteDword(0x200, 0xdeadc0de)
	p.IODelay()

	if got := p.PortReadByte(0x64); got != 0xae {
		t.Errorf("expected byte 0xae; got 0x%x", got)
	}
	if got := p.PortReadWord(0x100); got != 0xbeef {
		t.Errorf("expected word 0xbeef; got 0x%x", got)
	}
	if got := p.PortReadDword(0x200); got != 0xdeadc0de {
		t.Errorf("expected dword 0xdeadc0de; got 0x%x", got)
	}
	if err := p.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[0x64] != 0xae || data[0x100] != 0xef || data[0x101] != 0xbe {
		t.Fatal("expected writes to land at the port offsets in little-endian order")
	}
}

func TestDevPortReadOnly(t *testing.T) {
	p, err := Open(newPortFile(t), true)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	p.PortWriteByte(0x64, 0xaa)
	if got := p.PortReadByte(0x64); got != 0 {
		t.Fatalf("expected blocked write to leave port at 0; got 0x%x", got)
	}
	if err := p.Err(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly; got %v", err)
	}
}

func TestDevPortReadPastEnd(t *testing.T) {
	p, err := Open(newPortFile(t), true)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if got := p.PortReadByte(0xfff0); got != 0xff {
		t.Fatalf("expected a floating bus read of 0xff; got 0x%x", got)
	}
	if p.Err() == nil {
		t.Fatal("expected the short read to be latched")
	}
}

func TestOpenMissingDevice(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), true); err == nil {
		t.Fatal("expected an error opening a missing device")
	}
}

func TestTraced(t *testing.T) {
	p, err := Open(newPortFile(t), false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var buf bytes.Buffer
	tr := Traced{
		Ports: p,
		Log:   slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	tr.PortWriteByte(0x60, 0xf4)
	tr.PortReadByte(0x60)

	out := buf.String()
	for _, exp := range []string{"msg=outb port=0x0060 value=0xf4", "msg=inb port=0x0060 value=0xf4"} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected trace to contain %q; got:\n%s", exp, out)
		}
	}
}
