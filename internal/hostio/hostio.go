// Package hostio provides cpu.Ports backends for running the kernel's
// device code as a host process.
package hostio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/CodeDestroyer19/universeK/kernel/cpu"
)

// DefaultDevice is the Linux character device exposing the I/O port space.
const DefaultDevice = "/dev/port"

var (
	ErrReadOnly    = errors.New("port write blocked in read-only mode")
	ErrUnsupported = errors.New("port I/O is not supported on this platform")
)

// Traced wraps a Ports value and logs every byte access at debug level.
type Traced struct {
	cpu.Ports
	Log *slog.Logger
}

func (t Traced) PortReadByte(port uint16) uint8 {
	v := t.Ports.PortReadByte(port)
	t.Log.Debug("inb", slog.String("port", fmt.Sprintf("0x%04x", port)), slog.String("value", fmt.Sprintf("0x%02x", v)))
	return v
}

func (t Traced) PortWriteByte(port uint16, val uint8) {
	t.Log.Debug("outb", slog.String("port", fmt.Sprintf("0x%04x", port)), slog.String("value", fmt.Sprintf("0x%02x", val)))
	t.Ports.PortWriteByte(port, val)
}

var _ cpu.Ports = Traced{}
