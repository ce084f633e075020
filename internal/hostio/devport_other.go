//go:build !linux

package hostio

import "github.com/CodeDestroyer19/universeK/kernel/cpu"

// DevPort is only available on Linux.
type DevPort struct {
	cpu.Ports
}

// Open always fails on this platform.
func Open(path string, readOnly bool) (*DevPort, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (p *DevPort) Close() error { return nil }

// Err always returns ErrUnsupported.
func (p *DevPort) Err() error { return ErrUnsupported }
