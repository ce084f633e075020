package hostio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ioDelay matches the time taken by a write to the POST diagnostic port.
const ioDelay = 1000 // ns

// DevPort accesses I/O ports through pread/pwrite on /dev/port. Word and
// dword accesses are split into consecutive byte accesses by the kernel.
//
// cpu.Ports has no error returns, so the first failure is latched and
// reported by Err. Reads after a failure return 0xff, the value of a
// floating bus.
type DevPort struct {
	fd       int
	readOnly bool

	mu  sync.Mutex
	err error
}

// Open opens path for port access. In read-only mode writes are dropped
// and latch ErrReadOnly.
func Open(path string, readOnly bool) (*DevPort, error) {
	mode := unix.O_RDWR
	if readOnly {
		mode = unix.O_RDONLY
	}

	fd, err := unix.Open(path, mode|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DevPort{fd: fd, readOnly: readOnly}, nil
}

// Close releases the device.
func (p *DevPort) Close() error {
	return unix.Close(p.fd)
}

// Err returns the first error encountered since Open.
func (p *DevPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *DevPort) latch(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

func (p *DevPort) read(port uint16, buf []byte) {
	n, err := unix.Pread(p.fd, buf, int64(port))
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short read at port 0x%04x", port)
	}
	if err != nil {
		p.latch(fmt.Errorf("read port 0x%04x: %w", port, err))
		for i := range buf {
			buf[i] = 0xff
		}
	}
}

func (p *DevPort) write(port uint16, buf []byte) {
	if p.readOnly {
		p.latch(fmt.Errorf("write port 0x%04x: %w", port, ErrReadOnly))
		return
	}

	n, err := unix.Pwrite(p.fd, buf, int64(port))
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short write at port 0x%04x", port)
	}
	if err != nil {
		p.latch(fmt.Errorf("write port 0x%04x: %w", port, err))
	}
}

func (p *DevPort) PortReadByte(port uint16) uint8 {
	var buf [1]byte
	p.read(port, buf[:])
	return buf[0]
}

func (p *DevPort) PortWriteByte(port uint16, val uint8) {
	p.write(port, []byte{val})
}

func (p *DevPort) PortReadWord(port uint16) uint16 {
	var buf [2]byte
	p.read(port, buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

func (p *DevPort) PortWriteWord(port uint16, val uint16) {
	p.write(port, binary.LittleEndian.AppendUint16(nil, val))
}

func (p *DevPort) PortReadDword(port uint16) uint32 {
	var buf [4]byte
	p.read(port, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (p *DevPort) PortWriteDword(port uint16, val uint32) {
	p.write(port, binary.LittleEndian.AppendUint32(nil, val))
}

// IODelay sleeps instead of touching port 0x80 so that it also works in
// read-only mode.
func (p *DevPort) IODelay() {
	ts := unix.NsecToTimespec(ioDelay)
	_ = unix.Nanosleep(&ts, nil)
}
