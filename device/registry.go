package device

import (
	"io"

	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// MaxDevices is the capacity of a Registry.
const MaxDevices = 32

// Class is the closed set of device categories.
type Class uint8

// The supported device classes.
const (
	ClassChar Class = iota
	ClassBlock
	ClassNet
	ClassPlatform
)

// String implements fmt.Stringer for Class.
func (c Class) String() string {
	switch c {
	case ClassChar:
		return "char"
	case ClassBlock:
		return "block"
	case ClassNet:
		return "net"
	case ClassPlatform:
		return "platform"
	default:
		return "unknown"
	}
}

// Controller is implemented by drivers that accept out-of-band requests.
type Controller interface {
	Ioctl(request uint32, arg uintptr) (uintptr, *kernel.Error)
}

// Cleaner is implemented by drivers that release their resources when they
// are shut down.
type Cleaner interface {
	DriverCleanup()
}

// Descriptor describes a registered device. Read and write support is
// discovered by asserting Driver against io.Reader and io.Writer.
type Descriptor struct {
	Name   string
	Class  Class
	Driver Driver
}

// Reader returns the driver's io.Reader capability, if any.
func (d *Descriptor) Reader() (io.Reader, bool) {
	r, ok := d.Driver.(io.Reader)
	return r, ok
}

// Writer returns the driver's io.Writer capability, if any.
func (d *Descriptor) Writer() (io.Writer, bool) {
	w, ok := d.Driver.(io.Writer)
	return w, ok
}

// Controller returns the driver's ioctl capability, if any.
func (d *Descriptor) Controller() (Controller, bool) {
	c, ok := d.Driver.(Controller)
	return c, ok
}

// Cleaner returns the driver's cleanup capability, if any.
func (d *Descriptor) Cleaner() (Cleaner, bool) {
	c, ok := d.Driver.(Cleaner)
	return c, ok
}

var (
	errRegistryFull  = &kernel.Error{Module: "device", Message: "device registry is full", Kind: kernel.KindCapacity}
	errDuplicateName = &kernel.Error{Module: "device", Message: "a device with this name is already registered", Kind: kernel.KindDuplicate}
	errInvalidDevice = &kernel.Error{Module: "device", Message: "device descriptor needs a name and a driver", Kind: kernel.KindInvalidArgument}
	errUnknownDevice = &kernel.Error{Module: "device", Message: "no device with this name", Kind: kernel.KindInvalidArgument}

	// ErrNotSupported is returned by drivers that do not recognize an
	// ioctl request.
	ErrNotSupported = &kernel.Error{Module: "device", Message: "operation not supported by device", Kind: kernel.KindInvalidArgument}
)

// Registry is the name-keyed table of initialized devices. Names are unique
// and at most MaxDevices descriptors can be registered. The zero value is an
// empty registry.
type Registry struct {
	entries [MaxDevices]*Descriptor
	count   int
}

// Register adds d to the registry.
func (r *Registry) Register(d *Descriptor) *kernel.Error {
	if d == nil || d.Name == "" || d.Driver == nil {
		return errInvalidDevice
	}

	if r.Lookup(d.Name) != nil {
		return errDuplicateName
	}

	if r.count == MaxDevices {
		return errRegistryFull
	}

	r.entries[r.count] = d
	r.count++
	return nil
}

// Unregister removes the named device, invoking its cleanup capability if it
// has one.
func (r *Registry) Unregister(name string) *kernel.Error {
	for i := 0; i < r.count; i++ {
		if r.entries[i].Name != name {
			continue
		}

		if c, ok := r.entries[i].Cleaner(); ok {
			c.DriverCleanup()
		}

		copy(r.entries[i:r.count], r.entries[i+1:r.count])
		r.count--
		r.entries[r.count] = nil
		return nil
	}

	return errUnknownDevice
}

// Lookup returns the descriptor registered under name or nil.
func (r *Registry) Lookup(name string) *Descriptor {
	for i := 0; i < r.count; i++ {
		if r.entries[i].Name == name {
			return r.entries[i]
		}
	}
	return nil
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return r.count
}

// Names returns the registered device names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		names[i] = r.entries[i].Name
	}
	return names
}

// List writes one line per registered device to w.
func (r *Registry) List(w io.Writer) {
	for i := 0; i < r.count; i++ {
		d := r.entries[i]
		major, minor, patch := d.Driver.DriverVersion()
		kfmt.Fprintf(w, "%16s %8s v%d.%d.%d\n", d.Name, d.Class.String(), major, minor, patch)
	}
}
