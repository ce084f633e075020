package device

import (
	"io"

	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprint.
	DriverInit(io.Writer) *kernel.Error
}

// LineMasker is implemented by interrupt controllers that can gate
// individual IRQ lines.
type LineMasker interface {
	MaskIRQ(irq.Line)
	UnmaskIRQ(irq.Line)
}

// Host bundles the platform services that probe functions hand to the
// drivers they create.
type Host struct {
	Ports  cpu.Ports
	IRQs   *irq.Registry
	Lines  LineMasker
	Config *bootcfg.Config
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func(*Host) Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed before any other driver. It is used by the log sink so
	// that the remaining drivers can report their progress.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderChipset is used by the interrupt controller. It runs
	// before any driver that unmasks a line.
	DetectOrderChipset DetectOrder = -96

	// DetectOrderPlatform is used by the timer and other chipset
	// devices that input drivers do not depend on.
	DetectOrderPlatform DetectOrder = -64

	// DetectOrderInput is used by PS/2 devices.
	DetectOrderInput DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed after all other probe functions have run.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to
// RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the HW detection step should
	// the probe function be invoked.
	Order DetectOrder

	// Class is recorded in the descriptor of the initialized driver.
	Class Class

	// Probe is the function that detects the hardware and returns a
	// driver for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	// registeredDrivers tracks the drivers registered via a call to
	// RegisterDriver.
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info entry to the list of
// drivers to probe for when the hal package detects the system hardware.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
