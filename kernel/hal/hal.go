// Package hal probes for the devices known to the kernel, initializes their
// drivers in detection order and keeps track of the ones that came up.
package hal

import (
	"bytes"
	"sort"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/pit"
	"github.com/CodeDestroyer19/universeK/device/ps2/keyboard"
	"github.com/CodeDestroyer19/universeK/device/ps2/mouse"
	"github.com/CodeDestroyer19/universeK/device/uart"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	registry device.Registry

	activeSerial   *uart.Port
	activeTimer    *pit.Timer
	activeKeyboard *keyboard.Driver
	activeMouse    *mouse.Driver

	// probed marks the driver entries that have already been handled so
	// that DetectHardware skips the log sink probed by AttachLogSink.
	probed map[*device.DriverInfo]bool
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// Devices returns the registry of initialized devices.
func Devices() *device.Registry {
	return &devices.registry
}

// ActiveKeyboard returns the initialized keyboard driver or nil.
func ActiveKeyboard() *keyboard.Driver {
	return devices.activeKeyboard
}

// ActiveMouse returns the initialized mouse driver or nil.
func ActiveMouse() *mouse.Driver {
	return devices.activeMouse
}

// ActiveTimer returns the initialized timer driver or nil.
func ActiveTimer() *pit.Timer {
	return devices.activeTimer
}

// PointerPosition returns the last known mouse position. The second value is
// false when no mouse was initialized.
func PointerPosition() (x, y int, ok bool) {
	if devices.activeMouse == nil {
		return 0, 0, false
	}

	x, y = devices.activeMouse.Position()
	return x, y, true
}

// AttachLogSink probes the drivers registered with DetectOrderEarly. The
// first serial port that comes up becomes the kfmt output sink.
func AttachLogSink(host *device.Host) {
	drivers := sortedDrivers()

	var early device.DriverInfoList
	for _, info := range drivers {
		if info.Order == device.DetectOrderEarly {
			early = append(early, info)
		}
	}

	probe(host, early)
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware(host *device.Host) {
	probe(host, sortedDrivers())
}

func sortedDrivers() device.DriverInfoList {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Stable(drivers)
	return drivers
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(host *device.Host, driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: consoleWriter{}}

	if devices.probed == nil {
		devices.probed = make(map[*device.DriverInfo]bool)
	}

	for _, info := range driverInfoList {
		if devices.probed[info] {
			continue
		}
		devices.probed[info] = true

		drv := info.Probe(host)
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[INFO][hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Errorf("hal", "%s(%d.%d.%d): init failed: %s", drv.DriverName(), major, minor, patch, err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(info, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(info *device.DriverInfo, drv device.Driver) {
	if err := devices.registry.Register(&device.Descriptor{
		Name:   drv.DriverName(),
		Class:  info.Class,
		Driver: drv,
	}); err != nil {
		kfmt.Warnf("hal", "could not register %s: %s", drv.DriverName(), err.Message)
	}

	switch drvImpl := drv.(type) {
	case *uart.Port:
		if devices.activeSerial != nil {
			return
		}

		devices.activeSerial = drvImpl
		kfmt.SetOutputSink(drvImpl)
	case *pit.Timer:
		devices.activeTimer = drvImpl
	case *keyboard.Driver:
		devices.activeKeyboard = drvImpl
	case *mouse.Driver:
		devices.activeMouse = drvImpl
	}
}

// consoleWriter forwards driver output to the current kfmt destination so
// that output produced before a log sink exists lands in the early buffer.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	kfmt.Fprintf(kfmt.OutputSink(), "%s", p)
	return len(p), nil
}
