// Command ps2probe inspects the legacy PIC and the i8042 controller of the
// host through /dev/port (root only).
//
// By default it only reads registers that have no side effects: the
// controller status and the PIC interrupt masks. With -active it also issues
// controller commands to read the configuration byte and run the self and
// port tests. This disturbs the host's own PS/2 driver; run it on a test
// machine or with the i8042 module unloaded.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CodeDestroyer19/universeK/device/pic"
	"github.com/CodeDestroyer19/universeK/device/ps2"
	"github.com/CodeDestroyer19/universeK/internal/hostio"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
)

var (
	deviceFlag = flag.String("device", hostio.DefaultDevice, "port I/O device")
	activeFlag = flag.Bool("active", false, "issue controller commands (config read, self and port tests)")
	traceFlag  = flag.Bool("trace", false, "log every port access")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *traceFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dev, err := hostio.Open(*deviceFlag, !*activeFlag)
	if err != nil {
		logger.Error("cannot access I/O ports", "device", *deviceFlag, "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	var ports cpu.Ports = dev
	if *traceFlag {
		ports = hostio.Traced{Ports: dev, Log: logger}
	}

	r := probe(ports, *activeFlag)
	if err := dev.Err(); err != nil {
		logger.Error("port access failed", "error", err)
		os.Exit(1)
	}
	r.print(os.Stdout)
}

// report holds the probed register values.
type report struct {
	status uint8

	masterMask, slaveMask uint8

	active   bool
	irr, isr uint16
	config   uint8

	// Test outcomes; nil means passed.
	configErr, selfTestErr, port1Err, port2Err error
}

// asError keeps a nil *kernel.Error out of an error interface.
func asError(err *kernel.Error) error {
	if err == nil {
		return nil
	}
	return err
}

func probe(ports cpu.Ports, active bool) report {
	r := report{
		status:     ports.PortReadByte(ps2.CommandPort),
		masterMask: ports.PortReadByte(pic.MasterData),
		slaveMask:  ports.PortReadByte(pic.SlaveData),
		active:     active,
	}
	if !active {
		return r
	}

	ctl := pic.New(ports)
	r.irr, r.isr = ctl.ReadIRR(), ctl.ReadISR()

	c := ps2.NewController(ports, ps2.DefaultTimeouts())
	c.Flush()

	cfg, err := c.ReadConfig()
	r.config, r.configErr = cfg, asError(err)

	r.selfTestErr = asError(c.SelfTest())
	if r.configErr == nil {
		// the self-test may reset the configuration byte
		_ = c.WriteConfig(cfg)
	}

	r.port1Err = asError(c.TestPort(false))
	r.port2Err = asError(c.TestPort(true))
	return r
}

func flags(v uint8, names map[uint8]string, order []uint8) string {
	var out string
	for _, bit := range order {
		if v&bit != 0 {
			if out != "" {
				out += ","
			}
			out += names[bit]
		}
	}
	if out == "" {
		return "-"
	}
	return out
}

var (
	statusOrder = []uint8{ps2.StatusOutputFull, ps2.StatusInputFull, ps2.StatusSystemFlag, ps2.StatusAuxData, ps2.StatusTimeout, ps2.StatusParity}
	statusNames = map[uint8]string{
		ps2.StatusOutputFull: "OBF",
		ps2.StatusInputFull:  "IBF",
		ps2.StatusSystemFlag: "SYS",
		ps2.StatusAuxData:    "AUX",
		ps2.StatusTimeout:    "TIMEOUT",
		ps2.StatusParity:     "PARITY",
	}

	configOrder = []uint8{ps2.ConfigPort1IRQ, ps2.ConfigPort2IRQ, ps2.ConfigSystemFlag, ps2.ConfigPort1ClockOff, ps2.ConfigPort2ClockOff, ps2.ConfigTranslation}
	configNames = map[uint8]string{
		ps2.ConfigPort1IRQ:      "IRQ1",
		ps2.ConfigPort2IRQ:      "IRQ12",
		ps2.ConfigSystemFlag:    "SYS",
		ps2.ConfigPort1ClockOff: "KBD-OFF",
		ps2.ConfigPort2ClockOff: "AUX-OFF",
		ps2.ConfigTranslation:   "XLAT",
	}
)

func outcome(err error) string {
	if err == nil {
		return "passed"
	}
	return "failed: " + err.Error()
}

func (r report) print(w io.Writer) {
	fmt.Fprintf(w, "i8042 status   0x%02x [%s]\n", r.status, flags(r.status, statusNames, statusOrder))
	fmt.Fprintf(w, "PIC masks      master 0x%02x slave 0x%02x\n", r.masterMask, r.slaveMask)
	if !r.active {
		return
	}

	fmt.Fprintf(w, "PIC IRR/ISR    0x%04x / 0x%04x\n", r.irr, r.isr)
	if r.configErr != nil {
		fmt.Fprintf(w, "i8042 config   %s\n", outcome(r.configErr))
	} else {
		fmt.Fprintf(w, "i8042 config   0x%02x [%s]\n", r.config, flags(r.config, configNames, configOrder))
	}
	fmt.Fprintf(w, "self-test      %s\n", outcome(r.selfTestErr))
	fmt.Fprintf(w, "port 1 test    %s\n", outcome(r.port1Err))
	fmt.Fprintf(w, "port 2 test    %s\n", outcome(r.port2Err))
}
