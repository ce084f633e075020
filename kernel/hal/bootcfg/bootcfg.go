// Package bootcfg turns the boot command line into typed settings for the
// device layer.
//
// Recognized keys:
//
//	loglevel=none|error|warn|info|debug|trace
//	ps2.io_timeout=N          polls of the controller status register
//	ps2.ack_timeout=N         polls while waiting for an ACK byte
//	ps2.selftest_timeout=N    polls while waiting for a self-test result
//	keyboard=off              skip the PS/2 keyboard
//	mouse=off                 skip the PS/2 mouse
//	mouse.grid=WxH            pointer grid in display cells
//	pit.hz=N                  timer interrupt frequency
//	serial=off                keep the log in the early buffer
//
// Unknown keys are ignored. Malformed values keep their default and produce a
// warning.
package bootcfg

import (
	"strconv"
	"strings"

	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/multiboot"
)

// Default values.
const (
	DefaultIOTimeout       = 1000
	DefaultACKTimeout      = 100000
	DefaultSelfTestTimeout = 500000
	DefaultGridWidth       = 80
	DefaultGridHeight      = 25
	DefaultPITHz           = 100

	// MinPITHz is the lowest rate the 16-bit PIT divisor can produce.
	MinPITHz = 19
	MaxPITHz = 1193180
)

// Config holds the settings consumed by the HAL and the drivers.
type Config struct {
	LogLevel kfmt.Level

	// Bounded poll budgets used by the PS/2 drivers.
	IOTimeout       int
	ACKTimeout      int
	SelfTestTimeout int

	KeyboardEnabled bool
	MouseEnabled    bool
	SerialEnabled   bool

	GridWidth  int
	GridHeight int

	PITHz uint32
}

// Default returns the configuration used when the command line is empty.
func Default() Config {
	return Config{
		LogLevel:        kfmt.LevelInfo,
		IOTimeout:       DefaultIOTimeout,
		ACKTimeout:      DefaultACKTimeout,
		SelfTestTimeout: DefaultSelfTestTimeout,
		KeyboardEnabled: true,
		MouseEnabled:    true,
		SerialEnabled:   true,
		GridWidth:       DefaultGridWidth,
		GridHeight:      DefaultGridHeight,
		PITHz:           DefaultPITHz,
	}
}

var getBootCmdLineFn = multiboot.GetBootCmdLine

// FromBootCmdLine parses the command line supplied by the boot loader.
func FromBootCmdLine() Config {
	return Parse(getBootCmdLineFn())
}

// Parse builds a Config from command line key/value pairs.
func Parse(args map[string]string) Config {
	cfg := Default()

	for key, value := range args {
		switch key {
		case "loglevel":
			if level, ok := kfmt.ParseLevel(value); ok {
				cfg.LogLevel = level
			} else {
				warnBadValue(key, value)
			}
		case "ps2.io_timeout":
			parsePositive(key, value, &cfg.IOTimeout)
		case "ps2.ack_timeout":
			parsePositive(key, value, &cfg.ACKTimeout)
		case "ps2.selftest_timeout":
			parsePositive(key, value, &cfg.SelfTestTimeout)
		case "keyboard":
			parseSwitch(key, value, &cfg.KeyboardEnabled)
		case "mouse":
			parseSwitch(key, value, &cfg.MouseEnabled)
		case "serial":
			parseSwitch(key, value, &cfg.SerialEnabled)
		case "mouse.grid":
			w, h, ok := parseGrid(value)
			if !ok {
				warnBadValue(key, value)
				continue
			}
			cfg.GridWidth, cfg.GridHeight = w, h
		case "pit.hz":
			hz, err := strconv.ParseUint(value, 10, 32)
			if err != nil || hz < MinPITHz || hz > MaxPITHz {
				warnBadValue(key, value)
				continue
			}
			cfg.PITHz = uint32(hz)
		}
	}

	return cfg
}

func parsePositive(key, value string, dst *int) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		warnBadValue(key, value)
		return
	}
	*dst = n
}

func parseSwitch(key, value string, dst *bool) {
	switch value {
	case "on":
		*dst = true
	case "off":
		*dst = false
	default:
		warnBadValue(key, value)
	}
}

func parseGrid(value string) (int, int, bool) {
	ws, hs, found := strings.Cut(value, "x")
	if !found {
		return 0, 0, false
	}

	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 || w > 0xffff || h > 0xffff {
		return 0, 0, false
	}
	return w, h, true
}

func warnBadValue(key, value string) {
	kfmt.Warnf("bootcfg", "ignoring invalid value \"%s\" for %s", value, key)
}
