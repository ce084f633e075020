// Command serialmon tails the kernel log written to COM1. It reads from a
// serial device (or a file, pty or stdin when given -file), filters lines by
// level and module and colours them by level on a terminal.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jacobsa/go-serial/serial"
	"golang.org/x/term"

	"github.com/CodeDestroyer19/universeK/device/uart"
	"github.com/CodeDestroyer19/universeK/internal/klogparse"
	"github.com/CodeDestroyer19/universeK/internal/render"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

var (
	portFlag    = flag.String("port", "/dev/ttyS0", "serial device connected to the kernel's COM1")
	baudFlag    = flag.Uint("baud", uart.DefaultBaud, "serial line baud rate")
	fileFlag    = flag.String("file", "", "read the log from this file instead of a serial port (- for stdin)")
	levelFlag   = flag.String("level", "trace", "most verbose level shown: error, warn, info, debug or trace")
	modulesFlag = flag.String("modules", "", "comma-separated list of modules to show (default all)")
	colorFlag   = flag.String("color", "auto", "colour output: auto, always or never")
)

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	filter, err := buildFilter(*levelFlag, *modulesFlag)
	if err != nil {
		slog.Error("invalid filter", "error", err)
		os.Exit(2)
	}

	color, err := useColor(*colorFlag, os.Stdout)
	if err != nil {
		slog.Error("invalid -color", "error", err)
		os.Exit(2)
	}

	in, name, err := openInput()
	if err != nil {
		slog.Error("open input", "error", err)
		os.Exit(1)
	}
	defer in.Close()

	slog.Info("monitoring kernel log", "source", name)
	stats, err := monitor(in, os.Stdout, filter, color)
	slog.Info("input closed", "lines", stats.lines, "shown", stats.shown, "errors", stats.errors)
	if err != nil {
		slog.Error("read failed", "error", err)
		os.Exit(1)
	}
}

func openInput() (io.ReadCloser, string, error) {
	switch *fileFlag {
	case "":
	case "-":
		return io.NopCloser(os.Stdin), "stdin", nil
	default:
		f, err := os.Open(*fileFlag)
		return f, *fileFlag, err
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:        *portFlag,
		BaudRate:        *baudFlag,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, "", fmt.Errorf("serial.Open: %w", err)
	}
	return port, fmt.Sprintf("%s@%d", *portFlag, *baudFlag), nil
}

func buildFilter(level, modules string) (klogparse.Filter, error) {
	lvl, ok := kfmt.ParseLevel(level)
	if !ok {
		return klogparse.Filter{}, fmt.Errorf("unknown level %q", level)
	}

	f := klogparse.Filter{MaxLevel: lvl}
	for _, m := range strings.Split(modules, ",") {
		if m = strings.TrimSpace(m); m != "" {
			f.Modules = append(f.Modules, m)
		}
	}
	return f, nil
}

func useColor(mode string, out *os.File) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return term.IsTerminal(int(out.Fd())), nil
	default:
		return false, fmt.Errorf("unknown mode %q", mode)
	}
}

type stats struct {
	lines, shown, errors int
}

// monitor copies the filtered log from r to w until r is exhausted.
func monitor(r io.Reader, w io.Writer, filter klogparse.Filter, color bool) (stats, error) {
	var st stats

	s := klogparse.NewScanner(r)
	for s.Scan() {
		e := s.Entry()
		st.lines++
		if e.Tagged && e.Level == kfmt.LevelError {
			st.errors++
		}
		if !filter.Match(e) {
			continue
		}

		line := e.Raw
		if color {
			line = render.LogLine(e)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return st, err
		}
		st.shown++
	}
	return st, s.Err()
}
