package klogparse

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// LevelTrace is the slog level used for kernel trace messages.
const LevelTrace = slog.LevelDebug - 4

// SlogLevel maps a kernel log level to its slog equivalent.
func SlogLevel(l kfmt.Level) slog.Level {
	switch l {
	case kfmt.LevelError:
		return slog.LevelError
	case kfmt.LevelWarn:
		return slog.LevelWarn
	case kfmt.LevelDebug:
		return slog.LevelDebug
	case kfmt.LevelTrace:
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// Forwarder is an io.Writer that splits kernel output into lines and logs
// each one through Log. It can be installed as the kfmt output sink of a
// host process running driver code.
type Forwarder struct {
	Log *slog.Logger

	mu      sync.Mutex
	partial []byte
}

// Write implements io.Writer. Incomplete trailing lines are held back until
// their newline arrives or Flush is called.
func (f *Forwarder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.partial = append(f.partial, p...)
	for {
		nl := bytes.IndexByte(f.partial, '\n')
		if nl < 0 {
			break
		}
		f.emit(string(f.partial[:nl]))
		f.partial = f.partial[nl+1:]
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (f *Forwarder) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.partial) != 0 {
		f.emit(string(f.partial))
		f.partial = f.partial[:0]
	}
}

func (f *Forwarder) emit(line string) {
	e := Parse(line)
	if e.Raw == "" {
		return
	}
	if !e.Tagged {
		f.Log.Info(e.Message)
		return
	}
	f.Log.Log(context.Background(), SlogLevel(e.Level), e.Message, slog.String("module", e.Module))
}
