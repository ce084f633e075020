// Package klogparse reads the kernel log stream emitted on the serial port.
// Tagged lines have the form "[LEVEL][module] message"; anything else is
// kept as a plain line.
package klogparse

import (
	"bufio"
	"io"
	"strings"

	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// maxLineLen bounds a single log line. The kernel never emits lines this
// long; a longer one means the reader is attached to the wrong device.
const maxLineLen = 64 * 1024

// Entry is a single parsed log line.
type Entry struct {
	// Tagged is false for lines printed without a level and module
	// prefix, such as the panic banner.
	Tagged bool

	Level   kfmt.Level
	Module  string
	Message string

	// Raw holds the line without its trailing newline.
	Raw string
}

// Parse splits line into its level, module and message. Lines without a
// well-formed prefix are returned untagged with Message set to the input.
func Parse(line string) Entry {
	line = strings.TrimRight(line, "\r\n")
	entry := Entry{Raw: line, Message: line}

	level, rest, ok := bracket(line)
	if !ok {
		return entry
	}
	lvl, ok := kfmt.ParseLevel(level)
	if !ok || lvl == kfmt.LevelNone {
		return entry
	}

	module, rest, ok := bracket(rest)
	if !ok || module == "" {
		return entry
	}

	entry.Tagged = true
	entry.Level = lvl
	entry.Module = module
	entry.Message = strings.TrimPrefix(rest, " ")
	return entry
}

// bracket returns the text enclosed by the leading "[...]" of s and the
// remainder after the closing bracket.
func bracket(s string) (string, string, bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", s, false
	}
	return s[1:end], s[end+1:], true
}

// Filter selects entries for display.
type Filter struct {
	// MaxLevel is the most verbose level that passes. Untagged lines
	// always pass.
	MaxLevel kfmt.Level

	// Modules restricts tagged entries to the listed modules when not
	// empty.
	Modules []string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if !e.Tagged {
		return true
	}
	if e.Level > f.MaxLevel {
		return false
	}
	if len(f.Modules) == 0 {
		return true
	}
	for _, m := range f.Modules {
		if m == e.Module {
			return true
		}
	}
	return false
}

// Scanner reads entries from a byte stream one line at a time.
type Scanner struct {
	s     *bufio.Scanner
	entry Entry
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineLen)
	return &Scanner{s: s}
}

// Scan advances to the next line. It returns false at the end of the input
// or on a read error.
func (s *Scanner) Scan() bool {
	if !s.s.Scan() {
		return false
	}
	s.entry = Parse(s.s.Text())
	return true
}

// Entry returns the entry read by the last call to Scan.
func (s *Scanner) Entry() Entry {
	return s.entry
}

// Err returns the first non-EOF error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.s.Err()
}
