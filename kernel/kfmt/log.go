package kfmt

// Level controls which log messages reach the output sink.
type Level uint8

// The supported log levels in increasing order of verbosity.
const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	levelNames = [...]string{"NONE", "ERROR", "WARN", "INFO", "DEBUG", "TRACE"}

	activeLevel = LevelInfo
)

// String returns the tag used for l in log lines.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel maps a lower- or upper-case level name to a Level.
func ParseLevel(name string) (Level, bool) {
	for i := range levelNames {
		if equalFold(levelNames[i], name) {
			return Level(i), true
		}
	}
	return LevelNone, false
}

// SetLevel sets the most verbose level that will be emitted.
func SetLevel(l Level) {
	if l > LevelTrace {
		l = LevelTrace
	}
	activeLevel = l
}

// GetLevel returns the currently active log level.
func GetLevel() Level {
	return activeLevel
}

// Enabled reports whether messages at level l are emitted.
func Enabled(l Level) bool {
	return l != LevelNone && l <= activeLevel
}

// Errorf logs an error message for module.
func Errorf(module, format string, args ...interface{}) {
	logf(LevelError, module, format, args...)
}

// Warnf logs a warning for module.
func Warnf(module, format string, args ...interface{}) {
	logf(LevelWarn, module, format, args...)
}

// Infof logs an informational message for module.
func Infof(module, format string, args ...interface{}) {
	logf(LevelInfo, module, format, args...)
}

// Debugf logs a debug message for module.
func Debugf(module, format string, args ...interface{}) {
	logf(LevelDebug, module, format, args...)
}

// Tracef logs a trace message for module. Trace output is emitted from
// interrupt handlers so it is disabled by default.
func Tracef(module, format string, args ...interface{}) {
	logf(LevelTrace, module, format, args...)
}

// logf writes a single line formatted as "[LEVEL][module] message\n". A
// trailing newline is appended if format does not end with one.
func logf(l Level, module, format string, args ...interface{}) {
	if !Enabled(l) {
		return
	}

	writeByte(outputSink, '[')
	name := levelNames[l]
	writeString(outputSink, name, 0, len(name))
	writeByte(outputSink, ']')
	writeByte(outputSink, '[')
	writeString(outputSink, module, 0, len(module))
	writeByte(outputSink, ']')
	writeByte(outputSink, ' ')

	Fprintf(outputSink, format, args...)

	if n := len(format); n == 0 || format[n-1] != '\n' {
		writeByte(outputSink, '\n')
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
