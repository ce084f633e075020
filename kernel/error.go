package kernel

// ErrorKind classifies a kernel error so that callers can react to a class of
// failures without comparing against every sentinel value.
type ErrorKind uint8

const (
	// KindGeneric is used for errors that do not fall into any of the
	// other categories.
	KindGeneric ErrorKind = iota

	// KindTimeout indicates that a bounded poll ran out of iterations
	// while waiting for a status bit or a response byte.
	KindTimeout

	// KindProtocol indicates that a device responded with a byte that
	// does not match the expected acknowledgment or self-test value.
	KindProtocol

	// KindSpurious indicates that an interrupt fired without the expected
	// "data available" condition.
	KindSpurious

	// KindCapacity indicates that a bounded table or list is full.
	KindCapacity

	// KindDuplicate indicates that an entry with the same key is already
	// registered.
	KindDuplicate

	// KindInvalidArgument indicates an out-of-range argument such as an
	// IRQ line above 15.
	KindInvalidArgument
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol violation"
	case KindSpurious:
		return "spurious signal"
	case KindCapacity:
		return "capacity exhausted"
	case KindDuplicate:
		return "duplicate registration"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "generic"
	}
}

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that interrupt handlers must never allocate so errors.New is
// off limits in any code reachable from them.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Kind classifies the error.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether err is a kernel error of the given kind.
func Is(err *Error, kind ErrorKind) bool {
	return err != nil && err.Kind == kind
}
