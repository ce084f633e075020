package ps2

import (
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// Op is a single handshake operation.
type Op uint8

// The supported handshake operations.
const (
	// OpCommand writes Value to the controller command port.
	OpCommand Op = iota

	// OpSend writes Value to the device on the first port.
	OpSend

	// OpSendAux writes Value to the device on the aux port.
	OpSendAux

	// OpExpect reads a byte from the controller's device port within the
	// ACK budget and compares it to Value.
	OpExpect

	// OpExpectSelfTest reads a byte within the self-test budget and
	// compares it to Value.
	OpExpectSelfTest

	// OpSkip reads and discards one byte within the ACK budget.
	OpSkip
)

// Step is one state of a device initialization sequence.
type Step struct {
	Op    Op
	Value uint8
	Name  string
}

// Command returns a step that writes a controller command.
func Command(name string, cmd uint8) Step { return Step{Op: OpCommand, Value: cmd, Name: name} }

// Send returns a step that writes a byte to the first port device.
func Send(name string, value uint8) Step { return Step{Op: OpSend, Value: value, Name: name} }

// SendAux returns a step that writes a byte to the aux device.
func SendAux(name string, value uint8) Step { return Step{Op: OpSendAux, Value: value, Name: name} }

// Expect returns a step that requires the next byte to equal value.
func Expect(name string, value uint8) Step { return Step{Op: OpExpect, Value: value, Name: name} }

// ExpectSelfTest returns a step that waits for a self-test result.
func ExpectSelfTest(name string) Step {
	return Step{Op: OpExpectSelfTest, Value: RespSelfTestPassed, Name: name}
}

// Skip returns a step that consumes one byte of any value.
func Skip(name string) Step { return Step{Op: OpSkip, Name: name} }

// Run executes steps in order and stops at the first failure. It returns the
// index of the failed step, or len(steps) on success, and the error.
func (c *Controller) Run(module string, steps []Step) (int, *kernel.Error) {
	for i, step := range steps {
		if err := c.runStep(module, step); err != nil {
			kfmt.Warnf(module, "handshake step %d (%s) failed: %s", i, step.Name, err.Message)
			return i, err
		}
		kfmt.Tracef(module, "handshake step %d (%s) ok", i, step.Name)
	}
	return len(steps), nil
}

func (c *Controller) runStep(module string, step Step) *kernel.Error {
	switch step.Op {
	case OpCommand:
		return c.SendCommand(step.Value)
	case OpSend:
		return c.WriteData(step.Value)
	case OpSendAux:
		return c.WriteAux(step.Value)
	case OpExpect, OpExpectSelfTest:
		budget := c.Timeouts.ACK
		if step.Op == OpExpectSelfTest {
			budget = c.Timeouts.SelfTest
		}

		got, err := c.ReadPort(c.Port, budget)
		if err != nil {
			return err
		}
		if got != step.Value {
			kfmt.Debugf(module, "expected 0x%2x; got 0x%2x", step.Value, got)
			return errUnexpected
		}
		return nil
	case OpSkip:
		_, err := c.ReadPort(c.Port, c.Timeouts.ACK)
		return err
	default:
		return errUnknownOp
	}
}
