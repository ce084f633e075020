package hwsim

import (
	"sync"

	"github.com/CodeDestroyer19/universeK/kernel/gate"
)

// maxDeliveries bounds Deliver so that a handler that never clears its
// interrupt source cannot hang the host.
const maxDeliveries = 1024

// Machine wires a Bus with every simulated device the kernel drivers expect
// at their legacy addresses. The keyboard and mouse raise their interrupts on
// the PIC through the controller.
type Machine struct {
	mu sync.Mutex

	Bus        *Bus
	PIC        *PIC
	Controller *I8042
	Keyboard   *Keyboard
	Mouse      *Mouse
	UART       *UART
	PIT        *PIT

	// Delivered counts interrupts delivered per line.
	Delivered [16]int
}

// NewMachine returns a powered-on machine.
func NewMachine() *Machine {
	m := &Machine{
		Bus:      NewBus(),
		PIC:      NewPIC(),
		Keyboard: NewKeyboard(),
		Mouse:    NewMouse(),
		UART:     NewUART(COM1Base),
		PIT:      NewPIT(),
	}

	m.Controller = NewI8042(m.PIC.Raise)
	m.Controller.Attach(m.Keyboard, m.Mouse)

	m.Bus.Map(m.PIC, m.PIC.Ports()...)
	m.Bus.Map(m.Controller, m.Controller.Ports()...)
	m.Bus.Map(m.UART, m.UART.Ports()...)
	m.Bus.Map(m.PIT, m.PIT.Ports()...)

	return m
}

// Do runs fn while holding the machine lock. Boot code and drivers touching
// the bus from outside Deliver must go through Do when other goroutines
// inject input concurrently.
func (m *Machine) Do(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// Deliver acknowledges pending interrupts on the PIC and hands each one to d
// until none are left. It returns the number of delivered interrupts.
func (m *Machine) Deliver(d gate.Dispatcher) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int
	for ; count < maxDeliveries; count++ {
		line, vector, ok := m.PIC.Acknowledge()
		if !ok {
			break
		}

		m.Delivered[line]++
		d.Dispatch(&gate.Registers{Vector: uint64(vector)})
	}
	return count
}

// Tick raises the timer interrupt.
func (m *Machine) Tick() {
	m.mu.Lock()
	m.PIC.Raise(0)
	m.mu.Unlock()
}

// PressKey queues the make code for scancode.
func (m *Machine) PressKey(scancode uint8) {
	m.mu.Lock()
	m.Keyboard.Press(m.Controller, scancode)
	m.mu.Unlock()
}

// ReleaseKey queues the break code for scancode.
func (m *Machine) ReleaseKey(scancode uint8) {
	m.mu.Lock()
	m.Keyboard.Release(m.Controller, scancode)
	m.mu.Unlock()
}

// TypeKey queues a press followed by a release.
func (m *Machine) TypeKey(scancode uint8) {
	m.mu.Lock()
	m.Keyboard.Press(m.Controller, scancode)
	m.Keyboard.Release(m.Controller, scancode)
	m.mu.Unlock()
}

// MoveMouse queues a movement packet.
func (m *Machine) MoveMouse(dx, dy int, buttons uint8) {
	m.mu.Lock()
	m.Mouse.Move(m.Controller, dx, dy, buttons)
	m.mu.Unlock()
}

// SendMouseBytes queues raw bytes on the aux port.
func (m *Machine) SendMouseBytes(data ...uint8) {
	m.mu.Lock()
	m.Mouse.SendRaw(m.Controller, data...)
	m.mu.Unlock()
}

// SpuriousMouseIRQ raises IRQ12 without queuing aux data.
func (m *Machine) SpuriousMouseIRQ() {
	m.mu.Lock()
	m.PIC.Raise(12)
	m.mu.Unlock()
}
