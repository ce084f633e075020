package hwsim

// Ports and bits of the i8042 PS/2 controller.
const (
	I8042DataPort   = 0x60
	I8042StatusPort = 0x64

	StatusOutputFull = 0x01
	StatusInputFull  = 0x02
	StatusSystemFlag = 0x04
	StatusAuxData    = 0x20

	ConfigPort1IRQ      = 0x01
	ConfigPort2IRQ      = 0x02
	ConfigSystemFlag    = 0x04
	ConfigPort1ClockOff = 0x10
	ConfigPort2ClockOff = 0x20
	ConfigTranslation   = 0x40
)

const (
	ctrlReadConfig      = 0x20
	ctrlWriteConfig     = 0x60
	ctrlDisableAux      = 0xa7
	ctrlEnableAux       = 0xa8
	ctrlTestAux         = 0xa9
	ctrlSelfTest        = 0xaa
	ctrlTestPort1       = 0xab
	ctrlDisablePort1    = 0xad
	ctrlEnablePort1     = 0xae
	ctrlWriteAux        = 0xd4
	ctrlSelfTestPassed  = 0x55
	ctrlPortTestPassed  = 0x00
	defaultConfig       = ConfigPort1IRQ | ConfigSystemFlag | ConfigPort2ClockOff | ConfigTranslation
	outputQueueCapacity = 64
)

// PS2Device is a device attached to one of the controller's ports. Command
// bytes written by the host are passed to HandleCommand; responses are
// queued through the controller.
type PS2Device interface {
	HandleCommand(c *I8042, cmd uint8)
}

type outputByte struct {
	value uint8
	aux   bool
}

// I8042 models the PS/2 controller. Device output is queued in a FIFO; the
// status register reflects the head of the queue.
type I8042 struct {
	config uint8

	queue []outputByte
	last  uint8

	pendingWrite uint8 // controller command waiting for its data byte

	keyboard PS2Device
	aux      PS2Device

	// raise is invoked when a byte is queued on a port whose interrupt is
	// enabled in the configuration byte.
	raise func(line uint8)

	// Commands records every controller command byte.
	Commands []uint8

	// StuckInputFull keeps the input-buffer-full bit set so that every
	// host write times out.
	StuckInputFull bool

	// SelfTestResult is returned by the 0xAA self test.
	SelfTestResult uint8
}

// NewI8042 returns a controller with the power-on configuration byte. raise
// may be nil.
func NewI8042(raise func(line uint8)) *I8042 {
	return &I8042{
		config:         defaultConfig,
		raise:          raise,
		SelfTestResult: ctrlSelfTestPassed,
	}
}

// Attach connects the keyboard and aux devices. Either may be nil.
func (c *I8042) Attach(keyboard, aux PS2Device) {
	c.keyboard = keyboard
	c.aux = aux
}

// Ports returns the ports decoded by the controller.
func (c *I8042) Ports() []uint16 {
	return []uint16{I8042DataPort, I8042StatusPort}
}

// Config returns the current configuration byte.
func (c *I8042) Config() uint8 {
	return c.config
}

// Pending returns the number of queued output bytes.
func (c *I8042) Pending() int {
	return len(c.queue)
}

// Status returns the value of the status register.
func (c *I8042) Status() uint8 {
	status := c.config & StatusSystemFlag
	if len(c.queue) > 0 {
		status |= StatusOutputFull
		if c.queue[0].aux {
			status |= StatusAuxData
		}
	}
	if c.StuckInputFull {
		status |= StatusInputFull
	}
	return status
}

// In implements PortDevice.
func (c *I8042) In(port uint16) uint8 {
	if port == I8042StatusPort {
		return c.Status()
	}

	if len(c.queue) == 0 {
		return c.last
	}

	head := c.queue[0]
	c.queue = c.queue[1:]
	c.last = head.value

	// the controller raises the next interrupt once the buffer refills
	if len(c.queue) > 0 {
		c.signal(c.queue[0].aux)
	}
	return head.value
}

// Out implements PortDevice.
func (c *I8042) Out(port uint16, value uint8) {
	if port == I8042StatusPort {
		c.command(value)
		return
	}

	switch c.pendingWrite {
	case ctrlWriteConfig:
		c.pendingWrite = 0
		c.config = value
	case ctrlWriteAux:
		c.pendingWrite = 0
		if c.aux != nil && c.config&ConfigPort2ClockOff == 0 {
			c.aux.HandleCommand(c, value)
		}
	default:
		if c.keyboard != nil && c.config&ConfigPort1ClockOff == 0 {
			c.keyboard.HandleCommand(c, value)
		}
	}
}

func (c *I8042) command(cmd uint8) {
	c.Commands = append(c.Commands, cmd)
	c.pendingWrite = 0

	switch cmd {
	case ctrlReadConfig:
		c.queueByte(c.config, false, false)
	case ctrlWriteConfig, ctrlWriteAux:
		c.pendingWrite = cmd
	case ctrlDisableAux:
		c.config |= ConfigPort2ClockOff
	case ctrlEnableAux:
		c.config &^= ConfigPort2ClockOff
	case ctrlDisablePort1:
		c.config |= ConfigPort1ClockOff
	case ctrlEnablePort1:
		c.config &^= ConfigPort1ClockOff
	case ctrlSelfTest:
		c.queueByte(c.SelfTestResult, false, false)
	case ctrlTestPort1, ctrlTestAux:
		c.queueByte(ctrlPortTestPassed, false, false)
	}
}

// QueueKeyboard queues a byte from the first port.
func (c *I8042) QueueKeyboard(value uint8) {
	c.queueByte(value, false, true)
}

// QueueAux queues a byte from the aux port.
func (c *I8042) QueueAux(value uint8) {
	c.queueByte(value, true, true)
}

func (c *I8042) queueByte(value uint8, aux, fromDevice bool) {
	if len(c.queue) == outputQueueCapacity {
		return
	}

	c.queue = append(c.queue, outputByte{value: value, aux: aux})
	if fromDevice && len(c.queue) == 1 {
		c.signal(aux)
	}
}

func (c *I8042) signal(aux bool) {
	if c.raise == nil {
		return
	}

	switch {
	case aux && c.config&ConfigPort2IRQ != 0:
		c.raise(12)
	case !aux && c.config&ConfigPort1IRQ != 0:
		c.raise(1)
	}
}
