package mouse

// Bits of the first packet byte.
const (
	packetButtonMask = 0x07
	packetAlwaysOne  = 0x08
	packetXSign      = 0x10
	packetYSign      = 0x20
)

// Button bits of Event.Buttons.
const (
	ButtonLeft   = 1 << 0
	ButtonRight  = 1 << 1
	ButtonMiddle = 1 << 2
)

// Event describes the pointer after a complete packet has been decoded.
type Event struct {
	Buttons uint8
	X, Y    int

	// Scroll holds bits 3-6 of the first packet byte. Standard 3-byte
	// mice never move a wheel so the value only carries the sync and
	// sign bits.
	Scroll uint8
}

// Decoder assembles 3-byte packets and tracks the pointer position on a
// width x height grid. The position starts at the origin.
type Decoder struct {
	cycle  int
	packet [3]uint8

	x, y          int
	width, height int
}

// NewDecoder returns a decoder for a width x height grid. Non-positive
// dimensions are treated as 1.
func NewDecoder(width, height int) *Decoder {
	d := &Decoder{}
	d.SetBounds(width, height)
	return d
}

// SetBounds changes the grid size and clamps the current position to it.
func (d *Decoder) SetBounds(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	d.width, d.height = width, height
	d.x, d.y = clamp(d.x, width), clamp(d.y, height)
}

// Bounds returns the grid size.
func (d *Decoder) Bounds() (width, height int) {
	return d.width, d.height
}

// Position returns the last known pointer position.
func (d *Decoder) Position() (x, y int) {
	return d.x, d.y
}

// Cycle returns the index of the next expected packet byte.
func (d *Decoder) Cycle() int {
	return d.cycle
}

// Reset discards a partially received packet.
func (d *Decoder) Reset() {
	d.cycle = 0
}

// Feed consumes one byte. It returns an event and true when the byte
// completes a packet. A first byte without the always-one bit is dropped so
// that the decoder can resynchronize with the packet stream.
func (d *Decoder) Feed(b uint8) (Event, bool) {
	d.packet[d.cycle] = b

	switch d.cycle {
	case 0:
		if b&packetAlwaysOne != 0 {
			d.cycle = 1
		}
		return Event{}, false
	case 1:
		d.cycle = 2
		return Event{}, false
	}

	d.cycle = 0

	b0 := d.packet[0]
	dx, dy := int(d.packet[1]), int(d.packet[2])
	if b0&packetXSign != 0 {
		dx -= 0x100
	}
	if b0&packetYSign != 0 {
		dy -= 0x100
	}

	// the device reports up as positive y; the grid grows downwards
	d.x = clamp(d.x+dx, d.width)
	d.y = clamp(d.y-dy, d.height)

	return Event{
		Buttons: b0 & packetButtonMask,
		X:       d.x,
		Y:       d.y,
		Scroll:  (b0 >> 3) & 0x0f,
	}, true
}

func clamp(v, size int) int {
	switch {
	case v < 0:
		return 0
	case v > size-1:
		return size - 1
	}
	return v
}
