package kfmt

import "io"

// ringBufferSize is the capacity of the early output buffer. It must be a
// power of 2. 4K covers the boot log up to the point where the UART sink is
// attached.
const ringBufferSize = 4096

// ringBuffer is a fixed size byte FIFO that overwrites its oldest contents
// when full. It captures Printf output until an output sink is attached.
type ringBuffer struct {
	buffer [ringBufferSize]byte

	// head is the index of the oldest byte; size is the number of buffered
	// bytes.
	head, size int

	// dropped counts the bytes that were overwritten before being read.
	dropped uint64
}

// Write appends p to the buffer, discarding the oldest bytes if needed.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		tail := (rb.head + rb.size) & (ringBufferSize - 1)
		rb.buffer[tail] = b

		if rb.size == ringBufferSize {
			rb.head = (rb.head + 1) & (ringBufferSize - 1)
			rb.dropped++
			continue
		}
		rb.size++
	}

	return len(p), nil
}

// Read drains up to len(p) bytes. It returns io.EOF once the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.size == 0 {
		return 0, io.EOF
	}

	var n int
	for n < len(p) && rb.size > 0 {
		p[n] = rb.buffer[rb.head]
		rb.head = (rb.head + 1) & (ringBufferSize - 1)
		rb.size--
		n++
	}

	return n, nil
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return rb.size
}

// EarlyDropped returns the number of bytes of early output that were lost
// because the ring buffer overflowed before a sink was attached.
func EarlyDropped() uint64 {
	return earlyBuf.dropped
}
