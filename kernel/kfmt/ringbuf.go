package kfmt

import "io"

// earlyBufSize defines the capacity of the buffer that captures Printf
// output emitted before an output sink is registered. It must be a power
// of 2.
const earlyBufSize = 2048

// ringBuffer is a fixed-capacity byte ring. Once full, the oldest data is
// overwritten so the buffer always retains the most recent output.
type ringBuffer struct {
	data   [earlyBufSize]byte
	rIndex int
	wIndex int
}

// Write appends the contents of p to the ring, evicting the oldest bytes
// if the ring runs out of space. It always returns len(p), nil.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (earlyBufSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (earlyBufSize - 1)
		}
	}

	return len(p), nil
}

// Read copies up to len(p) buffered bytes into p and returns the number of
// bytes copied. Reading an empty ring yields io.EOF.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	switch {
	case rb.rIndex < rb.wIndex:
		n := copy(p, rb.data[rb.rIndex:rb.wIndex])
		rb.rIndex += n
		return n, nil
	case rb.rIndex > rb.wIndex:
		// The unread data wraps around the end of the ring; serve the
		// tail chunk first and let the next Read pick up the rest.
		n := copy(p, rb.data[rb.rIndex:])
		rb.rIndex = (rb.rIndex + n) & (earlyBufSize - 1)
		return n, nil
	default:
		return 0, io.EOF
	}
}
