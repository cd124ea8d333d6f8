// Package encoder reconstructs cumulative quadrature encoder positions
// from the 32-bit counts and status flags reported by the controller.
package encoder

// Status is the flag byte accompanying an encoder count.
type Status byte

// Status flags.
const (
	// StatusUnderflow indicates the hardware counter wrapped below zero.
	StatusUnderflow Status = 0x80
	// StatusBackward indicates the motor turns backward.
	StatusBackward Status = 0x40
	// StatusOverflow indicates the hardware counter wrapped above 0xffffffff.
	StatusOverflow Status = 0x20
)

// Range is the span of the 32-bit hardware counter.
const Range int64 = 1 << 32

// Underflow tests the underflow flag.
func (s Status) Underflow() bool { return s&StatusUnderflow != 0 }

// Overflow tests the overflow flag.
func (s Status) Overflow() bool { return s&StatusOverflow != 0 }

// Backward tests the direction flag.
func (s Status) Backward() bool { return s&StatusBackward != 0 }

// Sample is a raw encoder reading.
type Sample struct {
	Count  uint32
	Status Status
}

// Reconstruct folds a sample into the previous cumulative position.
// The count is reinterpreted as a signed 32-bit value, then one Range
// is added on overflow and subtracted on underflow.
func Reconstruct(previous int64, count uint32, status Status) int64 {
	pos := previous + int64(int32(count))
	if status.Overflow() {
		pos += Range
	}
	if status.Underflow() {
		pos -= Range
	}
	return pos
}

// Counter is the running position of one motor.
// The zero value starts at position 0.
type Counter struct {
	pos     int64
	samples uint64
}

// NewCounter creates a Counter starting from pos.
func NewCounter(pos int64) *Counter {
	return &Counter{pos: pos}
}

// Update folds the sample into the position and returns the new position.
func (c *Counter) Update(s Sample) int64 {
	c.pos = Reconstruct(c.pos, s.Count, s.Status)
	c.samples++
	return c.pos
}

// Position returns the current position.
func (c *Counter) Position() int64 {
	return c.pos
}

// Samples returns how many samples have been folded in.
func (c *Counter) Samples() uint64 {
	return c.samples
}

// Reset sets the position.
func (c *Counter) Reset(pos int64) {
	c.pos = pos
}
