// Package crc implements the CRC16 checksum used by the L0 serial protocol.
package crc

// Polynomial is the CRC-16/CCITT generator (non-reflected, init 0, no final XOR).
const Polynomial uint16 = 0x1021

// CRC16 accumulates a checksum byte by byte.
// The zero value is a cleared accumulator.
type CRC16 struct {
	crc uint16
}

// New creates a cleared accumulator.
func New() *CRC16 {
	return &CRC16{}
}

// Update mixes one byte into the register.
func (c *CRC16) Update(b byte) {
	c.crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if c.crc&0x8000 != 0 {
			c.crc = (c.crc << 1) ^ Polynomial
		} else {
			c.crc <<= 1
		}
	}
}

// Write implements io.Writer, it never fails.
func (c *CRC16) Write(p []byte) (int, error) {
	for _, b := range p {
		c.Update(b)
	}
	return len(p), nil
}

// Clear resets the register to 0.
func (c *CRC16) Clear() {
	c.crc = 0
}

// Sum16 returns the current value without mutating it.
func (c *CRC16) Sum16() uint16 {
	return c.crc
}

// Checksum computes the checksum of data from a cleared register.
func Checksum(data ...byte) uint16 {
	var c CRC16
	c.Write(data)
	return c.Sum16()
}
