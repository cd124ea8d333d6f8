package comm

import (
	"io"

	"github.com/robotalks/roboclaw.go/pkg/l0/crc"
)

// AckByte is the acknowledgement sent by the device for a valid write.
const AckByte byte = 0xff

// TrailerSize is the size of crc16 trailer.
const TrailerSize = 2

// ValueWidth selects the encoded width of a write payload value from its
// magnitude: 1 byte up to 0xff, 2 bytes up to 0xffff, otherwise 4 bytes.
//
// The device expects a fixed width per field which depends on the command,
// and this selection can't know it: a 16-bit field with a value below 256
// is sent as a single byte. Callers must supply values whose magnitude
// matches the field width of the command.
func ValueWidth(v uint32) int {
	switch {
	case v <= 0xff:
		return 1
	case v <= 0xffff:
		return 2
	default:
		return 4
	}
}

// AppendValue appends the big-endian encoding of v using ValueWidth.
func AppendValue(b []byte, v uint32) []byte {
	switch ValueWidth(v) {
	case 1:
		return append(b, byte(v))
	case 2:
		return append(b, byte(v>>8), byte(v))
	default:
		return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// Field is a write payload value with an explicit width.
// Width 0 selects the width with ValueWidth.
type Field struct {
	Value uint32
	Width int
}

// Fixed creates fields of the same width.
func Fixed(width int, values ...uint32) []Field {
	fields := make([]Field, len(values))
	for i, v := range values {
		fields[i] = Field{Value: v, Width: width}
	}
	return fields
}

// AppendField appends the big-endian encoding of f.
func AppendField(b []byte, f Field) []byte {
	switch f.Width {
	case 0:
		return AppendValue(b, f.Value)
	case 1:
		return append(b, byte(f.Value))
	case 2:
		return append(b, byte(f.Value>>8), byte(f.Value))
	default:
		return append(b, byte(f.Value>>24), byte(f.Value>>16), byte(f.Value>>8), byte(f.Value))
	}
}

func (f Field) valid() bool {
	return f.Width == 0 || ValidWidth(f.Width) && ValueWidth(f.Value) <= f.Width
}

// ValidWidth checks if width is a supported read field width.
func ValidWidth(width int) bool {
	return width == 1 || width == 2 || width == 4
}

// DecodeValue decodes a big-endian field of 1, 2 or 4 bytes,
// zero-extended to 32 bits.
func DecodeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// Frame is a write request as it appears on the wire.
type Frame struct {
	Address byte
	Command byte
	Values  []uint32
}

// Bytes returns encoded bytes including the crc16 trailer.
func (f *Frame) Bytes() []byte {
	b := make([]byte, 0, 2+len(f.Values)*4+TrailerSize)
	b = append(b, f.Address, f.Command)
	for _, v := range f.Values {
		b = AppendValue(b, v)
	}
	return AppendChecksum(b)
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// AppendChecksum appends the big-endian crc16 of b to b.
func AppendChecksum(b []byte) []byte {
	sum := crc.Checksum(b...)
	return append(b, byte(sum>>8), byte(sum))
}

// Reply builds the bytes a device sends in response to a read request:
// the fields followed by the crc16 over address, command and fields.
func Reply(address, command byte, fields ...byte) []byte {
	var c crc.CRC16
	c.Update(address)
	c.Update(command)
	c.Write(fields)
	sum := c.Sum16()
	b := make([]byte, 0, len(fields)+TrailerSize)
	b = append(b, fields...)
	return append(b, byte(sum>>8), byte(sum))
}
