package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates no valid reply was received within the retry budget.
	ErrTimeout = errors.New("timeout")
	// ErrCRCMismatch indicates the received checksum doesn't match the computed one.
	ErrCRCMismatch = errors.New("crc mismatch")
	// ErrInvalidAck indicates a reply byte was received but it isn't an acknowledgement.
	ErrInvalidAck = errors.New("invalid ack")
	// ErrInvalidFieldWidth indicates a read field width other than 1, 2 or 4.
	ErrInvalidFieldWidth = errors.New("invalid field width")
	// ErrInvalidFieldCount indicates a negative number of read fields.
	ErrInvalidFieldCount = errors.New("invalid field count")
	// ErrInvalidConfig indicates the transaction config is unusable.
	ErrInvalidConfig = errors.New("invalid config")
)

// TimeoutError is returned when all attempts of a transaction failed.
// Last is the failure of the final attempt.
type TimeoutError struct {
	Retries int
	Last    error
}

// Error implements error.
func (e *TimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("timeout after %d retries", e.Retries)
	}
	return fmt.Sprintf("timeout after %d retries: %v", e.Retries, e.Last)
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Unwrap returns the last attempt failure.
func (e *TimeoutError) Unwrap() error { return e.Last }

// Timeout implements the os.IsTimeout contract.
func (e *TimeoutError) Timeout() bool { return true }

// CRCError reports a checksum mismatch on a read transaction.
type CRCError struct {
	Want uint16
	Got  uint16
}

// Error implements error.
func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch: computed %04x, received %04x", e.Want, e.Got)
}

// Is matches ErrCRCMismatch.
func (e *CRCError) Is(target error) bool { return target == ErrCRCMismatch }

// AckError reports an unexpected acknowledgement byte.
type AckError struct {
	Ack byte
}

// Error implements error.
func (e *AckError) Error() string {
	return fmt.Sprintf("invalid ack 0x%02x", e.Ack)
}

// Is matches ErrInvalidAck.
func (e *AckError) Is(target error) bool { return target == ErrInvalidAck }

// FieldWidthError reports an unsupported field width.
type FieldWidthError struct {
	Width int
}

// Error implements error.
func (e *FieldWidthError) Error() string {
	return fmt.Sprintf("invalid field width %d, must be 1, 2 or 4", e.Width)
}

// Is matches ErrInvalidFieldWidth.
func (e *FieldWidthError) Is(target error) bool { return target == ErrInvalidFieldWidth }

// StreamError wraps an I/O failure of the underlying stream.
type StreamError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the stream error.
func (e *StreamError) Unwrap() error { return e.Err }

// Timeout reports whether the stream operation timed out.
func (e *StreamError) Timeout() bool { return IsTimeout(e.Err) }

// OpenError is returned when the underlying port can't be opened.
type OpenError struct {
	Port string
	Err  error
}

// Error implements error.
func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Port, e.Err)
}

// Unwrap returns the cause.
func (e *OpenError) Unwrap() error { return e.Err }

// IsTimeout reports whether err or any error it wraps implements
// Timeout() bool and returns true.
func IsTimeout(err error) bool {
	for err != nil {
		if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
