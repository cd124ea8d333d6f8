package comm

import (
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/roboclaw.go/pkg/l0/crc"
)

// Defaults
const (
	DefaultAddress byte = 0x80
	DefaultRetries      = 3
	DefaultTimeout      = 100 * time.Millisecond
)

// Config defines transaction parameters of a Conn.
type Config struct {
	// Address is the default device address.
	Address byte
	// Retries is the number of attempts per transaction, at least 1.
	Retries int
	// Timeout bounds each blocking read on the stream.
	Timeout time.Duration
	// RetryOnCRCMismatch retries a read whose checksum doesn't match
	// instead of failing immediately.
	RetryOnCRCMismatch bool
}

// DefaultConfig returns the default transaction parameters.
func DefaultConfig() Config {
	return Config{
		Address: DefaultAddress,
		Retries: DefaultRetries,
		Timeout: DefaultTimeout,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Retries < 1 {
		return fmt.Errorf("%w: retries must be at least 1, got %d", ErrInvalidConfig, c.Retries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// Conn runs write and read transactions over a Stream.
// It exclusively owns the stream and isn't safe for concurrent use.
type Conn struct {
	Observer Observer

	stream Stream
	config Config
	crc    crc.CRC16
	txBuf  []byte
	rxBuf  [4]byte
}

// NewConn creates a Conn and applies the configured timeout to the stream.
func NewConn(s Stream, conf Config) (*Conn, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := s.SetTimeout(conf.Timeout); err != nil {
		return nil, &StreamError{Op: "set timeout", Err: err}
	}
	return &Conn{
		stream: s,
		config: conf,
		txBuf:  make([]byte, 0, 32),
	}, nil
}

// Config returns the config.
func (c *Conn) Config() Config {
	return c.config
}

// Address returns the default device address.
func (c *Conn) Address() byte {
	return c.config.Address
}

// Checksum returns the accumulator value left by the last attempt.
func (c *Conn) Checksum() uint16 {
	return c.crc.Sum16()
}

// Close closes the stream if it's an io.Closer.
func (c *Conn) Close() error {
	if closer, ok := c.stream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Write sends command with values to the device at address and waits
// for the acknowledgement. Each value is encoded with ValueWidth.
func (c *Conn) Write(address, command byte, values ...uint32) error {
	fields := make([]Field, len(values))
	for i, v := range values {
		fields[i].Value = v
	}
	return c.WriteFields(address, command, fields...)
}

// WriteFields is Write with explicit field widths.
func (c *Conn) WriteFields(address, command byte, fields ...Field) error {
	for _, f := range fields {
		if !f.valid() {
			return &FieldWidthError{Width: f.Width}
		}
	}
	return c.run(KindWrite, command, func() error {
		return c.writeOnce(address, command, fields)
	})
}

// Read sends command to the device at address and reads count fields
// of the same width.
func (c *Conn) Read(address, command byte, count, width int) ([]uint32, error) {
	if !ValidWidth(width) {
		return nil, &FieldWidthError{Width: width}
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFieldCount, count)
	}
	widths := make([]int, count)
	for i := range widths {
		widths[i] = width
	}
	return c.ReadFields(address, command, widths...)
}

// ReadFields sends command to the device at address and reads one field
// per width. Widths must be 1, 2 or 4.
func (c *Conn) ReadFields(address, command byte, widths ...int) ([]uint32, error) {
	for _, w := range widths {
		if !ValidWidth(w) {
			return nil, &FieldWidthError{Width: w}
		}
	}
	var values []uint32
	err := c.run(KindRead, command, func() (err error) {
		values, err = c.readOnce(address, command, widths)
		return
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (c *Conn) run(kind Kind, command byte, attemptFn func() error) error {
	start := time.Now()
	var err error
	attempt := 1
	for ; attempt <= c.config.Retries; attempt++ {
		if o := c.Observer; o != nil {
			o.AttemptStarted(kind, command, attempt)
		}
		if err = attemptFn(); err == nil || !c.retryable(err) {
			break
		}
		glog.V(2).Infof("%s cmd %d attempt %d/%d failed: %v", kind, command, attempt, c.config.Retries, err)
	}
	if attempt > c.config.Retries {
		attempt = c.config.Retries
		err = &TimeoutError{Retries: c.config.Retries, Last: err}
	}
	if o := c.Observer; o != nil {
		o.TransactionDone(kind, command, attempt, time.Since(start), err)
	}
	return err
}

func (c *Conn) retryable(err error) bool {
	switch err.(type) {
	case *AckError:
		return true
	case *CRCError:
		return c.config.RetryOnCRCMismatch
	}
	return IsTimeout(err)
}

func (c *Conn) reset() error {
	if err := c.stream.ClearInput(); err != nil {
		return &StreamError{Op: "clear input", Err: err}
	}
	c.crc.Clear()
	c.txBuf = c.txBuf[:0]
	return nil
}

func (c *Conn) send(b []byte) error {
	if glog.V(4) {
		glog.Infof("TX % x", b)
	}
	if _, err := c.stream.Write(b); err != nil {
		return &StreamError{Op: "write", Err: err}
	}
	return nil
}

func (c *Conn) recv(b []byte) error {
	if _, err := io.ReadFull(c.stream, b); err != nil {
		return &StreamError{Op: "read", Err: err}
	}
	if glog.V(4) {
		glog.Infof("RX % x", b)
	}
	return nil
}

func (c *Conn) writeOnce(address, command byte, fields []Field) error {
	if err := c.reset(); err != nil {
		return err
	}
	c.txBuf = append(c.txBuf, address, command)
	for _, f := range fields {
		c.txBuf = AppendField(c.txBuf, f)
	}
	c.crc.Write(c.txBuf)
	sum := c.crc.Sum16()
	c.txBuf = append(c.txBuf, byte(sum>>8), byte(sum))
	if err := c.send(c.txBuf); err != nil {
		return err
	}
	ack := c.rxBuf[:1]
	if err := c.recv(ack); err != nil {
		return err
	}
	if ack[0] != AckByte {
		return &AckError{Ack: ack[0]}
	}
	return nil
}

func (c *Conn) readOnce(address, command byte, widths []int) ([]uint32, error) {
	if err := c.reset(); err != nil {
		return nil, err
	}
	c.txBuf = append(c.txBuf, address, command)
	c.crc.Write(c.txBuf)
	if err := c.send(c.txBuf); err != nil {
		return nil, err
	}
	values := make([]uint32, len(widths))
	for i, w := range widths {
		field := c.rxBuf[:w]
		if err := c.recv(field); err != nil {
			return nil, err
		}
		c.crc.Write(field)
		values[i] = DecodeValue(field)
	}
	want := c.crc.Sum16()
	trailer := c.rxBuf[:TrailerSize]
	if err := c.recv(trailer); err != nil {
		return nil, err
	}
	c.crc.Write(trailer)
	if got := uint16(trailer[0])<<8 | uint16(trailer[1]); got != want {
		return nil, &CRCError{Want: want, Got: got}
	}
	return values, nil
}
