// Package serial provides comm.Stream over a serial port.
package serial

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
)

// Config holds serial port configuration.
// Data bits, parity and stop bits are fixed to 8N1 by device convention.
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3").
	Device string
	// Baud rate.
	Baud int
	// Timeout bounds a single read.
	Timeout time.Duration
}

// Defaults
const (
	DefaultDevice  = "/dev/ttyACM0"
	DefaultBaud    = 38400
	DefaultTimeout = comm.DefaultTimeout
)

// DefaultConfig returns the default port configuration.
func DefaultConfig() Config {
	return Config{
		Device:  DefaultDevice,
		Baud:    DefaultBaud,
		Timeout: DefaultTimeout,
	}
}

// port is the subset of serial.Port used by Port.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Port implements comm.Stream.
type Port struct {
	name    string
	port    port
	timeout time.Duration
	lock    sync.Mutex
}

var openPort = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// Open opens the serial port.
func Open(conf *Config) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: conf.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := openPort(conf.Device, mode)
	if err != nil {
		return nil, &comm.OpenError{Port: conf.Device, Err: err}
	}
	p := &Port{name: conf.Device, port: sp}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := p.SetTimeout(timeout); err != nil {
		sp.Close()
		return nil, &comm.OpenError{Port: conf.Device, Err: err}
	}
	glog.Infof("opened %s at %d baud", conf.Device, conf.Baud)
	return p, nil
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Read implements io.Reader.
// A read that receives nothing within the timeout fails with TimeoutError.
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := p.port.Read(b)
	if err != nil {
		return n, err
	}
	if n == 0 {
		p.lock.Lock()
		timeout := p.timeout
		p.lock.Unlock()
		return 0, &TimeoutError{Port: p.name, After: timeout}
	}
	return n, nil
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	var written int
	for written < len(b) {
		n, err := p.port.Write(b[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, &TimeoutError{Port: p.name}
		}
	}
	return written, nil
}

// ClearInput implements comm.Stream.
func (p *Port) ClearInput() error {
	return p.port.ResetInputBuffer()
}

// SetTimeout implements comm.Stream.
func (p *Port) SetTimeout(d time.Duration) error {
	if err := p.port.SetReadTimeout(d); err != nil {
		return err
	}
	p.lock.Lock()
	p.timeout = d
	p.lock.Unlock()
	return nil
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.port.Close()
}

// TimeoutError indicates nothing was received within the read timeout.
type TimeoutError struct {
	Port  string
	After time.Duration
}

// Error implements error.
func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return e.Port + ": i/o timeout after " + e.After.String()
	}
	return e.Port + ": i/o timeout"
}

// Timeout implements the os.IsTimeout contract.
func (e *TimeoutError) Timeout() bool { return true }
