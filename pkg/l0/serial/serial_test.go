package serial

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
)

type fakePort struct {
	input   []byte
	written []byte
	// maxWrite limits bytes accepted per Write, 0 means unlimited.
	maxWrite int
	timeout  time.Duration
	resets   int
	closed   bool
	readErr  error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.input)
	p.input = p.input[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.maxWrite > 0 && len(b) > p.maxWrite {
		b = b[:p.maxWrite]
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.input = nil
	p.resets++
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func withFakePort(t *testing.T, fp *fakePort, openErr error) *serial.Mode {
	var mode serial.Mode
	orig := openPort
	openPort = func(name string, m *serial.Mode) (port, error) {
		mode = *m
		if openErr != nil {
			return nil, openErr
		}
		return fp, nil
	}
	t.Cleanup(func() { openPort = orig })
	return &mode
}

func TestOpen(t *testing.T) {
	fp := &fakePort{}
	mode := withFakePort(t, fp, nil)
	p, err := Open(&Config{Device: "/dev/ttyTEST", Baud: 115200, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyTEST", p.Name())
	require.Equal(t, 115200, mode.BaudRate)
	require.Equal(t, 8, mode.DataBits)
	require.Equal(t, serial.NoParity, mode.Parity)
	require.Equal(t, serial.OneStopBit, mode.StopBits)
	require.Equal(t, 20*time.Millisecond, fp.timeout)
	require.NoError(t, p.Close())
	require.True(t, fp.closed)
}

func TestOpenFailure(t *testing.T) {
	noDevice := errors.New("no such device")
	withFakePort(t, nil, noDevice)
	conf := DefaultConfig()
	p, err := Open(&conf)
	require.Nil(t, p)
	require.ErrorIs(t, err, noDevice)
	var oe *comm.OpenError
	require.True(t, errors.As(err, &oe))
	require.Equal(t, DefaultDevice, oe.Port)
}

func TestPortReadTimeout(t *testing.T) {
	fp := &fakePort{input: []byte{1, 2, 3}}
	withFakePort(t, fp, nil)
	p, err := Open(&Config{Device: "x", Baud: 38400, Timeout: time.Millisecond})
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(p, buf)
	require.Error(t, err)
	require.True(t, comm.IsTimeout(err))

	fp.input = []byte{9}
	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	fp.readErr = io.EOF
	_, err = p.Read(buf)
	require.Equal(t, io.EOF, err)
	require.False(t, comm.IsTimeout(err))
}

func TestPortWriteAll(t *testing.T) {
	fp := &fakePort{maxWrite: 2}
	withFakePort(t, fp, nil)
	p, err := Open(&Config{Device: "x", Baud: 38400})
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, fp.timeout)
	n, err := p.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, fp.written)
}

func TestPortWithConn(t *testing.T) {
	fp := &fakePort{}
	withFakePort(t, fp, nil)
	p, err := Open(&Config{Device: "x", Baud: 38400, Timeout: time.Millisecond})
	require.NoError(t, err)
	fp.input = []byte{0xaa}

	conn, err := comm.NewConn(p, comm.Config{Retries: 2, Timeout: 5 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, 5*time.Millisecond, fp.timeout)

	err = conn.Write(0x80, 0, 10)
	require.ErrorIs(t, err, comm.ErrTimeout)
	require.Equal(t, 2, fp.resets)
	require.Len(t, fp.written, 10)
}

func TestList(t *testing.T) {
	orig := listPorts
	defer func() { listPorts = orig }()
	listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "03eb", PID: "2404", SerialNumber: "A1", Product: "USB Roboclaw"},
		}, nil
	}
	ports, err := List()
	require.NoError(t, err)
	require.Len(t, ports, 2)
	require.Equal(t, "/dev/ttyS0", ports[0].String())
	require.Equal(t, "/dev/ttyACM0 [03eb:2404] USB Roboclaw #A1", ports[1].String())
}
