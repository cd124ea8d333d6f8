package comm

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/roboclaw.go/pkg/l0/crc"
)

type observation struct {
	kind     Kind
	command  byte
	attempts int
	err      error
}

type testObserver struct {
	attempts []int
	done     []observation
	lock     sync.Mutex
}

func (o *testObserver) AttemptStarted(kind Kind, command byte, attempt int) {
	o.lock.Lock()
	o.attempts = append(o.attempts, attempt)
	o.lock.Unlock()
}

func (o *testObserver) TransactionDone(kind Kind, command byte, attempts int, elapsed time.Duration, err error) {
	o.lock.Lock()
	o.done = append(o.done, observation{kind: kind, command: command, attempts: attempts, err: err})
	o.lock.Unlock()
}

type brokenStream struct {
	MemStream
	writeErr error
	clearErr error
}

func (s *brokenStream) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.MemStream.Write(p)
}

func (s *brokenStream) ClearInput() error {
	if s.clearErr != nil {
		return s.clearErr
	}
	return s.MemStream.ClearInput()
}

func ackAll(tx []byte) []byte { return []byte{AckByte} }

// ackSequence replies with acks in order, then nothing.
func ackSequence(acks ...byte) ResponderFunc {
	return func(tx []byte) []byte {
		if len(acks) == 0 {
			return nil
		}
		ack := acks[0]
		acks = acks[1:]
		return []byte{ack}
	}
}

// replySequence replies to each request with the next reply, then nothing.
func replySequence(replies ...[]byte) ResponderFunc {
	return func(tx []byte) []byte {
		if len(replies) == 0 {
			return nil
		}
		rx := replies[0]
		replies = replies[1:]
		return rx
	}
}

func newTestConn(t *testing.T, s Stream, mutate ...func(*Config)) *Conn {
	conf := DefaultConfig()
	conf.Timeout = 10 * time.Millisecond
	for _, fn := range mutate {
		fn(&conf)
	}
	conn, err := NewConn(s, conf)
	require.NoError(t, err)
	return conn
}

func TestNewConn(t *testing.T) {
	s := NewMemStream(nil)
	conn := newTestConn(t, s)
	require.Equal(t, 10*time.Millisecond, s.Timeout())
	require.Equal(t, DefaultAddress, conn.Address())

	_, err := NewConn(s, Config{Retries: 0, Timeout: time.Millisecond})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewConn(s, Config{Retries: 1})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConnWrite(t *testing.T) {
	s := NewMemStream(ackAll)
	conn := newTestConn(t, s)
	require.NoError(t, conn.Write(0x80, 35, 0x12345, 0x100, 7))

	frame := []byte{0x80, 35, 0x00, 0x01, 0x23, 0x45, 0x01, 0x00, 0x07}
	sum := crc.Checksum(frame...)
	require.Equal(t, [][]byte{append(frame, byte(sum>>8), byte(sum))}, s.Writes())
	require.Equal(t, 1, s.Clears())
	require.Equal(t, sum, conn.Checksum())
}

func TestConnWriteFields(t *testing.T) {
	s := NewMemStream(ackAll)
	conn := newTestConn(t, s)
	require.NoError(t, conn.WriteFields(0x80, 37, Fixed(4, 100, 0xffffff9c)...))
	frame := []byte{0x80, 37, 0, 0, 0, 100, 0xff, 0xff, 0xff, 0x9c}
	require.Equal(t, [][]byte{AppendChecksum(frame)}, s.Writes())

	err := conn.WriteFields(0x80, 0, Field{Value: 0x100, Width: 1})
	require.ErrorIs(t, err, ErrInvalidFieldWidth)
	err = conn.WriteFields(0x80, 0, Field{Value: 1, Width: 3})
	require.ErrorIs(t, err, ErrInvalidFieldWidth)
	require.Len(t, s.Writes(), 1)
}

func TestConnWriteRetryExhausted(t *testing.T) {
	s := NewMemStream(nil)
	obs := &testObserver{}
	conn := newTestConn(t, s, func(c *Config) { c.Retries = 4 })
	conn.Observer = obs

	err := conn.Write(0x80, 0, 64)
	require.ErrorIs(t, err, ErrTimeout)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	require.Equal(t, 4, te.Retries)
	require.True(t, IsTimeout(err))

	writes := s.Writes()
	require.Len(t, writes, 4)
	for _, w := range writes {
		require.Equal(t, writes[0], w, "checksum state must be reset per attempt")
	}
	require.Equal(t, 4, s.Clears())
	require.Equal(t, crc.Checksum(0x80, 0, 64), conn.Checksum())

	require.Equal(t, []int{1, 2, 3, 4}, obs.attempts)
	require.Len(t, obs.done, 1)
	require.Equal(t, KindWrite, obs.done[0].kind)
	require.Equal(t, 4, obs.done[0].attempts)
	require.ErrorIs(t, obs.done[0].err, ErrTimeout)
}

func TestConnWriteInvalidAck(t *testing.T) {
	t.Run("retried", func(t *testing.T) {
		s := NewMemStream(ackSequence(0x00, 0x12, AckByte))
		conn := newTestConn(t, s)
		require.NoError(t, conn.Write(0x80, 4, 10))
		require.Len(t, s.Writes(), 3)
	})
	t.Run("exhausted", func(t *testing.T) {
		s := NewMemStream(func([]byte) []byte { return []byte{0x01} })
		conn := newTestConn(t, s)
		err := conn.Write(0x80, 4, 10)
		require.ErrorIs(t, err, ErrTimeout)
		require.ErrorIs(t, err, ErrInvalidAck)
		var ae *AckError
		require.True(t, errors.As(err, &ae))
		require.Equal(t, byte(0x01), ae.Ack)
		require.Len(t, s.Writes(), DefaultRetries)
	})
}

func TestConnWriteIOFailure(t *testing.T) {
	portGone := errors.New("port gone")
	s := &brokenStream{writeErr: portGone}
	conn := newTestConn(t, s)
	err := conn.Write(0x80, 0, 1)
	require.ErrorIs(t, err, portGone)
	require.False(t, errors.Is(err, ErrTimeout))
	var se *StreamError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "write", se.Op)
	require.Equal(t, 1, s.Clears())

	s = &brokenStream{clearErr: portGone}
	conn = newTestConn(t, s)
	require.ErrorIs(t, conn.Write(0x80, 0, 1), portGone)
	require.Empty(t, s.Writes())
}

func TestConnWriteEOF(t *testing.T) {
	s := NewMemStream(nil)
	conn := newTestConn(t, s)
	require.NoError(t, s.Close())
	err := conn.Write(0x80, 0, 1)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrTimeout))
}

func TestConnRead(t *testing.T) {
	testCases := []struct {
		name   string
		widths []int
		fields []byte
		expect []uint32
	}{
		{"no fields", nil, nil, []uint32{}},
		{"bytes", []int{1, 1}, []byte{0x12, 0x80}, []uint32{0x12, 0x80}},
		{"words", []int{2, 2}, []byte{0x01, 0x02, 0xff, 0xff}, []uint32{0x0102, 0xffff}},
		{"encoder", []int{4, 1}, []byte{0xff, 0xff, 0xff, 0xfe, 0x82}, []uint32{0xfffffffe, 0x82}},
		{"mixed", []int{4, 2, 1}, []byte{0, 0, 1, 0, 0, 9, 3}, []uint32{256, 9, 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemStream(replySequence(Reply(0x80, 16, tc.fields...)))
			conn := newTestConn(t, s)
			values, err := conn.ReadFields(0x80, 16, tc.widths...)
			require.NoError(t, err)
			require.Equal(t, tc.expect, values)
			require.Equal(t, [][]byte{{0x80, 16}}, s.Writes())
			require.Zero(t, conn.Checksum(), "trailer is folded into the accumulator")
		})
	}
}

func TestConnReadUniformWidth(t *testing.T) {
	s := NewMemStream(replySequence(Reply(0x81, 49, 0x00, 0x10, 0x00, 0x20)))
	conn := newTestConn(t, s)
	values, err := conn.Read(0x81, 49, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []uint32{0x10, 0x20}, values)
}

func TestConnReadInvalidWidth(t *testing.T) {
	s := NewMemStream(nil)
	obs := &testObserver{}
	conn := newTestConn(t, s)
	conn.Observer = obs
	for _, w := range []int{0, 3, 5, 8} {
		for _, count := range []int{1, 0} {
			values, err := conn.Read(0x80, 16, count, w)
			require.Nil(t, values)
			require.ErrorIs(t, err, ErrInvalidFieldWidth)
			var fe *FieldWidthError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, w, fe.Width)
		}
	}
	require.NotPanics(t, func() {
		values, err := conn.Read(0x80, 16, -1, 4)
		require.Nil(t, values)
		require.ErrorIs(t, err, ErrInvalidFieldCount)
	})
	require.Empty(t, s.Writes())
	require.Zero(t, s.Clears())
	require.Empty(t, obs.attempts)
}

func corrupt(b []byte) []byte {
	b = append([]byte(nil), b...)
	b[len(b)-1] ^= 0x5a
	return b
}

func TestConnReadCRCMismatch(t *testing.T) {
	good := Reply(0x80, 24, 0x00, 0x78)
	bad := corrupt(good)

	t.Run("fail fast", func(t *testing.T) {
		s := NewMemStream(replySequence(bad, good))
		conn := newTestConn(t, s)
		values, err := conn.Read(0x80, 24, 1, 2)
		require.Nil(t, values)
		require.ErrorIs(t, err, ErrCRCMismatch)
		require.False(t, errors.Is(err, ErrTimeout))
		var ce *CRCError
		require.True(t, errors.As(err, &ce))
		require.Equal(t, uint16(good[2])<<8|uint16(good[3]), ce.Want)
		require.Equal(t, uint16(bad[2])<<8|uint16(bad[3]), ce.Got)
		require.Len(t, s.Writes(), 1)
	})

	t.Run("retried", func(t *testing.T) {
		s := NewMemStream(replySequence(bad, good))
		conn := newTestConn(t, s, func(c *Config) { c.RetryOnCRCMismatch = true })
		values, err := conn.Read(0x80, 24, 1, 2)
		require.NoError(t, err)
		require.Equal(t, []uint32{0x78}, values)
		require.Len(t, s.Writes(), 2)
	})

	t.Run("retry exhausted", func(t *testing.T) {
		s := NewMemStream(func([]byte) []byte { return bad })
		conn := newTestConn(t, s, func(c *Config) { c.RetryOnCRCMismatch = true })
		values, err := conn.Read(0x80, 24, 1, 2)
		require.Nil(t, values)
		require.ErrorIs(t, err, ErrTimeout)
		require.ErrorIs(t, err, ErrCRCMismatch)
		require.Len(t, s.Writes(), DefaultRetries)
	})
}

func TestConnReadTimeout(t *testing.T) {
	full := Reply(0x80, 16, 0, 0, 0, 5, 0)
	testCases := []struct {
		name  string
		reply []byte
	}{
		{"silent", nil},
		{"partial field", full[:2]},
		{"missing trailer", full[:5]},
		{"partial trailer", full[:6]},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemStream(func([]byte) []byte { return tc.reply })
			conn := newTestConn(t, s, func(c *Config) { c.Retries = 2 })
			values, err := conn.ReadFields(0x80, 16, 4, 1)
			require.Nil(t, values)
			require.ErrorIs(t, err, ErrTimeout)
			require.Len(t, s.Writes(), 2)
			require.Equal(t, 2, s.Clears())
		})
	}
}

func TestConnReadRecoversAfterTimeout(t *testing.T) {
	s := NewMemStream(replySequence([]byte{0x00}, Reply(0x80, 18, 0, 0, 0, 42, 0)))
	conn := newTestConn(t, s)
	values, err := conn.ReadFields(0x80, 18, 4, 1)
	require.NoError(t, err)
	require.Equal(t, []uint32{42, 0}, values)
	require.Len(t, s.Writes(), 2)
}

func TestConnReadStaleInputDiscarded(t *testing.T) {
	s := NewMemStream(replySequence(Reply(0x80, 24, 0x00, 0x99)))
	s.Inject(0xde, 0xad, 0xbe, 0xef)
	conn := newTestConn(t, s)
	values, err := conn.Read(0x80, 24, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []uint32{0x99}, values)
}

func TestConnClose(t *testing.T) {
	s := NewMemStream(nil)
	conn := newTestConn(t, s)
	require.NoError(t, conn.Close())
	_, err := s.Write([]byte{1})
	assert.Equal(t, io.ErrClosedPipe, err)
}

func TestIsTimeout(t *testing.T) {
	require.True(t, IsTimeout(memTimeoutError{}))
	require.True(t, IsTimeout(&StreamError{Op: "read", Err: memTimeoutError{}}))
	require.True(t, IsTimeout(&TimeoutError{Retries: 1}))
	require.False(t, IsTimeout(&StreamError{Op: "read", Err: io.EOF}))
	require.False(t, IsTimeout(nil))
}
