package comm

import (
	"io"
	"sync"
	"time"
)

// Stream is the byte stream a Conn drives, typically a serial port.
//
// Read must not block longer than the configured timeout: when no byte
// arrives in time it returns an error with Timeout() returning true.
// Write writes all bytes or returns an error.
type Stream interface {
	io.ReadWriter
	// ClearInput discards received but unread bytes.
	ClearInput() error
	// SetTimeout sets the read timeout.
	SetTimeout(time.Duration) error
}

// ResponderFunc produces the bytes a peer sends back after receiving
// one Write from the host. nil means no reply.
type ResponderFunc func(tx []byte) (rx []byte)

// MemStream is an in-memory Stream. Written bytes are recorded and passed
// to Responder, whose output becomes readable. Reads on an empty input
// fail with a timeout.
type MemStream struct {
	Responder ResponderFunc

	timeout time.Duration
	input   []byte
	writes  [][]byte
	clears  int
	closed  bool
	lock    sync.Mutex
}

type memTimeoutError struct{}

func (memTimeoutError) Error() string   { return "i/o timeout" }
func (memTimeoutError) Timeout() bool   { return true }
func (memTimeoutError) Temporary() bool { return true }

// NewMemStream creates a MemStream with a responder.
func NewMemStream(responder ResponderFunc) *MemStream {
	return &MemStream{Responder: responder}
}

// Inject appends bytes to the readable input.
func (s *MemStream) Inject(p ...byte) {
	s.lock.Lock()
	s.input = append(s.input, p...)
	s.lock.Unlock()
}

// Read implements io.Reader.
func (s *MemStream) Read(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.input) == 0 {
		return 0, memTimeoutError{}
	}
	n := copy(p, s.input)
	s.input = s.input[n:]
	return n, nil
}

// Write implements io.Writer.
func (s *MemStream) Write(p []byte) (int, error) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return 0, io.ErrClosedPipe
	}
	tx := append([]byte(nil), p...)
	s.writes = append(s.writes, tx)
	responder := s.Responder
	s.lock.Unlock()
	if responder != nil {
		if rx := responder(tx); len(rx) > 0 {
			s.Inject(rx...)
		}
	}
	return len(p), nil
}

// ClearInput implements Stream.
func (s *MemStream) ClearInput() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.input = nil
	s.clears++
	return nil
}

// SetTimeout implements Stream.
func (s *MemStream) SetTimeout(d time.Duration) error {
	s.lock.Lock()
	s.timeout = d
	s.lock.Unlock()
	return nil
}

// Close implements io.Closer.
func (s *MemStream) Close() error {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	return nil
}

// Timeout returns the timeout last set.
func (s *MemStream) Timeout() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.timeout
}

// Writes returns all writes so far.
func (s *MemStream) Writes() [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([][]byte(nil), s.writes...)
}

// Clears returns how many times the input was cleared.
func (s *MemStream) Clears() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.clears
}
