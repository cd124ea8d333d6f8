package roboclaw

import (
	"sync"

	"github.com/robotalks/roboclaw.go/pkg/encoder"
)

// Positions are cumulative encoder positions.
type Positions struct {
	M1 int64 `json:"m1"`
	M2 int64 `json:"m2"`
}

// Get returns the position of a motor.
func (p Positions) Get(m Motor) int64 {
	if m == M2 {
		return p.M2
	}
	return p.M1
}

// Tracker keeps cumulative encoder positions of both motors.
type Tracker struct {
	counters [2]encoder.Counter
	lock     sync.RWMutex
}

// NewTracker creates a Tracker at zero.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) counter(m Motor) *encoder.Counter {
	if m == M2 {
		return &t.counters[1]
	}
	return &t.counters[0]
}

// Fold applies a sample to a motor and returns its new position.
func (t *Tracker) Fold(m Motor, s encoder.Sample) int64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.counter(m).Update(s)
}

// Position returns the position of a motor.
func (t *Tracker) Position(m Motor) int64 {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.counter(m).Position()
}

// Positions returns positions of both motors.
func (t *Tracker) Positions() Positions {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return Positions{M1: t.counters[0].Position(), M2: t.counters[1].Position()}
}

// Reset zeroes both positions.
func (t *Tracker) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()
	for i := range t.counters {
		t.counters[i].Reset(0)
	}
}
