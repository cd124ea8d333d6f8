package roboclaw

import (
	"math"
	"sync"
	"time"

	"github.com/robotalks/roboclaw.go/pkg/encoder"
	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
	"github.com/robotalks/roboclaw.go/pkg/l0/crc"
)

// Simulator defaults.
const (
	SimMainBattery  = 120
	SimLogicBattery = 50
	SimTemperature  = 250
	SimQPPS         = 44000
)

type simMotor struct {
	speed   int32
	pending float64
	pid     PID
}

// Simulator emulates a motor controller behind a comm.MemStream.
// Encoders report the counts accumulated since the previous read.
type Simulator struct {
	// Address is the address the simulator answers to.
	Address byte
	// Now provides the clock, time.Now if nil.
	Now func() time.Time

	MainBattery  uint16
	LogicBattery uint16
	Temperature  uint16
	StatusBits   uint32

	motors  [2]simMotor
	last    time.Time
	ignored int
	lock    sync.Mutex
}

// NewSimulator creates a Simulator at address.
func NewSimulator(address byte) *Simulator {
	s := &Simulator{
		Address:      address,
		MainBattery:  SimMainBattery,
		LogicBattery: SimLogicBattery,
		Temperature:  SimTemperature,
	}
	for i := range s.motors {
		s.motors[i].pid = PID{P: 1, I: 0.5, D: 0.25, QPPS: SimQPPS}
	}
	return s
}

// Stream creates a MemStream backed by the simulator.
func (s *Simulator) Stream() *comm.MemStream {
	return comm.NewMemStream(s.Respond)
}

// Speed returns the current speed of a motor.
func (s *Simulator) Speed(m Motor) int32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.motor(m).speed
}

// PID returns the velocity PID of a motor.
func (s *Simulator) PID(m Motor) PID {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.motor(m).pid
}

// Ignored returns how many requests were dropped.
func (s *Simulator) Ignored() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ignored
}

// Advance moves the encoders by the current speeds over d.
func (s *Simulator) Advance(d time.Duration) {
	s.lock.Lock()
	s.advance(d)
	s.lock.Unlock()
}

func (s *Simulator) advance(d time.Duration) {
	for i := range s.motors {
		s.motors[i].pending += float64(s.motors[i].speed) * d.Seconds()
	}
}

func (s *Simulator) motor(m Motor) *simMotor {
	if m == M2 {
		return &s.motors[1]
	}
	return &s.motors[0]
}

func (s *Simulator) tick() {
	if s.Now == nil {
		return
	}
	now := s.Now()
	if !s.last.IsZero() {
		s.advance(now.Sub(s.last))
	}
	s.last = now
}

// Respond implements comm.ResponderFunc. Requests to other addresses,
// with a bad checksum or an unexpected payload layout are dropped.
func (s *Simulator) Respond(tx []byte) []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tick()
	if len(tx) < 2 || tx[0] != s.Address {
		s.ignored++
		return nil
	}
	if len(tx) == 2 {
		return s.read(Command(tx[1]))
	}
	if len(tx) < 2+comm.TrailerSize || crc.Checksum(tx...) != 0 {
		s.ignored++
		return nil
	}
	if !s.write(Command(tx[1]), tx[2:len(tx)-comm.TrailerSize]) {
		s.ignored++
		return nil
	}
	return []byte{comm.AckByte}
}

func (s *Simulator) dutySpeed(m Motor, duty uint32, sign int32) {
	mt := s.motor(m)
	mt.speed = sign * int32(int64(duty)*int64(mt.pid.QPPS)/MaxDuty)
}

// fieldWidths are the payload layouts accepted by the simulator.
var fieldWidths = map[Command][]int{
	CmdM1Forward:        {1},
	CmdM1Backward:       {1},
	CmdM2Forward:        {1},
	CmdM2Backward:       {1},
	CmdM1Drive7Bit:      {1},
	CmdM2Drive7Bit:      {1},
	CmdMixedForward:     {1},
	CmdMixedBackward:    {1},
	CmdMixedRight:       {1},
	CmdMixedLeft:        {1},
	CmdResetEncoders:    {},
	CmdM1Speed:          {4},
	CmdM2Speed:          {4},
	CmdMixedSpeed:       {4, 4},
	CmdSetM1VelocityPID: {4, 4, 4, 4},
	CmdSetM2VelocityPID: {4, 4, 4, 4},
}

func splitFields(payload []byte, widths []int) ([]uint32, bool) {
	values := make([]uint32, len(widths))
	for i, w := range widths {
		if len(payload) < w {
			return nil, false
		}
		values[i] = comm.DecodeValue(payload[:w])
		payload = payload[w:]
	}
	return values, len(payload) == 0
}

func (s *Simulator) write(cmd Command, payload []byte) bool {
	widths, ok := fieldWidths[cmd]
	if !ok {
		return false
	}
	values, ok := splitFields(payload, widths)
	if !ok {
		return false
	}
	var v uint32
	if len(values) > 0 {
		v = values[0]
	}
	switch cmd {
	case CmdResetEncoders:
		for i := range s.motors {
			s.motors[i].pending = 0
		}
	case CmdM1Forward:
		s.dutySpeed(M1, v, 1)
	case CmdM1Backward:
		s.dutySpeed(M1, v, -1)
	case CmdM2Forward:
		s.dutySpeed(M2, v, 1)
	case CmdM2Backward:
		s.dutySpeed(M2, v, -1)
	case CmdM1Drive7Bit:
		s.drive7(M1, v)
	case CmdM2Drive7Bit:
		s.drive7(M2, v)
	case CmdMixedForward:
		s.dutySpeed(M1, v, 1)
		s.dutySpeed(M2, v, 1)
	case CmdMixedBackward:
		s.dutySpeed(M1, v, -1)
		s.dutySpeed(M2, v, -1)
	case CmdMixedRight:
		s.dutySpeed(M1, v, 1)
		s.dutySpeed(M2, v, -1)
	case CmdMixedLeft:
		s.dutySpeed(M1, v, -1)
		s.dutySpeed(M2, v, 1)
	case CmdM1Speed:
		s.motors[0].speed = int32(v)
	case CmdM2Speed:
		s.motors[1].speed = int32(v)
	case CmdMixedSpeed:
		s.motors[0].speed = int32(values[0])
		s.motors[1].speed = int32(values[1])
	case CmdSetM1VelocityPID, CmdSetM2VelocityPID:
		m := M1
		if cmd == CmdSetM2VelocityPID {
			m = M2
		}
		s.motor(m).pid = PID{
			D:    fromFixed(values[0]),
			P:    fromFixed(values[1]),
			I:    fromFixed(values[2]),
			QPPS: values[3],
		}
	default:
		return false
	}
	return true
}

func (s *Simulator) drive7(m Motor, v uint32) {
	if v >= drive7Stop {
		s.dutySpeed(m, (v-drive7Stop)*MaxDuty/MaxDrive7, 1)
		return
	}
	s.dutySpeed(m, (drive7Stop-v)*MaxDuty/drive7Stop, -1)
}

func (s *Simulator) encoderFields(m Motor) []byte {
	mt := s.motor(m)
	delta := int64(math.Round(mt.pending))
	mt.pending -= float64(delta)
	var status encoder.Status
	switch {
	case delta > math.MaxInt32:
		status |= encoder.StatusOverflow
	case delta < math.MinInt32:
		status |= encoder.StatusUnderflow
	}
	if mt.speed < 0 {
		status |= encoder.StatusBackward
	}
	return append(be32(uint32(delta)), byte(status))
}

func (s *Simulator) speedFields(m Motor) []byte {
	speed := s.motor(m).speed
	var dir byte
	if speed < 0 {
		dir = 1
	}
	return append(be32(uint32(speed)), dir)
}

func (s *Simulator) read(cmd Command) []byte {
	var fields []byte
	switch cmd {
	case CmdReadM1Encoder:
		fields = s.encoderFields(M1)
	case CmdReadM2Encoder:
		fields = s.encoderFields(M2)
	case CmdReadM1Speed:
		fields = s.speedFields(M1)
	case CmdReadM2Speed:
		fields = s.speedFields(M2)
	case CmdReadMainBattery:
		fields = be16(s.MainBattery)
	case CmdReadLogicBattery:
		fields = be16(s.LogicBattery)
	case CmdReadTemperature:
		fields = be16(s.Temperature)
	case CmdReadCurrents:
		fields = append(be16(simCurrent(s.motors[0].speed)), be16(simCurrent(s.motors[1].speed))...)
	case CmdReadStatus:
		fields = be32(s.StatusBits)
	case CmdReadM1VelocityPID, CmdReadM2VelocityPID:
		m := M1
		if cmd == CmdReadM2VelocityPID {
			m = M2
		}
		pid := s.motor(m).pid
		fields = append(fields, be32(toFixed(pid.P))...)
		fields = append(fields, be32(toFixed(pid.I))...)
		fields = append(fields, be32(toFixed(pid.D))...)
		fields = append(fields, be32(pid.QPPS)...)
	default:
		s.ignored++
		return nil
	}
	return comm.Reply(s.Address, byte(cmd), fields...)
}

// simCurrent is 10mA per 1000 qpps.
func simCurrent(speed int32) uint16 {
	if speed < 0 {
		speed = -speed
	}
	return uint16(speed / 1000)
}

func be16(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
