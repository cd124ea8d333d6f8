package roboclaw

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/roboclaw.go/pkg/encoder"
	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
)

// Limits of the duty cycle commands.
const (
	MaxDuty    = 127
	MinDrive7  = -64
	MaxDrive7  = 63
	drive7Stop = 64
)

// PIDScale is the fixed point scale of PID constants on the wire.
const PIDScale = 65536

// PID is the velocity PID setting of one motor.
type PID struct {
	P    float64 `toml:"p" json:"p"`
	I    float64 `toml:"i" json:"i"`
	D    float64 `toml:"d" json:"d"`
	QPPS uint32  `toml:"qpps" json:"qpps"`
}

func (p PID) String() string {
	return fmt.Sprintf("P=%g I=%g D=%g QPPS=%d", p.P, p.I, p.D, p.QPPS)
}

func toFixed(v float64) uint32 {
	return uint32(int32(math.Round(v * PIDScale)))
}

func fromFixed(v uint32) float64 {
	return float64(int32(v)) / PIDScale
}

// Currents are motor currents in 10mA units.
type Currents struct {
	M1 uint16
	M2 uint16
}

// Device drives a motor controller at one address over a Conn.
// It's safe for concurrent use.
type Device struct {
	conn    *comm.Conn
	address byte
	tracker *Tracker
	lock    sync.Mutex
}

// NewDevice creates a Device using the default address of conn.
func NewDevice(conn *comm.Conn) *Device {
	return NewDeviceAt(conn, conn.Address())
}

// NewDeviceAt creates a Device at a specific address.
func NewDeviceAt(conn *comm.Conn, address byte) *Device {
	return &Device{conn: conn, address: address, tracker: NewTracker()}
}

// Address returns the device address.
func (d *Device) Address() byte {
	return d.address
}

// Conn returns the underlying connection.
func (d *Device) Conn() *comm.Conn {
	return d.conn
}

// Tracker returns the encoder position tracker.
func (d *Device) Tracker() *Tracker {
	return d.tracker
}

// Write sends a raw command with magnitude selected value widths.
func (d *Device) Write(cmd Command, values ...uint32) error {
	fields := make([]comm.Field, len(values))
	for i, v := range values {
		fields[i].Value = v
	}
	return d.WriteFields(cmd, fields...)
}

// WriteFields sends a raw command with explicit field widths.
func (d *Device) WriteFields(cmd Command, fields ...comm.Field) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	err := d.conn.WriteFields(d.address, byte(cmd), fields...)
	if err != nil {
		glog.Warningf("%s: %v", cmd, err)
	}
	return err
}

// Read sends a raw read command with field widths.
func (d *Device) Read(cmd Command, widths ...int) ([]uint32, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	values, err := d.conn.ReadFields(d.address, byte(cmd), widths...)
	if err != nil {
		glog.Warningf("%s: %v", cmd, err)
	}
	return values, err
}

func checkDuty(speed int) error {
	if speed < 0 || speed > MaxDuty {
		return fmt.Errorf("%w: duty %d not in [0, %d]", ErrOutOfRange, speed, MaxDuty)
	}
	return nil
}

// Forward drives the motor forward with duty 0..127.
func (d *Device) Forward(m Motor, speed int) error {
	return d.duty(m, CmdM1Forward, CmdM2Forward, speed)
}

// Backward drives the motor backward with duty 0..127.
func (d *Device) Backward(m Motor, speed int) error {
	return d.duty(m, CmdM1Backward, CmdM2Backward, speed)
}

func (d *Device) duty(m Motor, c1, c2 Command, speed int) error {
	cmd, err := m.pick(c1, c2)
	if err != nil {
		return err
	}
	if err := checkDuty(speed); err != nil {
		return err
	}
	return d.WriteFields(cmd, comm.Field{Value: uint32(speed), Width: 1})
}

// Drive drives the motor in 7-bit mode: -64 is full backward,
// 0 stops and 63 is full forward.
func (d *Device) Drive(m Motor, speed int) error {
	cmd, err := m.pick(CmdM1Drive7Bit, CmdM2Drive7Bit)
	if err != nil {
		return err
	}
	if speed < MinDrive7 || speed > MaxDrive7 {
		return fmt.Errorf("%w: drive %d not in [%d, %d]", ErrOutOfRange, speed, MinDrive7, MaxDrive7)
	}
	return d.WriteFields(cmd, comm.Field{Value: uint32(speed + drive7Stop), Width: 1})
}

func (d *Device) mixed(cmd Command, speed int) error {
	if err := checkDuty(speed); err != nil {
		return err
	}
	return d.WriteFields(cmd, comm.Field{Value: uint32(speed), Width: 1})
}

// MixedForward drives both motors forward in mixed mode.
func (d *Device) MixedForward(speed int) error {
	return d.mixed(CmdMixedForward, speed)
}

// MixedBackward drives both motors backward in mixed mode.
func (d *Device) MixedBackward(speed int) error {
	return d.mixed(CmdMixedBackward, speed)
}

// TurnRight turns right in mixed mode.
func (d *Device) TurnRight(speed int) error {
	return d.mixed(CmdMixedRight, speed)
}

// TurnLeft turns left in mixed mode.
func (d *Device) TurnLeft(speed int) error {
	return d.mixed(CmdMixedLeft, speed)
}

// SetSpeed drives the motor at a signed speed in quadrature pulses
// per second using the velocity PID.
func (d *Device) SetSpeed(m Motor, qpps int32) error {
	cmd, err := m.pick(CmdM1Speed, CmdM2Speed)
	if err != nil {
		return err
	}
	return d.WriteFields(cmd, comm.Fixed(4, uint32(qpps))...)
}

// SetSpeeds drives both motors at signed speeds.
func (d *Device) SetSpeeds(m1, m2 int32) error {
	return d.WriteFields(CmdMixedSpeed, comm.Fixed(4, uint32(m1), uint32(m2))...)
}

// Stop sets zero duty on both motors.
func (d *Device) Stop() error {
	return errors.Join(d.Forward(M1, 0), d.Forward(M2, 0))
}

// ReadEncoder reads the count and status of a motor encoder.
func (d *Device) ReadEncoder(m Motor) (encoder.Sample, error) {
	cmd, err := m.pick(CmdReadM1Encoder, CmdReadM2Encoder)
	if err != nil {
		return encoder.Sample{}, err
	}
	values, err := d.Read(cmd, 4, 1)
	if err != nil {
		return encoder.Sample{}, err
	}
	return encoder.Sample{Count: values[0], Status: encoder.Status(values[1])}, nil
}

// UpdateEncoders reads both encoders and folds them into the tracker.
// Positions of motors read before a failure are kept.
func (d *Device) UpdateEncoders() (Positions, error) {
	for _, m := range Motors {
		s, err := d.ReadEncoder(m)
		if err != nil {
			return d.tracker.Positions(), fmt.Errorf("%s encoder: %w", m, err)
		}
		d.tracker.Fold(m, s)
	}
	return d.tracker.Positions(), nil
}

// ReadSpeed reads the signed speed of a motor in pulses per second.
func (d *Device) ReadSpeed(m Motor) (int32, error) {
	cmd, err := m.pick(CmdReadM1Speed, CmdReadM2Speed)
	if err != nil {
		return 0, err
	}
	values, err := d.Read(cmd, 4, 1)
	if err != nil {
		return 0, err
	}
	return int32(values[0]), nil
}

// ResetEncoders zeroes both encoders on the device and in the tracker.
func (d *Device) ResetEncoders() error {
	if err := d.Write(CmdResetEncoders); err != nil {
		return err
	}
	d.tracker.Reset()
	return nil
}

func (d *Device) read16(cmd Command) (uint16, error) {
	values, err := d.Read(cmd, 2)
	if err != nil {
		return 0, err
	}
	return uint16(values[0]), nil
}

// MainBattery reads the main battery voltage in 0.1V.
func (d *Device) MainBattery() (uint16, error) {
	return d.read16(CmdReadMainBattery)
}

// LogicBattery reads the logic battery voltage in 0.1V.
func (d *Device) LogicBattery() (uint16, error) {
	return d.read16(CmdReadLogicBattery)
}

// Temperature reads the board temperature in 0.1°C.
func (d *Device) Temperature() (uint16, error) {
	return d.read16(CmdReadTemperature)
}

// Currents reads motor currents.
func (d *Device) Currents() (Currents, error) {
	values, err := d.Read(CmdReadCurrents, 2, 2)
	if err != nil {
		return Currents{}, err
	}
	return Currents{M1: uint16(values[0]), M2: uint16(values[1])}, nil
}

// Status reads the status/error bits.
func (d *Device) Status() (uint32, error) {
	values, err := d.Read(CmdReadStatus, 4)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// SetVelocityPID writes the velocity PID of a motor.
func (d *Device) SetVelocityPID(m Motor, pid PID) error {
	cmd, err := m.pick(CmdSetM1VelocityPID, CmdSetM2VelocityPID)
	if err != nil {
		return err
	}
	return d.WriteFields(cmd, comm.Fixed(4, toFixed(pid.D), toFixed(pid.P), toFixed(pid.I), pid.QPPS)...)
}

// VelocityPID reads the velocity PID of a motor.
func (d *Device) VelocityPID(m Motor) (PID, error) {
	cmd, err := m.pick(CmdReadM1VelocityPID, CmdReadM2VelocityPID)
	if err != nil {
		return PID{}, err
	}
	values, err := d.Read(cmd, 4, 4, 4, 4)
	if err != nil {
		return PID{}, err
	}
	return PID{
		P:    fromFixed(values[0]),
		I:    fromFixed(values[1]),
		D:    fromFixed(values[2]),
		QPPS: values[3],
	}, nil
}
