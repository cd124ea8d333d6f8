package sh

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
	"github.com/robotalks/roboclaw.go/pkg/l0/serial"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// PortList lists serial ports.
type PortList []serial.PortInfo

func (l PortList) String() string {
	if len(l) == 0 {
		return "No serial ports found"
	}
	lines := make([]string, len(l))
	for i, p := range l {
		lines[i] = p.String()
	}
	return strings.Join(lines, "\n")
}

// Battery is the battery reading in volts.
type Battery struct {
	Main  float64 `json:"main"`
	Logic float64 `json:"logic"`
}

func (b Battery) String() string {
	return fmt.Sprintf("main %.1fV logic %.1fV", b.Main, b.Logic)
}

// Temperature is in °C.
type Temperature float64

func (t Temperature) String() string {
	return fmt.Sprintf("%.1f°C", float64(t))
}

// Status is the status bits.
type Status uint32

func (s Status) String() string {
	return fmt.Sprintf("0x%08x", uint32(s))
}

// Sample is a raw encoder reading.
type Sample struct {
	Motor    string `json:"motor"`
	Count    uint32 `json:"count"`
	Status   uint8  `json:"status"`
	Position int64  `json:"position"`
}

func (s Sample) String() string {
	return fmt.Sprintf("%s count=%d status=0x%02x position=%d", s.Motor, s.Count, s.Status, s.Position)
}

// Values are raw field values.
type Values []uint32

func (v Values) String() string {
	items := make([]string, len(v))
	for i, n := range v {
		items[i] = fmt.Sprintf("%d(0x%x)", n, n)
	}
	return strings.Join(items, " ")
}

// ListPorts lists serial ports.
func ListPorts(s *Shell, args []string) (Result, error) {
	ports, err := serial.List()
	if err != nil {
		return nil, err
	}
	return PortList(ports), nil
}

// OpenPort opens PORT [BAUD].
func OpenPort(s *Shell, args []string) (Result, error) {
	if err := requireArgs(args, 1, "open PORT [BAUD]"); err != nil {
		return nil, err
	}
	var baud int
	if len(args) > 1 {
		v, err := parseInt("BAUD", args[1], 32)
		if err != nil {
			return nil, err
		}
		baud = int(v)
	}
	return nil, s.Open(args[0], baud)
}

// ClosePort closes the device.
func ClosePort(s *Shell, args []string) (Result, error) {
	return nil, s.Close()
}

func motorArg(args []string, usage string) (roboclaw.Motor, error) {
	if err := requireArgs(args, 1, usage); err != nil {
		return 0, err
	}
	return roboclaw.ParseMotor(args[0])
}

func dutyFunc(usage string, drive func(*roboclaw.Device, roboclaw.Motor, int) error) CmdFunc {
	return func(s *Shell, args []string) (Result, error) {
		if err := requireArgs(args, 2, usage); err != nil {
			return nil, err
		}
		m, err := roboclaw.ParseMotor(args[0])
		if err != nil {
			return nil, err
		}
		speed, err := parseInt("SPEED", args[1], 32)
		if err != nil {
			return nil, err
		}
		return nil, drive(s.Device, m, int(speed))
	}
}

// Forward drives M forward.
var Forward = dutyFunc("fwd M SPEED", (*roboclaw.Device).Forward)

// Backward drives M backward.
var Backward = dutyFunc("back M SPEED", (*roboclaw.Device).Backward)

// SetSpeed drives M at QPPS.
func SetSpeed(s *Shell, args []string) (Result, error) {
	if err := requireArgs(args, 2, "speed M QPPS"); err != nil {
		return nil, err
	}
	m, err := roboclaw.ParseMotor(args[0])
	if err != nil {
		return nil, err
	}
	qpps, err := parseInt("QPPS", args[1], 32)
	if err != nil {
		return nil, err
	}
	return nil, s.Device.SetSpeed(m, int32(qpps))
}

// Stop stops both motors.
func Stop(s *Shell, args []string) (Result, error) {
	return nil, s.Device.Stop()
}

// Encoders reads encoders. Without M, positions of both are updated.
func Encoders(s *Shell, args []string) (Result, error) {
	if len(args) == 0 {
		return s.Device.UpdateEncoders()
	}
	m, err := roboclaw.ParseMotor(args[0])
	if err != nil {
		return nil, err
	}
	sample, err := s.Device.ReadEncoder(m)
	if err != nil {
		return nil, err
	}
	return Sample{
		Motor:    m.String(),
		Count:    sample.Count,
		Status:   uint8(sample.Status),
		Position: s.Device.Tracker().Fold(m, sample),
	}, nil
}

// ResetEncoders zeroes encoders.
func ResetEncoders(s *Shell, args []string) (Result, error) {
	return nil, s.Device.ResetEncoders()
}

// ReadBattery reads battery voltages.
func ReadBattery(s *Shell, args []string) (Result, error) {
	main, err := s.Device.MainBattery()
	if err != nil {
		return nil, err
	}
	logic, err := s.Device.LogicBattery()
	if err != nil {
		return nil, err
	}
	return Battery{Main: float64(main) / 10, Logic: float64(logic) / 10}, nil
}

// ReadTemperature reads the temperature.
func ReadTemperature(s *Shell, args []string) (Result, error) {
	v, err := s.Device.Temperature()
	if err != nil {
		return nil, err
	}
	return Temperature(float64(v) / 10), nil
}

// ReadStatus reads status bits.
func ReadStatus(s *Shell, args []string) (Result, error) {
	v, err := s.Device.Status()
	if err != nil {
		return nil, err
	}
	return Status(v), nil
}

// VelocityPID reads or writes the velocity PID of M.
func VelocityPID(s *Shell, args []string) (Result, error) {
	const usage = "pid M [P I D QPPS]"
	m, err := motorArg(args, usage)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return s.Device.VelocityPID(m)
	}
	if err := requireArgs(args, 5, usage); err != nil {
		return nil, err
	}
	var pid roboclaw.PID
	for i, dst := range []*float64{&pid.P, &pid.I, &pid.D} {
		if *dst, err = strconv.ParseFloat(args[i+1], 64); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", "PID"[i:i+1], err)
		}
	}
	qpps, err := parseUint("QPPS", args[4], 32)
	if err != nil {
		return nil, err
	}
	pid.QPPS = uint32(qpps)
	return nil, s.Device.SetVelocityPID(m, pid)
}

// RawWrite writes CMD with values.
func RawWrite(s *Shell, args []string) (Result, error) {
	if err := requireArgs(args, 1, "raw.write CMD V..."); err != nil {
		return nil, err
	}
	cmd, err := parseUint("CMD", args[0], 8)
	if err != nil {
		return nil, err
	}
	values := make([]uint32, 0, len(args)-1)
	for _, arg := range args[1:] {
		v, err := parseInt("V", arg, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, uint32(v))
	}
	return nil, s.Device.Write(roboclaw.Command(cmd), values...)
}

// RawRead reads CMD with field widths.
func RawRead(s *Shell, args []string) (Result, error) {
	if err := requireArgs(args, 2, "raw.read CMD WIDTH..."); err != nil {
		return nil, err
	}
	cmd, err := parseUint("CMD", args[0], 8)
	if err != nil {
		return nil, err
	}
	widths := make([]int, 0, len(args)-1)
	for _, arg := range args[1:] {
		w, err := parseInt("WIDTH", arg, 8)
		if err != nil {
			return nil, err
		}
		if !comm.ValidWidth(int(w)) {
			return nil, &comm.FieldWidthError{Width: int(w)}
		}
		widths = append(widths, int(w))
	}
	values, err := s.Device.Read(roboclaw.Command(cmd), widths...)
	if err != nil {
		return nil, err
	}
	return Values(values), nil
}

func init() {
	AddCmds(
		Cmd("ports", "list serial ports", ListPorts),
		Cmd("open", "PORT [BAUD], PORT sim for a simulated device", OpenPort),
		Cmd("close", "close the device", ClosePort),
		DeviceCmd("fwd", "M SPEED(0-127)", Forward),
		DeviceCmd("back", "M SPEED(0-127)", Backward),
		DeviceCmd("speed", "M QPPS", SetSpeed),
		DeviceCmd("stop", "stop both motors", Stop),
		DeviceCmd("enc", "[M] read encoders", Encoders),
		DeviceCmd("reset", "reset encoders", ResetEncoders),
		DeviceCmd("batt", "read battery voltages", ReadBattery),
		DeviceCmd("temp", "read temperature", ReadTemperature),
		DeviceCmd("status", "read status bits", ReadStatus),
		DeviceCmd("pid", "M [P I D QPPS] read or set velocity PID", VelocityPID),
		DeviceCmd("raw.write", "CMD V... write with magnitude selected widths", RawWrite),
		DeviceCmd("raw.read", "CMD WIDTH... read fields of widths 1, 2 or 4", RawRead),
	)
}
