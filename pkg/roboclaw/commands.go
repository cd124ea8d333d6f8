package roboclaw

import "fmt"

// Command is a device opcode.
type Command byte

// Commands
const (
	CmdM1Forward         Command = 0
	CmdM1Backward        Command = 1
	CmdM2Forward         Command = 4
	CmdM2Backward        Command = 5
	CmdM1Drive7Bit       Command = 6
	CmdM2Drive7Bit       Command = 7
	CmdMixedForward      Command = 8
	CmdMixedBackward     Command = 9
	CmdMixedRight        Command = 10
	CmdMixedLeft         Command = 11
	CmdReadM1Encoder     Command = 16
	CmdReadM2Encoder     Command = 17
	CmdReadM1Speed       Command = 18
	CmdReadM2Speed       Command = 19
	CmdResetEncoders     Command = 20
	CmdReadMainBattery   Command = 24
	CmdReadLogicBattery  Command = 25
	CmdSetM1VelocityPID  Command = 28
	CmdSetM2VelocityPID  Command = 29
	CmdM1Speed           Command = 35
	CmdM2Speed           Command = 36
	CmdMixedSpeed        Command = 37
	CmdReadCurrents      Command = 49
	CmdReadM1VelocityPID Command = 55
	CmdReadM2VelocityPID Command = 56
	CmdReadTemperature   Command = 82
	CmdReadStatus        Command = 90
)

var commandNames = map[Command]string{
	CmdM1Forward:         "m1.forward",
	CmdM1Backward:        "m1.backward",
	CmdM2Forward:         "m2.forward",
	CmdM2Backward:        "m2.backward",
	CmdM1Drive7Bit:       "m1.drive",
	CmdM2Drive7Bit:       "m2.drive",
	CmdMixedForward:      "mixed.forward",
	CmdMixedBackward:     "mixed.backward",
	CmdMixedRight:        "mixed.right",
	CmdMixedLeft:         "mixed.left",
	CmdReadM1Encoder:     "m1.encoder",
	CmdReadM2Encoder:     "m2.encoder",
	CmdReadM1Speed:       "m1.speed.read",
	CmdReadM2Speed:       "m2.speed.read",
	CmdResetEncoders:     "encoders.reset",
	CmdReadMainBattery:   "battery.main",
	CmdReadLogicBattery:  "battery.logic",
	CmdSetM1VelocityPID:  "m1.pid.set",
	CmdSetM2VelocityPID:  "m2.pid.set",
	CmdM1Speed:           "m1.speed",
	CmdM2Speed:           "m2.speed",
	CmdMixedSpeed:        "mixed.speed",
	CmdReadCurrents:      "currents",
	CmdReadM1VelocityPID: "m1.pid",
	CmdReadM2VelocityPID: "m2.pid",
	CmdReadTemperature:   "temperature",
	CmdReadStatus:        "status",
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cmd%d", byte(c))
}

// CommandName returns the name of a raw opcode.
func CommandName(command byte) string {
	return Command(command).String()
}

// Motor selects one of the two channels.
type Motor int

// Motors
const (
	M1 Motor = 1
	M2 Motor = 2
)

// Motors lists all channels.
var Motors = []Motor{M1, M2}

// Valid checks if the motor is M1 or M2.
func (m Motor) Valid() bool {
	return m == M1 || m == M2
}

// String implements fmt.Stringer.
func (m Motor) String() string {
	return fmt.Sprintf("M%d", int(m))
}

// ParseMotor parses "1", "2", "m1", "M2".
func ParseMotor(s string) (Motor, error) {
	switch s {
	case "1", "m1", "M1":
		return M1, nil
	case "2", "m2", "M2":
		return M2, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMotor, s)
}

func (m Motor) pick(c1, c2 Command) (Command, error) {
	switch m {
	case M1:
		return c1, nil
	case M2:
		return c2, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidMotor, int(m))
}
