package sh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robotalks/roboclaw.go/pkg/config"
	"github.com/robotalks/roboclaw.go/pkg/l1"
	"github.com/robotalks/roboclaw.go/pkg/l1/mqtt"
	"github.com/robotalks/roboclaw.go/pkg/l1/msgs"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// ErrNoBroker indicates no MQTT broker is configured.
var ErrNoBroker = errors.New("no mqtt broker configured")

const remoteUsage = "remote ID speed M QPPS | duty M DUTY | stop | reset | enc | batt"

// Controllers lists discovered nodes.
type Controllers []l1.ControllerInfo

func (l Controllers) String() string {
	if len(l) == 0 {
		return "No controllers found"
	}
	lines := make([]string, len(l))
	for i, info := range l {
		lines[i] = info.Ref.Name()
		if desc := info.Meta.Description; desc != "" {
			lines[i] += "\t" + desc
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Shell) connector() (*mqtt.Connector, error) {
	if s.Config.MQTTBrokerURL == "" {
		return nil, ErrNoBroker
	}
	return mqtt.NewConnector(s.Config.MQTTBrokerURL)
}

// Discover lists nodes on the broker.
func Discover(s *Shell, args []string) (Result, error) {
	conn, err := s.connector()
	if err != nil {
		return nil, err
	}
	infos, err := conn.Discover(context.Background())
	if err != nil {
		return nil, err
	}
	return Controllers(infos), nil
}

// Remote sends a command to a node through the broker.
func Remote(s *Shell, args []string) (Result, error) {
	if err := requireArgs(args, 2, remoteUsage); err != nil {
		return nil, err
	}
	cmd, err := remoteCommand(args[1:])
	if err != nil {
		return nil, err
	}
	conn, err := s.connector()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	client, err := conn.Connect(ctx, l1.ControllerRef{Type: config.ControllerType, ID: args[0]})
	if err != nil {
		return nil, err
	}
	defer client.Close()
	reply, err := client.Do(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if _, ok := reply.(*msgs.CommandOK); ok {
		return nil, nil
	}
	return reply, nil
}

func remoteCommand(args []string) (msgs.SerializableMessage, error) {
	motorValue := func(name string) (uint32, int32, error) {
		if err := requireArgs(args, 3, remoteUsage); err != nil {
			return 0, 0, err
		}
		m, err := roboclaw.ParseMotor(args[1])
		if err != nil {
			return 0, 0, err
		}
		v, err := parseInt(name, args[2], 32)
		return uint32(m), int32(v), err
	}
	switch args[0] {
	case "speed":
		m, v, err := motorValue("QPPS")
		if err != nil {
			return nil, err
		}
		return &msgs.MotorSpeed{Motor: m, Qpps: v}, nil
	case "duty":
		m, v, err := motorValue("DUTY")
		if err != nil {
			return nil, err
		}
		return &msgs.MotorDuty{Motor: m, Duty: v}, nil
	case "stop":
		return &msgs.MotorStop{}, nil
	case "reset":
		return &msgs.ResetEncoders{}, nil
	case "enc":
		return &msgs.EncoderQuery{}, nil
	case "batt":
		return &msgs.BatteryQuery{}, nil
	}
	return nil, fmt.Errorf("unknown remote command %q, usage: %s", args[0], remoteUsage)
}

func init() {
	AddCmds(
		Cmd("discover", "list controllers on the mqtt broker", Discover),
		Cmd("remote", "ID CMD [ARGS] send a command to a controller through mqtt", Remote),
	)
}
