package sh

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/roboclaw.go/pkg/config"
	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
	"github.com/robotalks/roboclaw.go/pkg/l0/serial"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// SimPort is the port name opening a simulated device.
const SimPort = "sim"

// ErrNotOpen indicates no device is open.
var ErrNotOpen = errors.New("not open")

// Shell provides ishell backed interactive shell over a device.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *config.Config
	Device *roboclaw.Device

	port io.Closer
	name string
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands []*ishell.Cmd
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Open opens the device on a serial port, or a simulated device if
// port is SimPort. baud 0 uses the configured baud rate.
func (s *Shell) Open(port string, baud int) error {
	var stream comm.Stream
	if port == SimPort {
		sim := roboclaw.NewSimulator(s.Config.Address)
		sim.Now = time.Now
		stream = sim.Stream()
	} else {
		sc := s.Config.SerialConfig()
		sc.Device = port
		if baud > 0 {
			sc.Baud = baud
		}
		p, err := serial.Open(sc)
		if err != nil {
			return err
		}
		stream = p
	}
	conn, err := comm.NewConn(stream, s.Config.CommConfig())
	if err != nil {
		if closer, ok := stream.(io.Closer); ok {
			closer.Close()
		}
		return err
	}
	s.Close()
	s.Device, s.port, s.name = roboclaw.NewDevice(conn), conn, port
	s.Shell.SetPrompt(fmt.Sprintf("%s@0x%02x > ", port, conn.Address()))
	return nil
}

// Close closes the current device.
func (s *Shell) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.Device, s.port, s.name = nil, nil, ""
	s.Shell.SetPrompt(closedPrompt)
	return err
}

// PortName returns the name of the open port.
func (s *Shell) PortName() string {
	return s.name
}

// Result is the output of a command.
type Result interface{}

// CmdFunc executes a command with arguments.
type CmdFunc func(s *Shell, args []string) (Result, error)

// Exec runs fn and prints the result.
func (s *Shell) Exec(c *ishell.Context, fn CmdFunc) {
	res, err := fn(s, c.Args)
	if err != nil {
		c.Err(err)
		return
	}
	if out := s.Format(res); out != "" {
		c.Println(out)
	}
}

// Format formats a result for display.
func (s *Shell) Format(res Result) string {
	if res == nil {
		if s.OutputJSON {
			return `{"ok":true}`
		}
		return "OK"
	}
	if s.OutputJSON {
		out, err := json.Marshal(res)
		if err != nil {
			return err.Error()
		}
		return string(out)
	}
	if str, ok := res.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%+v", res)
}

// DeviceCmd creates a command which requires an open device.
func DeviceCmd(name, help string, fn CmdFunc) *ishell.Cmd {
	return &ishell.Cmd{
		Name: name,
		Help: help,
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Device == nil {
				c.Err(ErrNotOpen)
				return
			}
			s.Exec(c, fn)
		},
	}
}

// Cmd creates a command.
func Cmd(name, help string, fn CmdFunc) *ishell.Cmd {
	return &ishell.Cmd{
		Name: name,
		Help: help,
		Func: func(c *ishell.Context) {
			ShellFrom(c).Exec(c, fn)
		},
	}
}

// Run runs the shell. With args, only the command is executed.
func (s *Shell) Run(args ...string) {
	defer s.Close()
	if s.Config.Simulate {
		if err := s.Open(SimPort, 0); err != nil {
			log.Fatalln(err)
		}
	}
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func parseInt(name, s string, bitSize int) (int64, error) {
	v, err := strconv.ParseInt(s, 0, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func parseUint(name, s string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}
