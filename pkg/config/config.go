// Package config assembles node configuration from defaults, environment,
// a TOML file and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"

	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
	"github.com/robotalks/roboclaw.go/pkg/l0/serial"
	"github.com/robotalks/roboclaw.go/pkg/l1"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// ControllerType is the type name registered by nodes.
const ControllerType = "roboclaw"

// Address range of packet serial mode.
const (
	MinAddress byte = 0x80
	MaxAddress byte = 0x87
)

// Defaults
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMQTTURL      = "mqtt://localhost:1883/robo/"
	DefaultMetricsAddr  = ":9180"
)

// ErrInvalid indicates an unusable configuration.
var ErrInvalid = errors.New("invalid config")

// Config is the configuration of a node.
type Config struct {
	Port               string
	Baud               int
	Address            byte
	Retries            int
	Timeout            time.Duration
	RetryOnCRCMismatch bool
	PollInterval       time.Duration
	MQTTBrokerURL      string
	MetricsAddr        string
	ID                 string
	Simulate           bool
	PID                map[roboclaw.Motor]roboclaw.PID
}

var defaultConfig = Config{
	Port:          serial.DefaultDevice,
	Baud:          serial.DefaultBaud,
	Address:       comm.DefaultAddress,
	Retries:       comm.DefaultRetries,
	Timeout:       comm.DefaultTimeout,
	PollInterval:  DefaultPollInterval,
	MQTTBrokerURL: DefaultMQTTURL,
	MetricsAddr:   DefaultMetricsAddr,
}

var configFile string

func init() {
	defaultConfig.ID = MachineID()
	applyEnv(&defaultConfig, os.Getenv)
	configFile = os.Getenv("ROBOCLAW_CONFIG")
}

// MachineID returns an ID unique to this machine and application,
// or the host name if unavailable.
func MachineID() string {
	if id, err := machineid.ProtectedID(ControllerType); err == nil {
		return id[:16]
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

func applyEnv(c *Config, getenv func(string) string) {
	if val := getenv("ROBOCLAW_PORT"); val != "" {
		c.Port = val
	}
	if val, err := strconv.Atoi(getenv("ROBOCLAW_BAUD")); err == nil {
		c.Baud = val
	}
	if val, err := strconv.ParseUint(getenv("ROBOCLAW_ADDRESS"), 0, 8); err == nil {
		c.Address = byte(val)
	}
	if val := getenv("ROBOCLAW_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
	if val := getenv("ROBOCLAW_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
	if val := getenv("ROBOCLAW_ID"); val != "" {
		c.ID = val
	}
}

type addressValue struct {
	addr *byte
}

func (v addressValue) String() string {
	if v.addr == nil {
		return ""
	}
	return fmt.Sprintf("0x%02x", *v.addr)
}

func (v addressValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return err
	}
	*v.addr = byte(n)
	return nil
}

// SetupFlags sets command line flags on flag.CommandLine.
func SetupFlags() {
	SetupFlagSet(flag.CommandLine, &defaultConfig)
}

// SetupFlagSet binds flags of conf to fs.
func SetupFlagSet(fs *flag.FlagSet, conf *Config) {
	fs.StringVar(&configFile, "config", configFile, "TOML config file")
	fs.StringVar(&conf.Port, "port", conf.Port, "Serial device path")
	fs.IntVar(&conf.Baud, "baud", conf.Baud, "Serial baud rate")
	fs.Var(addressValue{&conf.Address}, "address", "Device address, 0x80 to 0x87")
	fs.IntVar(&conf.Retries, "retries", conf.Retries, "Attempts per transaction")
	fs.DurationVar(&conf.Timeout, "timeout", conf.Timeout, "Read timeout per attempt")
	fs.BoolVar(&conf.RetryOnCRCMismatch, "retry-crc", conf.RetryOnCRCMismatch, "Retry reads with mismatched checksum")
	fs.DurationVar(&conf.PollInterval, "poll", conf.PollInterval, "Encoder poll interval")
	fs.StringVar(&conf.MQTTBrokerURL, "mqtt", conf.MQTTBrokerURL, "MQTT broker URL, empty disables")
	fs.StringVar(&conf.MetricsAddr, "metrics", conf.MetricsAddr, "Metrics listen address, empty disables")
	fs.StringVar(&conf.ID, "id", conf.ID, "Controller ID")
	fs.BoolVar(&conf.Simulate, "sim", conf.Simulate, "Use a simulated device")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.PID = make(map[roboclaw.Motor]roboclaw.PID)
	for m, pid := range defaultConfig.PID {
		conf.PID[m] = pid
	}
	return &conf
}

// Load creates a Config from defaults and the config file, then
// applies flags explicitly set on flag.CommandLine.
func Load() (*Config, error) {
	conf := NewConfig()
	if configFile != "" {
		fc, err := LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		explicit := make(map[string]bool)
		flag.CommandLine.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := fc.ApplyTo(conf, explicit); err != nil {
			return nil, err
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.Address < MinAddress || c.Address > MaxAddress:
		return fmt.Errorf("%w: address 0x%02x not in [0x%02x, 0x%02x]", ErrInvalid, c.Address, MinAddress, MaxAddress)
	case c.Baud <= 0:
		return fmt.Errorf("%w: baud must be positive", ErrInvalid)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalid)
	}
	for m := range c.PID {
		if !m.Valid() {
			return fmt.Errorf("%w: pid for %s", ErrInvalid, m)
		}
	}
	if err := c.CommConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// CommConfig returns the transaction parameters.
func (c *Config) CommConfig() comm.Config {
	return comm.Config{
		Address:            c.Address,
		Retries:            c.Retries,
		Timeout:            c.Timeout,
		RetryOnCRCMismatch: c.RetryOnCRCMismatch,
	}
}

// SerialConfig returns the serial port parameters.
func (c *Config) SerialConfig() *serial.Config {
	return &serial.Config{Device: c.Port, Baud: c.Baud, Timeout: c.Timeout}
}

// Info returns the controller info to register.
func (c *Config) Info() l1.ControllerInfo {
	return l1.ControllerInfo{
		Ref: l1.ControllerRef{Type: ControllerType, ID: c.ID},
		Meta: l1.ControllerMeta{
			Description: "RoboClaw motor controller",
			Labels: map[string]string{
				"port":    c.Port,
				"address": fmt.Sprintf("0x%02x", c.Address),
			},
		},
	}
}
