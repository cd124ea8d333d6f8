package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

const sampleFile = `
port = "/dev/ttyUSB1"
baud = 115200
address = 0x81
retries = 5
timeout = "20ms"
retry_on_crc_mismatch = true
poll_interval = "50ms"
mqtt = ""
id = "left-drive"

[pid.m1]
p = 1.5
i = 0.25
d = 0
qpps = 44000

[pid.m2]
p = 2.0
qpps = 30000
`

func TestDefaults(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Validate())
	assert.Equal(t, byte(0x80), conf.Address)
	assert.NotEmpty(t, conf.ID)
	assert.Equal(t, 3, conf.CommConfig().Retries)
	assert.False(t, conf.CommConfig().RetryOnCRCMismatch)
}

func TestApplyFile(t *testing.T) {
	fc, err := ParseFile([]byte(sampleFile))
	require.NoError(t, err)
	conf := NewConfig()
	require.NoError(t, fc.ApplyTo(conf, nil))
	require.NoError(t, conf.Validate())

	assert.Equal(t, "/dev/ttyUSB1", conf.Port)
	assert.Equal(t, 115200, conf.Baud)
	assert.Equal(t, byte(0x81), conf.Address)
	assert.Equal(t, 5, conf.Retries)
	assert.Equal(t, 20*time.Millisecond, conf.Timeout)
	assert.True(t, conf.RetryOnCRCMismatch)
	assert.Equal(t, 50*time.Millisecond, conf.PollInterval)
	assert.Empty(t, conf.MQTTBrokerURL)
	assert.Equal(t, DefaultMetricsAddr, conf.MetricsAddr)
	assert.Equal(t, "left-drive", conf.ID)
	assert.Equal(t, roboclaw.PID{P: 1.5, I: 0.25, QPPS: 44000}, conf.PID[roboclaw.M1])
	assert.Equal(t, roboclaw.PID{P: 2, QPPS: 30000}, conf.PID[roboclaw.M2])

	sc := conf.SerialConfig()
	assert.Equal(t, "/dev/ttyUSB1", sc.Device)
	assert.Equal(t, 20*time.Millisecond, sc.Timeout)
	info := conf.Info()
	assert.Equal(t, "roboclaw/left-drive", info.Ref.Name())
	assert.Equal(t, "0x81", info.Meta.Labels["address"])
}

func TestFlagsOverrideFile(t *testing.T) {
	conf := NewConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	SetupFlagSet(fs, conf)
	require.NoError(t, fs.Parse([]string{"-port", "/dev/ttyS0", "-address", "0x83", "-timeout", "5ms"}))
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fc, err := ParseFile([]byte(sampleFile))
	require.NoError(t, err)
	require.NoError(t, fc.ApplyTo(conf, explicit))
	assert.Equal(t, "/dev/ttyS0", conf.Port)
	assert.Equal(t, byte(0x83), conf.Address)
	assert.Equal(t, 5*time.Millisecond, conf.Timeout)
	assert.Equal(t, 115200, conf.Baud)
}

func TestInvalid(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"low address", func(c *Config) { c.Address = 0x7f }},
		{"high address", func(c *Config) { c.Address = 0x88 }},
		{"zero retries", func(c *Config) { c.Retries = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero baud", func(c *Config) { c.Baud = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"bad motor", func(c *Config) { c.PID[roboclaw.Motor(3)] = roboclaw.PID{} }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := NewConfig()
			tc.mutate(conf)
			require.ErrorIs(t, conf.Validate(), ErrInvalid)
		})
	}

	_, err := ParseFile([]byte("port = ["))
	require.ErrorIs(t, err, ErrInvalid)
	fc, err := ParseFile([]byte(`timeout = "soon"`))
	require.NoError(t, err)
	require.ErrorIs(t, fc.ApplyTo(NewConfig(), nil), ErrInvalid)
	fc, err = ParseFile([]byte("[pid.m3]\np = 1"))
	require.NoError(t, err)
	require.ErrorIs(t, fc.ApplyTo(NewConfig(), nil), ErrInvalid)
	fc, err = ParseFile([]byte("address = 0x90"))
	require.NoError(t, err)
	require.ErrorIs(t, fc.ApplyTo(NewConfig(), nil), ErrInvalid)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ROBOCLAW_PORT":         "COM3",
		"ROBOCLAW_BAUD":         "9600",
		"ROBOCLAW_ADDRESS":      "0x82",
		"ROBOCLAW_MQTT_URL":     "mqtt://broker/x",
		"ROBOCLAW_METRICS_ADDR": ":9999",
		"ROBOCLAW_ID":           "env-id",
	}
	var conf Config
	applyEnv(&conf, func(key string) string { return env[key] })
	assert.Equal(t, Config{
		Port:          "COM3",
		Baud:          9600,
		Address:       0x82,
		MQTTBrokerURL: "mqtt://broker/x",
		MetricsAddr:   ":9999",
		ID:            "env-id",
	}, conf)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roboclaw.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o644))
	saved := configFile
	configFile = path
	t.Cleanup(func() { configFile = saved })

	conf, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "left-drive", conf.ID)

	configFile = filepath.Join(t.TempDir(), "missing.toml")
	_, err = Load()
	require.Error(t, err)
}
