package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// FileConfig mirrors Config in TOML, with durations as strings.
// Absent keys leave the config unchanged.
type FileConfig struct {
	Port               string                  `toml:"port"`
	Baud               int                     `toml:"baud"`
	Address            int                     `toml:"address"`
	Retries            int                     `toml:"retries"`
	Timeout            string                  `toml:"timeout"`
	RetryOnCRCMismatch *bool                   `toml:"retry_on_crc_mismatch"`
	PollInterval       string                  `toml:"poll_interval"`
	MQTT               *string                 `toml:"mqtt"`
	MetricsAddr        *string                 `toml:"metrics_addr"`
	ID                 string                  `toml:"id"`
	PID                map[string]roboclaw.PID `toml:"pid"`
}

// LoadFile reads and parses a TOML config file.
func LoadFile(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(b)
}

// ParseFile parses TOML content.
func ParseFile(b []byte) (*FileConfig, error) {
	var fc FileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &fc, nil
}

func parseDuration(key, s string, d *time.Duration) error {
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	*d = v
	return nil
}

// ApplyTo merges file values into conf, skipping keys whose flags are
// in explicit.
func (fc *FileConfig) ApplyTo(conf *Config, explicit map[string]bool) error {
	set := func(flagName string, present bool, apply func()) {
		if present && !explicit[flagName] {
			apply()
		}
	}
	set("port", fc.Port != "", func() { conf.Port = fc.Port })
	set("baud", fc.Baud != 0, func() { conf.Baud = fc.Baud })
	if fc.Address != 0 && !explicit["address"] {
		if fc.Address < int(MinAddress) || fc.Address > int(MaxAddress) {
			return fmt.Errorf("%w: address 0x%x", ErrInvalid, fc.Address)
		}
		conf.Address = byte(fc.Address)
	}
	set("retries", fc.Retries != 0, func() { conf.Retries = fc.Retries })
	set("retry-crc", fc.RetryOnCRCMismatch != nil, func() { conf.RetryOnCRCMismatch = *fc.RetryOnCRCMismatch })
	set("mqtt", fc.MQTT != nil, func() { conf.MQTTBrokerURL = *fc.MQTT })
	set("metrics", fc.MetricsAddr != nil, func() { conf.MetricsAddr = *fc.MetricsAddr })
	set("id", fc.ID != "", func() { conf.ID = fc.ID })
	if !explicit["timeout"] {
		if err := parseDuration("timeout", fc.Timeout, &conf.Timeout); err != nil {
			return err
		}
	}
	if !explicit["poll"] {
		if err := parseDuration("poll_interval", fc.PollInterval, &conf.PollInterval); err != nil {
			return err
		}
	}
	for name, pid := range fc.PID {
		m, err := roboclaw.ParseMotor(name)
		if err != nil {
			return fmt.Errorf("%w: pid.%s: %v", ErrInvalid, name, err)
		}
		if conf.PID == nil {
			conf.PID = make(map[roboclaw.Motor]roboclaw.PID)
		}
		conf.PID[m] = pid
	}
	return nil
}
