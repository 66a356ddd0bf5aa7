// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config merges the hidboot settings from the built-in defaults, an
// optional configuration file, HIDBOOT_* environment variables and the
// command line flags, in the order of increasing priority.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/embeddedgo/xmboot/hidboot/internal/device"
	"github.com/embeddedgo/xmboot/hidboot/internal/flash"
	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
	"github.com/embeddedgo/xmboot/hidboot/internal/usbio"
)

const EnvPrefix = "HIDBOOT"

// DefaultPollInterval is the delay between two status polls.
const DefaultPollInterval = 10 * time.Millisecond

// Keys
const (
	Transport    = "transport"
	USB          = "usb"
	Timeout      = "timeout"
	ReportID     = "report-id"
	PollRetries  = "poll-retries"
	PollInterval = "poll-interval"
	Capacity     = "capacity"
	NoChecksum   = "no-checksum"
	Verify       = "verify"
	Reset        = "reset"
	Quiet        = "quiet"
	Silent       = "silent"
	Simulate     = "simulate"
	Part         = "part"
	Debug        = "debug"
)

// Config holds the merged settings.
type Config struct {
	Transport    string        `mapstructure:"transport"`
	USB          string        `mapstructure:"usb"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReportID     uint8         `mapstructure:"report-id"`
	PollRetries  int           `mapstructure:"poll-retries"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	Capacity     int           `mapstructure:"capacity"`
	NoChecksum   bool          `mapstructure:"no-checksum"`
	Verify       bool          `mapstructure:"verify"`
	Reset        bool          `mapstructure:"reset"`
	Quiet        bool          `mapstructure:"quiet"`
	Silent       bool          `mapstructure:"silent"`
	Simulate     bool          `mapstructure:"simulate"`
	Part         string        `mapstructure:"part"`
	Debug        int           `mapstructure:"debug"`
}

// New returns a viper instance with the defaults set and the environment
// bound.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(Transport, "auto")
	v.SetDefault(USB, "")
	v.SetDefault(Timeout, usbio.DefaultTimeout)
	v.SetDefault(ReportID, 0)
	v.SetDefault(PollRetries, flash.DefaultPollRetries)
	v.SetDefault(PollInterval, DefaultPollInterval)
	v.SetDefault(Capacity, ihex.DefaultCapacity)
	v.SetDefault(NoChecksum, false)
	v.SetDefault(Verify, false)
	v.SetDefault(Reset, false)
	v.SetDefault(Quiet, false)
	v.SetDefault(Silent, false)
	v.SetDefault(Simulate, false)
	v.SetDefault(Part, "xmega128a4u")
	v.SetDefault(Debug, 0)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file, if any, overlays the changed flags of
// fs and decodes the result.
func Load(v *viper.Viper, file string, fs *pflag.FlagSet) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "config")
		}
	}
	if fs != nil {
		var err error
		fs.VisitAll(func(f *pflag.Flag) {
			if err == nil && slices.Contains(keys, f.Name) {
				err = v.BindPFlag(f.Name, f)
			}
		})
		if err != nil {
			return nil, errors.Wrap(err, "config")
		}
	}
	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if c.Silent {
		c.Quiet = true
	}
	if err := c.check(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	return c, nil
}

var keys = []string{
	Transport, USB, Timeout, ReportID, PollRetries, PollInterval, Capacity,
	NoChecksum, Verify, Reset, Quiet, Silent, Simulate, Part, Debug,
}

func (c *Config) check() error {
	if !slices.Contains(usbio.Names(), c.Transport) {
		return errors.Errorf(
			"unknown transport %q (valid: %s)",
			c.Transport, strings.Join(usbio.Names(), ", "),
		)
	}
	if c.PollRetries <= 0 {
		return errors.Errorf("poll-retries must be positive: %d", c.PollRetries)
	}
	if c.Capacity <= 0 {
		return errors.Errorf("capacity must be positive: %d", c.Capacity)
	}
	if _, ok := device.Parts[strings.ToLower(c.Part)]; !ok {
		return errors.Errorf("unknown part %q", c.Part)
	}
	return nil
}

// Target returns the MCU simulated by the --simulate mode.
func (c *Config) Target() device.Part {
	return device.Parts[strings.ToLower(c.Part)]
}

// FlashOptions returns the engine options.
func (c *Config) FlashOptions() flash.Options {
	return flash.Options{
		Verify:       c.Verify,
		Reset:        c.Reset,
		PollRetries:  c.PollRetries,
		PollInterval: c.PollInterval,
	}
}

// USBOptions returns the transport options for the vendor:product device.
func (c *Config) USBOptions(vendor, product uint16) usbio.Options {
	return usbio.Options{
		Transport: c.Transport,
		Vendor:    vendor,
		Product:   product,
		USB:       c.USB,
		Timeout:   c.Timeout,
		ReportID:  c.ReportID,
	}
}

// Parser returns the Intel HEX parser.
func (c *Config) Parser() *ihex.Parser {
	return &ihex.Parser{Capacity: c.Capacity, SkipChecksum: c.NoChecksum}
}
