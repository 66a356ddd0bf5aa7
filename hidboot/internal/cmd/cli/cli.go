// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cli contains the code shared by the hidboot commands: the common
// flags, the configuration loading and the device opening.
package cli

import (
	"flag"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/embeddedgo/xmboot/hidboot/internal/config"
	"github.com/embeddedgo/xmboot/hidboot/internal/device"
	"github.com/embeddedgo/xmboot/hidboot/internal/flash"
	"github.com/embeddedgo/xmboot/hidboot/internal/usbio"
	"github.com/embeddedgo/xmboot/hidboot/internal/util"
)

var (
	configFile string
	out        = util.NewPrinter(false, false)
)

// AddFlags adds the flags shared by all commands to the root command.
func AddFlags(root *cobra.Command) {
	fs := root.PersistentFlags()
	fs.StringVar(&configFile, "config", "", "read the settings from `FILE`")
	fs.String(config.Transport, "auto", "select the transport: auto, hid, bulk or control")
	fs.String(config.USB, "", "select the USB device by `BUS:ADDR` (bulk and control only)")
	fs.Duration(config.Timeout, usbio.DefaultTimeout, "USB transfer timeout")
	fs.Uint8(config.ReportID, 0, "HID report id")
	fs.Int(config.PollRetries, flash.DefaultPollRetries, "status polls before a busy device is declared stuck")
	fs.Duration(config.PollInterval, config.DefaultPollInterval, "delay between two status polls")
	fs.BoolP(config.Quiet, "q", false, "print only the status lines")
	fs.BoolP(config.Silent, "s", false, "print nothing, implies -q")
	fs.Bool(config.Simulate, false, "talk to a simulated device instead of the USB one")
	fs.String(config.Part, "xmega128a4u", "MCU simulated by --simulate")
	fs.Int(config.Debug, 0, "protocol trace verbosity (0-3)")
}

// Env is the environment of a running command.
type Env struct {
	Config *config.Config
	Out    *util.Printer

	// Sim is the simulated device memory in the --simulate mode.
	Sim *device.MemBackend
}

// Setup loads the configuration for cmd and configures the logging.
func Setup(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.Load(config.New(), configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	out = util.NewPrinter(cfg.Quiet, cfg.Silent)
	if cfg.Debug > 0 {
		flag.Set("logtostderr", "true")
		flag.Set("v", strconv.Itoa(cfg.Debug))
	}
	glog.V(1).Infof("config: %+v", *cfg)
	return &Env{Config: cfg, Out: out}, nil
}

// ParseIDs parses the vendor and product id arguments.
func ParseIDs(vendor, product string) (vid, pid uint16, err error) {
	if vid, err = util.ParseID(vendor); err != nil {
		return
	}
	pid, err = util.ParseID(product)
	return
}

// Open opens the bootloader with the given vendor and product ids.
func (e *Env) Open(vendor, product string) (usbio.Transport, error) {
	if e.Config.Simulate {
		part := e.Config.Target()
		e.Sim = device.NewMemBackend(part.Geometry, part.Signature)
		return usbio.NewLoopback(device.New(e.Sim, part.Geometry)), nil
	}
	vid, pid, err := ParseIDs(vendor, product)
	if err != nil {
		return nil, err
	}
	return usbio.Open(e.Config.USBOptions(vid, pid))
}

// Engine returns the flashing engine that reports its progress on e.Out.
func (e *Env) Engine(t usbio.Transport) *flash.Engine {
	opts := e.Config.FlashOptions()
	opts.Progress = func(s flash.State, cur, max int) {
		switch s {
		case flash.VerifyReadback:
			e.Out.Progress("Reading:", cur, max, 1024, "KiB")
		default:
			e.Out.Progress("Writing:", cur, max, 1, "pages")
		}
	}
	return flash.New(t, opts)
}

// PrintDevice prints the identity of the device.
func (e *Env) PrintDevice(d *flash.DeviceInfo) {
	e.Out.Statusf("Target found: %v\n", d.Descr)
	if d.Descr.Manufacturer != "" {
		e.Out.Infof("Manufacturer:\t%s\n", d.Descr.Manufacturer)
	}
	if d.Descr.Product != "" {
		e.Out.Infof("Product:\t%s\n", d.Descr.Product)
	}
	e.Out.Infof("Serial:\t\t%s\n", d.Serial)
	e.Out.Infof("MCU ID:\t\t%X rev %02X\n", d.ID[:3], d.ID[3])
	e.Out.Infof("Fuses:\t\t% X\n", d.Fuses[:])
}

// Exit flushes the log and, if err is not nil, reports it and exits with
// status 1.
func Exit(err error) {
	glog.Flush()
	if err == nil {
		return
	}
	out.Errorf("hidboot: %v: %v", flash.Kind(err), err)
	os.Exit(1)
}
