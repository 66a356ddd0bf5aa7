// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usbio provides the transports that carry bootloader frames between
// the host and the device.
//
// Every exchange follows the same order: Send the command, read its Status
// and, if the command responds with data and succeeded, Read the payload.
// Page buffer chunks are sent with Write and are never acknowledged.
package usbio

import (
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
)

// Transport moves protocol frames to and from a single bootloader.
type Transport interface {
	// Send sends the command.
	Send(c proto.Command) error

	// Status reads the status of the device. If no status is pending after
	// the last Send it asks the device for a fresh one.
	Status() (proto.Status, error)

	// Read reads the payload of the last command into p.
	Read(p []byte) (int, error)

	// Write writes a page buffer chunk.
	Write(p []byte) (int, error)

	Close() error

	Describe() Descr
}

// Descr describes an opened device.
type Descr struct {
	Transport    string
	Location     string
	Manufacturer string
	Product      string
	Serial       string
}

func (d Descr) String() string {
	s := d.Transport
	if d.Location != "" {
		s += " " + d.Location
	}
	if d.Product != "" {
		s += ": " + strings.TrimSpace(d.Manufacturer+" "+d.Product)
	}
	return s
}

// Error wraps every error returned by the transports.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "usb: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

var (
	ErrTimeout      = errors.New("timeout")
	ErrShortWrite   = errors.New("short write")
	ErrNoPayload    = errors.New("no response payload")
	ErrClosed       = errors.New("transport closed")
	ErrNoTransport  = errors.New("no transport could open the device")
	errNotSupported = errors.New("device does not support this transport")
)

// DefaultTimeout is the default time to wait for a single USB transfer.
const DefaultTimeout = time.Second

// Options select the device and the transport.
type Options struct {
	Transport string // auto, hid, bulk or control
	Vendor    uint16
	Product   uint16
	USB       string        // BUS:ADDR, optional
	Timeout   time.Duration // DefaultTimeout if zero
	ReportID  uint8
}

func (o *Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

type opener struct {
	name string
	open func(o *Options) (Transport, error)
}

// probes lists the transports in the order they are tried by Open.
var probes = []opener{
	{"hid", openHID},
	{"bulk", openBulk},
	{"control", openControl},
}

// Names returns the accepted values of Options.Transport.
func Names() []string {
	names := []string{"auto"}
	for _, p := range probes {
		names = append(names, p.name)
	}
	return names
}

// Open opens the device using the selected transport. In the auto mode the
// transports are probed in the HID, bulk, control order and the first one
// that opens the device wins.
func Open(o Options) (t Transport, err error) {
	defer wrapErr("Open", &err)
	sel := o.Transport
	if sel == "" {
		sel = "auto"
	}
	var errs []string
	for _, p := range probes {
		if sel != "auto" && sel != p.name {
			continue
		}
		t, err = p.open(&o)
		if err == nil {
			glog.V(1).Infof("usbio: opened %v", t.Describe())
			return t, nil
		}
		glog.V(1).Infof("usbio: %s: %v", p.name, err)
		if sel != "auto" {
			return nil, err
		}
		errs = append(errs, p.name+": "+err.Error())
	}
	if len(errs) == 0 {
		return nil, errors.Errorf("unknown transport %q", sel)
	}
	return nil, errors.Wrapf(
		ErrNoTransport, "%04x:%04x (%s)",
		o.Vendor, o.Product, strings.Join(errs, "; "),
	)
}
