// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"strconv"
	"strings"

	usb "github.com/google/gousb"
	"github.com/pkg/errors"
)

var (
	ErrNoDevice    = errors.New("no USB devices in the bootloader mode were found")
	ErrManyDevices = errors.New("found more than one USB device in the bootloader mode")
)

// ParseBusAddr parses the BUS:ADDR device selector. It returns -1, -1 if
// busAddr is malformed.
func ParseBusAddr(busAddr string) (bus, addr int) {
	s := strings.Split(busAddr, ":")
	if len(s) != 2 {
		return -1, -1
	}
	b, err := strconv.ParseUint(s[0], 10, 8)
	if err != nil {
		return -1, -1
	}
	a, err := strconv.ParseUint(s[1], 10, 8)
	if err != nil {
		return -1, -1
	}
	return int(b), int(a)
}

// OpenUSB opens the only USB device with the given ids. If busAddr is not
// empty the device must also be at the BUS:ADDR location. The caller closes
// dev before ctx.
func OpenUSB(vendor, product usb.ID, busAddr string) (ctx *usb.Context, dev *usb.Device, err error) {
	bus, addr := -1, -1
	if busAddr != "" {
		if bus, addr = ParseBusAddr(busAddr); bus < 0 {
			err = errors.New("bad USB device address: " + busAddr)
			return
		}
	}
	ctx = usb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if bus >= 0 && (desc.Bus != bus || desc.Address != addr) {
			return false
		}
		return desc.Vendor == vendor && desc.Product == product
	})
	switch {
	case err != nil:
	case len(devs) == 0:
		err = ErrNoDevice
	case len(devs) > 1:
		err = ErrManyDevices
	default:
		return ctx, devs[0], nil
	}
	for _, d := range devs {
		d.Close()
	}
	ctx.Close()
	return nil, nil, err
}
