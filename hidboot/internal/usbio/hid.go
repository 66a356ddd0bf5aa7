// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbio

import (
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/sstallion/go-hid"

	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
)

// HID carries commands in feature reports, reads the status with
// GET_FEATURE, the payload from input reports and sends the page buffer
// chunks as output reports.
type HID struct {
	dev      *hid.Device
	descr    Descr
	reportID uint8
	timeout  time.Duration
	buf      [proto.FrameSize]byte
}

func openHID(o *Options) (Transport, error) {
	if o.USB != "" {
		// hidapi does not report the bus location of a device
		return nil, errNotSupported
	}
	if err := hid.Init(); err != nil {
		return nil, err
	}
	var infos []*hid.DeviceInfo
	err := hid.Enumerate(o.Vendor, o.Product, func(info *hid.DeviceInfo) error {
		infos = append(infos, info)
		return nil
	})
	if err == nil {
		switch len(infos) {
		case 0:
			err = errors.New("no HID devices in the bootloader mode were found")
		case 1:
		default:
			err = errors.New("found more than one HID device in the bootloader mode")
		}
	}
	if err != nil {
		hid.Exit()
		return nil, err
	}
	info := infos[0]
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		hid.Exit()
		return nil, err
	}
	return &HID{
		dev: dev,
		descr: Descr{
			Transport:    "hid",
			Location:     info.Path,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			Serial:       info.SerialNbr,
		},
		reportID: o.ReportID,
		timeout:  o.timeout(),
	}, nil
}

func (h *HID) Describe() Descr {
	return h.descr
}

func (h *HID) Send(c proto.Command) (err error) {
	defer wrapErr("Send "+c.String(), &err)
	glog.V(3).Infof("hid: send %v %#08x", c, c.Param)
	frame := c.Encode(h.reportID)
	n, err := h.dev.SendFeatureReport(frame)
	if err == nil && n < proto.CommandSize {
		err = ErrShortWrite
	}
	return
}

func (h *HID) Status() (s proto.Status, err error) {
	defer wrapErr("Status", &err)
	buf := h.buf[:proto.StatusSize]
	clear(buf)
	buf[0] = h.reportID
	n, err := h.dev.GetFeatureReport(buf)
	if err != nil {
		return
	}
	s, err = proto.DecodeStatus(buf[:n])
	glog.V(3).Infof("hid: status %+v", s)
	return
}

func (h *HID) Read(p []byte) (n int, err error) {
	defer wrapErr("Read", &err)
	n, err = h.dev.ReadWithTimeout(p, h.timeout)
	if errors.Is(err, hid.ErrTimeout) {
		err = ErrTimeout
	}
	return
}

func (h *HID) Write(p []byte) (n int, err error) {
	defer wrapErr("Write", &err)
	buf := h.buf[:]
	clear(buf)
	buf[0] = h.reportID
	n = copy(buf[1:], p)
	m, err := h.dev.Write(buf)
	if err == nil && m < len(buf) {
		err = ErrShortWrite
	}
	return
}

func (h *HID) Close() (err error) {
	err = h.dev.Close()
	if e := hid.Exit(); err == nil {
		err = e
	}
	wrapErr("Close", &err)
	return
}
