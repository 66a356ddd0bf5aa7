// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbio

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	usb "github.com/google/gousb"

	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
	"github.com/embeddedgo/xmboot/hidboot/internal/util"
)

// Vendor requests used by the control transport in addition to the command
// ids.
const (
	reqStatus      uint8 = 0xf0
	reqPayload     uint8 = 0xf1
	reqWriteBuffer uint8 = 0xf2
)

const (
	vendorOut = usb.ControlOut | usb.ControlVendor | usb.ControlDevice
	vendorIn  = usb.ControlIn | usb.ControlVendor | usb.ControlDevice
)

// usbConn is the part shared by the bulk and control transports.
type usbConn struct {
	ctx     *usb.Context
	dev     *usb.Device
	intf    *usb.Interface
	done    func()
	descr   Descr
	timeout time.Duration
}

func openUSB(o *Options, transport string) (*usbConn, error) {
	ctx, dev, err := util.OpenUSB(usb.ID(o.Vendor), usb.ID(o.Product), o.USB)
	if err != nil {
		return nil, err
	}
	dev.SetAutoDetach(true)
	dev.ControlTimeout = o.timeout()
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	c := &usbConn{
		ctx:     ctx,
		dev:     dev,
		intf:    intf,
		done:    done,
		timeout: o.timeout(),
		descr: Descr{
			Transport: transport,
			Location:  fmt.Sprintf("%d:%d", dev.Desc.Bus, dev.Desc.Address),
		},
	}
	// String descriptors are informational only.
	c.descr.Manufacturer, _ = dev.Manufacturer()
	c.descr.Product, _ = dev.Product()
	c.descr.Serial, _ = dev.SerialNumber()
	return c, nil
}

func (c *usbConn) Describe() Descr {
	return c.descr
}

func (c *usbConn) Close() (err error) {
	c.done()
	c.dev.Close()
	err = c.ctx.Close()
	wrapErr("Close", &err)
	return
}

func (c *usbConn) command(cm proto.Command) (err error) {
	defer wrapErr("Send "+cm.String(), &err)
	glog.V(3).Infof("%s: send %v %#08x", c.descr.Transport, cm, cm.Param)
	_, err = c.dev.Control(vendorOut, cm.ID, cm.U16(0), cm.U16(1), nil)
	return
}

// Bulk sends the commands as vendor control requests and moves everything
// else through a pair of bulk endpoints. After every command the device
// queues the status frame followed by the payload, if any, on the IN
// endpoint.
type Bulk struct {
	*usbConn
	in      *usb.InEndpoint
	out     *usb.OutEndpoint
	pending bool
	buf     [proto.ReportSize]byte
}

func openBulk(o *Options) (Transport, error) {
	c, err := openUSB(o, "bulk")
	if err != nil {
		return nil, err
	}
	t := &Bulk{usbConn: c}
	for _, ep := range c.intf.Setting.Endpoints {
		if ep.TransferType != usb.TransferTypeBulk {
			continue
		}
		if ep.Direction == usb.EndpointDirectionIn {
			if t.in == nil {
				t.in, err = c.intf.InEndpoint(ep.Number)
			}
		} else if t.out == nil {
			t.out, err = c.intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	if t.in == nil || t.out == nil {
		c.Close()
		return nil, errNotSupported
	}
	return t, nil
}

func (t *Bulk) Send(c proto.Command) error {
	if err := t.command(c); err != nil {
		return err
	}
	t.pending = true
	return nil
}

func (t *Bulk) read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	n, err := t.in.ReadContext(ctx, p)
	if err != nil && ctx.Err() != nil {
		err = ErrTimeout
	}
	return n, err
}

func (t *Bulk) Status() (s proto.Status, err error) {
	if !t.pending {
		if err = t.Send(proto.Cmd(proto.CmdNOP, 0)); err != nil {
			return
		}
	}
	defer wrapErr("Status", &err)
	t.pending = false
	n, err := t.read(t.buf[:])
	if err != nil {
		return
	}
	s, err = proto.DecodeStatus(t.buf[:n])
	glog.V(3).Infof("bulk: status %+v", s)
	return
}

func (t *Bulk) Read(p []byte) (n int, err error) {
	defer wrapErr("Read", &err)
	return t.read(p)
}

func (t *Bulk) Write(p []byte) (n int, err error) {
	defer wrapErr("Write", &err)
	buf := t.buf[:]
	clear(buf)
	copy(buf, p)
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	m, err := t.out.WriteContext(ctx, buf)
	if err == nil && m != len(buf) {
		err = ErrShortWrite
	}
	return min(m, len(p)), err
}

// Control uses vendor control requests only: commands and page buffer chunks
// are OUT requests, the status and the payload are read with IN requests.
type Control struct {
	*usbConn
	buf [proto.ReportSize]byte
}

func openControl(o *Options) (Transport, error) {
	c, err := openUSB(o, "control")
	if err != nil {
		return nil, err
	}
	return &Control{usbConn: c}, nil
}

func (t *Control) Send(c proto.Command) error {
	return t.command(c)
}

func (t *Control) Status() (s proto.Status, err error) {
	defer wrapErr("Status", &err)
	n, err := t.dev.Control(vendorIn, reqStatus, 0, 0, t.buf[:proto.StatusSize])
	if err != nil {
		return
	}
	s, err = proto.DecodeStatus(t.buf[:n])
	glog.V(3).Infof("control: status %+v", s)
	return
}

func (t *Control) Read(p []byte) (n int, err error) {
	defer wrapErr("Read", &err)
	if len(p) > proto.ReportSize {
		p = p[:proto.ReportSize]
	}
	return t.dev.Control(vendorIn, reqPayload, 0, 0, p)
}

func (t *Control) Write(p []byte) (n int, err error) {
	defer wrapErr("Write", &err)
	buf := t.buf[:]
	clear(buf)
	copy(buf, p)
	m, err := t.dev.Control(vendorOut, reqWriteBuffer, 0, 0, buf)
	if err == nil && m != len(buf) {
		err = ErrShortWrite
	}
	return min(m, len(p)), err
}
