// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbio

import (
	"github.com/golang/glog"

	"github.com/embeddedgo/xmboot/hidboot/internal/device"
	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
)

// Loopback connects the host directly to an in-process command interpreter.
type Loopback struct {
	Dev *device.Interpreter

	// Sent logs all commands in the order they were sent.
	Sent []proto.Command

	// Polls counts the status reads.
	Polls int

	// Hook, if not nil, is called before every command is dispatched. A
	// non-nil error is returned by Send and the command is dropped.
	Hook func(c proto.Command) error

	payload []byte
	closed  bool
}

func NewLoopback(d *device.Interpreter) *Loopback {
	return &Loopback{Dev: d}
}

func (l *Loopback) Describe() Descr {
	return Descr{Transport: "loopback", Product: "simulated bootloader"}
}

func (l *Loopback) Send(c proto.Command) (err error) {
	defer wrapErr("Send "+c.String(), &err)
	if l.closed {
		return ErrClosed
	}
	if l.Hook != nil {
		if err = l.Hook(c); err != nil {
			return
		}
	}
	l.Sent = append(l.Sent, c)
	r := l.Dev.Dispatch(c)
	l.payload = r.Payload
	glog.V(3).Infof("loopback: %v -> %s", c, proto.ResultString(r.Result))
	return nil
}

func (l *Loopback) Status() (s proto.Status, err error) {
	defer wrapErr("Status", &err)
	if l.closed {
		return s, ErrClosed
	}
	l.Polls++
	// The frame goes through the codec like a real one.
	return proto.DecodeStatus(l.Dev.Status().Encode(0))
}

func (l *Loopback) Read(p []byte) (n int, err error) {
	defer wrapErr("Read", &err)
	if l.payload == nil {
		return 0, ErrNoPayload
	}
	n = copy(p, l.payload)
	l.payload = nil
	return n, nil
}

func (l *Loopback) Write(p []byte) (n int, err error) {
	defer wrapErr("Write", &err)
	if l.closed {
		return 0, ErrClosed
	}
	chunk := make([]byte, proto.ReportSize)
	n = copy(chunk, p)
	l.Dev.WriteBuffer(chunk)
	return n, nil
}

func (l *Loopback) Close() error {
	l.closed = true
	return nil
}

// Commands returns the ids of the sent commands.
func (l *Loopback) Commands() []uint8 {
	ids := make([]uint8, len(l.Sent))
	for i, c := range l.Sent {
		ids[i] = c.ID
	}
	return ids
}
