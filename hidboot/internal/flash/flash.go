// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flash implements the host side of the bootloader protocol: the
// engine that identifies the device, programs the application section and
// verifies the result.
package flash

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
	"github.com/embeddedgo/xmboot/hidboot/internal/usbio"
)

// State is a step of the flashing procedure.
type State uint8

const (
	Idle State = iota
	Identify
	Erase
	Transfer
	Commit
	WaitReady
	VerifyCRC
	VerifyReadback
	Reset
	Done
	Failed
)

var stateStr = [...]string{
	Idle:           "idle",
	Identify:       "identify",
	Erase:          "erase",
	Transfer:       "transfer page",
	Commit:         "commit page",
	WaitReady:      "wait ready",
	VerifyCRC:      "verify CRC",
	VerifyReadback: "verify readback",
	Reset:          "reset",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateStr) {
		return stateStr[s]
	}
	return "state(?)"
}

const DefaultPollRetries = 100

type Options struct {
	Verify bool // read the application section back after programming
	Reset  bool // reset the MCU at the end

	// PollRetries is the number of status reads after an erase or write
	// before the device is declared stuck (DefaultPollRetries if zero).
	PollRetries int

	// PollInterval is the fixed delay between two status reads.
	PollInterval time.Duration

	// Progress, if not nil, is called after every programmed or read
	// chunk of a long running state.
	Progress func(s State, cur, max int)
}

// DeviceInfo is the result of the identification.
type DeviceInfo struct {
	Descr  usbio.Descr
	Serial string
	ID     [4]byte // DEVID0, DEVID1, DEVID2, REVID
	Fuses  [6]byte
}

// Signature returns the MCU signature (DEVID0..2).
func (d *DeviceInfo) Signature() [3]byte {
	return [3]byte(d.ID[:3])
}

// Report summarizes a successful Run.
type Report struct {
	Device   *DeviceInfo
	Pages    int
	CRC      uint32 // application section CRC
	BootCRC  uint32
	Verified bool
	Reset    bool
}

// Engine drives a single bootloader through the transport. It is not safe
// for concurrent use.
type Engine struct {
	t     usbio.Transport
	opts  Options
	state State
	dev   *DeviceInfo // set by a successful Identify
	buf   [proto.ReportSize]byte
}

func New(t usbio.Transport, opts Options) *Engine {
	if opts.PollRetries <= 0 {
		opts.PollRetries = DefaultPollRetries
	}
	return &Engine{t: t, opts: opts}
}

// State returns the current state of the engine. After a failed operation it
// returns Failed.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) enter(s State) {
	if e.state != s {
		glog.V(2).Infof("flash: %v", s)
	}
	e.state = s
}

func (e *Engine) fail(err *error) {
	if *err == nil {
		return
	}
	if _, ok := (*err).(*Error); !ok {
		*err = &Error{e.state, *err}
	}
	glog.V(1).Infof("%v", *err)
	e.state = Failed
}

func (e *Engine) progress(cur, max int) {
	if e.opts.Progress != nil {
		e.opts.Progress(e.state, cur, max)
	}
}

// exec sends the command, checks its status and, if payload is not nil,
// reads the response payload.
func (e *Engine) exec(c proto.Command, payload []byte) (s proto.Status, err error) {
	if err = e.t.Send(c); err != nil {
		return
	}
	if s, err = e.t.Status(); err != nil {
		return
	}
	if s.Version != proto.Version {
		return s, &VersionError{s.Version}
	}
	if s.Result != proto.ResultOK {
		return s, &ResultError{c, s.Result}
	}
	if payload != nil {
		var n int
		if n, err = e.t.Read(payload); err != nil {
			return
		}
		if n < len(payload) {
			err = errors.Wrapf(proto.ErrShortFrame, "%v payload: %d bytes", c, n)
		}
	}
	return
}

// waitReady polls the device status until the NVM controller is idle. It
// reads the status at least once.
func (e *Engine) waitReady(c proto.Command) error {
	for i := 0; i < e.opts.PollRetries; i++ {
		if i != 0 && e.opts.PollInterval > 0 {
			time.Sleep(e.opts.PollInterval)
		}
		s, err := e.t.Status()
		if err != nil {
			return err
		}
		if s.Ready() {
			glog.V(3).Infof("flash: %v ready after %d polls", c, i+1)
			return nil
		}
	}
	return &TimeoutError{c, e.opts.PollRetries}
}

// Identify checks the protocol version and reads the identity of the device.
func (e *Engine) Identify() (info *DeviceInfo, err error) {
	defer e.fail(&err)
	e.enter(Identify)
	s, err := e.t.Status()
	if err != nil {
		return nil, err
	}
	if s.Version != proto.Version {
		return nil, &VersionError{s.Version}
	}
	info = &DeviceInfo{Descr: e.t.Describe()}
	buf := e.buf[:]
	if _, err = e.exec(proto.Cmd(proto.CmdReadSerial, 0), buf); err != nil {
		return nil, err
	}
	serial, _, _ := bytes.Cut(buf, []byte{0})
	info.Serial = string(serial)
	if _, err = e.exec(proto.Cmd(proto.CmdReadMCUIDs, 0), buf); err != nil {
		return nil, err
	}
	copy(info.ID[:], buf)
	if _, err = e.exec(proto.Cmd(proto.CmdReadFuses, 0), buf); err != nil {
		return nil, err
	}
	copy(info.Fuses[:], buf)
	e.dev = info
	return info, nil
}

// Run programs the image into the application section of the device. The
// device is identified first unless Identify has already succeeded. Nothing
// is erased if the image does not match the device. A failure after the
// erase leaves the application section partially programmed.
func (e *Engine) Run(img *ihex.Image) (rep *Report, err error) {
	defer e.fail(&err)
	e.enter(Idle)
	if ps := int(img.Info.PageSize); ps%proto.ReportSize != 0 {
		return nil, &ihex.Error{Err: &ihex.InfoError{Msg: "page size is not a multiple of the report size"}}
	}
	dev := e.dev
	if dev == nil {
		if dev, err = e.Identify(); err != nil {
			return nil, err
		}
	}
	e.enter(Identify)
	if sig := dev.Signature(); sig != img.Info.Signature {
		return nil, &CompatibilityError{Image: img.Info.Signature, Device: sig}
	}
	rep = &Report{Device: dev, Pages: img.Pages()}

	e.enter(Erase)
	erase := proto.Cmd(proto.CmdEraseApp, 0)
	if _, err = e.exec(erase, nil); err != nil {
		return nil, err
	}
	if err = e.waitReady(erase); err != nil {
		return nil, err
	}

	e.enter(Transfer)
	if _, err = e.exec(proto.Cmd(proto.CmdSetPointer, 0), nil); err != nil {
		return nil, err
	}
	for n := 0; n < rep.Pages; n++ {
		if err = e.writePage(n, img.Page(n)); err != nil {
			return nil, err
		}
		e.progress(n+1, rep.Pages)
	}

	e.enter(VerifyCRC)
	rep.CRC, rep.BootCRC, err = e.FlashCRCs()
	if err != nil {
		return nil, err
	}
	if rep.CRC != img.CRC {
		return nil, &IntegrityError{Addr: -1, Want: img.CRC, Got: rep.CRC}
	}

	if e.opts.Verify {
		e.enter(VerifyReadback)
		if err = e.verify(img.Flash()); err != nil {
			return nil, err
		}
		rep.Verified = true
	}

	if e.opts.Reset {
		e.enter(Reset)
		// The device resets before it could respond.
		if err = e.t.Send(proto.Cmd(proto.CmdResetMCU, 0)); err != nil {
			return nil, err
		}
		rep.Reset = true
	}
	e.enter(Done)
	return rep, nil
}

// writePage sends the page in address order and commits it. The page
// pointer wraps to 0 after the last chunk.
func (e *Engine) writePage(n int, page []byte) error {
	e.enter(Transfer)
	for off := 0; off < len(page); off += proto.ReportSize {
		if _, err := e.t.Write(page[off : off+proto.ReportSize]); err != nil {
			return err
		}
	}
	e.enter(Commit)
	c := proto.Cmd16(proto.CmdWritePage, uint16(n), 0)
	if _, err := e.exec(c, nil); err != nil {
		return err
	}
	e.enter(WaitReady)
	return e.waitReady(c)
}

func (e *Engine) verify(want []byte) error {
	buf := e.buf[:]
	for addr := 0; addr < len(want); addr += len(buf) {
		if _, err := e.exec(proto.Cmd(proto.CmdReadFlash, uint32(addr)), buf); err != nil {
			return err
		}
		for i, b := range buf[:min(len(buf), len(want)-addr)] {
			if w := want[addr+i]; b != w {
				return &IntegrityError{Addr: addr + i, Want: uint32(w), Got: uint32(b)}
			}
		}
		e.progress(addr+len(buf), len(want))
	}
	return nil
}

// FlashCRCs returns the CRCs of the application and boot sections.
func (e *Engine) FlashCRCs() (app, boot uint32, err error) {
	buf := e.buf[:]
	if _, err = e.exec(proto.Cmd(proto.CmdReadFlashCRCs, 0), buf); err != nil {
		return
	}
	return binary.LittleEndian.Uint32(buf), binary.LittleEndian.Uint32(buf[4:]), nil
}

// ReadFlash reads n bytes of the application section starting at addr.
func (e *Engine) ReadFlash(addr, n int) (data []byte, err error) {
	defer e.fail(&err)
	e.enter(VerifyReadback)
	return e.read(n, func(off int) proto.Command {
		return proto.Cmd(proto.CmdReadFlash, uint32(addr+off))
	})
}

// ReadEEPROM reads n bytes of the EEPROM starting at addr.
func (e *Engine) ReadEEPROM(addr, n int) (data []byte, err error) {
	defer e.fail(&err)
	e.enter(VerifyReadback)
	return e.read(n, func(off int) proto.Command {
		return proto.Cmd16(proto.CmdReadEEPROM, uint16(addr+off), 0)
	})
}

func (e *Engine) read(n int, cmd func(off int) proto.Command) ([]byte, error) {
	data := make([]byte, 0, n)
	buf := e.buf[:]
	for len(data) < n {
		if _, err := e.exec(cmd(len(data)), buf); err != nil {
			return nil, err
		}
		data = append(data, buf[:min(len(buf), n-len(data))]...)
		e.progress(len(data), n)
	}
	return data, nil
}

// WriteEEPROMPage writes p at the beginning of the n-th EEPROM page. Bytes
// of the page not covered by p keep their content.
func (e *Engine) WriteEEPROMPage(n int, p []byte) (err error) {
	defer e.fail(&err)
	if len(p) == 0 || len(p) > proto.ReportSize {
		return errors.Errorf("bad EEPROM page data length %d", len(p))
	}
	e.enter(Transfer)
	if _, err = e.exec(proto.Cmd(proto.CmdSetPointer, 0), nil); err != nil {
		return
	}
	if _, err = e.t.Write(p); err != nil {
		return
	}
	e.enter(Commit)
	c := proto.Cmd16(proto.CmdWriteEEPROMPage, uint16(n), uint16(len(p)))
	if _, err = e.exec(c, nil); err != nil {
		return
	}
	e.enter(WaitReady)
	if err = e.waitReady(c); err != nil {
		return
	}
	e.enter(Done)
	return nil
}

// EEPROMCRC returns the CRC of the whole EEPROM.
func (e *Engine) EEPROMCRC() (crc uint32, err error) {
	defer e.fail(&err)
	e.enter(VerifyCRC)
	buf := e.buf[:]
	if _, err = e.exec(proto.Cmd(proto.CmdReadEEPROMCRC, 0), buf); err != nil {
		return
	}
	return binary.LittleEndian.Uint32(buf), nil
}
