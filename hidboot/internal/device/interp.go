// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device implements the bootloader side of the protocol: a command
// interpreter that owns the RAM page buffer and drives the MCU peripherals
// through the Backend interface.
package device

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
)

// WatchdogPeriod is the watchdog timeout armed by the ResetMCU command.
const WatchdogPeriod = 16 * time.Millisecond

// Production signature row offset of LOTNUM0.
const lotNum0 = 0x08

// Response is the result of a dispatched command. Payload is nil for
// commands that do not send an input report.
type Response struct {
	Result  uint8
	Payload []byte
}

// Interpreter executes bootloader commands. All its state is the page
// buffer with its pointer and the result of the last command.
type Interpreter struct {
	geo    Geometry
	nvm    Backend
	buf    []byte
	ptr    int
	result uint8
}

func New(nvm Backend, geo Geometry) *Interpreter {
	if geo.PageSize <= 0 || geo.PageSize%proto.ReportSize != 0 {
		panic(fmt.Sprintf("device: bad page size %d", geo.PageSize))
	}
	return &Interpreter{geo: geo, nvm: nvm, buf: make([]byte, geo.PageSize)}
}

func (d *Interpreter) Geometry() Geometry {
	return d.geo
}

// Status returns the current state of the bootloader.
func (d *Interpreter) Status() proto.Status {
	s := proto.Status{
		Version: proto.Version,
		PagePtr: uint16(d.ptr),
		Result:  d.result,
	}
	if d.nvm.Busy() {
		s.Busy = 1
	}
	return s
}

// WriteBuffer copies p into the page buffer at the page pointer and advances
// the pointer modulo the page size. It never responds.
func (d *Interpreter) WriteBuffer(p []byte) {
	for _, b := range p {
		d.buf[d.ptr] = b
		d.ptr = (d.ptr + 1) % len(d.buf)
	}
}

type handler func(d *Interpreter, c proto.Command) ([]byte, uint8)

var handlers = map[uint8]handler{
	proto.CmdNOP:             nop,
	proto.CmdSetPointer:      setPointer,
	proto.CmdReadBuffer:      readBuffer,
	proto.CmdEraseApp:        eraseApp,
	proto.CmdReadFlashCRCs:   readFlashCRCs,
	proto.CmdReadMCUIDs:      readMCUIDs,
	proto.CmdReadFuses:       readFuses,
	proto.CmdWritePage:       writePage,
	proto.CmdReadPage:        readPage,
	proto.CmdEraseUserSig:    eraseUserSig,
	proto.CmdWriteUserSig:    writeUserSig,
	proto.CmdReadUserSig:     readUserSig,
	proto.CmdReadSerial:      readSerial,
	proto.CmdResetMCU:        resetMCU,
	proto.CmdReadEEPROM:      readEEPROM,
	proto.CmdWriteEEPROMPage: writeEEPROMPage,
	proto.CmdReadEEPROMCRC:   readEEPROMCRC,
	proto.CmdReadFlash:       readFlash,
}

// Dispatch executes a single command. It never blocks on the NVM
// controller: commands that need it while it is busy are refused with
// proto.ResultBusy.
func (d *Interpreter) Dispatch(c proto.Command) Response {
	h := handlers[c.ID]
	if h == nil {
		d.result = proto.ResultUnknown
		return Response{Result: d.result}
	}
	payload, result := h(d, c)
	d.result = result
	if result != proto.ResultOK {
		payload = nil
	}
	return Response{result, payload}
}

func report() []byte {
	return make([]byte, proto.ReportSize)
}

func nop(d *Interpreter, c proto.Command) ([]byte, uint8) {
	return nil, proto.ResultOK
}

func setPointer(d *Interpreter, c proto.Command) ([]byte, uint8) {
	d.ptr = int(c.U16(0)) % len(d.buf)
	return nil, proto.ResultOK
}

func readBuffer(d *Interpreter, c proto.Command) ([]byte, uint8) {
	p := report()
	for i := range p {
		p[i] = d.buf[d.ptr]
		d.ptr = (d.ptr + 1) % len(d.buf)
	}
	return p, proto.ResultOK
}

// nvmResult converts the outcome of a backend operation to a result code.
func nvmResult(err error) uint8 {
	if err != nil {
		return proto.ResultFailed
	}
	return proto.ResultOK
}

func eraseApp(d *Interpreter, c proto.Command) ([]byte, uint8) {
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	return nil, nvmResult(d.nvm.Erase(Application))
}

func readFlashCRCs(d *Interpreter, c proto.Command) ([]byte, uint8) {
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	app, err := d.nvm.CRC(Application)
	if err != nil {
		return nil, proto.ResultFailed
	}
	boot, err := d.nvm.CRC(Boot)
	if err != nil {
		return nil, proto.ResultFailed
	}
	p := report()
	binary.LittleEndian.PutUint32(p[0:], app)
	binary.LittleEndian.PutUint32(p[4:], boot)
	return p, proto.ResultOK
}

func readMCUIDs(d *Interpreter, c proto.Command) ([]byte, uint8) {
	p := report()
	id := d.nvm.DeviceID()
	copy(p, id[:])
	return p, proto.ResultOK
}

func readFuses(d *Interpreter, c proto.Command) ([]byte, uint8) {
	p := report()
	p[0] = d.nvm.ReadFuse(0)
	p[1] = d.nvm.ReadFuse(1)
	p[2] = d.nvm.ReadFuse(2)
	p[3] = 0xff // there is no fuse byte 3
	p[4] = d.nvm.ReadFuse(4)
	p[5] = d.nvm.ReadFuse(5)
	return p, proto.ResultOK
}

func writePage(d *Interpreter, c proto.Command) ([]byte, uint8) {
	n := int(c.U16(0))
	if n >= d.geo.AppPages() {
		return nil, proto.ResultRange
	}
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	if err := d.nvm.LoadBuffer(Application, d.buf); err != nil {
		return nil, proto.ResultFailed
	}
	if err := d.nvm.CommitPage(Application, n); err != nil {
		return nil, proto.ResultFailed
	}
	d.ptr = 0
	return nil, proto.ResultOK
}

func readPage(d *Interpreter, c proto.Command) ([]byte, uint8) {
	n := int(c.U16(0))
	if n >= d.geo.AppPages() {
		return nil, proto.ResultRange
	}
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	if err := d.nvm.Read(Application, n*d.geo.PageSize, d.buf); err != nil {
		return nil, proto.ResultFailed
	}
	d.ptr = 0
	p := report()
	copy(p, d.buf)
	return p, proto.ResultOK
}

func eraseUserSig(d *Interpreter, c proto.Command) ([]byte, uint8) {
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	return nil, nvmResult(d.nvm.Erase(UserSignature))
}

func writeUserSig(d *Interpreter, c proto.Command) ([]byte, uint8) {
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	n := min(d.geo.UserSigSize, len(d.buf))
	if err := d.nvm.LoadBuffer(UserSignature, d.buf[:n]); err != nil {
		return nil, proto.ResultFailed
	}
	d.ptr = 0
	return nil, nvmResult(d.nvm.CommitPage(UserSignature, 0))
}

// readRange serves the commands that return a report sized window of
// a region.
func (d *Interpreter) readRange(r Region, addr int) ([]byte, uint8) {
	if addr+proto.ReportSize > d.geo.size(r) {
		return nil, proto.ResultRange
	}
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	p := report()
	if err := d.nvm.Read(r, addr, p); err != nil {
		return nil, proto.ResultFailed
	}
	return p, proto.ResultOK
}

func readUserSig(d *Interpreter, c proto.Command) ([]byte, uint8) {
	return d.readRange(UserSignature, int(c.U16(0)))
}

func readEEPROM(d *Interpreter, c proto.Command) ([]byte, uint8) {
	return d.readRange(EEPROM, int(c.U16(0)))
}

func readFlash(d *Interpreter, c proto.Command) ([]byte, uint8) {
	addr := c.U32()
	if addr > uint32(d.geo.AppSize) {
		return nil, proto.ResultRange
	}
	return d.readRange(Application, int(addr))
}

func readSerial(d *Interpreter, c proto.Command) ([]byte, uint8) {
	p := report()[:0]
	hexByte := func(off int) {
		p = fmt.Appendf(p, "%02X", d.nvm.ReadCalibration(lotNum0+off))
	}
	for i := 0; i < 6; i++ {
		hexByte(i)
	}
	p = append(p, '-')
	hexByte(6)
	p = append(p, '-')
	for i := 7; i < 11; i++ {
		hexByte(i)
	}
	p = append(p, 0)
	return p[:proto.ReportSize], proto.ResultOK
}

func resetMCU(d *Interpreter, c proto.Command) ([]byte, uint8) {
	d.nvm.ArmWatchdog(WatchdogPeriod)
	return nil, proto.ResultOK
}

func writeEEPROMPage(d *Interpreter, c proto.Command) ([]byte, uint8) {
	n, cnt := int(c.U16(0)), int(c.U16(1))
	if cnt == 0 {
		cnt = d.geo.EEPROMPageSize
	}
	if n >= d.geo.EEPROMSize/d.geo.EEPROMPageSize || cnt > d.geo.EEPROMPageSize {
		return nil, proto.ResultRange
	}
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	if err := d.nvm.LoadBuffer(EEPROM, d.buf[:cnt]); err != nil {
		return nil, proto.ResultFailed
	}
	d.ptr = 0
	return nil, nvmResult(d.nvm.CommitPage(EEPROM, n))
}

func readEEPROMCRC(d *Interpreter, c proto.Command) ([]byte, uint8) {
	if d.nvm.Busy() {
		return nil, proto.ResultBusy
	}
	crc, err := d.nvm.CRC(EEPROM)
	if err != nil {
		return nil, proto.ResultFailed
	}
	p := report()
	binary.LittleEndian.PutUint32(p, crc)
	return p, proto.ResultOK
}
