// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proto defines the frames exchanged between the host and the
// USB bootloader: fixed-size command frames sent by the host and 6-byte
// status frames reported by the device.
package proto

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Version is the protocol revision implemented by this package. It is
// reported by the device in every status frame.
const Version uint8 = 2

const (
	ReportSize  = 64                // data bytes in a single report / packet
	CommandSize = 1 + 1 + 4         // report id, command, parameters
	FrameSize   = 1 + ReportSize    // report id + padded command
	StatusSize  = 1 + 1 + 1 + 2 + 1 // report id, version, busy, pointer, result
)

// Command ids.
const (
	CmdNOP             uint8 = 0x00
	CmdSetPointer      uint8 = 0x01
	CmdReadBuffer      uint8 = 0x02
	CmdEraseApp        uint8 = 0x03
	CmdReadFlashCRCs   uint8 = 0x04
	CmdReadMCUIDs      uint8 = 0x05
	CmdReadFuses       uint8 = 0x06
	CmdWritePage       uint8 = 0x07
	CmdReadPage        uint8 = 0x08
	CmdEraseUserSig    uint8 = 0x09
	CmdWriteUserSig    uint8 = 0x0a
	CmdReadUserSig     uint8 = 0x0b
	CmdReadSerial      uint8 = 0x0c
	CmdResetMCU        uint8 = 0x0e
	CmdReadEEPROM      uint8 = 0x0f
	CmdWriteEEPROMPage uint8 = 0x10
	CmdReadEEPROMCRC   uint8 = 0x11
	CmdReadFlash       uint8 = 0x12
)

var cmdStr = [...]string{
	CmdNOP:             "NOP",
	CmdSetPointer:      "SetPointer",
	CmdReadBuffer:      "ReadBuffer",
	CmdEraseApp:        "EraseApp",
	CmdReadFlashCRCs:   "ReadFlashCRCs",
	CmdReadMCUIDs:      "ReadMCUIDs",
	CmdReadFuses:       "ReadFuses",
	CmdWritePage:       "WritePage",
	CmdReadPage:        "ReadPage",
	CmdEraseUserSig:    "EraseUserSig",
	CmdWriteUserSig:    "WriteUserSig",
	CmdReadUserSig:     "ReadUserSig",
	CmdReadSerial:      "ReadSerial",
	CmdResetMCU:        "ResetMCU",
	CmdReadEEPROM:      "ReadEEPROM",
	CmdWriteEEPROMPage: "WriteEEPROMPage",
	CmdReadEEPROMCRC:   "ReadEEPROMCRC",
	CmdReadFlash:       "ReadFlash",
}

// CommandName returns the printable name of the command id.
func CommandName(id uint8) string {
	if int(id) < len(cmdStr) && cmdStr[id] != "" {
		return cmdStr[id]
	}
	return "cmd(" + hex2(id) + ")"
}

// Result codes reported in the status frame.
const (
	ResultOK      uint8 = 0x00
	ResultRange   uint8 = 0x01 // address or index out of range
	ResultBusy    uint8 = 0x02 // NVM controller busy, command refused
	ResultFailed  uint8 = 0x03 // backend failure
	ResultUnknown uint8 = 0xff // unknown command
)

var resultStr = map[uint8]string{
	ResultOK:      "success",
	ResultRange:   "address out of range",
	ResultBusy:    "NVM controller busy",
	ResultFailed:  "NVM operation failed",
	ResultUnknown: "unknown command",
}

// ResultString returns the description of the result code.
func ResultString(r uint8) string {
	if s, ok := resultStr[r]; ok {
		return s
	}
	return "unknown result " + hex2(r)
}

func hex2(b uint8) string {
	const digits = "0123456789abcdef"
	return "0x" + string([]byte{digits[b>>4], digits[b&15]})
}

// ErrShortFrame is returned when a received frame is shorter than its fixed
// layout requires.
var ErrShortFrame = errors.New("short frame")

// Command is a single bootloader command. The parameter is interpreted as
// one 32-bit value, two 16-bit values or four bytes depending on the ID.
type Command struct {
	ID    uint8
	Param uint32
}

// Cmd returns a command with a 32-bit parameter.
func Cmd(id uint8, param uint32) Command {
	return Command{id, param}
}

// Cmd16 returns a command with two 16-bit parameters.
func Cmd16(id uint8, p0, p1 uint16) Command {
	return Command{id, uint32(p0) | uint32(p1)<<16}
}

// Cmd8 returns a command with four 8-bit parameters.
func Cmd8(id uint8, p [4]uint8) Command {
	return Command{id, binary.LittleEndian.Uint32(p[:])}
}

func (c Command) U32() uint32 { return c.Param }

func (c Command) U16(i int) uint16 { return uint16(c.Param >> (16 * uint(i&1))) }

func (c Command) U8(i int) uint8 { return uint8(c.Param >> (8 * uint(i&3))) }

func (c Command) String() string {
	return CommandName(c.ID)
}

// Encode returns the padded command frame.
func (c Command) Encode(reportID uint8) []byte {
	buf := make([]byte, FrameSize)
	buf[0] = reportID
	buf[1] = c.ID
	binary.LittleEndian.PutUint32(buf[2:], c.Param)
	return buf
}

// DecodeCommand decodes a command frame (report id first).
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) < CommandSize {
		return Command{}, errors.Wrapf(
			ErrShortFrame, "command: %d bytes", len(frame),
		)
	}
	return Command{frame[1], binary.LittleEndian.Uint32(frame[2:])}, nil
}

// Status is the device state reported after every command and on every
// status poll.
type Status struct {
	Version uint8
	Busy    uint8
	PagePtr uint16
	Result  uint8
}

// Ready reports whether the device has no NVM operation in progress.
func (s Status) Ready() bool {
	return s.Busy == 0
}

func (s Status) Encode(reportID uint8) []byte {
	buf := make([]byte, StatusSize)
	buf[0] = reportID
	buf[1] = s.Version
	buf[2] = s.Busy
	binary.LittleEndian.PutUint16(buf[3:], s.PagePtr)
	buf[5] = s.Result
	return buf
}

// DecodeStatus decodes a status frame (report id first).
func DecodeStatus(frame []byte) (Status, error) {
	if len(frame) < StatusSize {
		return Status{}, errors.Wrapf(
			ErrShortFrame, "status: %d bytes", len(frame),
		)
	}
	return Status{
		Version: frame[1],
		Busy:    frame[2],
		PagePtr: binary.LittleEndian.Uint16(frame[3:]),
		Result:  frame[5],
	}, nil
}
