// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
	"github.com/embeddedgo/xmboot/hidboot/internal/usbio"
)

// Error wraps every error returned by the engine with the state it failed
// in.
type Error struct {
	State State
	Err   error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "flash: " + e.State.String() + ": " + e.Err.Error()
}

// ResultError reports a command refused by the device.
type ResultError struct {
	Cmd    proto.Command
	Result uint8
}

func (e *ResultError) Error() string {
	return e.Cmd.String() + ": " + proto.ResultString(e.Result)
}

// TimeoutError reports a device that stayed busy for all the polls.
type TimeoutError struct {
	Cmd   proto.Command
	Polls int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: device still busy after %d polls", e.Cmd, e.Polls)
}

// VersionError reports a bootloader that speaks another protocol version.
type VersionError struct {
	Version uint8
}

func (e *VersionError) Error() string {
	return fmt.Sprintf(
		"unsupported protocol version %d (want %d)", e.Version, proto.Version,
	)
}

// CompatibilityError reports an image built for another MCU.
type CompatibilityError struct {
	Image, Device [3]byte
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf(
		"image signature %X does not match device signature %X",
		e.Image[:], e.Device[:],
	)
}

// IntegrityError reports a programmed device that does not match the image.
// Addr is -1 for a CRC mismatch.
type IntegrityError struct {
	Addr      int
	Want, Got uint32
}

func (e *IntegrityError) Error() string {
	if e.Addr < 0 {
		return fmt.Sprintf(
			"device CRC %08X does not match image CRC %08X", e.Got, e.Want,
		)
	}
	return fmt.Sprintf(
		"readback mismatch at %#06x: %02X, want %02X", e.Addr, e.Got, e.Want,
	)
}

// ErrorKind classifies errors for reporting.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindProtocol
	KindImage
	KindCompatibility
	KindIntegrity
)

var kindStr = [...]string{
	KindUnknown:       "error",
	KindTransport:     "transport error",
	KindProtocol:      "protocol error",
	KindImage:         "image error",
	KindCompatibility: "compatibility error",
	KindIntegrity:     "integrity error",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindStr) {
		return kindStr[k]
	}
	return kindStr[KindUnknown]
}

// Kind returns the class of err.
func Kind(err error) ErrorKind {
	var (
		ie *IntegrityError
		ce *CompatibilityError
		re *ResultError
		te *TimeoutError
		ve *VersionError
		he *ihex.Error
		ue *usbio.Error
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &ie):
		return KindIntegrity
	case errors.As(err, &ce):
		return KindCompatibility
	case errors.As(err, &re), errors.As(err, &te), errors.As(err, &ve),
		errors.Is(err, proto.ErrShortFrame):
		return KindProtocol
	case errors.As(err, &he):
		return KindImage
	case errors.As(err, &ue):
		return KindTransport
	}
	var (
		pe  *ihex.ParseError
		rge *ihex.RangeError
		ife *ihex.InfoError
	)
	if errors.As(err, &pe) || errors.As(err, &rge) || errors.As(err, &ife) ||
		errors.Is(err, ihex.ErrNoInfo) {
		return KindImage
	}
	return KindUnknown
}
