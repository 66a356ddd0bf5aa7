// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "time"

// Region identifies a non-volatile memory area.
type Region uint8

const (
	Application Region = iota
	Boot
	UserSignature
	EEPROM
)

var regionStr = [...]string{
	Application:   "application",
	Boot:          "boot",
	UserSignature: "user signature",
	EEPROM:        "EEPROM",
}

func (r Region) String() string {
	if int(r) < len(regionStr) {
		return regionStr[r]
	}
	return "region(?)"
}

// Backend gives the interpreter access to the MCU peripherals: the NVM
// controller, the CRC unit, fuses, the production signature row and the
// watchdog. Erase and CommitPage only start an operation. Its completion is
// reported by Busy.
type Backend interface {
	// Busy reports whether an NVM operation is in progress.
	Busy() bool

	// Erase erases the whole region.
	Erase(r Region) error

	// LoadBuffer loads p into the NVM page buffer of the region. For the
	// EEPROM only the loaded bytes are marked dirty.
	LoadBuffer(r Region, p []byte) error

	// CommitPage writes the NVM page buffer to the n-th page of the
	// region. EEPROM pages are written atomically: only the dirty bytes
	// are erased and rewritten.
	CommitPage(r Region, n int) error

	// Read copies the region content starting at addr to p.
	Read(r Region, addr int, p []byte) error

	// CRC calculates the CRC32 of the whole region.
	CRC(r Region) (uint32, error)

	ReadFuse(n int) byte
	ReadCalibration(n int) byte

	// DeviceID returns DEVID0, DEVID1, DEVID2 and REVID.
	DeviceID() [4]byte

	// ArmWatchdog enables the watchdog with the given timeout period and
	// never feeds it.
	ArmWatchdog(period time.Duration)
}

// Geometry describes the memory layout of the MCU.
type Geometry struct {
	AppSize        int // application section size
	PageSize       int // flash page size
	BootSize       int // boot section size
	EEPROMSize     int
	EEPROMPageSize int
	UserSigSize    int // user signature row size
}

// AppPages returns the number of application section pages.
func (g Geometry) AppPages() int {
	return g.AppSize / g.PageSize
}

func (g Geometry) size(r Region) int {
	switch r {
	case Application:
		return g.AppSize
	case Boot:
		return g.BootSize
	case UserSignature:
		return g.UserSigSize
	case EEPROM:
		return g.EEPROMSize
	}
	return 0
}

// Known XMEGA A parts.
var (
	XMega128A4U = Geometry{
		AppSize:        128 * 1024,
		PageSize:       256,
		BootSize:       8 * 1024,
		EEPROMSize:     2048,
		EEPROMPageSize: 32,
		UserSigSize:    256,
	}
	XMega256A3U = Geometry{
		AppSize:        256 * 1024,
		PageSize:       512,
		BootSize:       8 * 1024,
		EEPROMSize:     4096,
		EEPROMPageSize: 32,
		UserSigSize:    512,
	}
)

// Part describes a known MCU.
type Part struct {
	Signature [3]byte
	Geometry  Geometry
}

// Parts maps lower case part names to their descriptions.
var Parts = map[string]Part{
	"xmega128a4u": {[3]byte{0x1e, 0x97, 0x46}, XMega128A4U},
	"xmega256a3u": {[3]byte{0x1e, 0x98, 0x42}, XMega256A3U},
}

// PartBySignature returns the known part with the given signature.
func PartBySignature(sig [3]byte) (Part, bool) {
	for _, p := range Parts {
		if p.Signature == sig {
			return p, true
		}
	}
	return Part{}, false
}
