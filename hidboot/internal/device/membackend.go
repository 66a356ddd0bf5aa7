// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"bytes"
	"hash/crc32"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrBootProtected = errors.New("boot section is write protected")
	ErrBufferSize    = errors.New("bad page buffer size")
)

// Span is a range of flat flash addresses: the application section
// starts at 0 and is directly followed by the boot section.
type Span struct {
	Start, End int
}

func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Commit records a single CommitPage call.
type Commit struct {
	Region Region
	Page   int
}

// MemBackend is an in-memory model of the XMEGA NVM. Flash programming can
// only clear bits, so a page has to be erased before it is written.
type MemBackend struct {
	Geo         Geometry
	ID          [4]byte
	Fuses       [6]byte
	Calibration [0x40]byte

	// BusyPolls is the number of Busy calls that report true after an
	// erase or write was started.
	BusyPolls int

	// Fail, if not nil, is returned by every NVM operation.
	Fail error

	Erases   []Span   // every Erase request, boot included
	Commits  []Commit // every successful CommitPage
	Watchdog time.Duration

	app, boot, userSig, eeprom []byte
	pageBuf                    []byte
	eepBuf                     []byte
	eepDirty                   []bool
	busy                       int
}

// NewMemBackend returns an erased device with the given geometry and
// DEVID0..2 signature.
func NewMemBackend(geo Geometry, sig [3]byte) *MemBackend {
	m := &MemBackend{
		Geo:     geo,
		ID:      [4]byte{sig[0], sig[1], sig[2], 0x02},
		Fuses:   [6]byte{0xff, 0x00, 0xbf, 0xff, 0xfe, 0xff},
		app:     fill(make([]byte, geo.AppSize)),
		boot:    fill(make([]byte, geo.BootSize)),
		userSig: fill(make([]byte, geo.UserSigSize)),
		eeprom:  fill(make([]byte, geo.EEPROMSize)),
		pageBuf: fill(make([]byte, geo.PageSize)),
		eepBuf:  make([]byte, geo.EEPROMPageSize),

		eepDirty: make([]bool, geo.EEPROMPageSize),
	}
	for i := range m.Calibration {
		m.Calibration[i] = byte(0xa0 + i)
	}
	return m
}

func fill(p []byte) []byte {
	for i := range p {
		p[i] = 0xff
	}
	return p
}

// BootSpan returns the flat address range of the boot section.
func (m *MemBackend) BootSpan() Span {
	return Span{m.Geo.AppSize, m.Geo.AppSize + m.Geo.BootSize}
}

func (m *MemBackend) mem(r Region) []byte {
	switch r {
	case Application:
		return m.app
	case Boot:
		return m.boot
	case UserSignature:
		return m.userSig
	case EEPROM:
		return m.eeprom
	}
	return nil
}

// Mem returns the live content of the region.
func (m *MemBackend) Mem(r Region) []byte {
	return m.mem(r)
}

func (m *MemBackend) start() {
	m.busy = m.BusyPolls
}

func (m *MemBackend) Busy() bool {
	if m.busy > 0 {
		m.busy--
		return true
	}
	return false
}

func (m *MemBackend) Erase(r Region) error {
	switch r {
	case Application:
		m.Erases = append(m.Erases, Span{0, m.Geo.AppSize})
	case Boot:
		m.Erases = append(m.Erases, m.BootSpan())
		return ErrBootProtected
	}
	if m.Fail != nil {
		return m.Fail
	}
	fill(m.mem(r))
	m.start()
	return nil
}

func (m *MemBackend) LoadBuffer(r Region, p []byte) error {
	if m.Fail != nil {
		return m.Fail
	}
	switch r {
	case Boot:
		return ErrBootProtected
	case EEPROM:
		if len(p) > len(m.eepBuf) {
			return ErrBufferSize
		}
		copy(m.eepBuf, p)
		for i := range p {
			m.eepDirty[i] = true
		}
	default:
		if len(p) > len(m.pageBuf) {
			return ErrBufferSize
		}
		copy(m.pageBuf, p)
	}
	return nil
}

func (m *MemBackend) CommitPage(r Region, n int) error {
	if m.Fail != nil {
		return m.Fail
	}
	var dst []byte
	switch r {
	case Boot:
		return ErrBootProtected
	case EEPROM:
		ps := m.Geo.EEPROMPageSize
		if n < 0 || (n+1)*ps > len(m.eeprom) {
			return errors.Errorf("EEPROM page %d out of range", n)
		}
		page := m.eeprom[n*ps : (n+1)*ps]
		for i, dirty := range m.eepDirty {
			if dirty {
				page[i] = m.eepBuf[i]
				m.eepDirty[i] = false
			}
		}
		m.Commits = append(m.Commits, Commit{r, n})
		m.start()
		return nil
	case UserSignature:
		if n != 0 {
			return errors.Errorf("user signature page %d out of range", n)
		}
		dst = m.userSig
	default:
		ps := m.Geo.PageSize
		if n < 0 || (n+1)*ps > len(m.app) {
			return errors.Errorf("flash page %d out of range", n)
		}
		dst = m.app[n*ps : (n+1)*ps]
	}
	for i := range dst {
		dst[i] &= m.pageBuf[i]
	}
	fill(m.pageBuf)
	m.Commits = append(m.Commits, Commit{r, n})
	m.start()
	return nil
}

func (m *MemBackend) Read(r Region, addr int, p []byte) error {
	src := m.mem(r)
	if addr < 0 || addr+len(p) > len(src) {
		return errors.Errorf("%s read %#x+%d out of range", r, addr, len(p))
	}
	copy(p, src[addr:])
	return nil
}

func (m *MemBackend) CRC(r Region) (uint32, error) {
	return crc32.ChecksumIEEE(m.mem(r)), nil
}

func (m *MemBackend) ReadFuse(n int) byte {
	if n < 0 || n >= len(m.Fuses) {
		return 0xff
	}
	return m.Fuses[n]
}

func (m *MemBackend) ReadCalibration(n int) byte {
	if n < 0 || n >= len(m.Calibration) {
		return 0xff
	}
	return m.Calibration[n]
}

func (m *MemBackend) DeviceID() [4]byte {
	return m.ID
}

func (m *MemBackend) ArmWatchdog(period time.Duration) {
	m.Watchdog = period
}

// Blank reports whether the whole region is erased.
func (m *MemBackend) Blank(r Region) bool {
	mem := m.mem(r)
	return len(bytes.Trim(mem, "\xff")) == 0
}
