// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ihex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Magic starts the metadata block embedded in the application image.
const Magic = "YamaNeko"

// InfoSize is the size of the metadata block including the magic string.
const InfoSize = len(Magic) + 1 + 1 + 3 + 4 + 2 + 4 + 2

// Info describes the target of the firmware image.
type Info struct {
	VersionMajor   uint8
	VersionMinor   uint8
	Signature      [3]byte
	FlashSize      uint32
	PageSize       uint16
	EEPROMSize     uint32
	EEPROMPageSize uint16
}

func (fi *Info) String() string {
	return fmt.Sprintf(
		"v%d.%02d MCU %02X%02X%02X flash %d/%d EEPROM %d/%d",
		fi.VersionMajor, fi.VersionMinor,
		fi.Signature[0], fi.Signature[1], fi.Signature[2],
		fi.FlashSize, fi.PageSize, fi.EEPROMSize, fi.EEPROMPageSize,
	)
}

func (fi *Info) decode(p []byte) error {
	_, err := binary.Decode(p, binary.LittleEndian, fi)
	return err
}

// Encode returns the metadata block as embedded in an image.
func (fi *Info) Encode() []byte {
	buf := append(make([]byte, 0, InfoSize), Magic...)
	buf, _ = binary.Append(buf, binary.LittleEndian, fi)
	return buf
}

func (fi *Info) check(capacity int) error {
	if fi.FlashSize > uint32(capacity) {
		return &InfoError{fmt.Sprintf(
			"flash size %d greater than buffer size %d",
			fi.FlashSize, capacity,
		)}
	}
	if fi.PageSize == 0 || fi.FlashSize%uint32(fi.PageSize) != 0 {
		return &InfoError{fmt.Sprintf(
			"flash size %d is not a multiple of page size %d",
			fi.FlashSize, fi.PageSize,
		)}
	}
	return nil
}

// FindInfo returns the offset of the first complete metadata block in p.
func FindInfo(p []byte) (int, bool) {
	i := bytes.Index(p, []byte(Magic))
	if i < 0 || i+InfoSize > len(p) {
		return -1, false
	}
	return i, true
}

// CRC32 calculates the same checksum as the XMEGA CRC peripheral in CRC-32
// mode: polynomial 0x04C11DB7, reflected input and output, initial value
// 0xFFFFFFFF, complemented result.
func CRC32(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}
