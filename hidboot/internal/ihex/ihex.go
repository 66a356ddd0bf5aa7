// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ihex loads Intel HEX firmware images into a flat, 0xFF filled
// buffer and locates the metadata block that the application embeds to
// describe its target MCU and memory geometry.
package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// DefaultCapacity fits the largest supported device: 512 application pages
// of 512 bytes plus an 8 page boot section.
const DefaultCapacity = (512 + 8) * 512

const Fill = 0xff

// Record types
const (
	recData        = 0x00
	recEOF         = 0x01
	recExtSegment  = 0x02
	recStartSeg    = 0x03
	recExtLinear   = 0x04
	recStartLinear = 0x05
)

// Image is a firmware image flattened into a buffer of fixed capacity.
type Image struct {
	Data     []byte // len(Data) is the buffer capacity
	Size     int    // one past the highest written address
	Base     uint32 // last extended address base
	Info     Info   // embedded metadata
	InfoAddr int    // offset of the metadata magic in Data
	CRC      uint32 // CRC32 of Data[:Info.FlashSize]
}

// Pages returns the number of flash pages covered by the image.
func (img *Image) Pages() int {
	return int(img.Info.FlashSize / uint32(img.Info.PageSize))
}

// Page returns the content of the n-th flash page.
func (img *Image) Page(n int) []byte {
	ps := int(img.Info.PageSize)
	return img.Data[n*ps : (n+1)*ps]
}

// Flash returns the part of the image that is written to the application
// section.
func (img *Image) Flash() []byte {
	return img.Data[:img.Info.FlashSize]
}

// Parser holds the Intel HEX parsing options.
type Parser struct {
	Capacity int // buffer size, DefaultCapacity if zero

	// SkipChecksum disables the record checksum validation. Older tools
	// read the checksum byte but never checked it.
	SkipChecksum bool
}

// ReadImage reads the named Intel HEX file using the default parser.
func ReadImage(name string) (*Image, error) {
	return new(Parser).ReadImage(name)
}

// Parse parses the Intel HEX text read from r into a buffer of the given
// capacity.
func Parse(r io.Reader, capacity int) (*Image, error) {
	p := &Parser{Capacity: capacity}
	return p.Parse(r)
}

func (p *Parser) ReadImage(name string) (img *Image, err error) {
	defer wrapErr(name, &err)
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.parse(f)
}

func (p *Parser) Parse(r io.Reader) (img *Image, err error) {
	defer wrapErr("", &err)
	return p.parse(r)
}

func (p *Parser) parse(r io.Reader) (*Image, error) {
	capacity := p.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	mem := gohex.NewMemory()
	var (
		base    uint32
		size    int
		lineNum int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := p.decodeRecord(line, lineNum)
		if err != nil {
			return nil, err
		}
		switch rec.typ {
		case recData:
			// 64-bit: a base near 4 GiB must not wrap into the buffer.
			start := uint64(base) + uint64(rec.addr)
			end := start + uint64(len(rec.data))
			if end > uint64(capacity) {
				// first address that does not fit
				addr := max(start, uint64(capacity))
				return nil, &RangeError{lineNum, uint32(addr), capacity}
			}
			mem.SetBinary(uint32(start), rec.data)
			if int(end) > size {
				size = int(end)
			}
		case recExtSegment, recExtLinear:
			if len(rec.data) != 2 {
				return nil, &ParseError{lineNum, fmt.Sprintf(
					"bad extended address record length: %d", len(rec.data),
				)}
			}
			base = uint32(rec.data[0])<<8 | uint32(rec.data[1])
			if rec.typ == recExtSegment {
				base <<= 4
			} else {
				base <<= 16
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	img := &Image{
		Data: mem.ToBinary(0, uint32(capacity), Fill),
		Size: size,
		Base: base,
	}
	addr, ok := FindInfo(img.Data)
	if !ok {
		return nil, ErrNoInfo
	}
	img.InfoAddr = addr
	if err := img.Info.decode(img.Data[addr+len(Magic):]); err != nil {
		return nil, err
	}
	if err := img.Info.check(capacity); err != nil {
		return nil, err
	}
	img.CRC = CRC32(img.Flash())
	return img, nil
}

type record struct {
	typ  uint8
	addr uint16
	data []byte
}

func (p *Parser) decodeRecord(line string, lineNum int) (rec record, err error) {
	if line[0] != ':' {
		err = &ParseError{lineNum, "missing colon"}
		return
	}
	b, err := hex.DecodeString(line[1:])
	if err != nil {
		err = &ParseError{lineNum, "bad hex digits"}
		return
	}
	if len(b) < 5 {
		err = &ParseError{lineNum, "record too short"}
		return
	}
	n := int(b[0])
	if len(b) != n+5 {
		err = &ParseError{lineNum, fmt.Sprintf(
			"record length %d does not match %d data bytes", n, len(b)-5,
		)}
		return
	}
	if !p.SkipChecksum {
		var sum uint8
		for _, c := range b {
			sum += c
		}
		if sum != 0 {
			err = &ParseError{lineNum, fmt.Sprintf(
				"bad checksum %#02x, want %#02x", b[len(b)-1], b[len(b)-1]-sum,
			)}
			return
		}
	}
	rec.addr = uint16(b[1])<<8 | uint16(b[2])
	rec.typ = b[3]
	rec.data = b[4 : 4+n]
	return
}

// WriteHex writes data located at addr in the Intel HEX format.
func WriteHex(w io.Writer, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return errors.Wrap(err, "ihex")
	}
	return errors.Wrap(mem.DumpIntelHex(w, 16), "ihex")
}
