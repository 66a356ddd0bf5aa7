// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedgo/xmboot/hidboot/internal/device"
	"github.com/embeddedgo/xmboot/hidboot/internal/flash"
	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
)

// writeFirmware writes an image for the XMEGA128A4U to dir.
func writeFirmware(t *testing.T, dir string) string {
	part := device.Parts["xmega128a4u"]
	info := ihex.Info{
		VersionMajor:   1,
		VersionMinor:   3,
		Signature:      part.Signature,
		FlashSize:      uint32(part.Geometry.AppSize),
		PageSize:       uint16(part.Geometry.PageSize),
		EEPROMSize:     uint32(part.Geometry.EEPROMSize),
		EEPROMPageSize: uint16(part.Geometry.EEPROMPageSize),
	}
	code := make([]byte, 0x1000)
	for i := range code {
		code[i] = byte(i * 13)
	}
	copy(code[0x200:], info.Encode())

	name := filepath.Join(dir, "fw.hex")
	f, err := os.Create(name)
	require.NoError(t, err)
	require.NoError(t, ihex.WriteHex(f, 0, code))
	require.NoError(t, f.Close())
	return name
}

func execute(args ...string) error {
	root := rootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func TestUpdateSimulated(t *testing.T) {
	fw := writeFirmware(t, t.TempDir())
	err := execute("-s", "-v", "-r", "--simulate", "--poll-interval", "0", "03eb", "2fe2", fw)
	assert.NoError(t, err)
}

func TestUpdateWrongPart(t *testing.T) {
	fw := writeFirmware(t, t.TempDir())
	err := execute("-s", "--simulate", "--part", "xmega256a3u", "03eb", "2fe2", fw)
	require.Error(t, err)
	assert.Equal(t, flash.KindCompatibility, flash.Kind(err))
}

func TestUpdateBadImage(t *testing.T) {
	err := execute("-s", "--simulate", "03eb", "2fe2", filepath.Join(t.TempDir(), "none.hex"))
	require.Error(t, err)
	assert.Equal(t, flash.KindImage, flash.Kind(err))
}

func TestUpdateArgs(t *testing.T) {
	assert.Error(t, execute("-s", "03eb", "2fe2"))
	assert.Error(t, execute("-s", "--transport", "serial", "03eb", "2fe2", "fw.hex"))
}

func TestInspect(t *testing.T) {
	fw := writeFirmware(t, t.TempDir())
	assert.NoError(t, execute("inspect", "-s", fw))
}

func TestInfoAndDumpSimulated(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, execute("info", "-s", "--simulate", "03eb", "2fe2"))

	out := filepath.Join(dir, "dump.hex")
	require.NoError(t, execute("dump", "-s", "--simulate", "--size", "4096", "03eb", "2fe2", out))
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	// A blank device has no metadata block.
	_, err = ihex.Parse(f, 4096)
	assert.ErrorIs(t, err, ihex.ErrNoInfo)

	assert.Error(t, execute("dump", "-s", "--simulate", "--size", "100", "03eb", "2fe2", out))
}

// dumpSize checks that the dump in name holds exactly n bytes.
func dumpSize(t *testing.T, name string, n int) {
	text, err := os.ReadFile(name)
	require.NoError(t, err)
	// A blank region has no metadata block, so a buffer that fits the data
	// fails only on the missing metadata.
	_, err = ihex.Parse(bytes.NewReader(text), n)
	assert.ErrorIs(t, err, ihex.ErrNoInfo)
	_, err = ihex.Parse(bytes.NewReader(text), n-1)
	var re *ihex.RangeError
	assert.ErrorAs(t, err, &re)
}

func TestDumpDefaultSize(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dump.hex")
	for _, part := range []string{"xmega128a4u", "xmega256a3u"} {
		geo := device.Parts[part].Geometry
		t.Run(part, func(t *testing.T) {
			require.NoError(t, execute("dump", "-s", "--simulate", "--part", part, "03eb", "2fe2", out))
			dumpSize(t, out, geo.AppSize)

			require.NoError(t, execute("dump", "-s", "--simulate", "--part", part, "--eeprom", "03eb", "2fe2", out))
			dumpSize(t, out, geo.EEPROMSize)
		})
	}
}
