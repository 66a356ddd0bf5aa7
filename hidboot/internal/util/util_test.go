// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBusAddr(t *testing.T) {
	tests := []struct {
		in        string
		bus, addr int
	}{
		{"1:4", 1, 4},
		{"003:012", 3, 12},
		{"255:255", 255, 255},
		{"256:1", -1, -1},
		{"1", -1, -1},
		{"1:2:3", -1, -1},
		{"a:b", -1, -1},
		{"", -1, -1},
	}
	for _, tt := range tests {
		bus, addr := ParseBusAddr(tt.in)
		assert.Equal(t, tt.bus, bus, tt.in)
		assert.Equal(t, tt.addr, addr, tt.in)
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("03eb")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x03eb), id)

	id, err = ParseID("0x2FF4")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2ff4), id)

	for _, s := range []string{"", "0x", "12345", "xyz"} {
		_, err = ParseID(s)
		assert.Error(t, err, s)
	}

	// The error carries the call stack of its origin.
	_, err = ParseID("xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad USB id")
	assert.Contains(t, fmt.Sprintf("%+v", err), "util.ParseID")
}

func TestPrinterLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	run := func(lvl Level) {
		out.Reset()
		errOut.Reset()
		p := &Printer{Level: lvl, Out: &out, Err: &errOut}
		p.Infof("info\n")
		p.Statusf("status\n")
		p.Errorf("failed")
		p.Progress("Writing:", 5, 10, 1, "pages")
	}

	run(Normal)
	assert.Equal(t, "info\nstatus\n", out.String())
	assert.Contains(t, errOut.String(), "failed\n")
	assert.Contains(t, errOut.String(), "\rWriting: [============")

	run(Quiet)
	assert.Equal(t, "status\n", out.String())
	assert.Equal(t, "failed\n", errOut.String())

	run(Silent)
	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())

	assert.Equal(t, Silent, NewPrinter(true, true).Level)
	assert.Equal(t, Silent, NewPrinter(false, true).Level)
	assert.Equal(t, Quiet, NewPrinter(true, false).Level)
}

func TestProgressDone(t *testing.T) {
	var errOut bytes.Buffer
	p := &Printer{Err: &errOut}
	p.Progress("Writing:", 16, 16, 1, "pages")
	assert.Equal(t,
		"\rWriting: [=========================] 16 pages\n",
		errOut.String(),
	)
}
