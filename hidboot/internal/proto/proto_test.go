// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandParamViews(t *testing.T) {
	c := Cmd(CmdReadFlash, 0x12345678)
	assert.Equal(t, uint32(0x12345678), c.U32())
	assert.Equal(t, uint16(0x5678), c.U16(0))
	assert.Equal(t, uint16(0x1234), c.U16(1))
	assert.Equal(t, uint8(0x78), c.U8(0))
	assert.Equal(t, uint8(0x12), c.U8(3))

	c = Cmd16(CmdWriteEEPROMPage, 7, 32)
	assert.Equal(t, uint16(7), c.U16(0))
	assert.Equal(t, uint16(32), c.U16(1))

	c = Cmd8(CmdNOP, [4]uint8{1, 2, 3, 4})
	assert.Equal(t, uint32(0x04030201), c.U32())
}

func TestCommandEncode(t *testing.T) {
	frame := Cmd16(CmdWritePage, 0x0102, 0).Encode(0)
	require.Len(t, frame, FrameSize)
	assert.Equal(t, []byte{0, CmdWritePage, 0x02, 0x01, 0, 0}, frame[:CommandSize])
	for i, b := range frame[CommandSize:] {
		assert.Zerof(t, b, "padding byte %d", i)
	}

	c, err := DecodeCommand(frame)
	require.NoError(t, err)
	assert.Equal(t, Cmd16(CmdWritePage, 0x0102, 0), c)
}

func TestDecodeShortFrames(t *testing.T) {
	_, err := DecodeCommand([]byte{0, 1, 2})
	assert.True(t, errors.Is(err, ErrShortFrame))

	_, err = DecodeStatus([]byte{0, Version, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrShortFrame))
}

func TestStatusFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  Status
		ready bool
	}{
		{"ready", []byte{0, 2, 0, 0x40, 0x01, 0}, Status{2, 0, 0x0140, 0}, true},
		{"busy", []byte{0, 2, 1, 0, 0, 0}, Status{2, 1, 0, 0}, false},
		{"busy any bit", []byte{0, 2, 0x80, 0, 0, 0}, Status{2, 0x80, 0, 0}, false},
		{"error", []byte{0, 2, 0, 0, 0, 0xff}, Status{2, 0, 0, ResultUnknown}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeStatus(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
			assert.Equal(t, tt.ready, s.Ready())
			assert.Equal(t, tt.frame, s.Encode(0))
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "WritePage", CommandName(CmdWritePage))
	assert.Equal(t, "cmd(0x0d)", CommandName(0x0d))
	assert.Equal(t, "cmd(0xa0)", CommandName(0xa0))
	assert.Equal(t, "unknown command", ResultString(ResultUnknown))
	assert.Equal(t, "unknown result 0x42", ResultString(0x42))
}
