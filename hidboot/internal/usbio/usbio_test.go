// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbio

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedgo/xmboot/hidboot/internal/device"
	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
)

func newLoopback() (*Loopback, *device.MemBackend) {
	m := device.NewMemBackend(device.XMega128A4U, [3]byte{0x1e, 0x97, 0x46})
	return NewLoopback(device.New(m, device.XMega128A4U)), m
}

func TestLoopbackExchange(t *testing.T) {
	l, _ := newLoopback()

	require.NoError(t, l.Send(proto.Cmd(proto.CmdReadMCUIDs, 0)))
	s, err := l.Status()
	require.NoError(t, err)
	assert.Equal(t, proto.Version, s.Version)
	assert.True(t, s.Ready())
	assert.Equal(t, proto.ResultOK, s.Result)

	buf := make([]byte, proto.ReportSize)
	n, err := l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, proto.ReportSize, n)
	assert.Equal(t, []byte{0x1e, 0x97, 0x46, 0x02}, buf[:4])

	// The payload is consumed by the first read.
	_, err = l.Read(buf)
	assert.True(t, errors.Is(err, ErrNoPayload))
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Read", ue.Op)

	assert.Equal(t, []uint8{proto.CmdReadMCUIDs}, l.Commands())
	assert.Equal(t, 1, l.Polls)
}

func TestLoopbackWrite(t *testing.T) {
	l, _ := newLoopback()
	n, err := l.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	s, err := l.Status()
	require.NoError(t, err)
	assert.Equal(t, uint16(proto.ReportSize), s.PagePtr)
}

func TestLoopbackHookAndClose(t *testing.T) {
	l, _ := newLoopback()
	boom := errors.New("cable pulled")
	l.Hook = func(c proto.Command) error {
		if c.ID == proto.CmdEraseApp {
			return boom
		}
		return nil
	}
	require.NoError(t, l.Send(proto.Cmd(proto.CmdNOP, 0)))
	err := l.Send(proto.Cmd(proto.CmdEraseApp, 0))
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "usb: Send EraseApp")
	assert.Equal(t, []uint8{proto.CmdNOP}, l.Commands())

	require.NoError(t, l.Close())
	assert.True(t, errors.Is(l.Send(proto.Cmd(proto.CmdNOP, 0)), ErrClosed))
	_, err = l.Status()
	assert.True(t, errors.Is(err, ErrClosed))
}

type fakeTransport struct {
	Loopback
	name string
}

func (f *fakeTransport) Describe() Descr {
	return Descr{Transport: f.name}
}

func withProbes(t *testing.T, ok map[string]bool, tried *[]string) {
	saved := probes
	t.Cleanup(func() { probes = saved })
	probes = nil
	for _, name := range []string{"hid", "bulk", "control"} {
		probes = append(probes, opener{name, func(o *Options) (Transport, error) {
			*tried = append(*tried, name)
			if !ok[name] {
				return nil, errNotSupported
			}
			return &fakeTransport{name: name}, nil
		}})
	}
}

func TestOpenProbeOrder(t *testing.T) {
	tests := []struct {
		sel   string
		ok    map[string]bool
		tried []string
		want  string
	}{
		{"auto", map[string]bool{"hid": true, "bulk": true}, []string{"hid"}, "hid"},
		{"", map[string]bool{"bulk": true, "control": true}, []string{"hid", "bulk"}, "bulk"},
		{"auto", map[string]bool{"control": true}, []string{"hid", "bulk", "control"}, "control"},
		{"control", map[string]bool{"hid": true, "control": true}, []string{"control"}, "control"},
		{"auto", nil, []string{"hid", "bulk", "control"}, ""},
		{"bulk", map[string]bool{"hid": true}, []string{"bulk"}, ""},
	}
	for _, tt := range tests {
		var tried []string
		withProbes(t, tt.ok, &tried)
		tr, err := Open(Options{Transport: tt.sel, Vendor: 0x03eb, Product: 0x2fe2})
		assert.Equal(t, tt.tried, tried, "%s %v", tt.sel, tt.ok)
		if tt.want == "" {
			require.Error(t, err)
			var ue *Error
			assert.True(t, errors.As(err, &ue))
			if tt.sel == "auto" {
				assert.True(t, errors.Is(err, ErrNoTransport))
				assert.Contains(t, err.Error(), "03eb:2fe2")
			}
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, tr.Describe().Transport)
	}
}

func TestOpenUnknownTransport(t *testing.T) {
	_, err := Open(Options{Transport: "serial"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport "serial"`)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"auto", "hid", "bulk", "control"}, Names())
}

func TestDescrString(t *testing.T) {
	d := Descr{Transport: "bulk", Location: "1:7", Manufacturer: "Acme", Product: "Boot"}
	assert.Equal(t, "bulk 1:7: Acme Boot", d.String())
	assert.Equal(t, "loopback: simulated bootloader", new(Loopback).Describe().String())
}
