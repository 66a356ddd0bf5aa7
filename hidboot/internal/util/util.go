// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Level selects how much a Printer writes.
type Level int

const (
	Normal Level = iota
	Quiet        // only the status lines and errors
	Silent       // nothing
)

// Printer writes the user facing output of the commands.
type Printer struct {
	Level Level
	Out   io.Writer // defaults to os.Stdout
	Err   io.Writer // defaults to os.Stderr

	pbuf []byte
}

// NewPrinter returns a printer for the -q and -s command line flags. Silent
// implies quiet.
func NewPrinter(quiet, silent bool) *Printer {
	p := &Printer{Out: os.Stdout, Err: os.Stderr}
	switch {
	case silent:
		p.Level = Silent
	case quiet:
		p.Level = Quiet
	}
	return p
}

func (p *Printer) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *Printer) err() io.Writer {
	if p.Err == nil {
		return os.Stderr
	}
	return p.Err
}

// Infof prints diagnostic information suppressed by the quiet mode.
func (p *Printer) Infof(f string, args ...any) {
	if p.Level < Quiet {
		fmt.Fprintf(p.out(), f, args...)
	}
}

// Statusf prints a status line suppressed only by the silent mode.
func (p *Printer) Statusf(f string, args ...any) {
	if p.Level < Silent {
		fmt.Fprintf(p.out(), f, args...)
	}
}

// Errorf prints an error message to the error output unless silent.
func (p *Printer) Errorf(f string, args ...any) {
	if p.Level < Silent {
		fmt.Fprintf(p.err(), f+"\n", args...)
	}
}

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

// Progress draws a 25 character progress bar on the error output. It prints
// nothing in the quiet mode.
func (p *Printer) Progress(pre string, cur, max, scale int, post string) {
	if p.Level >= Quiet || max <= 0 {
		return
	}
	b := append(p.pbuf[:0], '\r')
	b = append(b, pre...)
	done := 25 * cur / max
	b = append(b, pdone[:2+done]...)
	b = append(b, ptodo[done:]...)
	b = strconv.AppendInt(b, int64(cur/scale), 10)
	b = append(b, ' ')
	b = append(b, post...)
	if cur == max {
		b = append(b, '\n')
	}
	p.err().Write(b)
	p.pbuf = b
}

// ParseID parses a USB vendor or product id. Hexadecimal is the default
// base, a 0x prefix is accepted.
func ParseID(s string) (uint16, error) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, errors.Errorf("bad USB id %q", s)
	}
	return uint16(id), nil
}
