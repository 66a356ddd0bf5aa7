// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ihex

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error wraps every error returned while loading an image.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Name == "" {
		return "ihex: " + e.Err.Error()
	}
	return "ihex: " + e.Name + ": " + e.Err.Error()
}

func wrapErr(name string, err *error) {
	if *err != nil {
		*err = &Error{name, *err}
	}
}

// ParseError reports a malformed line.
type ParseError struct {
	Line int // 1-based
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid line %d (%s)", e.Line, e.Msg)
}

// RangeError reports data that does not fit in the image buffer.
type RangeError struct {
	Line     int
	Addr     uint32
	Capacity int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf(
		"line %d: address %#x does not fit in %d byte buffer",
		e.Line, e.Addr, e.Capacity,
	)
}

// InfoError reports an embedded metadata block that cannot describe a valid
// target.
type InfoError struct {
	Msg string
}

func (e *InfoError) Error() string {
	return "embedded info: " + e.Msg
}

var ErrNoInfo = errors.New("embedded info struct not found")
