// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Hidboot updates the firmware of XMEGA microcontrollers running the USB
// bootloader.
package main

import (
	"flag"

	"github.com/spf13/cobra"

	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/cli"
	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/dump"
	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/info"
	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/inspect"
	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/update"
)

func rootCommand() *cobra.Command {
	root := update.Command()
	root.AddCommand(info.Command(), dump.Command(), inspect.Command())
	return root
}

func main() {
	// glog is configured by the --debug flag, its own flags stay hidden.
	flag.CommandLine.Parse(nil)
	cli.Exit(rootCommand().Execute())
}
