// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package info

import (
	"github.com/spf13/cobra"

	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/cli"
)

const Descr = "identify the device and print its flash and EEPROM CRCs"

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "info VENDOR-ID PRODUCT-ID",
		Short: Descr,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cli.Setup(cmd)
			if err != nil {
				return err
			}
			t, err := env.Open(args[0], args[1])
			if err != nil {
				return err
			}
			defer t.Close()

			e := env.Engine(t)
			dev, err := e.Identify()
			if err != nil {
				return err
			}
			env.PrintDevice(dev)
			app, boot, err := e.FlashCRCs()
			if err != nil {
				return err
			}
			eep, err := e.EEPROMCRC()
			if err != nil {
				return err
			}
			env.Out.Statusf("Application CRC:\t%08X\n", app)
			env.Out.Statusf("Boot CRC:\t\t%08X\n", boot)
			env.Out.Statusf("EEPROM CRC:\t\t%08X\n", eep)
			return nil
		},
	}
}
