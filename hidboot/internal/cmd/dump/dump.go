// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dump

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/cli"
	"github.com/embeddedgo/xmboot/hidboot/internal/device"
	"github.com/embeddedgo/xmboot/hidboot/internal/flash"
	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
	"github.com/embeddedgo/xmboot/hidboot/internal/proto"
)

const Descr = "read the application section or the EEPROM back to an Intel HEX file"

func Command() *cobra.Command {
	var (
		size   int
		eeprom bool
	)
	cmd := &cobra.Command{
		Use:   "dump VENDOR-ID PRODUCT-ID OUT.hex",
		Short: Descr,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cli.Setup(cmd)
			if err != nil {
				return err
			}
			if size < 0 || size%proto.ReportSize != 0 {
				return errors.Errorf("size must be a multiple of %d", proto.ReportSize)
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
			if size == 0 {
				size = regionSize(env, dev, eeprom)
			}
			var data []byte
			if eeprom {
				data, err = e.ReadEEPROM(0, size)
			} else {
				data, err = e.ReadFlash(0, size)
			}
			if err != nil {
				return err
			}
			f, err := os.Create(args[2])
			if err != nil {
				return err
			}
			if err = ihex.WriteHex(f, 0, data); err != nil {
				f.Close()
				return err
			}
			if err = f.Close(); err != nil {
				return err
			}
			env.Out.Statusf("Written %d bytes to %s\n", len(data), args[2])
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "number of bytes to read (0: the whole region)")
	cmd.Flags().BoolVar(&eeprom, "eeprom", false, "read the EEPROM instead of the flash")
	return cmd
}

// regionSize returns the size of the dumped region of the identified part.
// Unknown parts are assumed to be the --part one.
func regionSize(env *cli.Env, dev *flash.DeviceInfo, eeprom bool) int {
	part, ok := device.PartBySignature(dev.Signature())
	if !ok {
		part = env.Config.Target()
		env.Out.Infof("Unknown MCU %X, assuming %s\n", dev.ID[:3], env.Config.Part)
	}
	if eeprom {
		return part.Geometry.EEPROMSize
	}
	return part.Geometry.AppSize
}
