// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package update

import (
	"github.com/spf13/cobra"

	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/cli"
	"github.com/embeddedgo/xmboot/hidboot/internal/config"
	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
)

const Descr = "write a firmware image to the application section of the device"

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hidboot [-r] [-q] [-s] [-v] VENDOR-ID PRODUCT-ID FIRMWARE.hex",
		Short: Descr,
		Long: `Write an Intel HEX firmware image to the application section of a
device running the USB bootloader. The vendor and product ids are hexadecimal.

The image must embed its metadata block. Nothing on the device is erased if
the MCU signature in the metadata does not match the device.`,
		Example: `  hidboot 03eb 2fe2 firmware.hex
  hidboot -r -v 03eb 2fe2 firmware.hex
  hidboot --simulate --part xmega256a3u 0 0 firmware.hex`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	fs := cmd.Flags()
	fs.BoolP(config.Reset, "r", false, "reset the MCU after the update")
	fs.BoolP(config.Verify, "v", false, "verify the update by reading the flash back")
	fs.Bool(config.NoChecksum, false, "do not validate the Intel HEX record checksums")
	fs.Int(config.Capacity, ihex.DefaultCapacity, "image buffer size")
	cli.AddFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	env, err := cli.Setup(cmd)
	if err != nil {
		return err
	}
	out := env.Out

	// The image is loaded before the device is touched.
	img, err := env.Config.Parser().ReadImage(args[2])
	if err != nil {
		return err
	}
	info := &img.Info
	out.Infof("Firmware:\t%s\n", args[2])
	out.Infof("Version:\t%d.%d\n", info.VersionMajor, info.VersionMinor)
	out.Infof("Signature:\t%X\n", info.Signature[:])
	out.Infof("Flash size:\t%d bytes, %d byte pages\n", info.FlashSize, info.PageSize)
	out.Infof("EEPROM size:\t%d bytes, %d byte pages\n", info.EEPROMSize, info.EEPROMPageSize)
	out.Infof("Image CRC:\t%08X\n", img.CRC)

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

	out.Statusf("Writing %d pages...\n", img.Pages())
	rep, err := e.Run(img)
	if err != nil {
		return err
	}
	out.Infof("Target CRC:\t%08X\n", rep.CRC)
	out.Infof("Boot CRC:\t%08X\n", rep.BootCRC)
	if rep.Verified {
		out.Statusf("Verified %d bytes\n", info.FlashSize)
	}
	if rep.Reset {
		out.Statusf("Resetting the MCU\n")
	}
	out.Statusf("Done\n")
	return nil
}
