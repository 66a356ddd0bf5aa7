// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inspect

import (
	"github.com/spf13/cobra"

	"github.com/embeddedgo/xmboot/hidboot/internal/cmd/cli"
	"github.com/embeddedgo/xmboot/hidboot/internal/config"
	"github.com/embeddedgo/xmboot/hidboot/internal/ihex"
)

const Descr = "print the metadata embedded in a firmware image"

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FIRMWARE.hex",
		Short: Descr,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cli.Setup(cmd)
			if err != nil {
				return err
			}
			img, err := env.Config.Parser().ReadImage(args[0])
			if err != nil {
				return err
			}
			out := env.Out
			out.Statusf("%s: %v\n", args[0], &img.Info)
			out.Statusf("Metadata at:\t%#x\n", img.InfoAddr)
			out.Statusf("Data end:\t%#x\n", img.Size)
			out.Statusf("Pages:\t\t%d\n", img.Pages())
			out.Statusf("CRC:\t\t%08X\n", img.CRC)
			return nil
		},
	}
	cmd.Flags().Bool(config.NoChecksum, false, "do not validate the Intel HEX record checksums")
	cmd.Flags().Int(config.Capacity, ihex.DefaultCapacity, "image buffer size")
	return cmd
}
