// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"fsfscore/internal/cli"
	"fsfscore/internal/fsfs"
	"fsfscore/lib/clock"
)

func createCommand() *cli.Command {
	var format int
	var maxFilesPerDir int
	var disableRepSharing bool
	var svndiffVersion int

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
		fs.IntVar(&format, "format", fsfs.FormatModernTxnIds, "repository format (4=legacy node ids, 7=modern txn ids)")
		fs.IntVar(&maxFilesPerDir, "max-files-per-dir", 1000, "shard revs/ and revprops/ once this many files accumulate (0 disables sharding)")
		fs.BoolVar(&disableRepSharing, "no-rep-sharing", false, "disable cross-revision representation sharing")
		fs.IntVar(&svndiffVersion, "svndiff-version", 1, "svndiff window encoding: 0 (plain) or 1 (flate-compressed)")
		return fs
	}

	return &cli.Command{
		Name:    "create",
		Summary: "Create a new repository",
		Usage:   "fsfsadmin create [flags] <path>",
		Flags:   flags,
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("create requires exactly one <path> argument")
			}
			params := fsfs.DefaultParams()
			params.Format = format
			params.MaxFilesPerDir = maxFilesPerDir
			params.RepSharingEnabled = !disableRepSharing
			params.SvndiffVersion = svndiffVersion

			layout, err := fsfs.Create(context.Background(), args[0], params, clock.Real())
			if err != nil {
				return err
			}
			fmt.Printf("created repository at %s (format %d)\n", layout.Root, params.Format)
			return nil
		},
	}
}
