// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the fsfsadmin CLI command tree.
package commands

import (
	"fsfscore/internal/cli"
	"fsfscore/internal/fsfs"
)

// Root builds and returns the complete fsfsadmin command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "fsfsadmin",
		Description: `fsfsadmin: administrative CLI for the FSFS commit core.

Create repositories, drive a transaction's working tree through a
single atomic commit, and inspect published revisions.`,
		Subcommands: []*cli.Command{
			createCommand(),
			commitCommand(),
			catCommand(),
			logCommand(),
			youngestCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Create a fresh repository",
				Command:     "fsfsadmin create /srv/repos/trunk",
			},
			{
				Description: "Commit a new file in one atomic step",
				Command:     "fsfsadmin commit /srv/repos/trunk --author=ben --message='add readme' --put=/README.txt=./README.txt",
			},
			{
				Description: "Read a file out of a published revision",
				Command:     "fsfsadmin cat /srv/repos/trunk 12 /README.txt",
			},
		},
	}
}

// openLayout resolves a repository's Layout and Params from its
// on-disk format file. Format must already exist — use the create
// subcommand to bootstrap a new repository.
func openLayout(root string) (fsfs.Layout, fsfs.Params, error) {
	probe := fsfs.NewLayout(root, 0)
	params, err := fsfs.LoadParams(probe.FormatPath())
	if err != nil {
		return fsfs.Layout{}, fsfs.Params{}, err
	}
	return fsfs.NewLayout(root, params.Format), params, nil
}
