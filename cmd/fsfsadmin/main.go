// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// fsfsadmin is the administrative CLI for the FSFS commit core: it
// creates repositories, commits a transaction's worth of mutations in
// one shot, and inspects published revisions.
//
// Usage:
//
//	fsfsadmin create [flags] <path>
//	fsfsadmin commit [flags] <path>
//	fsfsadmin cat <path> <rev> <tree-path>
//	fsfsadmin log <path> <rev>
//	fsfsadmin youngest <path>
//
// commit's mutations are named entirely by repeatable flags
// (--mkdir, --put, --rm, --setprop) rather than separate begin/put/rm
// invocations — see DESIGN.md for why fsfstree.Tree's in-memory
// overlay forces that shape.
package main

import (
	"os"

	"fsfscore/cmd/fsfsadmin/commands"
	"fsfscore/lib/process"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}
