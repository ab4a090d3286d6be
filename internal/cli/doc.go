// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides a small pflag-backed command tree for building
// multi-level CLIs such as fsfsadmin. A [Command] either dispatches to
// named Subcommands or runs its own Run function; help text, flag
// parsing errors, and "did you mean" suggestions for mistyped command
// and flag names are handled uniformly by [Command.Execute].
package cli
