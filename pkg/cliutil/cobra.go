// Copyright (C) 2020  Ambassador Labs (for Telepresence)
// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0
//
// Contains code from
// https://github.com/telepresenceio/telepresence/blob/3b63073ceafae6b548c664a83f7ac90497eab2ae/pkg/client/cli/command.go

package cliutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ExitUsage is the exit code for invalid usage.  Execution errors exit with 1.
const ExitUsage = 2

// OnlySubcommands is a cobra.PositionalArgs for a command that takes no positional arguments of
// its own, only subcommands.  It is like cobra.NoArgs, but suggests a subcommand for typos.
func OnlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}
	return FlagErrorFunc(cmd, err)
}

// WrapPositionalArgs wraps a cobra.PositionalArgs so that its errors are reported through
// FlagErrorFunc, the same as bad flags.
func WrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return FlagErrorFunc(cmd, inner(cmd, args))
	}
}

// UsageMessage formats err the way that FlagErrorFunc prints it.
func UsageMessage(cmd *cobra.Command, err error) string {
	msg := strings.TrimRight(err.Error(), "\n")
	// Set a multi-line message apart from the "See" line.
	if strings.Contains(msg, "\n") {
		msg += "\n"
	}
	return fmt.Sprintf("%s: %s\nSee '%s --help' for more information.\n",
		cmd.CommandPath(), msg, cmd.CommandPath())
}

// FlagErrorFunc is for (*cobra.Command).SetFlagErrorFunc, and gives GNU-ish behavior for invalid
// usage: if err is non-nil it prints UsageMessage to stderr and exits with ExitUsage.  It does
// not return in that case, so every error that (*cobra.Command).Execute returns is an execution
// error, which is what lets usage errors be reported before anything is touched on disk.
func FlagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), UsageMessage(cmd, err))
	os.Exit(ExitUsage)
	return nil
}
