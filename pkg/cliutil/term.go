// Copyright (C) 2020  Ambassador Labs (for Telepresence)
// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// GetTerminalWidth returns the width to wrap help text to, or 0 to not wrap it.
//
// $COLUMNS is obeyed if it is set.  Otherwise the width of stdout is used, and then that of
// stderr; dpkg-buildpackage often sends one of them to a log file.  A terminal whose size can't be
// determined is assumed to be 80 columns wide.
func GetTerminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols >= 0 {
		return cols
	}
	for _, file := range []*os.File{os.Stdout, os.Stderr} {
		fd := int(file.Fd())
		if !term.IsTerminal(fd) {
			continue
		}
		if cols, _, err := term.GetSize(fd); err == nil && cols > 0 {
			return cols
		}
		return 80
	}
	return 0
}
