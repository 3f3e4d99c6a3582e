// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"fmt"

	"github.com/spf13/pflag"
)

// CheckConflicts returns an error naming the first pair of flags that were both given on the
// command line.  Flags that merely have a default value do not count.
func CheckConflicts(flags *pflag.FlagSet, pairs ...[2]string) error {
	for _, pair := range pairs {
		a, b := flags.Lookup(pair[0]), flags.Lookup(pair[1])
		if a == nil || b == nil {
			return fmt.Errorf("internal error: no such flag in conflict pair %q", pair)
		}
		if a.Changed && b.Changed {
			return fmt.Errorf("--%s and --%s are mutually exclusive", a.Name, b.Name)
		}
	}
	return nil
}
