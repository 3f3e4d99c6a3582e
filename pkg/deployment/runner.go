// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"context"
	"io"
	"os"

	"github.com/datawire/dlib/dexec"
)

// A Runner runs an external command to completion.  dir is the working directory for the
// command; "" means the current directory.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) error
}

// ExecRunner is the Runner that actually spawns processes.  The child's output is passed
// through to Stdout and Stderr (os.Stdout and os.Stderr if nil), and is also logged by dexec.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) error {
	cmd := dexec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}
