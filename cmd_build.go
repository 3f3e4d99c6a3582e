// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/dh-virtualenv/pkg/cliutil"
	"github.com/datawire/dh-virtualenv/pkg/deployment"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "build [flags]",
		Short: "Build each package's virtualenv in debian/dh_virtualenv/",
		Long: "Build each package's virtualenv in debian/dh_virtualenv/PACKAGE, for a later " +
			"`dh_virtualenv install` to copy in to the package.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tgts, err := targets(cmd)
			if err != nil {
				return err
			}
			for _, tgt := range tgts {
				if err := buildVirtualenv(ctx, deployment.ExecRunner{}, tgt, tgt.Layout.BuildDir); err != nil {
					return fmt.Errorf("%s: %w", tgt.Layout.Package, err)
				}
			}
			return nil
		},
	})
}

// buildVirtualenv creates the virtualenv for tgt at envDir and installs the project in to it.
func buildVirtualenv(ctx context.Context, runner deployment.Runner, tgt target, envDir string) (err error) {
	deploy, err := deployment.New(tgt.Layout, envDir, tgt.Options, runner)
	if err != nil {
		return err
	}
	defer func() {
		if _err := deploy.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	return deploy.Build(ctx)
}
