// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/dh-virtualenv/pkg/cliutil"
	"github.com/datawire/dh-virtualenv/pkg/deployment"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "clean [flags]",
		Short: "Remove each package's virtualenv, both built and installed",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tgts, err := targets(cmd)
			if err != nil {
				return err
			}
			var errs derror.MultiError
			for _, tgt := range tgts {
				dlog.Debugf(ctx, "%s: removing %s and %s", tgt.Layout.Package, tgt.Layout.DebianRoot, tgt.Layout.BuildDir)
				if err := deployment.Clean(tgt.Layout); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", tgt.Layout.Package, err))
				}
			}
			if len(errs) > 0 {
				return errs
			}
			return nil
		},
	})
}
