// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/datawire/dh-virtualenv/pkg/cliutil"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "inspect [flags] >PACKAGES.yml",
		Short: "Show where each package's virtualenv goes, and how it gets built",
		Long: "Dump, as YAML, the paths and the build options of each package that " +
			"dh_virtualenv would act on, after applying the X-DH-Virtualenv-* fields of " +
			"debian/control.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			tgts, err := targets(cmd)
			if err != nil {
				return err
			}
			return writeTargets(cmd.OutOrStdout(), tgts)
		},
	})
}

func writeTargets(w io.Writer, tgts []target) error {
	if tgts == nil {
		tgts = []target{}
	}
	bs, err := yaml.Marshal(tgts)
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}
