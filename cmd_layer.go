// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawire/dh-virtualenv/pkg/cliutil"
	"github.com/datawire/dh-virtualenv/pkg/dir"
	"github.com/datawire/dh-virtualenv/pkg/fsutil"
	"github.com/datawire/dh-virtualenv/pkg/reproducible"
)

func init() {
	var flagOutput string
	cmd := &cobra.Command{
		Use:   "layer [flags] -p PACKAGE",
		Short: "Write a package's installed virtualenv as an OCI image layer",
		Long: "Write the virtualenv in the package staging directory as an uncompressed OCI " +
			"image layer, with the files at the path that they will be installed at.  Run it " +
			"after `dh_virtualenv install` (or plain `dh_virtualenv`).  Exactly one package " +
			"must be selected.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			tgts, err := targets(cmd)
			if err != nil {
				return err
			}
			if len(tgts) != 1 {
				return cliutil.FlagErrorFunc(cmd, fmt.Errorf("exactly 1 package must be selected, but %d are", len(tgts)))
			}
			return exportLayer(tgts[0], reproducible.Now(), flagOutput)
		},
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "-",
		"Write the layer to `FILE` (\"-\" for stdout); it is xz-compressed if FILE ends in \".xz\"")
	argparser.AddCommand(cmd)
}

// exportLayer writes the virtualenv in tgt's PackageDir as a layer file, with no timestamp later
// than clampTime.
func exportLayer(tgt target, clampTime time.Time, output string) (err error) {
	layer, err := dir.LayerFromDir(tgt.Layout.PackageDir, dir.Options{
		Prefix:    tgt.Layout.InstallDir,
		Chown:     &dir.Root,
		ClampTime: clampTime,
	})
	if err != nil {
		return err
	}
	out, err := fsutil.CreateOutput(output)
	if err != nil {
		return err
	}
	defer func() {
		if _err := out.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	return fsutil.WriteLayer(layer, out)
}
