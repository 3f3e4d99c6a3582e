// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/dh-virtualenv/pkg/activate"
	"github.com/datawire/dh-virtualenv/pkg/cliutil"
	"github.com/datawire/dh-virtualenv/pkg/debhelper"
	"github.com/datawire/dh-virtualenv/pkg/deployment"
	"github.com/datawire/dh-virtualenv/pkg/fsutil"
	"github.com/datawire/dh-virtualenv/pkg/python/pyvenv"
	"github.com/datawire/dh-virtualenv/pkg/shebang"
	"github.com/datawire/dh-virtualenv/pkg/symlinks"
)

// interpreterSubstvar is set to the "pythonX.Y" that the virtualenv was built against, so that
// debian/control can say "Depends: ${dh-virtualenv:Interpreter}".
const interpreterSubstvar = "dh-virtualenv:Interpreter"

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "install [flags]",
		Short: "Copy each package's virtualenv from debian/dh_virtualenv/ in to the package",
		Long: "Copy each package's virtualenv from where `dh_virtualenv build` built it in to the " +
			"package staging directory, and fix it up to work from the install root.  Packages " +
			"that were not built are skipped.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tgts, err := targets(cmd)
			if err != nil {
				return err
			}
			helper := debhelper.NewHelper(programName, "debian")
			for _, tgt := range tgts {
				if err := installVirtualenv(ctx, helper, tgt); err != nil {
					return fmt.Errorf("%s: %w", tgt.Layout.Package, err)
				}
			}
			return helper.Save()
		},
	})
}

// runBuildInPlace is the classic single-step flow: build each virtualenv directly in the package
// staging directory, and then fix it up in place.
func runBuildInPlace(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tgts, err := targets(cmd)
	if err != nil {
		return err
	}
	helper := debhelper.NewHelper(programName, "debian")
	for _, tgt := range tgts {
		if err := buildVirtualenv(ctx, deployment.ExecRunner{}, tgt, tgt.Layout.PackageDir); err != nil {
			return fmt.Errorf("%s: %w", tgt.Layout.Package, err)
		}
		if err := relocate(ctx, helper, tgt); err != nil {
			return fmt.Errorf("%s: %w", tgt.Layout.Package, err)
		}
	}
	return helper.Save()
}

// installVirtualenv copies the virtualenv that was built in tgt's BuildDir to its PackageDir, and
// relocates it there.  It does nothing if the BuildDir does not exist.
func installVirtualenv(ctx context.Context, helper *debhelper.Helper, tgt target) error {
	if _, err := os.Stat(tgt.Layout.BuildDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			dlog.Infof(ctx, "%s: %s does not exist, nothing to install", tgt.Layout.Package, tgt.Layout.BuildDir)
			return nil
		}
		return err
	}
	if err := fsutil.CopyTree(tgt.Layout.BuildDir, tgt.Layout.PackageDir); err != nil {
		return err
	}
	return relocate(ctx, helper, tgt, tgt.Layout.BuildDir)
}

// relocate fixes up the virtualenv in tgt's PackageDir to work from its InstallDir.  oldRoots
// are any other directories that the virtualenv was built at.
//
// Order matters: scripts are only rewritten once everything is installed, and local/ symlinks
// are fixed last.
func relocate(ctx context.Context, helper *debhelper.Helper, tgt target, oldRoots ...string) error {
	layout := tgt.Layout

	rewritten, err := shebang.Rewrite(ctx, layout.BinDir(), layout.InstallDir)
	if err != nil {
		return err
	}
	dlog.Infof(ctx, "%s: rewrote %d shebangs to point at %s", layout.Package, len(rewritten), layout.InstallDir)

	missing, err := activate.Patch(ctx, layout.BinDir(), layout.InstallDir)
	if err != nil {
		return err
	}
	for _, name := range missing {
		if name == activate.Scripts[0].Name {
			return &fs.PathError{
				Op:   "patch",
				Path: filepath.Join(layout.BinDir(), name),
				Err:  fs.ErrNotExist,
			}
		}
		dlog.Warnf(ctx, "%s: no %s script to patch", layout.Package, name)
	}

	if err := symlinks.Relocate(ctx, layout.PackageDir, oldRoots...); err != nil {
		return err
	}

	return addMaintainerBits(ctx, helper, tgt)
}

// addMaintainerBits records tgt's substvars and (unless turned off) maintainer-script snippets
// with helper.
func addMaintainerBits(ctx context.Context, helper *debhelper.Helper, tgt target) error {
	layout := tgt.Layout

	cfg, err := pyvenv.Load(layout.PackageDir)
	switch {
	case err == nil:
		version, err := cfg.MajorMinor()
		if err != nil {
			dlog.Warnf(ctx, "%s: not setting ${%s}: %v", layout.Package, interpreterSubstvar, err)
			break
		}
		helper.AddSubstvar(layout.Package, interpreterSubstvar, "python"+version)
	case errors.Is(err, fs.ErrNotExist):
		dlog.Warnf(ctx, "%s: not setting ${%s}: no %s", layout.Package, interpreterSubstvar, pyvenv.FileName)
	default:
		return err
	}

	if !tgt.Options.Autoscripts {
		return nil
	}
	data := debhelper.AutoscriptData{
		Package:     layout.Package,
		InstallDir:  layout.InstallDir,
		Interpreter: layout.Interpreter("python"),
	}
	for _, when := range []string{"postinst", "prerm"} {
		snippet, err := debhelper.RenderAutoscript(when, data)
		if err != nil {
			return err
		}
		helper.Autoscript(layout.Package, when, snippet)
	}
	return nil
}
