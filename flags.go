// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datawire/dh-virtualenv/pkg/cliutil"
	"github.com/datawire/dh-virtualenv/pkg/debhelper"
	"github.com/datawire/dh-virtualenv/pkg/deployment"
	"github.com/datawire/dh-virtualenv/pkg/venvpath"
)

//nolint:gochecknoglobals // Flag values.
var (
	globalOpts = deployment.DefaultOptions()

	flagPackages   []string
	flagNoPackages []string
	flagPypiURL    string
	flagNoTest     bool
	flagNoScripts  bool

	// Accepted for debhelper compatibility, and ignored.
	flagDHOptions []string
	flagArch      bool
	flagIndep     bool
)

// conflictingFlags are the pairs of flags that may not both be given.
//
//nolint:gochecknoglobals // Would be 'const'.
var conflictingFlags = [][2]string{
	{"pypi-url", "index-url"},
	{"no-test", "setuptools-test"},
	{"builtin-venv", "setuptools"},
}

func init() {
	flags := argparser.PersistentFlags()

	flags.StringArrayVarP(&flagPackages, "package", "p", nil,
		"Act on the package named `PACKAGE` (may be given multiple times)")
	flags.StringArrayVarP(&flagNoPackages, "no-package", "N", nil,
		"Do not act on the package named `PACKAGE` (may be given multiple times)")
	flags.BoolVarP(&globalOpts.Verbose, "verbose", "v", globalOpts.Verbose,
		"Turn on verbose mode")

	// Creating the virtualenv
	flags.StringVar(&globalOpts.Python, "python", "",
		"Use `PYTHON` as the interpreter of the virtualenv")
	flags.BoolVar(&globalOpts.BuiltinVenv, "builtin-venv", false,
		"Create the virtualenv with \"python -m venv\" instead of virtualenv")
	flags.BoolVarP(&globalOpts.Setuptools, "setuptools", "s", false,
		"Use setuptools instead of distribute in the virtualenv")
	flags.BoolVarP(&globalOpts.UseSystemPackages, "use-system-packages", "S", false,
		"Give the virtualenv access to the system's site-packages")
	flags.StringArrayVar(&globalOpts.ExtraVirtualenvArgs, "extra-virtualenv-arg", nil,
		"Pass `ARG` to virtualenv (may be given multiple times)")

	// pip
	flags.StringVar(&globalOpts.PipTool, "pip-tool", globalOpts.PipTool,
		"Install with `TOOL` instead of pip")
	flags.StringVar(&globalOpts.IndexURL, "index-url", "",
		"Use `URL` as the base URL of the package index")
	flags.StringVar(&flagPypiURL, "pypi-url", "",
		"Deprecated; same as --index-url")
	flags.StringArrayVar(&globalOpts.ExtraIndexURLs, "extra-index-url", nil,
		"Also look for packages at `URL` (may be given multiple times)")
	flags.StringArrayVar(&globalOpts.ExtraPipArgs, "extra-pip-arg", nil,
		"Pass `ARG` to pip (may be given multiple times)")
	flags.BoolVar(&globalOpts.UpgradePip, "upgrade-pip", false,
		"Upgrade pip in the virtualenv before installing anything else")
	flags.StringVar(&globalOpts.UpgradePipTo, "upgrade-pip-to", "",
		"Upgrade pip to `VERSION` (\"latest\" for the newest) before installing anything else")

	// What to install
	flags.StringArrayVar(&globalOpts.Preinstall, "preinstall", nil,
		"Install `PACKAGE` before the requirements, with the virtualenv's own pip (may be given multiple times)")
	flags.StringVar(&globalOpts.RequirementsFilename, "requirements", globalOpts.RequirementsFilename,
		"Install the requirements listed in `FILE`, relative to the source directory")
	flags.BoolVar(&globalOpts.SkipInstall, "skip-install", false,
		"Do not install the project itself, only its requirements")
	flags.StringArrayVar(&globalOpts.Extras, "extras", nil,
		"Install the project with the optional feature `EXTRA` (may be given multiple times)")
	flags.StringVarP(&globalOpts.SourceDirectory, "sourcedirectory", "D", globalOpts.SourceDirectory,
		"The project to install is in `DIR`")
	flags.BoolVar(&globalOpts.SetuptoolsTest, "setuptools-test", false,
		"Run \"python setup.py test\" after installing the project")
	flags.BoolVar(&flagNoTest, "no-test", false,
		"Deprecated; tests are not run unless --setuptools-test is given")

	// Packaging
	flags.StringVar(&globalOpts.InstallSuffix, "install-suffix", "",
		"Install the virtualenv in the directory `NAME` of the install root, instead of the package name")
	flags.BoolVarP(&flagNoScripts, "noscripts", "n", false,
		"Do not add maintainer-script snippets")

	flags.StringArrayVarP(&flagDHOptions, "dh-option", "O", nil, "")
	flags.BoolVarP(&flagArch, "arch", "a", false, "")
	flags.BoolVarP(&flagIndep, "indep", "i", false, "")
	for _, name := range []string{"dh-option", "arch", "indep"} {
		_ = flags.MarkHidden(name)
	}
}

// checkFlags validates the flags before any subcommand touches the filesystem, and applies the
// flags that are not plain option values.
func checkFlags(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if globalOpts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if err := cliutil.CheckConflicts(cmd.Flags(), conflictingFlags...); err != nil {
		return cliutil.FlagErrorFunc(cmd, err)
	}
	if cmd.Flags().Changed("pypi-url") {
		dlog.Warnf(ctx, "--pypi-url is deprecated; use --index-url")
		globalOpts.IndexURL = flagPypiURL
	}
	if flagNoTest {
		dlog.Warnf(ctx, "--no-test is deprecated and has no effect; tests only run with --setuptools-test")
	}
	globalOpts.Autoscripts = !flagNoScripts
	return nil
}

// A target is one binary package that dh_virtualenv acts on.
type target struct {
	Layout  venvpath.Layout    `json:"layout"`
	Options deployment.Options `json:"options"`
}

// loadTargets reads the binary packages from controlFile, selects the ones that include and
// exclude ask for, and resolves and validates the options of each from base and its control-file
// headers.
func loadTargets(
	ctx context.Context,
	controlFile, installRoot string,
	base deployment.Options,
	include, exclude []string,
) ([]target, error) {
	ctl, err := debhelper.ParseControl(controlFile)
	if err != nil {
		return nil, err
	}
	var ret []target
	for _, pkg := range debhelper.SelectPackages(ctl.Packages, include, exclude) {
		opts := base.ApplyHeaders(ctx, pkg.Headers())
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", pkg.Package, err)
		}
		ret = append(ret, target{
			Layout:  venvpath.New(pkg.Package, installRoot, opts.InstallSuffix),
			Options: opts,
		})
	}
	if len(ret) == 0 {
		dlog.Warnf(ctx, "%s: no packages to act on", controlFile)
	}
	return ret, nil
}

// targets is loadTargets for the current invocation.  Options that conflict once the
// control-file fields are applied are a usage error, the same as conflicting flags.
func targets(cmd *cobra.Command) ([]target, error) {
	tgts, err := loadTargets(cmd.Context(), filepath.Join("debian", "control"), installRoot,
		globalOpts, flagPackages, flagNoPackages)
	if errors.Is(err, deployment.ErrBuiltinVenvSetuptools) {
		return nil, cliutil.FlagErrorFunc(cmd, err)
	}
	return tgts, err
}
