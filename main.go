// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Command dh_virtualenv is a debhelper helper that builds a Python virtualenv in to a Debian
// package and relocates it to where it will live once the package is installed.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/google/go-containerregistry/pkg/logs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datawire/dh-virtualenv/pkg/cliutil"
	"github.com/datawire/dh-virtualenv/pkg/debhelper"
	"github.com/datawire/dh-virtualenv/pkg/reproducible"
	"github.com/datawire/dh-virtualenv/pkg/venvpath"
)

// programName is what autoscript blocks are attributed to, regardless of how we were invoked.
const programName = "dh_virtualenv"

//nolint:gochecknoglobals // Set once by main.
var (
	// installRoot is the value of $DH_VIRTUALENV_INSTALL_ROOT.
	installRoot string
	logger      = logrus.New()
)

var argparser = &cobra.Command{
	Use:   "dh_virtualenv [flags] [SUBCOMMAND]",
	Short: "Build a Python virtualenv in to a Debian package",
	Long: "With no subcommand, dh_virtualenv builds each package's virtualenv directly in the " +
		"package staging directory and relocates it in place.  The build and install " +
		"subcommands split that in to two steps, for use from the dh_auto_build and " +
		"dh_auto_install sequence points.",
	Annotations: map[string]string{
		"environment": "" +
			"  " + venvpath.InstallRootEnv + "   where virtualenvs are installed (default " + venvpath.DefaultInstallRoot + ")\n" +
			"  DH_OPTIONS                   more flags, as with any debhelper program\n" +
			"  DH_VERBOSE=1                 same as --verbose\n" +
			"  " + reproducible.EnvVar + "            latest timestamp written by the layer subcommand\n",
	},

	Args:              cliutil.OnlySubcommands,
	PersistentPreRunE: checkFlags,
	RunE:              runBuildInPlace,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc will handle it
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
}

func main() {
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
	ctx := dlog.WithLogger(context.Background(), dlog.WrapLogrus(logger))

	logs.Warn = dlog.StdLogger(ctx, dlog.LogLevelWarn)
	logs.Progress = dlog.StdLogger(ctx, dlog.LogLevelInfo)
	logs.Debug = dlog.StdLogger(ctx, dlog.LogLevelDebug)

	installRoot = os.Getenv(venvpath.InstallRootEnv)
	if os.Getenv("DH_VERBOSE") == "1" {
		globalOpts.Verbose = true
	}
	argparser.SetArgs(debhelper.PreprocessArgs(os.Args[1:], os.Getenv("DH_OPTIONS")))

	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
