// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package deployment builds a virtualenv and installs a Python project in to it, by driving
// virtualenv (or `python3 -m venv`) and pip as subprocesses.
package deployment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/dh-virtualenv/pkg/venvpath"
)

// DefaultPython is the interpreter used to run `-m venv` when Options.Python is empty.
const DefaultPython = "python3"

// A Deployment is a single virtualenv being built at EnvDir.  EnvDir is the staging package
// directory for a single-step build, or the layout's BuildDir for a two-phase build.
type Deployment struct {
	Layout  venvpath.Layout
	EnvDir  string
	Options Options

	runner  Runner
	logFile string

	// pipArgs is everything after the pip executable, up to but not including what to install.
	pipArgs []string
	// pipUpgradeArgs is pipArgs without the user's extra pip args, which the pip that
	// virtualenv bundles might not understand.
	pipUpgradeArgs []string
}

// New prepares a Deployment.  The caller must call Close when done with it, to remove the pip log
// file.
func New(layout venvpath.Layout, envDir string, opts Options, runner Runner) (*Deployment, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logFile, err := os.CreateTemp("", "dh-virtualenv-pip.*.log")
	if err != nil {
		return nil, err
	}
	logFilename, err := filepath.Abs(logFile.Name())
	if err != nil {
		_ = logFile.Close()
		_ = os.Remove(logFile.Name())
		return nil, err
	}
	if err := logFile.Close(); err != nil {
		_ = os.Remove(logFilename)
		return nil, err
	}

	d := &Deployment{
		Layout:  layout,
		EnvDir:  envDir,
		Options: opts,

		runner:  runner,
		logFile: logFilename,
	}

	d.pipArgs = []string{"install"}
	if opts.Verbose {
		d.pipArgs = append(d.pipArgs, "-v")
	}
	if opts.IndexURL != "" {
		d.pipArgs = append(d.pipArgs, "--index-url="+opts.IndexURL)
	}
	for _, url := range opts.ExtraIndexURLs {
		d.pipArgs = append(d.pipArgs, "--extra-index-url="+url)
	}
	d.pipArgs = append(d.pipArgs, "--log="+d.logFile)
	d.pipUpgradeArgs = append([]string(nil), d.pipArgs...)
	d.pipArgs = append(d.pipArgs, opts.ExtraPipArgs...)

	return d, nil
}

// LogFile is the absolute path of the file that pip logs to.
func (d *Deployment) LogFile() string {
	return d.logFile
}

func (d *Deployment) Close() error {
	if err := os.Remove(d.logFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Deployment) python() string {
	if d.Options.Python != "" {
		return d.Options.Python
	}
	return DefaultPython
}

// envBin returns the absolute path of a program in the virtualenv being built.
func (d *Deployment) envBin(name string) string {
	return venvpath.EnvBin(d.EnvDir, name)
}

// CreateCommands returns the commands that create the virtualenv.
func (d *Deployment) CreateCommands() [][]string {
	var cmd []string
	if d.Options.BuiltinVenv {
		cmd = []string{d.python(), "-m", "venv"}
	} else {
		cmd = []string{"virtualenv"}
		if d.Options.UseSystemPackages {
			cmd = append(cmd, "--system-site-packages")
		}
		if d.Options.Python != "" {
			cmd = append(cmd, "--python", d.Options.Python)
		}
		if d.Options.Setuptools {
			cmd = append(cmd, "--setuptools")
		}
		if d.Options.Verbose {
			cmd = append(cmd, "--verbose")
		}
	}
	cmd = append(cmd, d.Options.ExtraVirtualenvArgs...)
	cmd = append(cmd, d.EnvDir)

	cmds := [][]string{cmd}
	if d.Options.BuiltinVenv && d.Options.UseSystemPackages {
		// venv doesn't bootstrap pip in to an environment created with
		// --system-site-packages (https://bugs.python.org/issue24875), so create it without, and
		// then turn it on.
		cmds = append(cmds, []string{d.python(), "-m", "venv", "--system-site-packages", d.EnvDir})
	}
	return cmds
}

// UpgradePipCommand returns the command that upgrades pip itself.
func (d *Deployment) UpgradePipCommand() []string {
	cmd := append([]string{d.envBin("python"), d.envBin("pip")}, d.pipUpgradeArgs...)
	if d.Options.UpgradePipTo == "" || d.Options.UpgradePipTo == "latest" {
		return append(cmd, "-U", "pip")
	}
	return append(cmd, "pip=="+d.Options.UpgradePipTo)
}

// PreinstallCommand returns the command that installs the preinstall packages.  It always uses the
// pip that the virtualenv was created with, since the preinstall packages are typically what
// provides a custom PipTool.
func (d *Deployment) PreinstallCommand() []string {
	cmd := append([]string{d.envBin("python"), d.envBin("pip")}, d.pipArgs...)
	return append(cmd, d.Options.Preinstall...)
}

// PipCommand returns a command that runs PipTool with args after the common pip arguments.
func (d *Deployment) PipCommand(args ...string) []string {
	cmd := append([]string{d.envBin("python"), d.envBin(d.Options.PipTool)}, d.pipArgs...)
	return append(cmd, args...)
}

// RequirementsFile is the requirements file that the "requirements" phase installs from, if it
// exists.
func (d *Deployment) RequirementsFile() string {
	return filepath.Join(d.Options.SourceDirectory, d.Options.RequirementsFilename)
}

// InstallTarget is the pip requirement that refers to the project in the source directory.
func (d *Deployment) InstallTarget() string {
	if len(d.Options.Extras) == 0 {
		return "."
	}
	return ".[" + strings.Join(d.Options.Extras, ",") + "]"
}

// A Phase is one step of Build.
type Phase struct {
	Name string
	// Skip reports whether the phase has nothing to do.
	Skip func() (bool, error)
	Run  func(ctx context.Context) error
}

func never() (bool, error) { return false, nil }

func fileMissing(filename string) func() (bool, error) {
	return func() (bool, error) {
		_, err := os.Stat(filename)
		switch {
		case err == nil:
			return false, nil
		case errors.Is(err, fs.ErrNotExist):
			return true, nil
		default:
			return false, err
		}
	}
}

// Phases returns the steps of Build, in the order that they must run.
func (d *Deployment) Phases() []Phase {
	return []Phase{
		{
			Name: "create",
			Skip: never,
			Run: func(ctx context.Context) error {
				for _, cmd := range d.CreateCommands() {
					if err := d.runner.Run(ctx, "", cmd...); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			// Precondition: the virtualenv exists, with the pip that it was created with.
			Name: "upgrade-pip",
			Skip: func() (bool, error) {
				return !(d.Options.UpgradePip || d.Options.UpgradePipTo != ""), nil
			},
			Run: func(ctx context.Context) error {
				return d.runner.Run(ctx, "", d.UpgradePipCommand()...)
			},
		},
		{
			// Precondition: nothing has been installed with PipTool yet.
			Name: "preinstall",
			Skip: func() (bool, error) {
				return len(d.Options.Preinstall) == 0, nil
			},
			Run: func(ctx context.Context) error {
				return d.runner.Run(ctx, "", d.PreinstallCommand()...)
			},
		},
		{
			// Precondition: PipTool is installed (by "create" or by "preinstall").
			Name: "requirements",
			Skip: fileMissing(d.RequirementsFile()),
			Run: func(ctx context.Context) error {
				return d.runner.Run(ctx, "", d.PipCommand("-r", d.RequirementsFile())...)
			},
		},
		{
			// Precondition: the project's dependencies are installed.  pip runs in the source
			// directory, so that relative paths in the project's build configuration resolve.
			Name: "install",
			Skip: func() (bool, error) {
				return d.Options.SkipInstall, nil
			},
			Run: func(ctx context.Context) error {
				srcDir, err := filepath.Abs(d.Options.SourceDirectory)
				if err != nil {
					return err
				}
				return d.runner.Run(ctx, srcDir, d.PipCommand(d.InstallTarget())...)
			},
		},
		{
			// Precondition: the project is installed.
			Name: "test",
			Skip: func() (bool, error) {
				if !d.Options.SetuptoolsTest {
					return true, nil
				}
				return fileMissing(filepath.Join(d.Options.SourceDirectory, "setup.py"))()
			},
			Run: func(ctx context.Context) error {
				return d.runner.Run(ctx, d.Options.SourceDirectory, d.envBin("python"), "setup.py", "test")
			},
		},
	}
}

// Build runs each of the Phases in order, stopping at the first failure.  A failed build leaves
// the partial virtualenv on disk.
func (d *Deployment) Build(ctx context.Context) error {
	for _, phase := range d.Phases() {
		skip, err := phase.Skip()
		if err != nil {
			return fmt.Errorf("%s: %w", phase.Name, err)
		}
		if skip {
			dlog.Debugf(ctx, "%s: %s: nothing to do", d.Layout.Package, phase.Name)
			continue
		}
		dlog.Infof(ctx, "%s: %s", d.Layout.Package, phase.Name)
		if err := phase.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", phase.Name, err)
		}
	}
	return nil
}

// Clean removes everything that building and installing the virtualenv for layout created in the
// source tree.  Paths that do not exist are not an error.
func Clean(layout venvpath.Layout) error {
	for _, dir := range []string{layout.DebianRoot, layout.BuildDir} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}
