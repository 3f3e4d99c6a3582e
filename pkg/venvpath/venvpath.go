// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package venvpath computes where a packaged virtualenv lives, both while the Debian package is
// being built and once the package is installed on a target system.
package venvpath

import (
	"path/filepath"
	"strings"
)

const (
	// InstallRootEnv is the environment variable that overrides DefaultInstallRoot.  It is read
	// by the command entry point, never by this package.
	InstallRootEnv = "DH_VIRTUALENV_INSTALL_ROOT"

	DefaultInstallRoot = "/opt/venvs/"

	// BuildDirName is the directory (under "debian/") that the two-phase build/install flow
	// stages virtualenvs in.
	BuildDirName = "dh_virtualenv"
)

// A Layout is the set of paths associated with one binary package's virtualenv.  All paths
// except InstallDir are relative to the top of the source package (the directory that contains
// "debian/").
type Layout struct {
	Package       string `json:"package"`
	InstallRoot   string `json:"installRoot"`
	InstallSuffix string `json:"installSuffix,omitempty"`

	// DebianRoot is the InstallRoot inside of the package staging tree,
	// "debian/${Package}/${InstallRoot}".
	DebianRoot string `json:"debianRoot"`
	// PackageDir is where the virtualenv ends up inside the package staging tree.
	PackageDir string `json:"packageDir"`
	// BuildDir is where the two-phase flow builds the virtualenv before copying it to
	// PackageDir.
	BuildDir string `json:"buildDir"`
	// InstallDir is the path that the virtualenv will have once the .deb is installed.
	InstallDir string `json:"installDir"`
}

// New returns the Layout for pkg.  An empty installRoot selects DefaultInstallRoot; an empty
// installSuffix selects pkg.
func New(pkg, installRoot, installSuffix string) Layout {
	if installRoot == "" {
		installRoot = DefaultInstallRoot
	}
	leaf := pkg
	if installSuffix != "" {
		leaf = installSuffix
	}
	debianRoot := filepath.Join("debian", pkg, strings.TrimLeft(installRoot, "/"))
	return Layout{
		Package:       pkg,
		InstallRoot:   installRoot,
		InstallSuffix: installSuffix,

		DebianRoot: debianRoot,
		PackageDir: filepath.Join(debianRoot, leaf),
		BuildDir:   filepath.Join("debian", BuildDirName, pkg),
		InstallDir: filepath.Join(installRoot, leaf),
	}
}

func (l Layout) BinDir() string      { return filepath.Join(l.PackageDir, "bin") }
func (l Layout) LocalDir() string    { return filepath.Join(l.PackageDir, "local") }
func (l Layout) LocalBinDir() string { return filepath.Join(l.PackageDir, "local", "bin") }

// Interpreter returns the path that the named interpreter will have once the package is
// installed.
func (l Layout) Interpreter(name string) string {
	return filepath.Join(l.InstallDir, "bin", name)
}

// EnvBin returns the absolute path of a binary inside of the virtualenv at envDir.  Commands are
// run with absolute paths so that they work regardless of the working directory of the child.
func EnvBin(envDir, name string) string {
	ret := filepath.Join(envDir, "bin", name)
	if abs, err := filepath.Abs(ret); err == nil {
		ret = abs
	}
	return ret
}
