// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"
)

// Options configures how a virtualenv gets built.  The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// Environment creation
	Python              string   `json:"python,omitempty"`
	BuiltinVenv         bool     `json:"builtinVenv"`
	Setuptools          bool     `json:"setuptools"`
	UseSystemPackages   bool     `json:"useSystemPackages"`
	ExtraVirtualenvArgs []string `json:"extraVirtualenvArgs,omitempty"`

	// pip
	PipTool        string   `json:"pipTool"`
	IndexURL       string   `json:"indexURL,omitempty"`
	ExtraIndexURLs []string `json:"extraIndexURLs,omitempty"`
	ExtraPipArgs   []string `json:"extraPipArgs,omitempty"`
	UpgradePip     bool     `json:"upgradePip"`
	UpgradePipTo   string   `json:"upgradePipTo,omitempty"`

	// What to install
	Preinstall           []string `json:"preinstall,omitempty"`
	RequirementsFilename string   `json:"requirementsFilename"`
	SkipInstall          bool     `json:"skipInstall"`
	Extras               []string `json:"extras,omitempty"`
	SourceDirectory      string   `json:"sourceDirectory"`
	SetuptoolsTest       bool     `json:"setuptoolsTest"`

	// Packaging
	InstallSuffix string `json:"installSuffix,omitempty"`
	Autoscripts   bool   `json:"autoscripts"`

	Verbose bool `json:"verbose"`
}

func DefaultOptions() Options {
	return Options{
		PipTool:              "pip",
		RequirementsFilename: "requirements.txt",
		SourceDirectory:      ".",
		Autoscripts:          true,
	}
}

// ErrBuiltinVenvSetuptools is returned by Validate when both BuiltinVenv and Setuptools are set;
// `python -m venv` has no equivalent of virtualenv's --setuptools.
var ErrBuiltinVenvSetuptools = errors.New("--setuptools is not supported with --builtin-venv")

// Validate checks for combinations of options that cannot be honored.
func (o Options) Validate() error {
	if o.BuiltinVenv && o.Setuptools {
		return ErrBuiltinVenvSetuptools
	}
	return nil
}

type headerSetter func(*Options, string)

func stringHeader(field func(*Options) *string) headerSetter {
	return func(o *Options, val string) {
		*field(o) = val
	}
}

func listHeader(field func(*Options) *[]string) headerSetter {
	return func(o *Options, val string) {
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*field(o) = parts
	}
}

// ParseBool implements the loose boolean syntax of control-file headers; anything that is not
// one of the truthy words is false.
func ParseBool(val string) bool {
	switch strings.ToLower(val) {
	case "yes", "enable", "on", "true", "1":
		return true
	default:
		return false
	}
}

func boolHeader(field func(*Options) *bool) headerSetter {
	return func(o *Options, val string) {
		*field(o) = ParseBool(val)
	}
}

// headerTable maps the snake_case header names to the option that each sets.
//
//nolint:gochecknoglobals // Would be 'const'.
var headerTable = map[string]headerSetter{
	"setuptools":            boolHeader(func(o *Options) *bool { return &o.Setuptools }),
	"extra_index_url":       listHeader(func(o *Options) *[]string { return &o.ExtraIndexURLs }),
	"preinstall":            listHeader(func(o *Options) *[]string { return &o.Preinstall }),
	"extras":                listHeader(func(o *Options) *[]string { return &o.Extras }),
	"pip_tool":              stringHeader(func(o *Options) *string { return &o.PipTool }),
	"upgrade_pip":           boolHeader(func(o *Options) *bool { return &o.UpgradePip }),
	"upgrade_pip_to":        stringHeader(func(o *Options) *string { return &o.UpgradePipTo }),
	"extra_pip_arg":         listHeader(func(o *Options) *[]string { return &o.ExtraPipArgs }),
	"extra_virtualenv_arg":  listHeader(func(o *Options) *[]string { return &o.ExtraVirtualenvArgs }),
	"index_url":             stringHeader(func(o *Options) *string { return &o.IndexURL }),
	"python":                stringHeader(func(o *Options) *string { return &o.Python }),
	"builtin_venv":          boolHeader(func(o *Options) *bool { return &o.BuiltinVenv }),
	"autoscripts":           boolHeader(func(o *Options) *bool { return &o.Autoscripts }),
	"use_system_packages":   boolHeader(func(o *Options) *bool { return &o.UseSystemPackages }),
	"skip_install":          boolHeader(func(o *Options) *bool { return &o.SkipInstall }),
	"install_suffix":        stringHeader(func(o *Options) *string { return &o.InstallSuffix }),
	"requirements_filename": stringHeader(func(o *Options) *string { return &o.RequirementsFilename }),
	"setuptools_test":       boolHeader(func(o *Options) *bool { return &o.SetuptoolsTest }),
}

// HeaderNames returns the header names that ApplyHeaders recognizes, sorted.
func HeaderNames() []string {
	ret := make([]string, 0, len(headerTable))
	for name := range headerTable {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// ApplyHeaders returns a copy of o with the per-package settings from headers applied on top.
// headers is keyed by snake_case option name (see debhelper.Headers).  Unrecognized headers are
// logged and ignored.
func (o Options) ApplyHeaders(ctx context.Context, headers map[string]string) Options {
	ret := o
	ret.ExtraIndexURLs = append([]string(nil), o.ExtraIndexURLs...)
	ret.Preinstall = append([]string(nil), o.Preinstall...)
	ret.Extras = append([]string(nil), o.Extras...)
	ret.ExtraPipArgs = append([]string(nil), o.ExtraPipArgs...)
	ret.ExtraVirtualenvArgs = append([]string(nil), o.ExtraVirtualenvArgs...)

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set, ok := headerTable[name]
		if !ok {
			dlog.Debugf(ctx, "ignoring unrecognized header %q", name)
			continue
		}
		set(&ret, headers[name])
	}
	return ret
}
