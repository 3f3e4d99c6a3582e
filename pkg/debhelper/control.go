// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package debhelper implements the parts of the debhelper conventions that a dh_* program needs:
// argument handling, reading debian/control, and contributing substvars and maintainer-script
// snippets.
package debhelper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pault.ag/go/debian/control"
)

// HeaderPrefix is the prefix of the debian/control fields that configure dh_virtualenv for a
// single binary package, as in "X-DH-Virtualenv-Install-Suffix: myapp".
const HeaderPrefix = "X-DH-Virtualenv-"

// A Package is a binary package paragraph from debian/control.
type Package struct {
	control.Paragraph

	Package      string
	Architecture string
}

// Headers returns the HeaderPrefix fields of the package, keyed by the rest of the field name in
// lower snake_case: "X-DH-Virtualenv-Extra-Index-Url" becomes "extra_index_url".
func (p Package) Headers() map[string]string {
	ret := make(map[string]string)
	for _, key := range p.Paragraph.Order {
		if len(key) <= len(HeaderPrefix) || !strings.EqualFold(key[:len(HeaderPrefix)], HeaderPrefix) {
			continue
		}
		name := strings.ReplaceAll(strings.ToLower(key[len(HeaderPrefix):]), "-", "_")
		ret[name] = strings.TrimSpace(p.Paragraph.Values[key])
	}
	return ret
}

// Control is the parsed content of a debian/control file.
type Control struct {
	Source   string
	Packages []Package
}

type sourceParagraph struct {
	control.Paragraph

	Source string
}

// ReadControl parses a debian/control file: a source paragraph followed by binary package
// paragraphs.
func ReadControl(in io.Reader) (*Control, error) {
	decoder, err := control.NewDecoder(in, nil)
	if err != nil {
		return nil, err
	}
	var src sourceParagraph
	if err := decoder.Decode(&src); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no source paragraph")
		}
		return nil, err
	}
	if src.Source == "" {
		return nil, fmt.Errorf("first paragraph has no %q field", "Source")
	}
	ret := &Control{Source: src.Source}
	for {
		var pkg Package
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if pkg.Package == "" {
			return nil, fmt.Errorf("binary paragraph %d has no %q field", len(ret.Packages)+1, "Package")
		}
		if pkg.Architecture == "" {
			pkg.Architecture = "any"
		}
		ret.Packages = append(ret.Packages, pkg)
	}
	return ret, nil
}

// ParseControl reads the debian/control file at filename.
func ParseControl(filename string) (_ *Control, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _err := file.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	ret, err := ReadControl(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return ret, nil
}

// SelectPackages applies debhelper's -p/--package and -N/--no-package options: if include is
// non-empty only the packages named in it are kept, and then any package named in exclude is
// dropped.
func SelectPackages(pkgs []Package, include, exclude []string) []Package {
	in := func(list []string, name string) bool {
		for _, item := range list {
			if item == name {
				return true
			}
		}
		return false
	}
	var ret []Package
	for _, pkg := range pkgs {
		if len(include) > 0 && !in(include, pkg.Package) {
			continue
		}
		if in(exclude, pkg.Package) {
			continue
		}
		ret = append(ret, pkg)
	}
	return ret
}

// PreprocessArgs rewrites debhelper "-O--opt" option bundles to plain "--opt", and appends the
// whitespace-separated words of dhOptions (the value of $DH_OPTIONS).
func PreprocessArgs(args []string, dhOptions string) []string {
	ret := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "-O-") {
			arg = arg[2:]
		}
		ret = append(ret, arg)
	}
	return append(ret, strings.Fields(dhOptions)...)
}
