// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package debhelper

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type substvar struct {
	name   string
	values []string
}

type autoscript struct {
	when    string
	snippet string
}

type pkgData struct {
	substvars   []substvar
	autoscripts []autoscript
}

// A Helper accumulates substvars and maintainer-script snippets for binary packages, and writes
// them to the debian/ directory on Save.
type Helper struct {
	// Program is the name that autoscript blocks are attributed to.
	Program string
	// DebianDir is the "debian/" directory to write in to.
	DebianDir string

	pkgOrder []string
	pkgs     map[string]*pkgData
}

func NewHelper(program, debianDir string) *Helper {
	return &Helper{
		Program:   program,
		DebianDir: debianDir,
		pkgs:      make(map[string]*pkgData),
	}
}

func (h *Helper) pkg(name string) *pkgData {
	data, ok := h.pkgs[name]
	if !ok {
		data = new(pkgData)
		h.pkgs[name] = data
		h.pkgOrder = append(h.pkgOrder, name)
	}
	return data
}

// AddSubstvar adds value to the comma-separated list of values for the substvar
// "${name}" of pkg, like debhelper's addsubstvar.
func (h *Helper) AddSubstvar(pkg, name, value string) {
	data := h.pkg(pkg)
	for i := range data.substvars {
		if data.substvars[i].name == name {
			data.substvars[i].values = append(data.substvars[i].values, value)
			return
		}
	}
	data.substvars = append(data.substvars, substvar{name: name, values: []string{value}})
}

// Autoscript adds snippet to pkg's maintainer script when ("postinst", "prerm", ...).
func (h *Helper) Autoscript(pkg, when, snippet string) {
	if !strings.HasSuffix(snippet, "\n") {
		snippet += "\n"
	}
	data := h.pkg(pkg)
	data.autoscripts = append(data.autoscripts, autoscript{when: when, snippet: snippet})
}

func readOptional(filename string) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(content), nil
}

func splitItems(list string) []string {
	var ret []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}

// MergeSubstvars merges vars in to the content of an existing substvars file.  The existing line
// for each variable is replaced by one at the end of the file that has the old values followed by
// any new values not already present.
func MergeSubstvars(existing string, vars map[string][]string, order []string) string {
	lines := strings.Split(strings.TrimRight(existing, "\n"), "\n")
	if existing == "" {
		lines = nil
	}
	for _, name := range order {
		var items []string
		kept := lines[:0]
		for _, line := range lines {
			if strings.HasPrefix(line, name+"=") {
				items = append(items, splitItems(strings.TrimPrefix(line, name+"="))...)
				continue
			}
			kept = append(kept, line)
		}
		lines = kept
	outer:
		for _, val := range vars[name] {
			for _, item := range items {
				if item == val {
					continue outer
				}
			}
			items = append(items, val)
		}
		if len(items) > 0 {
			lines = append(lines, name+"="+strings.Join(items, ", "))
		}
	}
	var ret strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		ret.WriteString(line)
		ret.WriteByte('\n')
	}
	return ret.String()
}

// MergeAutoscripts appends to the content of an existing maintainer-script fragment a block
// attributed to program holding each of snippets that is not already present.
func MergeAutoscripts(existing, program string, snippets []string) string {
	var block strings.Builder
	for _, snippet := range snippets {
		if strings.Contains(existing, snippet) || strings.Contains(block.String(), snippet) {
			continue
		}
		block.WriteString(snippet)
	}
	if block.Len() == 0 {
		return existing
	}
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return fmt.Sprintf("%s# Automatically added by %s\n%s# End automatically added section\n",
		existing, program, block.String())
}

func (h *Helper) saveSubstvars(pkg string, data *pkgData) error {
	if len(data.substvars) == 0 {
		return nil
	}
	filename := filepath.Join(h.DebianDir, pkg+".substvars")
	existing, err := readOptional(filename)
	if err != nil {
		return err
	}
	vars := make(map[string][]string, len(data.substvars))
	order := make([]string, 0, len(data.substvars))
	for _, v := range data.substvars {
		vars[v.name] = v.values
		order = append(order, v.name)
	}
	return os.WriteFile(filename, []byte(MergeSubstvars(existing, vars, order)), 0o644)
}

func (h *Helper) saveAutoscripts(pkg string, data *pkgData) error {
	var whenOrder []string
	snippets := make(map[string][]string)
	for _, script := range data.autoscripts {
		if _, ok := snippets[script.when]; !ok {
			whenOrder = append(whenOrder, script.when)
		}
		snippets[script.when] = append(snippets[script.when], script.snippet)
	}
	for _, when := range whenOrder {
		filename := filepath.Join(h.DebianDir, pkg+"."+when+".debhelper")
		existing, err := readOptional(filename)
		if err != nil {
			return err
		}
		merged := MergeAutoscripts(existing, h.Program, snippets[when])
		if merged == existing {
			continue
		}
		if err := os.WriteFile(filename, []byte(merged), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Save writes everything accumulated so far to the debian/ directory, merging with what is
// already there, and then forgets it.
func (h *Helper) Save() error {
	for _, pkg := range h.pkgOrder {
		data := h.pkgs[pkg]
		if err := h.saveSubstvars(pkg, data); err != nil {
			return err
		}
		if err := h.saveAutoscripts(pkg, data); err != nil {
			return err
		}
	}
	h.pkgOrder = nil
	h.pkgs = make(map[string]*pkgData)
	return nil
}
