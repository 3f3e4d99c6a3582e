// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	ociv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/pmezard/go-difflib/difflib"
)

//nolint:gochecknoglobals // Would be 'const'.
var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(
		w,   // output
		0,   // minwidth
		1,   // tabwidth
		1,   // padding
		' ', // padchar
		0)   // flags
}

// DumpTree returns a listing of every entry under the directory dirname (permissions, size,
// and symlink target), followed by the content of each regular file.
func DumpTree(dirname string) (string, error) {
	var listing, contents strings.Builder
	table := newTable(&listing)
	err := filepath.WalkDir(dirname, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name, err := filepath.Rel(dirname, filename)
		if err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		row := []string{"", info.Mode().String(), "", name}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(filename)
			if err != nil {
				return err
			}
			row = append(row, "->", target)
		case info.Mode().IsRegular():
			row[2] = fmt.Sprintf("% 10d", info.Size())
			content, err := os.ReadFile(filename)
			if err != nil {
				return err
			}
			fmt.Fprintf(&contents, "%s =%s", name, spewConfig.Sdump(string(content)))
		}
		_, err = fmt.Fprintln(table, strings.Join(row, "\t"))
		return err
	})
	if err != nil {
		return "", err
	}
	if err := table.Flush(); err != nil {
		return "", err
	}
	return listing.String() + "\n" + contents.String(), nil
}

func DumpLayerListing(layer ociv1.Layer) (str string, err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			str = ""
			err = _err
		}
	}

	ret := new(strings.Builder)

	layerReader, err := layer.Uncompressed()
	if err != nil {
		return "", err
	}
	defer func() {
		maybeSetErr(layerReader.Close())
	}()

	table := newTable(ret)
	tarReader := tar.NewReader(layerReader)
	for {
		header, err := tarReader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		name := header.Name
		if header.Linkname != "" {
			name += " -> " + header.Linkname
		}
		if _, err := fmt.Fprintln(table, strings.Join([]string{
			"",
			header.FileInfo().Mode().String(),
			fmt.Sprintf("%d=%q", header.Uid, header.Uname),
			fmt.Sprintf("%d=%q", header.Gid, header.Gname),
			fmt.Sprintf("% 10d", header.Size),
			name,
		}, "\t")); err != nil {
			return "", err
		}

		if _, err := io.Copy(io.Discard, tarReader); err != nil {
			return "", err
		}
	}
	if err := table.Flush(); err != nil {
		return "", err
	}

	return ret.String(), nil
}

func assertEqualDumps(t *testing.T, what, exp, act string) bool {
	t.Helper()
	if exp == act {
		return true
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	t.Errorf("%s diff:\n%s", what, diff)
	return false
}

// AssertEqualTrees asserts that the directory trees at exp and act have the same layout, symlinks,
// permissions, and file contents.  Timestamps and ownership are not compared.
func AssertEqualTrees(t *testing.T, exp, act string) bool {
	t.Helper()
	expStr, err := DumpTree(exp)
	if err != nil {
		t.Errorf("error dumping expected tree: %v", err)
		return false
	}
	actStr, err := DumpTree(act)
	if err != nil {
		t.Errorf("error dumping actual tree: %v", err)
		return false
	}
	return assertEqualDumps(t, "Tree", expStr, actStr)
}

// AssertLayerListing asserts that layer contains exactly the entries in exp, as formatted by
// DumpLayerListing.
func AssertLayerListing(t *testing.T, exp string, layer ociv1.Layer) bool {
	t.Helper()
	actStr, err := DumpLayerListing(layer)
	if err != nil {
		t.Errorf("error dumping layer listing: %v", err)
		return false
	}
	return assertEqualDumps(t, "Listing", exp, actStr)
}
