// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package debhelper_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dh-virtualenv/pkg/debhelper"
)

const testControl = `Source: myapp
Section: python
Priority: extra
Maintainer: Jane Doe <jane@example.com>
Build-Depends: debhelper (>= 9), python3, dh-virtualenv (>= 1.0)

Package: myapp
Architecture: any
X-DH-Virtualenv-Extra-Index-Url: http://a/simple, http://b/simple
x-dh-virtualenv-builtin-venv: yes
Depends: ${misc:Depends}, ${dh-virtualenv:Interpreter}
Description: an app
 with a long description

Package: myapp-doc
Description: docs
`

func TestReadControl(t *testing.T) {
	t.Parallel()
	ctl, err := debhelper.ReadControl(strings.NewReader(testControl))
	require.NoError(t, err)
	assert.Equal(t, "myapp", ctl.Source)
	require.Len(t, ctl.Packages, 2)
	assert.Equal(t, "myapp", ctl.Packages[0].Package)
	assert.Equal(t, "any", ctl.Packages[0].Architecture)
	assert.Equal(t, "myapp-doc", ctl.Packages[1].Package)
	assert.Equal(t, "any", ctl.Packages[1].Architecture)

	assert.Equal(t, map[string]string{
		"extra_index_url": "http://a/simple, http://b/simple",
		"builtin_venv":    "yes",
	}, ctl.Packages[0].Headers())
	assert.Empty(t, ctl.Packages[1].Headers())
}

func TestReadControlErrors(t *testing.T) {
	t.Parallel()
	_, err := debhelper.ReadControl(strings.NewReader(""))
	assert.Error(t, err)
	_, err = debhelper.ReadControl(strings.NewReader("Package: foo\n"))
	assert.Error(t, err)
	_, err = debhelper.ReadControl(strings.NewReader("Source: foo\n\nArchitecture: all\n"))
	assert.Error(t, err)
}

func TestParseControl(t *testing.T) {
	t.Parallel()
	filename := filepath.Join(t.TempDir(), "control")
	_, err := debhelper.ParseControl(filename)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filename, []byte(testControl), 0o644))
	ctl, err := debhelper.ParseControl(filename)
	require.NoError(t, err)
	assert.Len(t, ctl.Packages, 2)
}

func TestSelectPackages(t *testing.T) {
	t.Parallel()
	pkgs := []debhelper.Package{{Package: "a"}, {Package: "b"}, {Package: "c"}}
	names := func(pkgs []debhelper.Package) []string {
		var ret []string
		for _, pkg := range pkgs {
			ret = append(ret, pkg.Package)
		}
		return ret
	}
	assert.Equal(t, []string{"a", "b", "c"}, names(debhelper.SelectPackages(pkgs, nil, nil)))
	assert.Equal(t, []string{"a", "c"}, names(debhelper.SelectPackages(pkgs, []string{"c", "a"}, nil)))
	assert.Equal(t, []string{"b"}, names(debhelper.SelectPackages(pkgs, nil, []string{"a", "c"})))
	assert.Equal(t, []string{"c"}, names(debhelper.SelectPackages(pkgs, []string{"a", "c"}, []string{"a"})))
	assert.Empty(t, debhelper.SelectPackages(pkgs, []string{"z"}, nil))
}

func TestPreprocessArgs(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		[]string{"--python=/usr/bin/python3", "-p", "foo", "--no-test", "-v", "--builtin-venv"},
		debhelper.PreprocessArgs(
			[]string{"-O--python=/usr/bin/python3", "-p", "foo", "-O--no-test"},
			"  -v\t--builtin-venv "))
	assert.Equal(t, []string{"-O", "foo"}, debhelper.PreprocessArgs([]string{"-O", "foo"}, ""))
}

func TestMergeSubstvars(t *testing.T) {
	t.Parallel()
	existing := "misc:Depends=foo\ndh-virtualenv:Interpreter=python3.9\n\nother=x\n"
	actual := debhelper.MergeSubstvars(existing,
		map[string][]string{"dh-virtualenv:Interpreter": {"python3.11", "python3.9"}},
		[]string{"dh-virtualenv:Interpreter"})
	assert.Equal(t, ""+
		"misc:Depends=foo\n"+
		"other=x\n"+
		"dh-virtualenv:Interpreter=python3.9, python3.11\n",
		actual)

	assert.Equal(t, "a=b\n", debhelper.MergeSubstvars("", map[string][]string{"a": {"b"}}, []string{"a"}))
}

func TestMergeAutoscripts(t *testing.T) {
	t.Parallel()
	first := debhelper.MergeAutoscripts("", "dh_virtualenv", []string{"echo a\n", "echo b\n", "echo a\n"})
	assert.Equal(t, ""+
		"# Automatically added by dh_virtualenv\n"+
		"echo a\n"+
		"echo b\n"+
		"# End automatically added section\n",
		first)

	assert.Equal(t, first, debhelper.MergeAutoscripts(first, "dh_virtualenv", []string{"echo b\n"}))

	second := debhelper.MergeAutoscripts(first, "dh_virtualenv", []string{"echo c\n"})
	assert.Equal(t, first+
		"# Automatically added by dh_virtualenv\n"+
		"echo c\n"+
		"# End automatically added section\n",
		second)
}

func TestHelperSave(t *testing.T) {
	t.Parallel()
	debianDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(debianDir, "myapp.substvars"), []byte("misc:Depends=foo\n"), 0o644))

	helper := debhelper.NewHelper("dh_virtualenv", debianDir)
	helper.AddSubstvar("myapp", "dh-virtualenv:Interpreter", "python3.11")
	helper.Autoscript("myapp", "postinst", "echo configured")
	helper.Autoscript("myapp", "prerm", "echo removing\n")
	require.NoError(t, helper.Save())

	// Saving the same things again must not duplicate anything.
	helper.AddSubstvar("myapp", "dh-virtualenv:Interpreter", "python3.11")
	helper.Autoscript("myapp", "postinst", "echo configured")
	require.NoError(t, helper.Save())

	read := func(name string) string {
		content, err := os.ReadFile(filepath.Join(debianDir, name))
		require.NoError(t, err)
		return string(content)
	}
	assert.Equal(t, "misc:Depends=foo\ndh-virtualenv:Interpreter=python3.11\n", read("myapp.substvars"))
	assert.Equal(t, ""+
		"# Automatically added by dh_virtualenv\n"+
		"echo configured\n"+
		"# End automatically added section\n",
		read("myapp.postinst.debhelper"))
	assert.Equal(t, ""+
		"# Automatically added by dh_virtualenv\n"+
		"echo removing\n"+
		"# End automatically added section\n",
		read("myapp.prerm.debhelper"))
}

func TestRenderAutoscript(t *testing.T) {
	t.Parallel()
	data := debhelper.AutoscriptData{
		Package:     "myapp",
		InstallDir:  "/opt/venvs/it's",
		Interpreter: "/opt/venvs/it's/bin/python",
	}

	postinst, err := debhelper.RenderAutoscript("postinst", data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(postinst, `if [ "$1" = "configure" ] && [ ! -e '/opt/venvs/it'\''s/bin/python' ]; then`+"\n"), postinst)
	assert.True(t, strings.HasSuffix(postinst, "\nfi\n"), postinst)
	assert.Contains(t, postinst, "myapp: warning: ")

	prerm, err := debhelper.RenderAutoscript("prerm", data)
	require.NoError(t, err)
	assert.Equal(t, ""+
		`if [ -d '/opt/venvs/it'\''s' ]; then`+"\n"+
		"\t"+`find '/opt/venvs/it'\''s' -depth -type d -name __pycache__ -exec rm -rf {} + || true`+"\n"+
		"fi\n",
		prerm)

	_, err = debhelper.RenderAutoscript("postrm", data)
	assert.Error(t, err)
}

func TestShellQuote(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `'plain'`, debhelper.ShellQuote("plain"))
	assert.Equal(t, `''`, debhelper.ShellQuote(""))
	assert.Equal(t, `'a'\''b'`, debhelper.ShellQuote("a'b"))
}
