// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package shebang_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dh-virtualenv/pkg/shebang"
	"github.com/datawire/dh-virtualenv/pkg/testutil"
	"github.com/datawire/dh-virtualenv/pkg/venvpath"
)

func longShebang(interp string) string {
	return "#!/bin/sh\n" +
		"'''exec' " + interp + ` "$0" "$@"` + "\n" +
		"' '''\n" +
		"# -*- coding: utf-8 -*-\n" +
		"import sys\n"
}

func TestRewriteScript(t *testing.T) {
	t.Parallel()
	longRoot := "/" + strings.Repeat("p", 127)
	type testcase struct {
		Input          string
		Target         string
		ExpectedOutput string
		ExpectedKind   shebang.Dialect
	}
	testcases := map[string]testcase{
		"default-root": {
			Input:          "#!/usr/bin/python\n",
			Target:         venvpath.New("test", "", "").InstallDir,
			ExpectedOutput: "#!/opt/venvs/test/bin/python\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"relative-root": {
			Input:          "#!/usr/bin/python\n",
			Target:         venvpath.New("test", "foo", "").InstallDir,
			ExpectedOutput: "#!foo/test/bin/python\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"long-shebang": {
			Input:          longShebang("/build/debian/dh_virtualenv/test/bin/python3"),
			Target:         venvpath.New("test", longRoot, "").InstallDir,
			ExpectedOutput: longShebang(longRoot + "/test/bin/python3"),
			ExpectedKind:   shebang.DialectLong,
		},
		"long-shebang-quoted": {
			Input:          longShebang(`"/build dir/bin/python3"`),
			Target:         "/opt/venvs/test",
			ExpectedOutput: longShebang(`"/opt/venvs/test/bin/python3"`),
			ExpectedKind:   shebang.DialectLong,
		},
		"version-suffix": {
			Input:          "#!/build/bin/python3.11\nimport sys\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/opt/venvs/test/bin/python3.11\nimport sys\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"arguments": {
			Input:          "#!/build/bin/python -E -s\nimport sys\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/opt/venvs/test/bin/python -E -s\nimport sys\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"env": {
			Input:          "#!/usr/bin/env python\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/usr/bin/env /opt/venvs/test/bin/python\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"quoted": {
			Input:          "#!\"/build dir/bin/python\"\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!\"/opt/venvs/test/bin/python\"\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"crlf": {
			Input:          "#!/build/bin/python\r\nprint('hi')\r\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/opt/venvs/test/bin/python\r\nprint('hi')\r\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"no-newline": {
			Input:          "#!/build/bin/pypy",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/opt/venvs/test/bin/pypy",
			ExpectedKind:   shebang.DialectClassic,
		},
		"special-characters": {
			Input:          "#!/usr/bin/python\n",
			Target:         `/srv/a:b/$1/\1/&/[x]*`,
			ExpectedOutput: "#!/srv/a:b/$1/\\1/&/[x]*/bin/python\n",
			ExpectedKind:   shebang.DialectClassic,
		},
		"not-python": {
			Input:          "#!/bin/bash\necho hi\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/bin/bash\necho hi\n",
			ExpectedKind:   shebang.DialectNone,
		},
		"interpreter-prefix": {
			Input:          "#!/usr/bin/pythonista\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/usr/bin/pythonista\n",
			ExpectedKind:   shebang.DialectNone,
		},
		"no-shebang": {
			Input:          "import sys\n#!/usr/bin/python\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "import sys\n#!/usr/bin/python\n",
			ExpectedKind:   shebang.DialectNone,
		},
		"sh-not-long": {
			Input:          "#!/bin/sh\nexec /build/bin/python \"$@\"\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/bin/sh\nexec /build/bin/python \"$@\"\n",
			ExpectedKind:   shebang.DialectNone,
		},
		"empty": {
			Input:          "",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "",
			ExpectedKind:   shebang.DialectNone,
		},
	}
	for _, interp := range shebang.Interpreters {
		testcases["interpreter-"+interp] = testcase{
			Input:          "#!/build/bin/" + interp + "\n",
			Target:         "/opt/venvs/test",
			ExpectedOutput: "#!/opt/venvs/test/bin/" + interp + "\n",
			ExpectedKind:   shebang.DialectClassic,
		}
		testcases["long-interpreter-"+interp] = testcase{
			Input:          longShebang("/build/bin/" + interp),
			Target:         "/opt/venvs/test",
			ExpectedOutput: longShebang("/opt/venvs/test/bin/" + interp),
			ExpectedKind:   shebang.DialectLong,
		}
	}
	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.ExpectedKind, shebang.Classify([]byte(tc.Input)))
			output, kind := shebang.RewriteScript([]byte(tc.Input), tc.Target)
			assert.Equal(t, tc.ExpectedKind, kind)
			assert.Equal(t, tc.ExpectedOutput, string(output))

			again, _ := shebang.RewriteScript(output, tc.Target)
			assert.Equal(t, string(output), string(again), "second pass changed the result")
		})
	}
}

// installRoot is an install root made of characters that are troublesome for pattern-based
// rewriting.  It never contains whitespace or a double-quote, which cannot appear in an unquoted
// shebang.
type installRoot string

func (installRoot) Generate(rand *rand.Rand, size int) reflect.Value {
	const alphabet = `abcpy0123/:.$&\|()[]*+?^{}-_@%,=`
	var ret strings.Builder
	ret.WriteByte('/')
	for i := rand.Intn(size + 1); i >= 0; i-- {
		ret.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return reflect.ValueOf(installRoot(ret.String()))
}

func TestRewriteScriptIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"#!/usr/bin/python\nimport sys\n",
		"#!/usr/bin/env python3\n",
		"#!\"/build/bin/jython\" -u\n",
		longShebang("/build/bin/python3"),
	}
	for _, input := range inputs {
		input := input
		testutil.QuickCheck(t, func(root installRoot) bool {
			target := filepath.Join(string(root), "test")
			once, kind := shebang.RewriteScript([]byte(input), target)
			if kind == shebang.DialectNone || !strings.Contains(string(once), target+"/bin/") {
				return false
			}
			twice, _ := shebang.RewriteScript(once, target)
			return string(once) == string(twice)
		}, testutil.QuickConfig{MaxCount: 200}, []interface{}{installRoot("/opt/venvs")})
	}
}

func TestRewrite(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	binDir := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(filepath.Join(binDir, "sub"), 0o755))

	files := map[string]string{
		"pip":          "#!/build/debian/dh_virtualenv/test/bin/python3\nimport pip\n",
		"sub/tool":     "#!/usr/bin/env python\n",
		"activate":     "# This file must be used with \"source bin/activate\"\n",
		"activate.csh": "",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, name), []byte(content), 0o755))
	}
	require.NoError(t, os.Symlink("/usr/bin/python3", filepath.Join(binDir, "python3")))

	rewritten, err := shebang.Rewrite(ctx, binDir, "/opt/venvs/test")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(binDir, "pip"),
		filepath.Join(binDir, "sub", "tool"),
	}, rewritten)

	expected := map[string]string{
		"pip":          "#!/opt/venvs/test/bin/python3\nimport pip\n",
		"sub/tool":     "#!/usr/bin/env /opt/venvs/test/bin/python\n",
		"activate":     files["activate"],
		"activate.csh": "",
	}
	for name, content := range expected {
		actual, err := os.ReadFile(filepath.Join(binDir, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(actual), name)
		info, err := os.Stat(filepath.Join(binDir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), name)
	}
	target, err := os.Readlink(filepath.Join(binDir, "python3"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3", target)

	// A second run converges on the same bytes.
	_, err = shebang.Rewrite(ctx, binDir, "/opt/venvs/test")
	require.NoError(t, err)
	actual, err := os.ReadFile(filepath.Join(binDir, "pip"))
	require.NoError(t, err)
	assert.Equal(t, expected["pip"], string(actual))
}

func TestRewriteMissingBin(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	rewritten, err := shebang.Rewrite(ctx, filepath.Join(t.TempDir(), "bin"), "/opt/venvs/test")
	assert.NoError(t, err)
	assert.Empty(t, rewritten)

	rewritten, err = shebang.Rewrite(ctx, t.TempDir(), "/opt/venvs/test")
	assert.NoError(t, err)
	assert.Empty(t, rewritten)
}
