// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package symlinks_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dh-virtualenv/pkg/fsutil"
	"github.com/datawire/dh-virtualenv/pkg/symlinks"
)

func TestRelocateAbsolute(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	envDir := t.TempDir()
	localDir := filepath.Join(envDir, "local")
	require.NoError(t, os.Mkdir(localDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(envDir, "sometarget"), []byte("hi"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(envDir, "sometarget"), filepath.Join(localDir, "symlink")))
	require.NoError(t, os.Symlink("../bin", filepath.Join(localDir, "bin")))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "plain"), nil, 0o644))

	require.NoError(t, symlinks.Relocate(ctx, envDir))

	target, err := os.Readlink(filepath.Join(localDir, "symlink"))
	require.NoError(t, err)
	assert.Equal(t, "../sometarget", target)
	content, err := os.ReadFile(filepath.Join(localDir, "symlink"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))

	target, err = os.Readlink(filepath.Join(localDir, "bin"))
	require.NoError(t, err)
	assert.Equal(t, "../bin", target)

	info, err := os.Lstat(filepath.Join(localDir, "plain"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	// Moving the whole environment keeps the link working.
	moved := filepath.Join(t.TempDir(), "moved")
	require.NoError(t, os.Rename(envDir, moved))
	content, err = os.ReadFile(filepath.Join(moved, "local", "symlink"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))
}

func TestRelocateOldRoot(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	buildDir := filepath.Join(t.TempDir(), "debian", "dh_virtualenv", "test")
	envDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(envDir, "local"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(buildDir, "lib"), filepath.Join(envDir, "local", "lib")))
	require.NoError(t, os.Symlink("/usr/share/elsewhere", filepath.Join(envDir, "local", "share")))

	require.NoError(t, symlinks.Relocate(ctx, envDir, buildDir))

	target, err := os.Readlink(filepath.Join(envDir, "local", "lib"))
	require.NoError(t, err)
	assert.Equal(t, "../lib", target)

	target, err = os.Readlink(filepath.Join(envDir, "local", "share"))
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(target))
	abs := filepath.Join(envDir, "local", target)
	assert.Equal(t, "/usr/share/elsewhere", abs)
}

func TestRelocateSelfLoop(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	envDir := t.TempDir()
	require.NoError(t, os.Symlink(envDir, filepath.Join(envDir, "local")))

	require.NoError(t, symlinks.Relocate(ctx, envDir))

	target, err := os.Readlink(filepath.Join(envDir, "local"))
	require.NoError(t, err)
	assert.Equal(t, ".", target)
}

func readlink(t *testing.T, filename string) string {
	t.Helper()
	target, err := os.Readlink(filename)
	require.NoError(t, err)
	return target
}

func TestRelocateCopiedLocalLink(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		LocalTarget func(buildDir, foreignDir string) string
		ExpTarget   func(pkgDir, foreignDir string) string
	}{
		"self-loop": {
			LocalTarget: func(buildDir, _ string) string { return buildDir },
			ExpTarget:   func(_, _ string) string { return "." },
		},
		"self-loop-trailing-slash": {
			LocalTarget: func(buildDir, _ string) string { return buildDir + "/" },
			ExpTarget:   func(_, _ string) string { return "." },
		},
		"inside-build-tree": {
			LocalTarget: func(buildDir, _ string) string { return filepath.Join(buildDir, "lib") },
			ExpTarget:   func(_, _ string) string { return "lib" },
		},
		"foreign": {
			LocalTarget: func(_, foreignDir string) string { return foreignDir },
			ExpTarget: func(pkgDir, foreignDir string) string {
				rel, err := filepath.Rel(pkgDir, foreignDir)
				if err != nil {
					panic(err)
				}
				return rel
			},
		},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			srcDir := t.TempDir()
			buildDir := filepath.Join(srcDir, "debian", "dh_virtualenv", "test")
			pkgDir := filepath.Join(srcDir, "debian", "test", "opt", "venvs", "test")

			foreignDir := filepath.Join(srcDir, "foreign")
			require.NoError(t, os.MkdirAll(foreignDir, 0o755))
			require.NoError(t, os.Symlink(filepath.Join(buildDir, "lib"), filepath.Join(foreignDir, "lib")))

			require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "lib"), 0o755))
			localTarget := tcData.LocalTarget(buildDir, foreignDir)
			require.NoError(t, os.Symlink(localTarget, filepath.Join(buildDir, "local")))

			require.NoError(t, fsutil.CopyTree(buildDir, pkgDir))
			require.NoError(t, symlinks.Relocate(ctx, pkgDir, buildDir))

			newTarget := readlink(t, filepath.Join(pkgDir, "local"))
			assert.Equal(t, tcData.ExpTarget(pkgDir, foreignDir), newTarget)
			assert.False(t, filepath.IsAbs(newTarget), newTarget)

			// Nothing outside of the package is touched.
			assert.Equal(t, localTarget, readlink(t, filepath.Join(buildDir, "local")))
			assert.Equal(t, filepath.Join(buildDir, "lib"), readlink(t, filepath.Join(foreignDir, "lib")))
			_, err := os.Lstat(filepath.Join(buildDir, "lib", "local"))
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestRelocateMissing(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	envDir := t.TempDir()
	assert.NoError(t, symlinks.Relocate(ctx, envDir))
	entries, err := os.ReadDir(envDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, symlinks.Relocate(ctx, filepath.Join(envDir, "nonexistent")))
}
