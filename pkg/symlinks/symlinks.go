// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package symlinks makes the symlinks in a virtualenv's "local/" directory independent of where
// the virtualenv was built.
//
// Older versions of virtualenv create "local/bin", "local/lib", and "local/include" as absolute
// symlinks back in to the virtualenv, and some create "local" as a symlink to the virtualenv
// itself.  Both break once the virtualenv is moved to where the package installs it.
package symlinks

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"
)

func isWithin(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func relink(filename, target string) error {
	if err := os.Remove(filename); err != nil {
		return err
	}
	return os.Symlink(target, filename)
}

// rebase moves an absolute target that is inside of one of oldRoots to the corresponding path
// inside of envDir.
func rebase(target, envDir string, oldRoots []string) string {
	for _, root := range oldRoots {
		if rel, ok := isWithin(root, target); ok {
			return filepath.Join(envDir, rel)
		}
	}
	return target
}

// Relocate rewrites the symlinks directly inside of "${envDir}/local" to be relative.
//
// Absolute targets that are inside of one of oldRoots (directories that the virtualenv used to
// live at before being copied to envDir) are first moved to the corresponding path inside of
// envDir.  If "local" is itself a symlink, only that link is rewritten: a link that resolves to
// envDir becomes ".", and anything else is made relative.  A missing "local/" is not an error.
func Relocate(ctx context.Context, envDir string, oldRoots ...string) error {
	envDir, err := filepath.Abs(envDir)
	if err != nil {
		return err
	}
	localDir := filepath.Join(envDir, "local")

	absRoots := make([]string, 0, len(oldRoots))
	for _, root := range oldRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		absRoots = append(absRoots, abs)
	}

	localInfo, err := os.Lstat(localDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if localInfo.Mode()&fs.ModeSymlink != 0 {
		return relocateLocalLink(ctx, envDir, localDir, absRoots)
	}
	if !localInfo.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		filename := filepath.Join(localDir, entry.Name())
		target, err := os.Readlink(filename)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(target) {
			continue
		}
		newTarget, err := filepath.Rel(localDir, rebase(target, envDir, absRoots))
		if err != nil {
			return err
		}
		dlog.Debugf(ctx, "%s: %q -> %q", filename, target, newTarget)
		if err := relink(filename, newTarget); err != nil {
			return err
		}
	}
	return nil
}

// relocateLocalLink handles a "local" that is a symlink.  It never reads through the link, since
// a copied link may still point in to the tree the virtualenv was copied from.
func relocateLocalLink(ctx context.Context, envDir, localDir string, absRoots []string) error {
	target, err := os.Readlink(localDir)
	if err != nil {
		return err
	}
	var resolved string
	if filepath.IsAbs(target) {
		resolved = rebase(target, envDir, absRoots)
	} else {
		resolved = filepath.Join(envDir, target)
	}

	selfLoop := filepath.Clean(resolved) == envDir
	if !selfLoop {
		// The same directory by another name, such as through a symlinked /tmp.
		envInfo, err := os.Stat(envDir)
		if err != nil {
			return err
		}
		if info, err := os.Stat(resolved); err == nil && os.SameFile(envInfo, info) {
			selfLoop = true
		}
	}

	var newTarget string
	switch {
	case selfLoop:
		newTarget = "."
	case filepath.IsAbs(target):
		newTarget, err = filepath.Rel(envDir, resolved)
		if err != nil {
			return err
		}
	default:
		return nil
	}
	if newTarget == target {
		return nil
	}
	if selfLoop {
		dlog.Debugf(ctx, "%s: self-referential, replacing with a link to \".\"", localDir)
	} else {
		dlog.Debugf(ctx, "%s: %q -> %q", localDir, target, newTarget)
	}
	return relink(localDir, newTarget)
}
