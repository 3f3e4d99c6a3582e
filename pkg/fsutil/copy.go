// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree copies the directory tree at src to dst.  Symlinks are copied as symlinks (their
// targets are not rewritten), regular files keep their permission bits, and anything else
// (devices, sockets, ...) is an error.  Existing files in dst are overwritten.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(srcPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, srcPath)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(dstPath, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
				return err
			}
			return os.Symlink(target, dstPath)
		case info.Mode().IsRegular():
			return copyFile(srcPath, dstPath, info.Mode().Perm())
		default:
			return &fs.PathError{
				Op:   "copy",
				Path: srcPath,
				Err:  fmt.Errorf("unsupported file type %v", info.Mode().Type()),
			}
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}

	reader, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		maybeSetErr(reader.Close())
	}()
	writer, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		maybeSetErr(writer.Close())
	}()
	if _, err := io.Copy(writer, reader); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}
