// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// ReplaceFile atomically replaces the content of the existing regular file filename with
// content, by writing a temporary file in the same directory and renaming it over filename.  The
// permission bits of the original file are kept.
func ReplaceFile(filename string, content []byte) (err error) {
	info, err := os.Stat(filename)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return &fs.PathError{Op: "replace", Path: filename, Err: err}
	}
	return nil
}
