// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package dir deals with creating a layer from a directory.
package dir

import (
	"archive/tar"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	ociv1 "github.com/google/go-containerregistry/pkg/v1"
	ociv1tarball "github.com/google/go-containerregistry/pkg/v1/tarball"
)

type Ownership struct {
	UID   int
	UName string

	GID   int
	GName string
}

// Root is the ownership that files in a Debian package have.
//
//nolint:gochecknoglobals // Would be 'const'.
var Root = Ownership{UID: 0, UName: "root", GID: 0, GName: "root"}

type Options struct {
	// Prefix is the directory that the tree is placed at inside of the layer, such as
	// "/opt/venvs/myapp".  Each of its parents is added to the layer as a directory with
	// PrefixMode.
	Prefix     string
	PrefixMode fs.FileMode

	// Chown, if non-nil, is the ownership of every entry in the layer.  Otherwise entries keep
	// the ownership that they have on disk.
	Chown *Ownership

	// No timestamp in the layer is later than ClampTime.
	ClampTime time.Time
}

func clamp(t, max time.Time) time.Time {
	if t.After(max) {
		return max
	}
	return t
}

// LayerFromDir creates a layer from the directory tree at dirname.  Symlinks are stored as
// symlinks, and files that are hardlinked together are stored as hardlinks.
func LayerFromDir(dirname string, opts Options, layerOpts ...ociv1tarball.LayerOption) (ociv1.Layer, error) {
	type seenFile struct {
		Name string
		Info fs.FileInfo
	}

	var byteWriter bytes.Buffer
	tarWriter := tar.NewWriter(&byteWriter)

	prefix := strings.Trim(path.Clean(filepath.ToSlash(opts.Prefix)), "/")
	if prefix == "." {
		prefix = ""
	}
	if opts.PrefixMode == 0 {
		opts.PrefixMode = 0o755
	}
	var dirs []string
	for dir := prefix; dir != "." && dir != ""; dir = path.Dir(dir) {
		dirs = append(dirs, dir)
	}
	owner := Root
	if opts.Chown != nil {
		owner = *opts.Chown
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := tarWriter.WriteHeader(&tar.Header{
			Name:     dirs[i] + "/",
			Typeflag: tar.TypeDir,
			ModTime:  opts.ClampTime,

			Mode:  int64(opts.PrefixMode.Perm()),
			Uid:   owner.UID,
			Uname: owner.UName,
			Gid:   owner.GID,
			Gname: owner.GName,
		}); err != nil {
			return nil, err
		}
	}

	var seen []seenFile
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
		name = path.Join(prefix, filepath.ToSlash(name))
		info, err := d.Info()
		if err != nil {
			return err
		}

		var linkname string
		if info.Mode()&fs.ModeSymlink != 0 {
			if linkname, err = os.Readlink(filename); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, linkname)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}
		if info.Mode().IsRegular() {
			for _, prev := range seen {
				if os.SameFile(prev.Info, info) {
					header.Typeflag = tar.TypeLink
					header.Linkname = prev.Name
					header.Size = 0
					break
				}
			}
			if header.Typeflag == tar.TypeReg {
				seen = append(seen, seenFile{Name: name, Info: info})
			}
		}
		header.ModTime = clamp(header.ModTime, opts.ClampTime)
		header.AccessTime = clamp(header.AccessTime, opts.ClampTime)
		header.ChangeTime = clamp(header.ChangeTime, opts.ClampTime)
		if opts.Chown != nil {
			header.Uid, header.Uname = opts.Chown.UID, opts.Chown.UName
			header.Gid, header.Gname = opts.Chown.GID, opts.Chown.GName
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if header.Typeflag == tar.TypeReg {
			reader, err := os.Open(filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(tarWriter, reader); err != nil {
				_ = reader.Close()
				return err
			}
			if err := reader.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}

	byteSlice := byteWriter.Bytes()
	return ociv1tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(byteSlice)), nil
	}, layerOpts...)
}
