// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"io"
	"os"
	"strings"

	ociv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/ulikunitz/xz"
)

// WriteLayer writes the uncompressed tarball of layer to dst.
func WriteLayer(layer ociv1.Layer, dst io.Writer) (err error) {
	layerReader, err := layer.Uncompressed()
	if err != nil {
		return err
	}
	defer func() {
		if _err := layerReader.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	if _, err := io.Copy(dst, layerReader); err != nil {
		return err
	}
	return nil
}

type xzFile struct {
	*xz.Writer
	file *os.File
}

func (f *xzFile) Close() error {
	if err := f.Writer.Close(); err != nil {
		_ = f.file.Close()
		return err
	}
	return f.file.Close()
}

// CreateOutput opens filename for writing a layer to.  If filename is "" or "-", stdout is used.
// If filename ends in ".xz", whatever is written is xz-compressed.
func CreateOutput(filename string) (io.WriteCloser, error) {
	if filename == "" || filename == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(filename, ".xz") {
		return file, nil
	}
	xzWriter, err := xz.NewWriter(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &xzFile{Writer: xzWriter, file: file}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
