// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package shebang rewrites the interpreter lines of the scripts in a virtualenv's bin/ directory
// so that they point at the interpreter of the virtualenv's final, installed location.
//
// Three shebang dialects are recognized:
//
//     #!/build/dir/bin/python3         classic (optionally with arguments)
//     #!"/build dir/bin/python3"       classic, quoted
//     #!/usr/bin/env python3           classic, env-prefixed
//
//     #!/bin/sh                        long shebang; what pip writes when the interpreter path
//     '''exec' /build/dir/bin/python3 "$0" "$@"
//     ' '''                            is too long for the kernel's shebang limit
//
// In every case only the directory part of the interpreter path is replaced; the interpreter
// name, quoting, "env" prefix, arguments, and the rest of the file are kept byte-for-byte.
package shebang

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/dh-virtualenv/pkg/fsutil"
)

// Interpreters are the interpreter names that a shebang must name (optionally followed by a
// version number, as in "python3.9") to be rewritten.
//
//nolint:gochecknoglobals // Would be 'const'.
var Interpreters = []string{"python", "pypy", "ipy", "jython"}

// A Dialect identifies which shebang form a script uses.
type Dialect int

const (
	DialectNone Dialect = iota
	DialectClassic
	DialectLong
)

func (d Dialect) String() string {
	switch d {
	case DialectNone:
		return "none"
	case DialectClassic:
		return "classic"
	case DialectLong:
		return "long"
	default:
		return "invalid"
	}
}

// Every pattern has a "dir" group (possibly empty) which is the only part that gets replaced.
//
//nolint:gochecknoglobals // Would be 'const'.
var (
	interpPattern = `(?:` + strings.Join(Interpreters, "|") + `)[0-9.]*`
	envPattern    = `(?:[^\s"]*/)?env[ \t]+`
	restPattern   = `(?:[ \t].*)?`

	classicPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^#![ \t]*(?:` + envPattern + `)?"(?P<dir>(?:[^"]*/)?)` + interpPattern + `"` + restPattern + `$`),
		regexp.MustCompile(`^#![ \t]*(?:` + envPattern + `)?(?P<dir>(?:[^\s"]*/)?)` + interpPattern + restPattern + `$`),
	}
	longPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^'''exec' "(?P<dir>(?:[^"]*/)?)` + interpPattern + `"` + restPattern + `$`),
		regexp.MustCompile(`^'''exec' (?P<dir>(?:[^\s"]*/)?)` + interpPattern + restPattern + `$`),
	}
)

const longFirstLine = "#!/bin/sh"

// headLimit is how much of a file is inspected to classify it.  Shebang lines are far shorter
// than this; a pip long-shebang is used exactly when the path is too long to fit in the ~128-256
// bytes that the kernel allows.
const headLimit = 64 * 1024

type line struct {
	start, end int // content[start:end] is the line, without the "\n" or "\r\n"
	next       int // offset of the following line, or -1 if there is no line terminator
}

func splitLine(content []byte, start int) line {
	idx := bytes.IndexByte(content[start:], '\n')
	if idx < 0 {
		return line{start: start, end: len(content), next: -1}
	}
	end := start + idx
	if end > start && content[end-1] == '\r' {
		end--
	}
	return line{start: start, end: end, next: start + idx + 1}
}

func matchDir(patterns []*regexp.Regexp, text []byte) (start, end int, ok bool) {
	for _, re := range patterns {
		m := re.FindSubmatchIndex(text)
		if m == nil {
			continue
		}
		idx := re.SubexpIndex("dir")
		return m[2*idx], m[2*idx+1], true
	}
	return 0, 0, false
}

// locate returns the byte range of the interpreter directory that needs to be replaced.
func locate(content []byte) (start, end int, dialect Dialect) {
	first := splitLine(content, 0)
	if start, end, ok := matchDir(classicPatterns, content[first.start:first.end]); ok {
		return first.start + start, first.start + end, DialectClassic
	}
	if first.next < 0 || strings.TrimRight(string(content[first.start:first.end]), " \t") != longFirstLine {
		return 0, 0, DialectNone
	}
	second := splitLine(content, first.next)
	if start, end, ok := matchDir(longPatterns, content[second.start:second.end]); ok {
		return second.start + start, second.start + end, DialectLong
	}
	return 0, 0, DialectNone
}

// Classify reports which shebang dialect content (or a prefix of it) uses.
func Classify(content []byte) Dialect {
	_, _, dialect := locate(content)
	return dialect
}

// RewriteScript returns content with its shebang pointing in to the "bin" directory of the
// virtualenv at target.  The path is spliced in literally, so target may contain any character
// except a newline.  If content has no recognized shebang, it is returned unmodified along with
// DialectNone.
func RewriteScript(content []byte, target string) ([]byte, Dialect) {
	start, end, dialect := locate(content)
	if dialect == DialectNone {
		return content, dialect
	}
	dir := filepath.Join(target, "bin") + "/"
	ret := make([]byte, 0, len(content)-(end-start)+len(dir))
	ret = append(ret, content[:start]...)
	ret = append(ret, dir...)
	ret = append(ret, content[end:]...)
	return ret, dialect
}

func readHead(filename string) (_ []byte, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _err := file.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	return io.ReadAll(io.LimitReader(file, headLimit))
}

// Rewrite rewrites the shebang of every script in the binDir tree to point at the virtualenv
// that will be installed at target, and returns the names of the files that it rewrote.  Only
// regular files are considered; symlinks (such as "bin/python" itself) are neither followed nor
// modified.  A missing binDir is not an error.
func Rewrite(ctx context.Context, binDir, target string) ([]string, error) {
	var rewritten []string
	err := filepath.WalkDir(binDir, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			if filename == binDir && os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		head, err := readHead(filename)
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(head, []byte("#!")) || Classify(head) == DialectNone {
			return nil
		}
		content, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		newContent, dialect := RewriteScript(content, target)
		if !bytes.Equal(content, newContent) {
			if err := fsutil.ReplaceFile(filename, newContent); err != nil {
				return err
			}
		}
		dlog.Debugf(ctx, "rewrote %s shebang of %q", dialect, filename)
		rewritten = append(rewritten, filename)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rewritten, nil
}
