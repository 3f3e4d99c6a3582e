// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package activate points a virtualenv's activation scripts at the virtualenv's installed
// location.
package activate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/dh-virtualenv/pkg/fsutil"
)

// A Script describes the line of an activation script that records the virtualenv's location.
type Script struct {
	Name    string
	Pattern *regexp.Regexp
	Format  string // fmt format string taking the virtualenv directory
}

// Scripts are the activation scripts that virtualenv and venv write, one per shell.
//
//nolint:gochecknoglobals // Would be 'const'.
var Scripts = []Script{
	{
		Name:    "activate",
		Pattern: regexp.MustCompile(`(?m)^VIRTUAL_ENV=.*$`),
		Format:  `VIRTUAL_ENV="%s"`,
	},
	{
		Name:    "activate.csh",
		Pattern: regexp.MustCompile(`(?m)^setenv VIRTUAL_ENV.*$`),
		Format:  `setenv VIRTUAL_ENV "%s"`,
	},
	{
		Name:    "activate.fish",
		Pattern: regexp.MustCompile(`(?m)^set -gx VIRTUAL_ENV.*$`),
		Format:  `set -gx VIRTUAL_ENV "%s"`,
	},
}

// PatchContent replaces the first line of content that matches s.Pattern with the assignment
// of venvDir.  It returns content unmodified and false if no line matches.
func (s Script) PatchContent(content []byte, venvDir string) ([]byte, bool) {
	loc := s.Pattern.FindIndex(content)
	if loc == nil {
		return content, false
	}
	end := loc[1]
	// '$' in multi-line mode stops before "\n" but not before "\r\n".
	if end > loc[0] && content[end-1] == '\r' {
		end--
	}
	line := fmt.Sprintf(s.Format, venvDir)
	ret := make([]byte, 0, len(content)-(end-loc[0])+len(line))
	ret = append(ret, content[:loc[0]]...)
	ret = append(ret, line...)
	ret = append(ret, content[end:]...)
	return ret, true
}

// Patch rewrites each of the Scripts in binDir to say that the virtualenv lives at venvDir.  The
// names of scripts that do not exist are returned in missing; it is up to the caller to decide
// whether that is an error.
func Patch(ctx context.Context, binDir, venvDir string) (missing []string, err error) {
	for _, script := range Scripts {
		filename := filepath.Join(binDir, script.Name)
		content, err := os.ReadFile(filename)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, script.Name)
				continue
			}
			return missing, err
		}
		newContent, ok := script.PatchContent(content, venvDir)
		if !ok {
			dlog.Warnf(ctx, "%s: no VIRTUAL_ENV assignment found", filename)
			continue
		}
		if err := fsutil.ReplaceFile(filename, newContent); err != nil {
			return missing, err
		}
		dlog.Debugf(ctx, "%s: VIRTUAL_ENV=%q", filename, venvDir)
	}
	return missing, nil
}
