// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pyvenv reads the "pyvenv.cfg" file that both `python3 -m venv` and virtualenv>=20 write
// at the top of a virtualenv.
package pyvenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dh-virtualenv/pkg/python"
)

const FileName = "pyvenv.cfg"

const section = "pyvenv"

type Config struct {
	// Home is the directory containing the interpreter that the virtualenv was created from.
	Home string `json:"home"`
	// Version is the full version of that interpreter, such as "3.11.2".
	Version                   string `json:"version"`
	IncludeSystemSitePackages bool   `json:"includeSystemSitePackages"`

	// Raw is every key in the file, lower-cased.
	Raw python.ConfigSection `json:"raw"`
}

// Parse parses the content of a pyvenv.cfg file.
func Parse(content string) (*Config, error) {
	parser := python.NewConfigParser()
	parser.Delimiters = []string{"="}
	parser.DefaultSection = section
	parser.Strict = false
	cfg, err := parser.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	raw := cfg[section]
	ret := &Config{
		Home:                      raw["home"],
		Version:                   raw["version"],
		IncludeSystemSitePackages: strings.EqualFold(raw["include-system-site-packages"], "true"),
		Raw:                       raw,
	}
	if ret.Version == "" {
		// virtualenv writes "version_info" instead of "version".
		ret.Version = raw["version_info"]
	}
	return ret, nil
}

// Load reads "${envDir}/pyvenv.cfg".  If the file does not exist, the returned error satisfies
// errors.Is(err, fs.ErrNotExist).
func Load(envDir string) (*Config, error) {
	filename := filepath.Join(envDir, FileName)
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// MajorMinor returns the "X.Y" prefix of the interpreter version, which is what names the
// interpreter binary ("pythonX.Y") and the site-packages directory.
func (c *Config) MajorMinor() (string, error) {
	parts := strings.SplitN(c.Version, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%s: invalid interpreter version %q", FileName, c.Version)
	}
	for _, part := range parts[:2] {
		if strings.Trim(part, "0123456789") != "" {
			return "", fmt.Errorf("%s: invalid interpreter version %q", FileName, c.Version)
		}
	}
	return parts[0] + "." + parts[1], nil
}
