// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package python holds readers for the file formats that Python tooling leaves behind in a
// virtualenv.
package python

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// A Config is the parsed content of an INI-style file, as a map from section name to section.
type Config map[string]ConfigSection

type ConfigSection map[string]string

// ConfigParser mimics the parts of `configparser.py` that the files written by virtualenv, venv,
// and setuptools rely on.
type ConfigParser struct {
	Delimiters      []string
	CommentPrefixes []string

	Strict             bool
	EmptyLinesInValues bool

	// DefaultSection, if non-empty, is the section that options appearing before the first
	// section header are put in.  If empty, such options are an error.  `pyvenv.cfg` has no
	// section headers at all.
	DefaultSection string

	// OptionTransform transforms option names.
	OptionTransform func(string) string
}

func NewConfigParser() *ConfigParser {
	return &ConfigParser{
		Delimiters:      []string{"=", ":"},
		CommentPrefixes: []string{"#", ";"},

		Strict:             true,
		EmptyLinesInValues: true,

		OptionTransform: strings.ToLower,
	}
}

func indentLevel(line string) int {
	for i, r := range line {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return 0
}

func (p *ConfigParser) isComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range p.CommentPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// splitOption splits "key = value" on the earliest of p.Delimiters.
func (p *ConfigParser) splitOption(line string) (key, val string, ok bool) {
	sepPos, sepLen := len(line), 0
	for _, sep := range p.Delimiters {
		if idx := strings.Index(line, sep); idx >= 0 && idx < sepPos {
			sepPos, sepLen = idx, len(sep)
		}
	}
	if sepPos == len(line) {
		return "", "", false
	}
	key = strings.TrimSpace(line[:sepPos])
	if p.OptionTransform != nil {
		key = p.OptionTransform(key)
	}
	return key, strings.TrimSpace(line[sepPos+sepLen:]), true
}

func (p *ConfigParser) Parse(fp io.Reader) (Config, error) {
	config := make(Config)

	var (
		curIndent  int
		curSection ConfigSection
		curKey     string
		curVal     []string
	)
	if p.DefaultSection != "" {
		curSection = make(ConfigSection)
		config[p.DefaultSection] = curSection
	}

	flush := func() {
		if curVal != nil {
			curSection[curKey] = strings.TrimRight(strings.Join(curVal, "\n"), "\n")
			curKey, curVal = "", nil
		}
	}

	scanner := bufio.NewScanner(fp)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := scanner.Text()
		if p.isComment(line) {
			continue
		}
		value := strings.TrimSpace(line)
		if value == "" {
			if p.EmptyLinesInValues && curVal != nil {
				curVal = append(curVal, value)
			} else if !p.EmptyLinesInValues {
				curIndent = 0
			}
			continue
		}

		lineIndent := indentLevel(line)
		switch {
		case curVal != nil && lineIndent > 0 && lineIndent > curIndent:
			// continuation line
			curVal = append(curVal, value)
		case strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
			flush()
			curIndent = lineIndent
			name := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
			if _, exists := config[name]; exists && p.Strict {
				return nil, fmt.Errorf("line %d: duplicate section name %q", lineno, name)
			} else if !exists {
				config[name] = make(ConfigSection)
			}
			curSection = config[name]
		default:
			flush()
			curIndent = lineIndent
			if curSection == nil {
				return nil, fmt.Errorf("line %d: no section header", lineno)
			}
			key, val, ok := p.splitOption(value)
			if !ok {
				return nil, fmt.Errorf("line %d: invalid line: %q", lineno, value)
			}
			if _, exists := curSection[key]; exists && p.Strict {
				return nil, fmt.Errorf("line %d: duplicate option name %q", lineno, key)
			}
			curKey, curVal = key, []string{val}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return config, nil
}
