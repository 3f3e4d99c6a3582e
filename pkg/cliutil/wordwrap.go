// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Wrap the string `s` to a maximum width `w`.  Pass `w` == 0 to do no wrapping.
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func Wrap(w int, s string) string {
	return wrap(0, w, s)
}

// Wrap the string `s` to a maximum width `w` with leading indent `i`.  The first line is not
// indented (this is assumed to be done by caller).  Pass `w` == 0 to do no wrapping
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func WrapIndent(i, w int, s string) string {
	return wrap(i, w, s)
}

const wrapSlop = 5

//nolint:gochecknoglobals // Would be 'const'.
var reWord = regexp.MustCompile(`([ \t]*)(\S+)`)

func wrap(indent, width int, s string) string {
	if width <= 0 {
		return s
	}
	nl := "\n" + strings.Repeat(" ", indent)

	var ret strings.Builder
	for i, para := range strings.Split(s, "\n") {
		if i > 0 {
			ret.WriteString(nl)
		}
		col := indent
		atStart := true
		for _, m := range reWord.FindAllStringSubmatchIndex(para, -1) {
			space, word := para[m[2]:m[3]], para[m[4]:m[5]]
			wordEnd := col + utf8.RuneCountInString(space) + utf8.RuneCountInString(word)
			restEnd := col + utf8.RuneCountInString(para[m[0]:])
			if !atStart && wordEnd >= width-wrapSlop && restEnd > width {
				ret.WriteString(nl)
				col = indent
				space = ""
			}
			ret.WriteString(space)
			ret.WriteString(word)
			col += utf8.RuneCountInString(space) + utf8.RuneCountInString(word)
			atStart = false
		}
	}
	return ret.String()
}
