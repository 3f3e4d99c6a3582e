// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package debhelper

import (
	"strings"
	"text/template"
)

// ShellQuote quotes str for use as a single word in a POSIX shell script.
func ShellQuote(str string) string {
	return "'" + strings.ReplaceAll(str, "'", `'\''`) + "'"
}

//nolint:gochecknoglobals // Would be 'const'.
var autoscriptTmpls = template.Must(template.New("autoscripts").
	Funcs(template.FuncMap{"shquote": ShellQuote}).
	Parse(`
{{- define "postinst" -}}
if [ "$1" = "configure" ] && [ ! -e {{ shquote .Interpreter }} ]; then
	echo {{ shquote (print .Package ": warning: " .Interpreter " does not resolve; the system Python that the virtualenv was built against may have been removed") }} >&2
fi
{{ end -}}

{{- define "prerm" -}}
if [ -d {{ shquote .InstallDir }} ]; then
	find {{ shquote .InstallDir }} -depth -type d -name __pycache__ -exec rm -rf {} + || true
fi
{{ end -}}
`))

// AutoscriptData is what the maintainer-script snippets are rendered from.
type AutoscriptData struct {
	Package     string
	InstallDir  string
	Interpreter string
}

// RenderAutoscript renders the snippet for the maintainer script when, which must be "postinst"
// or "prerm".
func RenderAutoscript(when string, data AutoscriptData) (string, error) {
	var buf strings.Builder
	if err := autoscriptTmpls.ExecuteTemplate(&buf, when, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
