// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package packager

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html/template"
	"path/filepath"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/NVIDIA/hostbundle/pkg/staging"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"title":  cases.Title(language.English).String,
	"safe":   func(s string) template.HTML { return template.HTML(s) }, //nolint:gosec // plugin fragments are HTML
	"plural": plural,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Host.Hostname }} diagnostic report</title>
</head>
<body>
<h1>{{ .Host.Hostname }}</h1>
<table>
<tr><th>Run</th><td>{{ .RunID }}</td></tr>
<tr><th>Kernel</th><td>{{ .Host.Kernel }} ({{ .Host.Arch }})</td></tr>
<tr><th>Distribution</th><td>{{ .Host.Distro }}</td></tr>
<tr><th>Started</th><td>{{ .Started.UTC.Format "2006-01-02 15:04:05 MST" }}</td></tr>
<tr><th>Errors</th><td>{{ .Errors }}</td></tr>
</table>
<h2>Plugins</h2>
<ul>
{{- range .Plugins }}
<li><a href="#{{ .Name }}">{{ .Name }}</a>{{ if .Partial }} (partial){{ end }}</li>
{{- end }}
</ul>
{{- range .Plugins }}
<h2 id="{{ .Name }}">{{ title .Name }}</h2>
<p>{{ len .Copies }} {{ plural (len .Copies) "path" }} copied, {{ len .Commands }} {{ plural (len .Commands) "command" }} run.</p>
{{- if .Alerts }}
<h3>Alerts</h3>
<ul>
{{- range .Alerts }}
<li>{{ . }}</li>
{{- end }}
</ul>
{{- end }}
{{- if .Commands }}
<h3>Commands</h3>
<ul>
{{- range .Commands }}
<li>{{ if .File }}<a href="../{{ .File }}">{{ .Command }}</a>{{ else }}{{ .Command }}{{ end }} (exit {{ .ExitCode }})</li>
{{- end }}
</ul>
{{- end }}
{{- if .Copies }}
<h3>Files</h3>
<ul>
{{- range .Copies }}
<li><a href="../{{ .Destination }}">{{ .Source }}</a>{{ if .Target }} &rarr; {{ .Target }}{{ end }}</li>
{{- end }}
</ul>
{{- end }}
{{- if .CustomText }}
{{ safe .CustomText }}
{{- end }}
{{- end }}
</body>
</html>
`))

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// WriteHTML renders idx into reports/report.html.
func WriteHTML(st *staging.Staging, idx *Index) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, idx); err != nil {
		return "", fmt.Errorf("failed to render html report: %w", err)
	}
	path := filepath.Join(st.Reports(), HTMLReportFile)
	if err := st.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write html report: %w", err)
	}
	return path, nil
}

// WriteXML serializes idx into reports/report.xml.
func WriteXML(st *staging.Staging, idx *Index) (string, error) {
	data, err := xml.MarshalIndent(idx, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal xml report: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	path := filepath.Join(st.Reports(), XMLReportFile)
	if err := st.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write xml report: %w", err)
	}
	return path, nil
}
