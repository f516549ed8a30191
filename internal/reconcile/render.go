package reconcile

import (
	"bytes"
	"html"
	"html/template"
)

var blocksTemplate = template.Must(template.New("blocks").Parse(`<section class="ocr-lines"><h3>OCR lines</h3>
{{- if .Lines}}<ul>
{{- range .Lines}}<li>{{.Text}}{{with .ConfidenceLabel}} <span class="confidence">({{.}})</span>{{end}}</li>{{end -}}
</ul>{{else}}<p class="placeholder">{{.Placeholder}}</p>{{end -}}
</section>
{{- with .NormalizedText}}
<section class="normalized-text"><h3>Normalized text</h3><pre>{{.}}</pre></section>
{{- end}}
{{- if .Structured.Present}}
<section class="structured"><h3>Structured (normalized)</h3>
{{- if .Structured.Error}}<p class="error">Could not parse structured result: {{.Structured.Error}}</p><pre class="raw">{{.Structured.Raw}}</pre>
{{- else}}<pre>{{.Structured.Pretty}}</pre>{{end -}}
</section>
{{- end}}
{{- if .Sample}}
<section class="sample"><h3>Sample</h3><ul>
{{- range .Sample}}<li>{{.}}</li>{{end -}}
</ul></section>
{{- end}}`))

var optionsTemplate = template.Must(template.New("options").Parse(
	`{{range .}}<option value="{{.}}">{{.}}</option>{{end}}`))

type blocksView struct {
	Blocks
	Placeholder string
}

// RenderBlocks renders the display blocks as an HTML fragment. All dynamic
// text is escaped.
func RenderBlocks(b Blocks) string {
	var buf bytes.Buffer
	if err := blocksTemplate.Execute(&buf, blocksView{Blocks: b, Placeholder: NoLinesPlaceholder}); err != nil {
		return `<p class="error">` + html.EscapeString(err.Error()) + `</p>`
	}
	return buf.String()
}

// RenderOptions renders one <option> per item for the selection control.
func RenderOptions(items []string) string {
	var buf bytes.Buffer
	if err := optionsTemplate.Execute(&buf, items); err != nil {
		return ""
	}
	return buf.String()
}
