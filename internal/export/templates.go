package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/document.html")
	if err != nil {
		documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	Author      string
	UpdatedAt   time.Time
	SpaceName   string
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SlidesData holds data for slide deck rendering
type SlidesData struct {
	Title  string
	Slides []template.HTML
}

var slidesTemplate = template.Must(template.New("slides").Parse(slidesTemplateSource))

// RenderSlidesHTML renders a slide deck, one section per slide
func RenderSlidesHTML(data SlidesData) (string, error) {
	var buf bytes.Buffer
	if err := slidesTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const slidesTemplateSource = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 0; }
    section.slide { min-height: 100vh; box-sizing: border-box; padding: 4rem; page-break-after: always; }
    section.slide h1 { font-size: 2.2em; }
  </style>
</head>
<body>
{{range .Slides}}  <section class="slide">{{.}}</section>
{{end}}</body>
</html>`

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.SpaceName}} | {{.Author}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
