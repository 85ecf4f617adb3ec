package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("page.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/page.html"))

// TemplateData holds data for page template rendering
type TemplateData struct {
	Title       string
	BodyHTML    template.HTML
	UpdatedBy   string
	GeneratedAt time.Time
}

// RenderPageHTML wraps a rendered body in a standalone HTML document.
func RenderPageHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
