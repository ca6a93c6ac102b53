package emailsender

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"yipfoundation/receipt"
	"yipfoundation/settings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Each body template is paired with the shared layout. All user supplied
// text reaches the HTML through these templates, which escape it.
var (
	receiptTemplate = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/receipt.html"))
	adminTemplate   = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/admin.html"))
)

type receiptView struct {
	Subject      string
	Organization settings.OrganizationConfig
	Receipt      *receipt.ReceiptData
	Attached     bool
	DownloadURL  string
}

// Field is one label/value row of an admin notice.
type Field struct {
	Label string
	Value string
}

type adminView struct {
	Subject      string
	Organization settings.OrganizationConfig
	Heading      string
	Fields       []Field
	AdminURL     string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}
