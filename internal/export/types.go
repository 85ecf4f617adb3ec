// Package export renders page documents to HTML and, through headless
// Chrome, to PDF and PNG previews.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
)

// ParseFormat maps a query value to a Format; empty means HTML.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case "", FormatHTML:
		return FormatHTML, true
	case FormatPDF:
		return FormatPDF, true
	case FormatPNG:
		return FormatPNG, true
	}
	return "", false
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for formats other than html, pdf and png.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrChromeMissing indicates headless Chrome is not installed.
	ErrChromeMissing = errors.New("export chrome dependency missing")
)
