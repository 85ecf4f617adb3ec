package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"nexcrm/builder/internal/page"
)

// Request describes one export.
type Request struct {
	Title     string
	UpdatedBy string
	Document  *page.Node
	Format    Format
}

type capturer func(ctx context.Context, html, title string) (*Result, error)

// Service renders documents and hands PDF and PNG output to headless Chrome.
type Service struct {
	now func() time.Time
	pdf capturer
	png capturer
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{now: time.Now, pdf: exportPDF, png: exportPNG}
}

// HTML renders doc as a standalone HTML page.
func (s *Service) HTML(doc *page.Node, title, updatedBy string) (string, error) {
	return RenderPageHTML(TemplateData{
		Title:       title,
		BodyHTML:    template.HTML(RenderHTML(doc)),
		UpdatedBy:   updatedBy,
		GeneratedAt: s.now().UTC(),
	})
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	html, err := s.HTML(req.Document, req.Title, req.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, req.Title)
	case FormatPNG:
		return s.png(ctx, html, req.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
