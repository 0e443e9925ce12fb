package export

import (
	"context"
	"fmt"
	"html/template"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetDocument(ctx context.Context, id string) (DocumentInfo, error)
	GetSpace(ctx context.Context, id string) (SpaceInfo, error)
	GetDocumentContent(ctx context.Context, documentID, version string) (string, error)
}

// Service provides document export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	docInfo, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	content, err := s.store.GetDocumentContent(ctx, req.DocumentID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	if req.Format == FormatMarkdown {
		return &Result{
			Data:     []byte(content),
			Filename: sanitizeFilename(docInfo.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	if req.Format == FormatSlides {
		sections := SplitSlides(content)
		slides := make([]template.HTML, 0, len(sections))
		for _, section := range sections {
			slides = append(slides, template.HTML(MarkdownToHTML(section)))
		}
		html, err := RenderSlidesHTML(SlidesData{Title: docInfo.Title, Slides: slides})
		if err != nil {
			return nil, fmt.Errorf("render slides: %w", err)
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(docInfo.Title) + ".slides.html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	}

	var spaceName string
	if docInfo.SpaceID != "" {
		if spaceInfo, err := s.store.GetSpace(ctx, docInfo.SpaceID); err == nil {
			spaceName = spaceInfo.Name
		}
	}

	data := TemplateData{
		Title:       docInfo.Title,
		ContentHTML: template.HTML(MarkdownToHTML(content)),
		Author:      docInfo.UpdatedBy,
		UpdatedAt:   docInfo.UpdatedAt,
		SpaceName:   spaceName,
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(docInfo.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return renderPDF(html, docInfo.Title)
	case FormatDOCX:
		return renderDOCX(html, docInfo.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
