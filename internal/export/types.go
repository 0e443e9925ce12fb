// Package export provides document export functionality for PDF, DOCX,
// HTML, slide decks, and raw markdown.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatSlides   Format = "slides"
)

// Request contains parameters for an export operation
type Request struct {
	DocumentID string
	Version    string // "latest" or a snapshot hash
	Format     Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// DocumentInfo holds document metadata for export
type DocumentInfo struct {
	ID        string
	Title     string
	SpaceID   string
	UpdatedBy string
	UpdatedAt time.Time
}

// SpaceInfo holds space metadata
type SpaceInfo struct {
	ID   string
	Name string
}

var (
	// ErrContentUnavailable indicates document content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
