package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/extractor/html"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/extractor/pdf"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/extractor/plaintext"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/extractor/xlsx"
)

type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

const DefaultMaxBytes int64 = 50 << 20

type extractFunc func(raw []byte) (string, error)

var byFormat = map[Format]extractFunc{
	FormatText: plaintext.Extract,
	FormatPDF:  pdf.Extract,
	FormatXLSX: xlsx.Extract,
	FormatHTML: html.Extract,
}

var byMIME = map[string]Format{
	"text/plain":      FormatText,
	"text/markdown":   FormatText,
	"text/x-markdown": FormatText,
	"text/csv":        FormatText,
	"application/pdf": FormatPDF,
	"text/html":       FormatHTML,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
}

var byExtension = map[string]Format{
	".txt":      FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".csv":      FormatText,
	".pdf":      FormatPDF,
	".xlsx":     FormatXLSX,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// Router reads a stored document and dispatches on its format.
type Router struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func NewRouter(storage ports.ObjectStorage, maxBytes int64) *Router {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Router{storage: storage, maxBytes: maxBytes}
}

// Supported reports whether a document with this MIME type and filename can
// be extracted.
func Supported(mimeType, filename string) bool {
	_, ok := Detect(mimeType, filename)
	return ok
}

// Detect picks the format from the MIME type and falls back to the file
// extension for generic types.
func Detect(mimeType, filename string) (Format, bool) {
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		if f, ok := byMIME[strings.ToLower(mediaType)]; ok {
			return f, true
		}
	}
	f, ok := byExtension[strings.ToLower(filepath.Ext(filename))]
	return f, ok
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	format, ok := Detect(doc.MimeType, doc.Filename)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unsupported document type %q (%s)", doc.MimeType, doc.Filename))
	}

	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, r.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > r.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("document exceeds %d bytes", r.maxBytes))
	}

	text, err := byFormat[format](raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract "+string(format), err)
	}
	return text, nil
}
