// Package loader converts PDF bytes into per-page documents.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// Metadata keys set on every loaded document.
const (
	MetaPage   = "page"
	MetaSource = "source"
)

// errNullPage is reported for page numbers the page tree does not resolve.
var errNullPage = errors.New("page object missing from page tree")

// pageSource yields extracted text per 1-based page number.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

// pdfSource adapts a ledongthuc/pdf reader to pageSource.
type pdfSource struct {
	r *pdf.Reader
}

func (s pdfSource) NumPage() int {
	return s.r.NumPage()
}

// PageText extracts plain text from page n. The pdf package panics on some
// malformed content streams, so panics are converted to errors here.
func (s pdfSource) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", n, r)
		}
	}()

	p := s.r.Page(n)
	if p.V.IsNull() {
		return "", errNullPage
	}
	return p.GetPlainText(nil)
}

// Loader extracts text from PDF documents.
type Loader struct {
	logger *zap.Logger
}

// New creates a Loader. A nil logger disables logging.
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadFile opens the PDF at path and loads it. The file handle is closed on
// every return path. A missing file is a configuration error.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "loader.LoadFile", fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "loader.LoadFile", fmt.Errorf("stat %s: %w", path, err))
	}

	return l.Load(ctx, f, info.Size(), filepath.Base(path))
}

// LoadBytes loads a PDF held in memory.
func (l *Loader) LoadBytes(ctx context.Context, data []byte, source string) ([]schema.Document, error) {
	return l.Load(ctx, bytes.NewReader(data), int64(len(data)), source)
}

// Load reads a PDF and returns one document per page with extractable text,
// in ascending page order. Blank pages and pages that fail to extract are
// skipped with a warning. It fails with errs.ErrPasswordProtected for
// encrypted documents and errs.ErrExtraction when no page yields text.
func (l *Loader) Load(ctx context.Context, r io.ReaderAt, size int64, source string) ([]schema.Document, error) {
	reader, err := openReader(r, size)
	if err != nil {
		if isPasswordError(err) {
			return nil, errs.New(errs.ErrPasswordProtected, "loader.Load", err)
		}
		return nil, errs.New(errs.ErrExtraction, "loader.Load", fmt.Errorf("opening PDF: %w", err))
	}

	return l.extract(ctx, pdfSource{r: reader}, source)
}

// openReader guards pdf.NewReader against panics on malformed input.
func openReader(r io.ReaderAt, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reader, err = nil, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return pdf.NewReader(r, size)
}

func isPasswordError(err error) bool {
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "encrypt")
}

func (l *Loader) extract(ctx context.Context, src pageSource, source string) ([]schema.Document, error) {
	total := src.NumPage()
	docs := make([]schema.Document, 0, total)

	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := src.PageText(n)
		if err != nil {
			l.logger.Warn("page extraction failed, skipping",
				zap.String("source", source),
				zap.Int("page", n),
				zap.Error(err),
			)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			l.logger.Warn("page has no extractable text",
				zap.String("source", source),
				zap.Int("page", n),
			)
			continue
		}

		docs = append(docs, schema.Document{
			PageContent: text,
			Metadata: map[string]any{
				MetaPage:   n,
				MetaSource: source,
			},
		})
	}

	if len(docs) == 0 {
		return nil, errs.New(errs.ErrExtraction, "loader.Load",
			fmt.Errorf("no text content could be extracted from %s (%d pages)", source, total))
	}

	l.logger.Debug("loaded document",
		zap.String("source", source),
		zap.Int("pages", total),
		zap.Int("documents", len(docs)),
	)

	return docs, nil
}

// JoinPages concatenates page contents with a blank line between pages.
func JoinPages(docs []schema.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return strings.Join(parts, "\n\n")
}

// Page returns the page number recorded on a loaded document, or 0.
func Page(doc schema.Document) int {
	if n, ok := doc.Metadata[MetaPage].(int); ok {
		return n
	}
	return 0
}

// Source returns the source recorded on a loaded document.
func Source(doc schema.Document) string {
	s, _ := doc.Metadata[MetaSource].(string)
	return s
}
