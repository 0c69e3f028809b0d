// Package upload validates and extracts user-supplied PDF documents that are
// attached to a chat session as inline context. Uploaded documents are never
// indexed.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/loader"
	"github.com/fyrsmithlabs/waqfqa/internal/splitter"
)

// DefaultMaxBytes is the upload size limit.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// ErrNotPDF is the cause of validation failures for non-PDF uploads.
var ErrNotPDF = errors.New("Only PDF files are supported")

var pdfMagic = []byte("%PDF-")

// SizeError is the cause of validation failures for oversized uploads.
type SizeError struct {
	Limit int64
	Size  int64
}

func (e *SizeError) Error() string {
	const mb = 1024 * 1024
	if e.Limit%mb == 0 {
		return fmt.Sprintf("File size exceeds %dMB limit", e.Limit/mb)
	}
	return fmt.Sprintf("File size exceeds %d byte limit", e.Limit)
}

// ProcessedDocument is an extracted upload ready to be used as chat context.
type ProcessedDocument struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Config holds upload limits.
type Config struct {
	// MaxBytes is the largest accepted upload. <= 0 uses DefaultMaxBytes.
	MaxBytes int64
	// MaxContextChars caps the inlined content at a chunk boundary; 0 is unlimited.
	MaxContextChars int
}

// Processor validates and extracts uploads.
type Processor struct {
	cfg      Config
	loader   *loader.Loader
	splitter *splitter.Splitter
	logger   *zap.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(cfg Config, l *loader.Loader, s *splitter.Splitter, logger *zap.Logger) *Processor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, loader: l, splitter: s, logger: logger}
}

// MaxBytes returns the upload size limit.
func (p *Processor) MaxBytes() int64 { return p.cfg.MaxBytes }

// Validate checks the declared metadata of an upload. Size is checked before
// type so an oversized file is always reported as such.
func (p *Processor) Validate(filename, contentType string, size int64) error {
	if size > p.cfg.MaxBytes {
		return errs.New(errs.ErrValidation, "upload.Validate", &SizeError{Limit: p.cfg.MaxBytes, Size: size})
	}
	if !strings.Contains(strings.ToLower(contentType), "pdf") {
		return errs.New(errs.ErrValidation, "upload.Validate", ErrNotPDF)
	}
	return nil
}

// Process validates, extracts and splits an upload. Pages are joined with a
// blank line. Nothing is extracted from input that fails validation or does
// not start with the PDF signature.
func (p *Processor) Process(ctx context.Context, filename, contentType string, data []byte) (ProcessedDocument, error) {
	if err := p.Validate(filename, contentType, int64(len(data))); err != nil {
		return ProcessedDocument{}, err
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return ProcessedDocument{}, errs.New(errs.ErrValidation, "upload.Process", ErrNotPDF)
	}

	docs, err := p.loader.LoadBytes(ctx, data, filename)
	if err != nil {
		return ProcessedDocument{}, err
	}

	content := loader.JoinPages(docs)
	chunks := p.splitter.SplitText(content)
	out := ProcessedDocument{
		Filename: filename,
		Content:  content,
		Type:     "pdf",
		Pages:    len(docs),
		Chunks:   len(chunks),
	}

	if limit := p.cfg.MaxContextChars; limit > 0 && utf8.RuneCountInString(content) > limit {
		out.Content = p.truncate(chunks, limit)
		out.Truncated = true
	}

	p.logger.Info("processed upload",
		zap.String("filename", filename),
		zap.Int("pages", out.Pages),
		zap.Int("chunks", out.Chunks),
		zap.Bool("truncated", out.Truncated),
	)
	return out, nil
}

// truncate keeps the longest chunk prefix whose joined text fits in limit
// code points. At least the first chunk is kept.
func (p *Processor) truncate(chunks []string, limit int) string {
	overlap := p.splitter.Overlap()
	n := 1
	length := utf8.RuneCountInString(chunks[0])
	for n < len(chunks) {
		next := length + utf8.RuneCountInString(chunks[n]) - overlap
		if next > limit {
			break
		}
		length = next
		n++
	}
	return splitter.Join(chunks[:n], overlap)
}
