// Package splitter breaks page text into overlapping, bounded chunks.
//
// Lengths are counted in code points. Every chunk is at most MaxLen long and
// each chunk after the first begins exactly Overlap code points before the end
// of its predecessor, so adjacent chunks share exactly Overlap characters and
// Join can reconstruct the source text.
package splitter

import (
	"fmt"
	"maps"
	"unicode"

	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// Defaults used by the corpus pipelines.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 150
)

// MetaChunk is the metadata key holding a chunk's ordinal within a split.
const MetaChunk = "chunk"

// sentenceEnd holds terminators for English and Urdu sentences.
var sentenceEnd = map[rune]bool{
	'.': true, '?': true, '!': true,
	'۔': true, // Urdu full stop
	'؟': true, // Arabic question mark
}

// Splitter splits text on paragraph, sentence, then word boundaries.
type Splitter struct {
	maxLen  int
	overlap int
}

// New creates a Splitter. It returns errs.ErrConfig unless 0 <= overlap < maxLen.
func New(maxLen, overlap int) (*Splitter, error) {
	if maxLen <= 0 {
		return nil, errs.New(errs.ErrConfig, "splitter.New", fmt.Errorf("chunk size must be positive, got %d", maxLen))
	}
	if overlap < 0 {
		return nil, errs.New(errs.ErrConfig, "splitter.New", fmt.Errorf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= maxLen {
		return nil, errs.New(errs.ErrConfig, "splitter.New",
			fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, maxLen))
	}
	return &Splitter{maxLen: maxLen, overlap: overlap}, nil
}

// MaxLen returns the maximum chunk length in code points.
func (s *Splitter) MaxLen() int { return s.maxLen }

// Overlap returns the shared length between adjacent chunks.
func (s *Splitter) Overlap() int { return s.overlap }

// SplitText splits text into chunks. Empty text yields no chunks.
func (s *Splitter) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		if n-start <= s.maxLen {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		end := s.chooseEnd(runes, start)
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.overlap
	}
}

// SplitDocuments splits each document and returns the chunks in order. Each
// chunk copies its document's metadata and records its ordinal under MetaChunk.
// Overlap applies within a document, never across documents.
func (s *Splitter) SplitDocuments(docs []schema.Document) []schema.Document {
	var out []schema.Document
	for _, doc := range docs {
		for _, text := range s.SplitText(doc.PageContent) {
			meta := make(map[string]any, len(doc.Metadata)+1)
			maps.Copy(meta, doc.Metadata)
			meta[MetaChunk] = len(out)
			out = append(out, schema.Document{PageContent: text, Metadata: meta})
		}
	}
	return out
}

// chooseEnd picks the exclusive end of the chunk beginning at start. The end
// lies in (start+overlap, start+maxLen] so that the next start advances.
func (s *Splitter) chooseEnd(runes []rune, start int) int {
	limit := start + s.maxLen
	minEnd := start + s.overlap + 1

	// Paragraph and sentence breaks must leave the chunk at least half full;
	// word breaks may fall anywhere past the overlap.
	floor := max(minEnd, start+s.maxLen/2)

	if e := lastBoundary(runes, floor, limit, isParagraphEnd); e > 0 {
		return e
	}
	if e := lastBoundary(runes, floor, limit, isSentenceEnd); e > 0 {
		return e
	}
	if e := lastBoundary(runes, minEnd, limit, isWordEnd); e > 0 {
		return e
	}
	return limit
}

// lastBoundary returns the largest e in [lo, hi] with match(runes, e), or 0.
func lastBoundary(runes []rune, lo, hi int, match func([]rune, int) bool) int {
	for e := hi; e >= lo; e-- {
		if match(runes, e) {
			return e
		}
	}
	return 0
}

func isParagraphEnd(runes []rune, e int) bool {
	return e >= 2 && runes[e-1] == '\n' && runes[e-2] == '\n'
}

func isSentenceEnd(runes []rune, e int) bool {
	if e < 1 {
		return false
	}
	if runes[e-1] == '\n' {
		return true
	}
	return e >= 2 && unicode.IsSpace(runes[e-1]) && sentenceEnd[runes[e-2]]
}

func isWordEnd(runes []rune, e int) bool {
	return e >= 1 && unicode.IsSpace(runes[e-1])
}

// Join reconstructs the text covered by a contiguous run of chunks produced
// with the given overlap.
func Join(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0])
	for _, c := range chunks[1:] {
		r := []rune(c)
		if len(r) <= overlap {
			continue
		}
		out = append(out, r[overlap:]...)
	}
	return string(out)
}
