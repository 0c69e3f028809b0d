package rag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/waqfqa/internal/loader"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/vectorstore"
)

// snippetRunes bounds the chunk preview shown in Response.Context.
const snippetRunes = 120

// bulletMarkers are the list markers recognized in answers.
var bulletMarkers = []string{"•", "-", "*", "–"}

// Metadata describes how an answer was grounded.
type Metadata struct {
	// Confidence is the best retrieval score clamped to [0,1].
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// Response is the answer to a corpus question.
type Response struct {
	Answer    string          `json:"answer"`
	Context   []string        `json:"context"`
	Metadata  Metadata        `json:"metadata"`
	Points    []string        `json:"points"`
	Language  locale.Language `json:"language"`
	Direction string          `json:"direction"`
}

// Bilingual holds answers to the same question from both corpora.
type Bilingual struct {
	English Response `json:"english"`
	Urdu    Response `json:"urdu"`
}

func newResponse(lang locale.Language, answer string, matches []vectorstore.Match) Response {
	resp := Response{
		Answer:    answer,
		Context:   make([]string, 0, len(matches)),
		Metadata:  Metadata{Sources: []string{}},
		Points:    Points(answer),
		Language:  lang,
		Direction: lang.Direction(),
	}

	for _, m := range matches {
		resp.Context = append(resp.Context, snippet(m))
		if src := sourceLabel(m); !slices.Contains(resp.Metadata.Sources, src) {
			resp.Metadata.Sources = append(resp.Metadata.Sources, src)
		}
	}
	if len(matches) > 0 {
		resp.Metadata.Confidence = min(max(matches[0].Score, 0), 1)
	}
	return resp
}

func snippet(m vectorstore.Match) string {
	text := strings.Join(strings.Fields(m.Document.PageContent), " ")
	if r := []rune(text); len(r) > snippetRunes {
		text = string(r[:snippetRunes]) + "…"
	}
	if page := loader.Page(m.Document); page > 0 {
		return fmt.Sprintf("p.%d: %s", page, text)
	}
	return text
}

func sourceLabel(m vectorstore.Match) string {
	src := loader.Source(m.Document)
	if src == "" {
		src = "corpus"
	}
	if page := loader.Page(m.Document); page > 0 {
		return fmt.Sprintf("%s, page %d", src, page)
	}
	return src
}

// Points returns the bullet lines of an answer with their markers removed.
// Answers without bullets yield their non-empty lines. The result is a
// display aid; the bullet count is not checked.
func Points(answer string) []string {
	var bullets, lines []string
	for _, raw := range strings.Split(answer, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		for _, marker := range bulletMarkers {
			if rest, ok := strings.CutPrefix(line, marker); ok {
				if rest = strings.TrimSpace(rest); rest != "" {
					bullets = append(bullets, rest)
				}
				break
			}
		}
	}
	if len(bullets) > 0 {
		return bullets
	}
	if lines == nil {
		return []string{}
	}
	return lines
}
