// Package prompt renders the instruction prompts sent to the completion
// provider. Everything here is pure: no I/O and no state.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/waqfqa/internal/locale"
)

// Template slots.
const (
	varContext = "context"
	varQuery   = "query"
)

const englishTemplate = `You are a Waqf (Islamic endowment) specialist assistant. You only answer questions about Waqf.

STRICT RULES:
- Responses must be 3-5 bullet points only
- Each bullet point should be 1-2 sentences maximum
- Answer ONLY what is asked, no additional information
- Do not discuss topics other than Waqf
- Keep responses concise and clear
- Always use the provided context
- If context doesn't contain relevant information, say so clearly

Context:
{{.context}}

Question: {{.query}}

Instructions:
- Answer in English
- Be concise but thorough
- Use bullet points
- Focus on information from the context
- If context doesn't contain relevant information, say so

Answer:`

const urduTemplate = `آپ ایک وقف کے ماہر معاون ہیں۔ آپ کو صرف وقف (اسلامی وقف) کے بارے میں سوالات کا جواب دینا ہے۔

سخت ہدایات:
- جوابات 3-5 بلٹ پوائنٹس میں ہوں
- ہر بلٹ پوائنٹ 1-2 جملے کا ہو
- صرف سوال کا جواب دیں، اضافی معلومات نہ دیں
- وقف کے علاوہ کسی اور موضوع پر بات نہ کریں
- جوابات مختصر اور واضح ہوں
- ہمیشہ دیے گئے سیاق و سباق کا استعمال کریں
- اگر سیاق و سباق میں متعلقہ معلومات نہیں ہیں تو واضح طور پر بتائیں

سیاق و سباق:
{{.context}}

سوال: {{.query}}

ہدایات:
- اردو میں جواب دیں
- مختصر لیکن جامع جواب دیں
- بلٹ پوائنٹس استعمال کریں
- سیاق و سباق سے معلومات پر توجہ دیں
- اگر سیاق و سباق میں متعلقہ معلومات نہیں ہیں تو یہ بتائیں

جواب:`

var templates = map[locale.Language]prompts.PromptTemplate{
	locale.English: prompts.NewPromptTemplate(englishTemplate, []string{varContext, varQuery}),
	locale.Urdu:    prompts.NewPromptTemplate(urduTemplate, []string{varContext, varQuery}),
}

// Compose renders the retrieval prompt for lang. Chunk texts are joined by a
// blank line in the order given and the question is inserted verbatim.
func Compose(lang locale.Language, chunks []schema.Document, question string) (string, error) {
	tmpl, ok := templates[lang]
	if !ok {
		return "", fmt.Errorf("no prompt template for language %q", lang)
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.PageContent
	}

	out, err := tmpl.Format(map[string]any{
		varContext: strings.Join(parts, "\n\n"),
		varQuery:   question,
	})
	if err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", lang, err)
	}
	return out, nil
}

// SystemPrompt returns the free-chat system instruction for lang. When
// hasDocument is set the instruction also asks the model to use the
// supplied document.
func SystemPrompt(lang locale.Language, hasDocument bool) string {
	var lines []string
	if lang == locale.Urdu {
		lines = []string{
			"آپ ایک اسلامی عالم کے معاون ہیں۔ آپ کو اسلامی تعلیمات، وقف، فقہ، اور دیگر مذہبی امور کے بارے میں سوالات کا جواب دینا ہے۔",
			"ہمیشہ درست، احترام سے بھرے، اور جامع جوابات فراہم کریں۔ قرآن اور حدیث کی روشنی میں جواب دیں۔",
		}
		if hasDocument {
			lines = append(lines, "اگر صارف نے کوئی دستاویز فراہم کی ہے تو اس کے مطابق جواب دیں۔")
		}
		lines = append(lines, "ہمیشہ اردو میں جواب دیں۔")
	} else {
		lines = []string{
			"You are an Islamic scholar assistant specializing in Islamic teachings, Waqf, jurisprudence, and religious matters.",
			"Always provide accurate, respectful, and comprehensive answers based on Quran and Hadith.",
		}
		if hasDocument {
			lines = append(lines, "If the user has provided a document, answer based on that context as well.")
		}
		lines = append(lines, "Always respond in English with proper Islamic terminology.")
	}
	return strings.Join(lines, "\n")
}

// WithDocument appends an uploaded document to a system prompt.
func WithDocument(system, document string) string {
	return system + "\n\nDocument Context:\n" + document
}
