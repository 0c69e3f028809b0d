// Package locale holds the supported languages and every user-facing string
// the assistant returns in them.
package locale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// Language selects a corpus, a prompt template, and the reply language.
type Language string

const (
	English Language = "english"
	Urdu    Language = "urdu"
)

// All lists the supported languages in corpus order.
var All = []Language{English, Urdu}

// Parse accepts "english"/"en" and "urdu"/"ur", case-insensitively.
func Parse(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "english", "en":
		return English, nil
	case "urdu", "ur":
		return Urdu, nil
	default:
		return "", errs.Validation("locale.Parse", fmt.Sprintf("unsupported language %q (use english or urdu)", s))
	}
}

// String implements fmt.Stringer.
func (l Language) String() string {
	return string(l)
}

// Direction returns the text direction used to render replies.
func (l Language) Direction() string {
	if l == Urdu {
		return "rtl"
	}
	return "ltr"
}

// Welcome is shown when a chat session starts.
func Welcome(l Language) string {
	if l == Urdu {
		return "السلام علیکم! میں اے آئی ایم سی معاون ہوں۔ میں آپ کو سپریم کورٹ کے وقف ترمیمی بل کے فیصلے کے بارے میں معلومات فراہم کر سکتا ہوں۔ آپ فیصلے کے بارے میں سوال کر سکتے ہیں یا اپنی دستاویزات اپ لوڈ کر کے ان کے ساتھ بات چیت کر سکتے ہیں۔"
	}
	return "Welcome! I am the AIMC Assistant. I can help you get information about the Supreme Court judgment on the Waqf Amendment Bill. You can ask questions about the judgment or upload your own documents to chat with them."
}

// DocumentLoaded confirms an uploaded document is attached to the session.
func DocumentLoaded(l Language, filename string) string {
	if l == Urdu {
		return fmt.Sprintf("دستاویز \"%s\" کامیابی سے لوڈ ہو گئی۔ اب آپ اس کے بارے میں سوال کر سکتے ہیں۔", filename)
	}
	return fmt.Sprintf("Document \"%s\" has been successfully loaded. You can now ask questions about it.", filename)
}

// RateLimited is returned when the completion provider throttles us.
func RateLimited(l Language) string {
	if l == Urdu {
		return "معذرت، فی الوقت سروس دستیاب نہیں ہے۔ براہ کرم کچھ دیر بعد کوشش کریں۔"
	}
	return "Sorry, the service is currently unavailable due to rate limits. Please try again later."
}

// TechnicalError is the generic failure reply.
func TechnicalError(l Language) string {
	if l == Urdu {
		return "معذرت، کوئی تکنیکی خرابی ہوئی ہے۔ براہ کرم دوبارہ کوشش کریں۔"
	}
	return "Sorry, there was a technical error. Please try again."
}

// NoAnswer replaces an empty completion.
func NoAnswer(l Language) string {
	if l == Urdu {
		return "معذرت، میں آپ کے سوال کا جواب نہیں دے سکا۔"
	}
	return "Sorry, I could not process your question."
}

// CorpusUnavailable is returned when a language's corpus failed to initialize.
func CorpusUnavailable(l Language) string {
	if l == Urdu {
		return "معذرت، اردو دستاویز فی الحال دستیاب نہیں ہے۔ براہ کرم بعد میں کوشش کریں۔"
	}
	return "Sorry, the English document is not available right now. Please try again later."
}

// PasswordProtected is returned for encrypted uploads.
func PasswordProtected(l Language) string {
	if l == Urdu {
		return "یہ دستاویز پاس ورڈ سے محفوظ ہے۔ براہ کرم غیر محفوظ پی ڈی ایف اپ لوڈ کریں۔"
	}
	return "This document is password protected. Please upload an unprotected PDF."
}

// NoText is returned when an upload has no extractable text.
func NoText(l Language) string {
	if l == Urdu {
		return "اس دستاویز سے کوئی متن حاصل نہیں ہو سکا۔"
	}
	return "No text content could be extracted from the PDF."
}

// UserMessage maps an error to a localized message safe to show users.
// Validation messages are authored locally and pass through unchanged;
// provider failures never expose their raw text.
func UserMessage(err error, l Language) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errs.ErrInitialization):
		// A corpus build can fail on extraction; that is still an unavailable corpus.
		return CorpusUnavailable(l)
	case errors.Is(err, errs.ErrValidation):
		return errs.Detail(err)
	case errors.Is(err, errs.ErrPasswordProtected):
		return PasswordProtected(l)
	case errors.Is(err, errs.ErrExtraction):
		return NoText(l)
	case errs.IsRateLimited(err):
		return RateLimited(l)
	default:
		return TechnicalError(l)
	}
}
