// Package errs defines the error taxonomy shared by the waqfqa pipeline.
//
// Every failure that crosses a package boundary is either one of the sentinel
// kinds below or an *Error wrapping one, so callers can branch with errors.Is
// and the presentation layer can pick a localized message without inspecting
// provider text.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds.
var (
	// ErrValidation indicates rejected input at a boundary (upload size/type, bad language).
	ErrValidation = errors.New("validation error")

	// ErrExtraction indicates that no usable text could be extracted from a document.
	ErrExtraction = errors.New("extraction error")

	// ErrPasswordProtected indicates an encrypted document that requires a password.
	ErrPasswordProtected = errors.New("document is password protected")

	// ErrEmbeddingProvider indicates the embedding API failed.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrCompletionProvider indicates the chat completion API failed.
	ErrCompletionProvider = errors.New("completion provider error")

	// ErrRateLimited marks provider failures caused by rate limiting or quota.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrConfig indicates invalid configuration (chunk parameters, missing key, corpus path).
	ErrConfig = errors.New("configuration error")

	// ErrInitialization indicates a corpus or vector store failed to initialize.
	ErrInitialization = errors.New("initialization error")
)

// Error carries a kind plus the operation and language that failed.
type Error struct {
	Kind error  // one of the sentinel kinds
	Op   string // operation that failed, e.g. "loader.Load"
	Lang string // language pipeline, empty when not language specific
	Err  error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Lang != "" {
		fmt.Fprintf(&b, " [%s]", e.Lang)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error of the given kind.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation creates a validation error with a user-facing message.
func Validation(op, msg string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Err: errors.New(msg)}
}

// ForLanguage creates an *Error of the given kind tagged with a language pipeline.
func ForLanguage(kind error, op, lang string, err error) *Error {
	return &Error{Kind: kind, Op: op, Lang: lang, Err: err}
}

// IsRateLimited reports whether err is a rate-limited provider failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Detail returns the innermost message of a validation error, suitable for
// showing to the user because it was authored by this codebase.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}

// rateLimitMarkers are substrings providers use to report throttling or
// exhausted quota.
var rateLimitMarkers = []string{"429", "rate_limit", "rate limit", "insufficient_quota"}

// Provider wraps a provider failure under kind. Failures whose message carries
// a rate-limit marker are additionally marked with ErrRateLimited.
func Provider(kind error, op string, err error) *Error {
	if err != nil && !errors.Is(err, ErrRateLimited) && isRateLimitMessage(err.Error()) {
		err = fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return New(kind, op, err)
}

func isRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
