package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/logging"
	"github.com/fyrsmithlabs/waqfqa/internal/telemetry"
	"github.com/fyrsmithlabs/waqfqa/internal/upload"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                     `json:"status"`
	Languages map[locale.Language]string `json:"languages"`
	Telemetry *telemetry.HealthStatus    `json:"telemetry,omitempty"`
}

// WelcomeResponse is the response body for GET /api/v1/welcome.
type WelcomeResponse struct {
	Language  locale.Language `json:"language"`
	Direction string          `json:"direction"`
	Message   string          `json:"message"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Query    string `json:"query"`
	Language string `json:"language"`
}

// ChatRequest is the request body for POST /api/v1/chat. An empty SessionID
// starts a new session.
type ChatRequest struct {
	SessionID       string `json:"session_id"`
	Message         string `json:"message"`
	Language        string `json:"language"`
	DocumentContext string `json:"document_context,omitempty"`
}

// ChatResponse is the response body for POST /api/v1/chat.
type ChatResponse struct {
	SessionID string          `json:"session_id"`
	Answer    string          `json:"answer"`
	Language  locale.Language `json:"language"`
	Direction string          `json:"direction"`
	Degraded  bool            `json:"degraded"`
}

// SessionDocumentResponse is the response body for
// POST /api/v1/sessions/:id/document.
type SessionDocumentResponse struct {
	SessionID string                   `json:"session_id"`
	Document  upload.ProcessedDocument `json:"document"`
	Message   string                   `json:"message"`
	Answer    string                   `json:"answer"`
	Degraded  bool                     `json:"degraded"`
}

func (s *Server) handleHealth(c echo.Context) error {
	langs := make(map[locale.Language]string, len(locale.All))
	for _, l := range locale.All {
		langs[l] = string(s.deps.Answerer.Status(l))
	}
	resp := HealthResponse{Status: "ok", Languages: langs}
	if s.deps.Telemetry != nil {
		h := s.deps.Telemetry.Health()
		resp.Telemetry = &h
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWelcome(c echo.Context) error {
	lang, err := parseLanguage(c.QueryParam("language"))
	if err != nil {
		return toHTTPError(err, locale.English)
	}
	return c.JSON(http.StatusOK, WelcomeResponse{
		Language:  lang,
		Direction: lang.Direction(),
		Message:   locale.Welcome(lang),
	})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	lang, err := parseLanguage(req.Language)
	if err != nil {
		return toHTTPError(err, locale.English)
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	ctx := logging.WithLanguage(c.Request().Context(), lang.String())
	resp, err := s.deps.Answerer.Ask(ctx, req.Query, lang)
	if err != nil {
		s.logger.Warn(ctx, "ask failed", zap.Error(err))
		return toHTTPError(err, lang)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAskBilingual(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	ctx := c.Request().Context()
	resp, err := s.deps.Answerer.AskBilingual(ctx, req.Query)
	if err != nil {
		s.logger.Warn(ctx, "bilingual ask failed", zap.Error(err))
		return toHTTPError(err, locale.English)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	lang, err := parseLanguage(req.Language)
	if err != nil {
		return toHTTPError(err, locale.English)
	}
	sessionID, err := sessionOrNew(req.SessionID)
	if err != nil {
		return toHTTPError(err, lang)
	}

	ctx := logging.WithSessionID(c.Request().Context(), sessionID)
	ctx = logging.WithLanguage(ctx, lang.String())
	reply, err := s.deps.Chatter.Chat(ctx, sessionID, req.Message, lang, req.DocumentContext)
	if err != nil {
		return toHTTPError(err, lang)
	}
	if reply.Degraded {
		s.logger.Warn(ctx, "chat turn degraded", zap.Error(reply.Err))
	}
	return c.JSON(http.StatusOK, ChatResponse{
		SessionID: sessionID,
		Answer:    reply.Text,
		Language:  lang,
		Direction: lang.Direction(),
		Degraded:  reply.Degraded,
	})
}

func (s *Server) handleUpload(c echo.Context) error {
	doc, err := s.readDocument(c)
	if err != nil {
		return toHTTPError(err, locale.English)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleSessionDocument(c echo.Context) error {
	sessionID := c.Param("id")
	if err := logging.ValidateID(sessionID, "session id"); err != nil {
		return toHTTPError(errs.Validation("http.SessionDocument", err.Error()), locale.English)
	}
	lang, err := parseLanguage(c.FormValue("language"))
	if err != nil {
		return toHTTPError(err, locale.English)
	}

	doc, err := s.readDocument(c)
	if err != nil {
		return toHTTPError(err, lang)
	}

	ctx := logging.WithSessionID(c.Request().Context(), sessionID)
	ctx = logging.WithLanguage(ctx, lang.String())
	loaded := locale.DocumentLoaded(lang, doc.Filename)
	reply, err := s.deps.Chatter.Chat(ctx, sessionID, loaded, lang, doc.Content)
	if err != nil {
		return toHTTPError(err, lang)
	}
	s.logger.Info(ctx, "session document loaded",
		zap.String("filename", doc.Filename),
		zap.Int("pages", doc.Pages),
		zap.Bool("degraded", reply.Degraded),
	)
	return c.JSON(http.StatusOK, SessionDocumentResponse{
		SessionID: sessionID,
		Document:  doc,
		Message:   loaded,
		Answer:    reply.Text,
		Degraded:  reply.Degraded,
	})
}

func (s *Server) handleClearSession(c echo.Context) error {
	sessionID := c.Param("id")
	if err := logging.ValidateID(sessionID, "session id"); err != nil {
		return toHTTPError(errs.Validation("http.ClearSession", err.Error()), locale.English)
	}
	s.deps.Chatter.Clear(sessionID)
	return c.NoContent(http.StatusNoContent)
}

// readDocument validates the multipart "file" part from its declared size and
// type before any bytes are read, then processes it.
func (s *Server) readDocument(c echo.Context) (upload.ProcessedDocument, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		// Bodies without a Content-Length only hit the limit while parsing.
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return upload.ProcessedDocument{}, s.sizeError("http.Upload", c.Request().ContentLength)
		}
		return upload.ProcessedDocument{}, errs.Validation("http.Upload", "file field is required")
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if err := s.deps.Documents.Validate(fh.Filename, contentType, fh.Size); err != nil {
		return upload.ProcessedDocument{}, err
	}

	f, err := fh.Open()
	if err != nil {
		return upload.ProcessedDocument{}, errs.New(errs.ErrValidation, "http.Upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.deps.Documents.MaxBytes()+1))
	if err != nil {
		return upload.ProcessedDocument{}, errs.New(errs.ErrValidation, "http.Upload", err)
	}
	return s.deps.Documents.Process(c.Request().Context(), fh.Filename, contentType, data)
}

// parseLanguage defaults an empty value to English.
func parseLanguage(s string) (locale.Language, error) {
	if strings.TrimSpace(s) == "" {
		return locale.English, nil
	}
	return locale.Parse(s)
}

func sessionOrNew(id string) (string, error) {
	if id == "" {
		return uuid.NewString(), nil
	}
	if err := logging.ValidateID(id, "session_id"); err != nil {
		return "", errs.Validation("http.Chat", err.Error())
	}
	return id, nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var sizeErr *upload.SizeError
	switch {
	case errors.Is(err, errs.ErrInitialization):
		return http.StatusServiceUnavailable
	case errors.As(err, &sizeErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrPasswordProtected), errors.Is(err, errs.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errs.IsRateLimited(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrEmbeddingProvider), errors.Is(err, errs.ErrCompletionProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError builds an error whose body is {"message": <localized text>}.
// Provider text never reaches the client.
func toHTTPError(err error, lang locale.Language) *echo.HTTPError {
	return echo.NewHTTPError(statusFor(err), locale.UserMessage(err, lang)).SetInternal(err)
}
