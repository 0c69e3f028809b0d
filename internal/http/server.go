// Package http serves the waqf question-answering API over echo.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/waqfqa/internal/completion"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/logging"
	"github.com/fyrsmithlabs/waqfqa/internal/rag"
	"github.com/fyrsmithlabs/waqfqa/internal/telemetry"
	"github.com/fyrsmithlabs/waqfqa/internal/upload"
)

// Answerer answers questions against the language corpora.
type Answerer interface {
	Ask(ctx context.Context, question string, lang locale.Language) (rag.Response, error)
	AskBilingual(ctx context.Context, question string) (rag.Bilingual, error)
	Status(lang locale.Language) rag.Status
}

// Chatter runs conversational turns.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string, lang locale.Language, documentContext string) (completion.Reply, error)
	Clear(sessionID string)
}

// DocumentProcessor validates and extracts uploaded documents.
type DocumentProcessor interface {
	Validate(filename, contentType string, size int64) error
	Process(ctx context.Context, filename, contentType string, data []byte) (upload.ProcessedDocument, error)
	MaxBytes() int64
}

// TelemetryHealth reports exporter health for GET /health.
type TelemetryHealth interface {
	Health() telemetry.HealthStatus
}

// Deps are the services behind the API.
type Deps struct {
	Answerer  Answerer
	Chatter   Chatter
	Documents DocumentProcessor
	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
	// Metrics records OTEL HTTP metrics. Nil disables them.
	Metrics *HTTPMetrics
	// Telemetry is reported on /health when set.
	Telemetry TelemetryHealth
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit caps request bodies, e.g. "11M". It sits above the upload
	// limit so oversized files get a precise message instead of a bare 413.
	BodyLimit string
}

// DefaultConfig returns the listen defaults.
func DefaultConfig() *Config {
	return &Config{Host: "0.0.0.0", Port: 8080, BodyLimit: "11M"}
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Answerer == nil || deps.Chatter == nil || deps.Documents == nil {
		return nil, fmt.Errorf("answerer, chatter and document processor are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = DefaultConfig().BodyLimit
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, deps: deps, logger: logger, config: cfg}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/welcome", s.handleWelcome)
	v1.POST("/ask", s.handleAsk)
	v1.POST("/ask/bilingual", s.handleAskBilingual)
	v1.POST("/chat", s.handleChat)
	v1.POST("/upload", s.handleUpload)
	v1.POST("/sessions/:id/document", s.handleSessionDocument)
	v1.DELETE("/sessions/:id", s.handleClearSession)
}

// requestLogger puts the request ID and logger on the request context and
// logs one line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		ctx = logging.WithLogger(ctx, s.logger)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", req.Method),
			zap.String("route", routeLabel(c.Path())),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// handleError reports bodies rejected by the body limit with the upload size
// message, then defers to echo.
func (s *Server) handleError(err error, c echo.Context) {
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		err = toHTTPError(s.sizeError("http.BodyLimit", c.Request().ContentLength), locale.English)
	}
	s.echo.DefaultHTTPErrorHandler(err, c)
}

func (s *Server) sizeError(op string, size int64) error {
	return errs.New(errs.ErrValidation, op, &upload.SizeError{Limit: s.deps.Documents.MaxBytes(), Size: size})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
