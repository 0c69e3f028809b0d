// Package embeddings generates vector embeddings for corpus chunks and
// queries through langchaingo.
//
// The OpenAI-backed Service is the production implementation. Anything that
// satisfies Embedder can stand in for it, which is how the index and pipeline
// tests run without network access.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-ada-002"

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Embedder turns text into vectors. It matches langchaingo's
// embeddings.Embedder so either can be passed where the other is expected.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// BaseURL overrides the OpenAI API endpoint. Empty uses the provider default.
	BaseURL string

	// Model is the embedding model. Default: text-embedding-ada-002.
	Model string

	// APIKey authenticates against the provider. Required.
	APIKey string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records generation metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimiter paces provider calls. Waiting respects context cancellation.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// Service wraps a langchaingo embedder with pacing, logging and metrics.
type Service struct {
	inner   lcembeddings.Embedder
	model   string
	logger  *zap.Logger
	metrics *Metrics
	limiter *rate.Limiter
}

var _ Embedder = (*Service)(nil)

// New wraps an existing langchaingo embedder. model is used only for labels.
func New(inner lcembeddings.Embedder, model string, opts ...Option) *Service {
	s := &Service{
		inner:  inner,
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOpenAI creates a Service backed by the OpenAI embeddings API.
func NewOpenAI(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientOpts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return New(embedder, cfg.Model, opts...), nil
}

// Model returns the embedding model name.
func (s *Service) Model() string { return s.model }

// EmbedDocuments embeds texts in one batched call. It returns ErrEmptyInput
// when texts is empty and an error if the provider returns a vector count that
// does not match the input.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := s.inner.EmbedDocuments(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	s.record(ctx, "batch_embed", time.Since(start), len(texts), err)
	if err != nil {
		s.logger.Warn("embedding batch failed",
			zap.String("model", s.model),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := s.inner.EmbedQuery(ctx, text)
	s.record(ctx, "embed", time.Since(start), 0, err)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for embedding rate limiter: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, op string, d time.Duration, batch int, err error) {
	if s.metrics != nil {
		s.metrics.RecordGeneration(ctx, s.model, op, d, batch, err)
	}
}
