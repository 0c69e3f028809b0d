// Package rag answers questions from the English and Urdu corpora.
//
// Each language owns an independent pipeline (load, split, index) that is
// built at most once. A language whose corpus fails to build reports an
// initialization error while the other keeps serving.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/waqfqa/internal/completion"
	"github.com/fyrsmithlabs/waqfqa/internal/conversation"
	"github.com/fyrsmithlabs/waqfqa/internal/embeddings"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/loader"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/prompt"
	"github.com/fyrsmithlabs/waqfqa/internal/splitter"
	"github.com/fyrsmithlabs/waqfqa/internal/vectorstore"
)

var tracer = otel.Tracer("waqfqa.rag")

// Status of a language pipeline.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Metrics counts corpus builds.
type Metrics struct {
	Builds *prometheus.CounterVec
}

// NewMetrics registers the corpus counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Builds: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "waqfqa",
				Subsystem: "corpus",
				Name:      "builds_total",
				Help:      "Total corpus index builds by language and result (ok, failed)",
			},
			[]string{"language", "result"},
		),
	}
}

// Config wires a Service.
type Config struct {
	// Corpora maps each language to its PDF path. A missing or empty path
	// fails that language only.
	Corpora map[locale.Language]string

	Loader    *loader.Loader
	Splitter  *splitter.Splitter
	Embedder  embeddings.Embedder
	Completer completion.Completer

	// TopK is the number of chunks retrieved per question. <= 0 uses
	// vectorstore.DefaultK.
	TopK int

	// Params are the completion parameters for answers.
	Params completion.Params

	Metrics *Metrics
	Logger  *zap.Logger
}

// DefaultParams returns the answer completion parameters.
func DefaultParams() completion.Params {
	return completion.Params{Model: completion.DefaultRAGModel, Temperature: 0}
}

// pipeline is the one-shot build slot of a language.
type pipeline struct {
	// sem is held by whoever is building; waiting honours the caller's context.
	sem   chan struct{}
	done  bool
	index *vectorstore.Index
	err   error
	// status mirrors done and err for readers that must not wait on sem.
	status atomic.Value
}

// Service answers corpus questions.
type Service struct {
	cfg       Config
	logger    *zap.Logger
	pipelines map[locale.Language]*pipeline
}

// New creates a Service. No corpus is loaded until Warm or the first
// question for a language.
func New(cfg Config) (*Service, error) {
	if cfg.Loader == nil || cfg.Splitter == nil || cfg.Embedder == nil || cfg.Completer == nil {
		return nil, errs.New(errs.ErrConfig, "rag.New", errors.New("loader, splitter, embedder and completer are required"))
	}
	if cfg.Params.Model == "" {
		cfg.Params.Model = completion.DefaultRAGModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		pipelines: make(map[locale.Language]*pipeline, len(locale.All)),
	}
	for _, lang := range locale.All {
		s.pipelines[lang] = &pipeline{sem: make(chan struct{}, 1)}
	}
	return s, nil
}

// Warm builds every language concurrently. A failing language does not stop
// the others; the joined failures are returned for reporting.
func (s *Service) Warm(ctx context.Context) error {
	var g errgroup.Group
	failures := make([]error, len(locale.All))
	for i, lang := range locale.All {
		g.Go(func() error {
			_, failures[i] = s.Store(ctx, lang)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

// Store returns the index for lang, building it on first use. Concurrent
// first callers share one build. The outcome is memoized unless the build
// was cut short by the caller's context, in which case a later call
// retries.
func (s *Service) Store(ctx context.Context, lang locale.Language) (*vectorstore.Index, error) {
	p, ok := s.pipelines[lang]
	if !ok {
		return nil, errs.Validation("rag.Store", fmt.Sprintf("unsupported language %q", lang))
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	if p.done {
		return p.index, p.err
	}

	index, err := s.build(ctx, lang)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	p.index, p.err, p.done = index, err, true
	if err != nil {
		p.status.Store(StatusFailed)
	} else {
		p.status.Store(StatusReady)
	}
	return index, err
}

// Status reports the build state of lang without triggering a build or
// waiting on one.
func (s *Service) Status(lang locale.Language) Status {
	p, ok := s.pipelines[lang]
	if !ok {
		return StatusFailed
	}
	if st, ok := p.status.Load().(Status); ok {
		return st
	}
	return StatusPending
}

func (s *Service) build(ctx context.Context, lang locale.Language) (*vectorstore.Index, error) {
	logger := s.logger.With(zap.String("lang", lang.String()))

	index, err := s.buildIndex(ctx, lang, logger)
	result := "ok"
	if err != nil {
		result = "failed"
		logger.Error("corpus initialization failed", zap.Error(err))
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Builds.WithLabelValues(lang.String(), result).Inc()
	}
	return index, err
}

func (s *Service) buildIndex(ctx context.Context, lang locale.Language, logger *zap.Logger) (*vectorstore.Index, error) {
	path := s.cfg.Corpora[lang]
	if path == "" {
		return nil, errs.ForLanguage(errs.ErrInitialization, "rag.Store", lang.String(), errors.New("no corpus path configured"))
	}

	docs, err := s.cfg.Loader.LoadFile(ctx, path)
	if err != nil {
		return nil, errs.ForLanguage(errs.ErrInitialization, "rag.Store", lang.String(), fmt.Errorf("loading %s: %w", path, err))
	}

	chunks := s.cfg.Splitter.SplitDocuments(docs)
	logger.Info("corpus split",
		zap.String("path", path),
		zap.Int("pages", len(docs)),
		zap.Int("chunks", len(chunks)),
	)

	index, err := vectorstore.Build(ctx, s.cfg.Embedder, chunks,
		vectorstore.WithName(lang.String()),
		vectorstore.WithLogger(logger),
	)
	if err != nil {
		return nil, errs.ForLanguage(errs.ErrInitialization, "rag.Store", lang.String(), err)
	}
	return index, nil
}

// Ask answers question from the lang corpus: retrieve, compose, complete.
func (s *Service) Ask(ctx context.Context, question string, lang locale.Language) (Response, error) {
	ctx, span := tracer.Start(ctx, "rag.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("lang", lang.String()))

	resp, err := s.ask(ctx, question, lang)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	span.SetAttributes(attribute.Float64("confidence", resp.Metadata.Confidence))
	span.SetStatus(codes.Ok, "success")
	return resp, nil
}

func (s *Service) ask(ctx context.Context, question string, lang locale.Language) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, errs.Validation("rag.Ask", "query must not be empty")
	}

	index, err := s.Store(ctx, lang)
	if err != nil {
		return Response{}, err
	}

	matches, err := index.Retrieve(ctx, question, s.cfg.TopK)
	if err != nil {
		return Response{}, errs.ForLanguage(errs.ErrEmbeddingProvider, "rag.Ask", lang.String(), err)
	}

	docs := make([]schema.Document, len(matches))
	for i, m := range matches {
		docs[i] = m.Document
	}
	text, err := prompt.Compose(lang, docs, question)
	if err != nil {
		return Response{}, err
	}

	answer, err := s.cfg.Completer.Complete(ctx, []conversation.Message{conversation.User(text)}, s.cfg.Params)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(answer) == "" {
		answer = locale.NoAnswer(lang)
	}

	s.logger.Debug("answered question",
		zap.String("lang", lang.String()),
		zap.Int("matches", len(matches)),
	)
	return newResponse(lang, answer, matches), nil
}

// AskBilingual answers question from both corpora in parallel. It fails if
// either language fails.
func (s *Service) AskBilingual(ctx context.Context, question string) (Bilingual, error) {
	var out Bilingual
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.Ask(gctx, question, locale.English)
		out.English = r
		return err
	})
	g.Go(func() error {
		r, err := s.Ask(gctx, question, locale.Urdu)
		out.Urdu = r
		return err
	})
	if err := g.Wait(); err != nil {
		return Bilingual{}, err
	}
	return out, nil
}
