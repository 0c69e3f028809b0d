// Package vectorstore provides the immutable in-memory embedding index that
// backs each language's corpus.
package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/waqfqa/internal/embeddings"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// DefaultK is the number of matches returned when the caller asks for k <= 0.
const DefaultK = 4

// metaOrdinal records a chunk's position in the build input.
const metaOrdinal = "ordinal"

var tracer = otel.Tracer("waqfqa.vectorstore")

// Match is a retrieved chunk with its cosine similarity to the query.
type Match struct {
	Document schema.Document
	Score    float64
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger *zap.Logger
	name   string
}

// WithLogger sets the logger used by the index.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName names the underlying collection, e.g. after the corpus language.
func WithName(name string) Option {
	return func(o *buildOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Index is a read-only similarity index over a fixed set of chunks.
type Index struct {
	name       string
	collection *chromem.Collection
	embedder   embeddings.Embedder
	chunks     []schema.Document
	logger     *zap.Logger
}

// Build embeds every chunk with one batched provider call and indexes the
// result. Any provider failure fails the whole build with
// errs.ErrEmbeddingProvider and no index is returned.
func Build(ctx context.Context, embedder embeddings.Embedder, chunks []schema.Document, opts ...Option) (*Index, error) {
	o := buildOptions{logger: zap.NewNop(), name: "corpus"}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "vectorstore.Build")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", o.name),
		attribute.Int("chunk_count", len(chunks)),
	)

	if len(chunks) == 0 {
		err := errs.New(errs.ErrInitialization, "vectorstore.Build", fmt.Errorf("no chunks to index"))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("provider returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Provider(errs.ErrEmbeddingProvider, "vectorstore.Build", err)
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(o.name, nil, queryFunc(embedder))
	if err != nil {
		span.RecordError(err)
		return nil, errs.New(errs.ErrInitialization, "vectorstore.Build", fmt.Errorf("creating collection %s: %w", o.name, err))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   c.PageContent,
			Metadata:  map[string]string{metaOrdinal: strconv.Itoa(i)},
			Embedding: vectors[i],
		}
	}

	// Embeddings are precomputed, so concurrency only affects normalization.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.New(errs.ErrInitialization, "vectorstore.Build", fmt.Errorf("adding documents: %w", err))
	}

	span.SetStatus(codes.Ok, "success")
	o.logger.Info("built embedding index",
		zap.String("collection", o.name),
		zap.Int("chunks", len(chunks)),
	)

	return &Index{
		name:       o.name,
		collection: collection,
		embedder:   embedder,
		chunks:     slices.Clone(chunks),
		logger:     o.logger,
	}, nil
}

// queryFunc lets chromem embed text when asked to; Retrieve always embeds
// the query itself.
func queryFunc(e embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Name returns the collection name.
func (ix *Index) Name() string { return ix.name }

// Retrieve returns the k chunks most similar to query, best first. Equal
// scores keep the original chunk order. k <= 0 means DefaultK and k larger
// than the corpus is capped to its size.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Retrieve")
	defer span.End()

	if k <= 0 {
		k = DefaultK
	}
	k = min(k, len(ix.chunks))
	span.SetAttributes(
		attribute.String("collection", ix.name),
		attribute.Int("k", k),
	)

	if query == "" {
		return nil, errs.Validation("vectorstore.Retrieve", "query must not be empty")
	}

	qv, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Provider(errs.ErrEmbeddingProvider, "vectorstore.Retrieve", err)
	}

	// Score the whole collection so ties can be ordered deterministically
	// before cutting to k.
	results, err := ix.collection.QueryEmbedding(ctx, qv, ix.collection.Count(), nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.New(errs.ErrEmbeddingProvider, "vectorstore.Retrieve", fmt.Errorf("querying collection %s: %w", ix.name, err))
	}

	type scored struct {
		ordinal int
		score   float32
	}
	ranked := make([]scored, 0, len(results))
	for _, r := range results {
		n, err := strconv.Atoi(r.Metadata[metaOrdinal])
		if err != nil || n < 0 || n >= len(ix.chunks) {
			ix.logger.Warn("dropping result with unknown ordinal", zap.String("id", r.ID))
			continue
		}
		ranked = append(ranked, scored{ordinal: n, score: r.Similarity})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.ordinal, b.ordinal)
	})

	matches := make([]Match, 0, k)
	for _, r := range ranked[:min(k, len(ranked))] {
		matches = append(matches, Match{Document: ix.chunks[r.ordinal], Score: float64(r.score)})
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	ix.logger.Debug("retrieved chunks",
		zap.String("collection", ix.name),
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}
