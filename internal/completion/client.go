// Package completion talks to the chat completion provider and runs
// session-scoped chat turns on top of it.
package completion

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/waqfqa/internal/conversation"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// Models used by the two call sites.
const (
	DefaultChatModel = "gpt-4-turbo-preview"
	DefaultRAGModel  = "gpt-4-1106-preview"
)

// Request outcomes recorded on the requests counter.
const (
	outcomeOK          = "ok"
	outcomeEmpty       = "empty"
	outcomeError       = "error"
	outcomeRateLimited = "rate_limited"
)

var tracer = otel.Tracer("waqfqa.completion")

// Generator is the slice of a langchaingo model the client needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Params selects the model and sampling for one request. Zero MaxTokens
// leaves the provider default in place.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Metrics counts provider requests by outcome.
type Metrics struct {
	Requests *prometheus.CounterVec
}

// NewMetrics registers the completion counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "waqfqa",
				Subsystem: "completion",
				Name:      "requests_total",
				Help:      "Total chat completion requests by outcome (ok, empty, error, rate_limited)",
			},
			[]string{"outcome"},
		),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLimiter paces outbound requests. There is no retry.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records request outcomes.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client sends role-tagged messages to the provider.
type Client struct {
	gen     Generator
	logger  *zap.Logger
	limiter *rate.Limiter
	metrics *Metrics
}

// New creates a Client over any Generator.
func New(gen Generator, opts ...Option) *Client {
	c := &Client{gen: gen, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config holds provider settings for NewOpenAI.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAI creates a Client backed by the OpenAI chat API. A missing API key
// is a configuration error.
func NewOpenAI(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.ErrConfig, "completion.NewOpenAI", fmt.Errorf("API key required"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}

	clientOpts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "completion.NewOpenAI", fmt.Errorf("creating OpenAI client: %w", err))
	}
	return New(llm, opts...), nil
}

// Complete sends messages and returns the first choice's text, which may be
// empty. Provider failures are returned as errs.ErrCompletionProvider and
// additionally match errs.ErrRateLimited when the provider throttled.
func (c *Client) Complete(ctx context.Context, messages []conversation.Message, p Params) (string, error) {
	ctx, span := tracer.Start(ctx, "completion.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", p.Model),
		attribute.Int("message_count", len(messages)),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return "", errs.New(errs.ErrCompletionProvider, "completion.Complete", fmt.Errorf("waiting for rate limiter: %w", err))
		}
	}

	opts := []llms.CallOption{llms.WithTemperature(p.Temperature)}
	if p.Model != "" {
		opts = append(opts, llms.WithModel(p.Model))
	}
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}

	resp, err := c.gen.GenerateContent(ctx, toContent(messages), opts...)
	if err != nil {
		perr := errs.Provider(errs.ErrCompletionProvider, "completion.Complete", err)
		outcome := outcomeError
		if errs.IsRateLimited(perr) {
			outcome = outcomeRateLimited
		}
		c.count(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.logger.Warn("completion request failed",
			zap.String("model", p.Model),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return "", perr
	}

	text := ""
	if resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
		text = resp.Choices[0].Content
	}
	if text == "" {
		c.count(outcomeEmpty)
	} else {
		c.count(outcomeOK)
	}
	span.SetStatus(codes.Ok, "success")
	return text, nil
}

func (c *Client) count(outcome string) {
	if c.metrics != nil {
		c.metrics.Requests.WithLabelValues(outcome).Inc()
	}
}

func toContent(messages []conversation.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		out[i] = llms.MessageContent{
			Role:  roleType(m.Role),
			Parts: []llms.ContentPart{llms.TextContent{Text: m.Content}},
		}
	}
	return out
}

func roleType(r conversation.Role) schema.ChatMessageType {
	switch r {
	case conversation.RoleSystem:
		return schema.ChatMessageTypeSystem
	case conversation.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
