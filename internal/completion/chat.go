package completion

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/waqfqa/internal/conversation"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/prompt"
)

// Completer sends a bounded message list to the provider.
type Completer interface {
	Complete(ctx context.Context, messages []conversation.Message, p Params) (string, error)
}

// ChatConfig holds the free-chat call parameters.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// Window is the number of non-system entries kept per session.
	Window int
}

// DefaultChatConfig returns the free-chat defaults.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Model:       DefaultChatModel,
		Temperature: 0.3,
		MaxTokens:   1000,
		Window:      conversation.DefaultWindow,
	}
}

// Reply is the outcome of one chat turn. Text is always safe to show. When
// Degraded is set Text is a localized fallback and Err carries the cause.
type Reply struct {
	Text     string
	Degraded bool
	Err      error
}

// ChatService runs chat turns against per-session histories.
type ChatService struct {
	completer Completer
	store     *conversation.Store
	cfg       ChatConfig
	logger    *zap.Logger
}

// NewChatService creates a ChatService. Zero fields of cfg fall back to
// DefaultChatConfig, except Temperature which is used as given.
func NewChatService(completer Completer, store *conversation.Store, cfg ChatConfig, logger *zap.Logger) *ChatService {
	def := DefaultChatConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{completer: completer, store: store, cfg: cfg, logger: logger}
}

// Store returns the session store.
func (s *ChatService) Store() *conversation.Store { return s.store }

// Chat runs one turn on sessionID. The history is reseeded with a system
// message when the session is empty or a document context is supplied; a
// new document replaces the whole history. The user message is committed
// together with the reply only when the provider call succeeds. Provider
// failures produce a degraded Reply and a nil error; only invalid input
// and cancellation are returned as errors.
func (s *ChatService) Chat(ctx context.Context, sessionID, userMessage string, lang locale.Language, documentContext string) (Reply, error) {
	if sessionID == "" {
		return Reply{}, errs.Validation("completion.Chat", "session id is required")
	}
	if strings.TrimSpace(userMessage) == "" {
		return Reply{}, errs.Validation("completion.Chat", "message must not be empty")
	}

	unlock := s.store.Lock(sessionID)
	defer unlock()

	history := s.store.Get(sessionID)
	if history.Empty() || documentContext != "" {
		system := prompt.SystemPrompt(lang, documentContext != "")
		if documentContext != "" {
			system = prompt.WithDocument(system, documentContext)
		}
		history = conversation.NewHistory(system)
	}
	history.Append(conversation.User(userMessage))

	text, err := s.completer.Complete(ctx, history.Messages(), Params{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reply{}, ctxErr
		}
		s.logger.Warn("chat turn failed",
			zap.String("session.id", sessionID),
			zap.String("lang", lang.String()),
			zap.Bool("rate_limited", errs.IsRateLimited(err)),
			zap.Error(err),
		)
		fallback := locale.TechnicalError(lang)
		if errs.IsRateLimited(err) {
			fallback = locale.RateLimited(lang)
		}
		return Reply{Text: fallback, Degraded: true, Err: err}, nil
	}

	if text == "" {
		text = locale.NoAnswer(lang)
	}
	history.Append(conversation.Assistant(text))
	history.Truncate(s.cfg.Window)
	s.store.Put(sessionID, history)

	return Reply{Text: text}, nil
}

// Clear forgets the history of sessionID.
func (s *ChatService) Clear(sessionID string) {
	s.store.Clear(sessionID)
}
