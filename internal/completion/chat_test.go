package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/waqfqa/internal/conversation"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
)

// scriptedCompleter replies "answer N" for the Nth call unless err is set.
type scriptedCompleter struct {
	mu       sync.Mutex
	calls    int
	err      error
	reply    *string
	lastMsgs []conversation.Message
	lastP    Params
}

func (s *scriptedCompleter) Complete(_ context.Context, msgs []conversation.Message, p Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastMsgs = msgs
	s.lastP = p
	if s.err != nil {
		return "", s.err
	}
	if s.reply != nil {
		return *s.reply, nil
	}
	return fmt.Sprintf("answer %d", s.calls), nil
}

func newChat(c Completer) *ChatService {
	cfg := DefaultChatConfig()
	return NewChatService(c, conversation.NewStore(), cfg, nil)
}

func TestChat_TwoTurnsYieldFiveEntries(t *testing.T) {
	comp := &scriptedCompleter{}
	svc := newChat(comp)
	ctx := context.Background()

	r1, err := svc.Chat(ctx, "s1", "What is waqf?", locale.English, "")
	require.NoError(t, err)
	assert.Equal(t, "answer 1", r1.Text)
	assert.False(t, r1.Degraded)

	_, err = svc.Chat(ctx, "s1", "Who manages it?", locale.English, "")
	require.NoError(t, err)

	msgs := svc.Store().Get("s1").Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, conversation.RoleSystem, msgs[0].Role)
	assert.Equal(t, conversation.User("What is waqf?"), msgs[1])
	assert.Equal(t, conversation.Assistant("answer 1"), msgs[2])
	assert.Equal(t, conversation.User("Who manages it?"), msgs[3])
	assert.Equal(t, conversation.Assistant("answer 2"), msgs[4])

	assert.Equal(t, DefaultChatModel, comp.lastP.Model)
	assert.Equal(t, 0.3, comp.lastP.Temperature)
	assert.Equal(t, 1000, comp.lastP.MaxTokens)
}

func TestChat_HistoryBoundedToWindow(t *testing.T) {
	comp := &scriptedCompleter{}
	svc := newChat(comp)

	for i := range 30 {
		_, err := svc.Chat(context.Background(), "s", fmt.Sprintf("q%d", i), locale.English, "")
		require.NoError(t, err)
		h := svc.Store().Get("s")
		assert.LessOrEqual(t, h.Len(), 21)
		assert.Equal(t, conversation.RoleSystem, h.Messages()[0].Role)
		// The request itself never exceeds the window plus the new user turn.
		assert.LessOrEqual(t, len(comp.lastMsgs), 22)
	}
}

func TestChat_DocumentContextReseeds(t *testing.T) {
	comp := &scriptedCompleter{}
	svc := newChat(comp)
	ctx := context.Background()

	_, err := svc.Chat(ctx, "s", "hello", locale.Urdu, "")
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "s", "again", locale.Urdu, "")
	require.NoError(t, err)
	require.Equal(t, 5, svc.Store().Get("s").Len())

	_, err = svc.Chat(ctx, "s", "about the document", locale.Urdu, "Section 3 text")
	require.NoError(t, err)

	msgs := svc.Store().Get("s").Messages()
	require.Len(t, msgs, 3)
	assert.True(t, strings.HasSuffix(msgs[0].Content, "\n\nDocument Context:\nSection 3 text"))
	assert.Contains(t, msgs[0].Content, "اردو")
	assert.Equal(t, conversation.User("about the document"), msgs[1])
}

func TestChat_FailuresDoNotCommit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "rate limited", err: errs.Provider(errs.ErrCompletionProvider, "x", errors.New("rate_limit_exceeded")), want: locale.RateLimited(locale.English)},
		{name: "other", err: errs.Provider(errs.ErrCompletionProvider, "x", errors.New("upstream said: secret internal detail")), want: locale.TechnicalError(locale.English)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := &scriptedCompleter{}
			svc := newChat(comp)
			ctx := context.Background()

			_, err := svc.Chat(ctx, "s", "first", locale.English, "")
			require.NoError(t, err)
			before := svc.Store().Get("s").Messages()

			comp.err = tt.err
			reply, err := svc.Chat(ctx, "s", "second", locale.English, "")
			require.NoError(t, err)

			assert.True(t, reply.Degraded)
			assert.Equal(t, tt.want, reply.Text)
			assert.ErrorIs(t, reply.Err, errs.ErrCompletionProvider)
			assert.NotContains(t, reply.Text, "secret internal detail")
			assert.Equal(t, before, svc.Store().Get("s").Messages())
		})
	}
}

func TestChat_FailedFirstTurnLeavesNoSession(t *testing.T) {
	svc := newChat(&scriptedCompleter{err: errors.New("boom")})

	reply, err := svc.Chat(context.Background(), "fresh", "hi", locale.Urdu, "")
	require.NoError(t, err)
	assert.Equal(t, locale.TechnicalError(locale.Urdu), reply.Text)
	assert.Zero(t, svc.Store().Len())
}

func TestChat_EmptyReplyIsLocalizedAndCommitted(t *testing.T) {
	empty := ""
	svc := newChat(&scriptedCompleter{reply: &empty})

	reply, err := svc.Chat(context.Background(), "s", "q", locale.Urdu, "")
	require.NoError(t, err)
	assert.Equal(t, locale.NoAnswer(locale.Urdu), reply.Text)

	msgs := svc.Store().Get("s").Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, conversation.Assistant(locale.NoAnswer(locale.Urdu)), msgs[2])
}

func TestChat_InvalidInput(t *testing.T) {
	svc := newChat(&scriptedCompleter{})

	_, err := svc.Chat(context.Background(), "", "q", locale.English, "")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.Chat(context.Background(), "s", "   ", locale.English, "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestChat_CancelledContextIsReturned(t *testing.T) {
	svc := newChat(&scriptedCompleter{err: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Chat(ctx, "s", "q", locale.English, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChat_ConcurrentTurnsOnOneSessionAreSerialized(t *testing.T) {
	comp := &scriptedCompleter{}
	svc := newChat(comp)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Chat(context.Background(), "s", fmt.Sprintf("q%d", i), locale.English, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every turn committed both of its entries without losing an update.
	assert.Equal(t, 11, svc.Store().Get("s").Len())
}
