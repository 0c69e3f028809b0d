package rag

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/waqfqa/internal/completion"
	"github.com/fyrsmithlabs/waqfqa/internal/conversation"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/loader"
	"github.com/fyrsmithlabs/waqfqa/internal/loader/pdftest"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/splitter"
)

// bagEmbedder hashes words into a small vector. The constant first component
// keeps every vector non-zero.
type bagEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	batches    [][]string
}

func bag(text string) []float32 {
	v := make([]float32, 32)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+h.Sum32()%31]++
	}
	return v
}

func (b *bagEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.batchCalls++
	b.batches = append(b.batches, texts)
	b.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bag(t)
	}
	return out, nil
}

func (b *bagEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return bag(text), nil
}

type recordingCompleter struct {
	mu     sync.Mutex
	calls  int
	prompt string
	params completion.Params
	answer string
	err    error
}

func (r *recordingCompleter) Complete(_ context.Context, msgs []conversation.Message, p completion.Params) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.prompt = msgs[len(msgs)-1].Content
	r.params = p
	if r.err != nil {
		return "", r.err
	}
	return r.answer, nil
}

type fixture struct {
	svc       *Service
	embedder  *bagEmbedder
	completer *recordingCompleter
	metrics   *Metrics
}

func writePDF(t *testing.T, name string, pages ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, pdftest.Build(pages...), 0o600))
	return path
}

func newFixture(t *testing.T, corpora map[locale.Language]string) *fixture {
	t.Helper()
	sp, err := splitter.New(200, 40)
	require.NoError(t, err)

	f := &fixture{
		embedder: &bagEmbedder{},
		completer: &recordingCompleter{
			answer: "• A mutawalli manages waqf property.\n• The board supervises the mutawalli.",
		},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	f.svc, err = New(Config{
		Corpora:   corpora,
		Loader:    loader.New(nil),
		Splitter:  sp,
		Embedder:  f.embedder,
		Completer: f.completer,
		Params:    DefaultParams(),
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	return f
}

func bothCorpora(t *testing.T) map[locale.Language]string {
	return map[locale.Language]string{
		locale.English: writePDF(t, "english_document.pdf",
			"The waqf board registers every endowment in the state.",
			"A mutawalli manages waqf property under the supervision of the board.",
			"Tax exemptions apply to charitable trusts."),
		locale.Urdu: writePDF(t, "urdu_document.pdf",
			"waqf jaidad ka intezam mutawalli karta hai.",
			"waqf board nigrani karta hai."),
	}
}

func TestAsk_EnglishEndToEnd(t *testing.T) {
	f := newFixture(t, bothCorpora(t))

	resp, err := f.svc.Ask(context.Background(), "Who manages waqf property?", locale.English)
	require.NoError(t, err)

	assert.Equal(t, locale.English, resp.Language)
	assert.Equal(t, "ltr", resp.Direction)
	assert.Contains(t, resp.Answer, "mutawalli")
	assert.Equal(t, []string{"A mutawalli manages waqf property.", "The board supervises the mutawalli."}, resp.Points)

	require.NotEmpty(t, resp.Context)
	assert.True(t, strings.HasPrefix(resp.Context[0], "p.2: "), "best match should be page 2, got %q", resp.Context[0])
	assert.Equal(t, "english_document.pdf, page 2", resp.Metadata.Sources[0])
	assert.Greater(t, resp.Metadata.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Metadata.Confidence, 1.0)

	assert.Contains(t, f.completer.prompt, "Question: Who manages waqf property?")
	assert.Contains(t, f.completer.prompt, "A mutawalli manages waqf property")
	assert.Equal(t, completion.DefaultRAGModel, f.completer.params.Model)
	assert.Equal(t, 0.0, f.completer.params.Temperature)
}

func TestAsk_SwitchingLanguageReusesStores(t *testing.T) {
	f := newFixture(t, bothCorpora(t))
	ctx := context.Background()

	first, err := f.svc.Store(ctx, locale.English)
	require.NoError(t, err)

	for _, lang := range []locale.Language{locale.English, locale.Urdu, locale.English, locale.Urdu} {
		resp, err := f.svc.Ask(ctx, "waqf board", lang)
		require.NoError(t, err)
		assert.Equal(t, lang.Direction(), resp.Direction)
	}

	again, err := f.svc.Store(ctx, locale.English)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 2, f.embedder.batchCalls, "one build per language")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Builds.WithLabelValues("english", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Builds.WithLabelValues("urdu", "ok")))
}

func TestStore_FailureIsPerLanguageAndMemoized(t *testing.T) {
	corpora := bothCorpora(t)
	corpora[locale.Urdu] = filepath.Join(t.TempDir(), "missing.pdf")
	f := newFixture(t, corpora)
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, "waqf", locale.Urdu)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInitialization)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Equal(t, locale.CorpusUnavailable(locale.Urdu), locale.UserMessage(err, locale.Urdu))

	_, err = f.svc.Ask(ctx, "waqf", locale.Urdu)
	assert.ErrorIs(t, err, errs.ErrInitialization)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Builds.WithLabelValues("urdu", "failed")))

	_, err = f.svc.Ask(ctx, "waqf board", locale.English)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, f.svc.Status(locale.Urdu))
	assert.Equal(t, StatusReady, f.svc.Status(locale.English))
}

func TestStore_UnreadableCorpusIsUnavailable(t *testing.T) {
	corpora := bothCorpora(t)
	corpora[locale.English] = writePDF(t, "english.pdf", "", "")
	path := filepath.Join(t.TempDir(), "urdu.pdf")
	require.NoError(t, os.WriteFile(path, pdftest.BuildEncrypted("waqf board"), 0o600))
	corpora[locale.Urdu] = path
	f := newFixture(t, corpora)

	_, err := f.svc.Ask(context.Background(), "What is Waqf?", locale.English)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInitialization)
	assert.ErrorIs(t, err, errs.ErrExtraction)
	assert.Equal(t, locale.CorpusUnavailable(locale.English), locale.UserMessage(err, locale.English))

	_, err = f.svc.Ask(context.Background(), "waqf", locale.Urdu)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInitialization)
	assert.Equal(t, locale.CorpusUnavailable(locale.Urdu), locale.UserMessage(err, locale.Urdu))
}

func TestStore_EmptyPath(t *testing.T) {
	f := newFixture(t, map[locale.Language]string{})
	_, err := f.svc.Store(context.Background(), locale.English)
	assert.ErrorIs(t, err, errs.ErrInitialization)
}

func TestStore_CancelledBuildIsNotMemoized(t *testing.T) {
	f := newFixture(t, bothCorpora(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Store(ctx, locale.English)
	require.Error(t, err)
	assert.Equal(t, StatusPending, f.svc.Status(locale.English))

	ix, err := f.svc.Store(context.Background(), locale.English)
	require.NoError(t, err)
	assert.NotNil(t, ix)
}

func TestStatus_DoesNotWaitOnBuildSlot(t *testing.T) {
	f := newFixture(t, bothCorpora(t))
	_, err := f.svc.Store(context.Background(), locale.English)
	require.NoError(t, err)

	p := f.svc.pipelines[locale.English]
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	assert.Equal(t, StatusReady, f.svc.Status(locale.English))
	assert.Equal(t, StatusPending, f.svc.Status(locale.Urdu))
}

func TestStore_ConcurrentFirstCallersShareOneBuild(t *testing.T) {
	f := newFixture(t, bothCorpora(t))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Store(context.Background(), locale.English)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.embedder.batchCalls)
}

func TestWarm(t *testing.T) {
	t.Run("builds both", func(t *testing.T) {
		f := newFixture(t, bothCorpora(t))
		require.NoError(t, f.svc.Warm(context.Background()))
		assert.Equal(t, StatusReady, f.svc.Status(locale.English))
		assert.Equal(t, StatusReady, f.svc.Status(locale.Urdu))
		assert.Equal(t, 2, f.embedder.batchCalls)
	})

	t.Run("one failure does not stop the other", func(t *testing.T) {
		corpora := bothCorpora(t)
		delete(corpora, locale.English)
		f := newFixture(t, corpora)

		err := f.svc.Warm(context.Background())
		assert.ErrorIs(t, err, errs.ErrInitialization)
		assert.Equal(t, StatusFailed, f.svc.Status(locale.English))
		assert.Equal(t, StatusReady, f.svc.Status(locale.Urdu))
	})
}

func TestAsk_Errors(t *testing.T) {
	f := newFixture(t, bothCorpora(t))

	_, err := f.svc.Ask(context.Background(), "   ", locale.English)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Zero(t, f.embedder.batchCalls, "validation happens before any build")

	f.completer.err = errs.Provider(errs.ErrCompletionProvider, "completion.Complete", assert.AnError)
	_, err = f.svc.Ask(context.Background(), "waqf", locale.English)
	assert.ErrorIs(t, err, errs.ErrCompletionProvider)
}

func TestAsk_EmptyAnswerIsLocalized(t *testing.T) {
	f := newFixture(t, bothCorpora(t))
	f.completer.answer = "  "

	resp, err := f.svc.Ask(context.Background(), "waqf", locale.Urdu)
	require.NoError(t, err)
	assert.Equal(t, locale.NoAnswer(locale.Urdu), resp.Answer)
	assert.Equal(t, "rtl", resp.Direction)
}

func TestAskBilingual(t *testing.T) {
	f := newFixture(t, bothCorpora(t))

	out, err := f.svc.AskBilingual(context.Background(), "waqf board")
	require.NoError(t, err)
	assert.Equal(t, locale.English, out.English.Language)
	assert.Equal(t, locale.Urdu, out.Urdu.Language)
	assert.Equal(t, 2, f.completer.calls)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, errs.ErrConfig)
}
