package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/waqfqa/internal/config"
	"github.com/fyrsmithlabs/waqfqa/internal/errs"
	"github.com/fyrsmithlabs/waqfqa/internal/logging"
	"github.com/fyrsmithlabs/waqfqa/internal/rag"
	"github.com/fyrsmithlabs/waqfqa/internal/telemetry"
)

func TestRun_RefusesToStartWithoutAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	for _, key := range []string{"OPENAI_API_KEY", "WAQFQA_OPENAI_API_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	err := run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "openai.api_key is required")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OpenAI.APIKey = config.Secret("sk-test-not-a-real-key-000000")
	cfg.Corpus.EnglishPath = filepath.Join(t.TempDir(), "missing-english.pdf")
	cfg.Corpus.UrduPath = filepath.Join(t.TempDir(), "missing-urdu.pdf")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewApp_ServesHealthWithoutTouchingCorpora(t *testing.T) {
	cfg := testConfig(t)
	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig(), telemetry.WithoutGlobals())
	require.NoError(t, err)

	a, err := newApp(cfg, logging.NewTestLogger().Logger, tel)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string            `json:"status"`
		Languages map[string]string `json:"languages"`
		Telemetry map[string]bool   `json:"telemetry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"english": "pending", "urdu": "pending"}, body.Languages)
	assert.Equal(t, map[string]bool{"healthy": true, "degraded": false}, body.Telemetry)

	rec = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApp_WarmMissingCorporaKeepsServing(t *testing.T) {
	cfg := testConfig(t)
	tl := logging.NewTestLogger()
	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig(), telemetry.WithoutGlobals())
	require.NoError(t, err)

	a, err := newApp(cfg, tl.Logger, tel)
	require.NoError(t, err)

	a.warm(context.Background())

	assert.Equal(t, rag.StatusFailed, a.rag.Status("english"))
	assert.Equal(t, rag.StatusFailed, a.rag.Status("urdu"))
	tl.AssertLogged(t, zapcore.ErrorLevel, "corpus warm-up incomplete")
	tl.AssertNoValue(t, "sk-test-not-a-real-key-000000")
}

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, rate.Inf, newLimiter(0, 0).Limit())
	l := newLimiter(3, 0)
	assert.Equal(t, rate.Limit(3), l.Limit())
	assert.Equal(t, 1, l.Burst())
}

func TestBodyLimit(t *testing.T) {
	assert.Equal(t, "11264K", bodyLimit(10*1024*1024))
}
