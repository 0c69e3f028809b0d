package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// isolateEnv points HOME at a temp dir and clears variables the loader reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"OPENAI_API_KEY", "WAQFQA_OPENAI_API_KEY", "WAQFQA_SERVER_HTTP_PORT",
		"WAQFQA_CORPUS_EAGER", "WAQFQA_SPLITTER_CHUNK_OVERLAP",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeConfig(t *testing.T, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_RequiresAPIKey(t *testing.T) {
	isolateEnv(t)

	_, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "openai.api_key is required")
}

func TestLoadWithFile_DefaultsWithAliasKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-alias")

	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-from-alias", cfg.OpenAI.APIKey.Value())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 800, cfg.Splitter.ChunkSize)
	assert.Equal(t, 150, cfg.Splitter.ChunkOverlap)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, 20, cfg.Chat.HistoryWindow)
	assert.Equal(t, "gpt-4-turbo-preview", cfg.OpenAI.ChatModel)
	assert.Equal(t, "gpt-4-1106-preview", cfg.OpenAI.RAGModel)
	assert.Equal(t, "text-embedding-ada-002", cfg.OpenAI.EmbeddingModel)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadWithFile_Precedence(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
server:
  http_port: 9000
  shutdown_timeout: 3s
openai:
  api_key: sk-from-file
corpus:
  english_path: /srv/english.pdf
  eager: false
`, 0o600)

	t.Setenv("OPENAI_API_KEY", "sk-from-alias")
	t.Setenv("WAQFQA_OPENAI_API_KEY", "sk-from-prefixed")
	t.Setenv("WAQFQA_SERVER_HTTP_PORT", "9100")
	t.Setenv("WAQFQA_CORPUS_EAGER", "true")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-prefixed", cfg.OpenAI.APIKey.Value())
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "/srv/english.pdf", cfg.Corpus.EnglishPath)
	assert.True(t, cfg.Corpus.Eager)
	assert.Equal(t, "data/urdu_document.pdf", cfg.Corpus.UrduPath, "unset keys keep defaults")
}

func TestLoadWithFile_AliasOverridesFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "openai:\n  api_key: sk-from-file\n", 0o600)
	t.Setenv("OPENAI_API_KEY", "sk-from-alias")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-alias", cfg.OpenAI.APIKey.Value())
}

func TestLoadWithFile_FileChecks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	t.Run("world readable rejected", func(t *testing.T) {
		path := writeConfig(t, "server:\n  http_port: 9000\n", 0o644)
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, errs.ErrConfig)
		assert.ErrorContains(t, err, "insecure config file permissions")
	})

	t.Run("read only accepted", func(t *testing.T) {
		path := writeConfig(t, "server:\n  http_port: 9000\n", 0o400)
		cfg, err := LoadWithFile(path)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
	})

	t.Run("too large rejected", func(t *testing.T) {
		body := strings.Repeat("# padding\n", maxConfigFileSize/10+1)
		path := writeConfig(t, body, 0o600)
		_, err := LoadWithFile(path)
		assert.ErrorContains(t, err, "config file too large")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "server: [unclosed\n", 0o600)
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, errs.ErrConfig)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.OpenAI.APIKey = "sk-test"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.OpenAI.APIKey = "" }, wantErr: "openai.api_key is required"},
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "overlap equals size", mutate: func(c *Config) { c.Splitter.ChunkOverlap = 800 }, wantErr: "chunk_overlap"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "bad protocol", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Protocol = "udp"
		}, wantErr: "telemetry.protocol"},
		{name: "empty corpus path is allowed", mutate: func(c *Config) { c.Corpus.UrduPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errs.ErrConfig)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSecret_NeverSerialized(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")

	data, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(data))

	var back Secret
	assert.Error(t, json.Unmarshal([]byte(`"[REDACTED]"`), &back))
	require.NoError(t, json.Unmarshal([]byte(`"sk-other"`), &back))
	assert.Equal(t, "sk-other", back.Value())
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestLoadDotEnv(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-dotenv\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "sk-dotenv", os.Getenv("OPENAI_API_KEY"))
	t.Cleanup(func() { _ = os.Unsetenv("OPENAI_API_KEY") })

	t.Run("existing values win", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-shell")
		require.NoError(t, LoadDotEnv(path))
		assert.Equal(t, "sk-shell", os.Getenv("OPENAI_API_KEY"))
	})

	t.Run("missing file ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("WAQFQA_SERVER_HTTP_PORT"))
	assert.Equal(t, "openai.requests_per_second", envKey("WAQFQA_OPENAI_REQUESTS_PER_SECOND"))
	assert.Equal(t, "debug", envKey("WAQFQA_DEBUG"))
}
