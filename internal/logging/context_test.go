package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/waqfqa/internal/config"
)

func configLogging(level, format string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: format}
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestWithSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		kept bool
	}{
		{name: "uuid", id: "3f2b9c1e-8a4d-4e7f-9b2a-1c0d5e6f7a8b", kept: true},
		{name: "underscore", id: "sess_123", kept: true},
		{name: "empty", id: "", kept: false},
		{name: "injection", id: "abc\n{\"level\":\"error\"}", kept: false},
		{name: "spaces", id: "a b", kept: false},
		{name: "too long", id: strings.Repeat("a", maxIDLen+1), kept: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithSessionID(context.Background(), tt.id)
			if tt.kept {
				assert.Equal(t, tt.id, SessionIDFromContext(ctx))
			} else {
				assert.Empty(t, SessionIDFromContext(ctx))
			}
		})
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_1")
	assert.Equal(t, "req_1", RequestIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), "bad id")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestWithLanguage(t *testing.T) {
	assert.Equal(t, "english", LanguageFromContext(WithLanguage(context.Background(), "english")))
	assert.Empty(t, LanguageFromContext(WithLanguage(context.Background(), "")))
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("abc-123_x", "id"))
	assert.ErrorContains(t, ValidateID("", "id"), "cannot be empty")
	assert.ErrorContains(t, ValidateID("\xff", "id"), "invalid UTF-8")
	assert.ErrorContains(t, ValidateID("a/b", "id"), "invalid characters")
}

func TestLoggerInContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))

	fallback := FromContext(context.Background())
	require.NotNil(t, fallback)
	fallback.Info(context.Background(), "dropped")
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(configLogging("debug", "console"), true)
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)

	_, err = FromSettings(configLogging("chatty", "json"), false)
	assert.Error(t, err)

	_, err = FromSettings(configLogging("info", "xml"), false)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no outputs", mutate: func(c *Config) { c.Output = OutputConfig{} }, wantErr: "at least one output"},
		{name: "zero tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, wantErr: "sampling tick"},
		{name: "negative skip", mutate: func(c *Config) { c.Caller.Skip = -1 }, wantErr: "caller skip"},
		{name: "bad pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{"("} }, wantErr: "invalid redaction pattern"},
		{name: "long pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", maxPatternLen+1)} }, wantErr: "too long"},
		{name: "empty field value", mutate: func(c *Config) { c.Fields["env"] = "" }, wantErr: "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
