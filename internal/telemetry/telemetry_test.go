package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/waqfqa/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "disabled is always valid", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "enabled defaults", mutate: func(c *Config) { c.Enabled = true }},
		{name: "missing endpoint", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "" }, wantErr: "endpoint is required"},
		{name: "bad protocol", mutate: func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, wantErr: "protocol must be"},
		{name: "insecure remote", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, wantErr: "insecure connections"},
		{name: "secure remote", mutate: func(c *Config) { c.Enabled = true; c.Insecure = false; c.Endpoint = "otel.example.com:4317" }},
		{name: "insecure ipv6 loopback", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }},
		{name: "insecure loopback with scheme", mutate: func(c *Config) { c.Enabled = true; c.Protocol = ProtocolHTTP; c.Endpoint = "http://127.0.0.1:4318" }},
		{name: "sampling out of range", mutate: func(c *Config) { c.Enabled = true; c.SamplingRate = 2 }, wantErr: "sampling rate"},
		{name: "zero interval", mutate: func(c *Config) { c.Enabled = true; c.ExportInterval = 0 }, wantErr: "export interval"},
		{name: "zero shutdown", mutate: func(c *Config) { c.Enabled = true; c.ShutdownTimeout = 0 }, wantErr: "shutdown timeout"},
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

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:      true,
		Endpoint:     "collector:4318",
		Protocol:     ProtocolHTTP,
		SamplingRate: 0.25,
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "waqfqa", cfg.ServiceName)
	assert.False(t, cfg.Insecure)
	assert.InDelta(t, 0.25, cfg.SamplingRate, 1e-9)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "carrier-pigeon"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_ExportsSpans(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.MetricsEnabled = false

	exp := tracetest.NewInMemoryExporter()
	tel, err := New(context.Background(), cfg,
		WithoutGlobals(),
		WithProviderOptions([]TracerProviderOption{WithTraceExporter(exp)}, nil),
	)
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer("waqfqa.test").Start(context.Background(), "rag.Ask")
	span.SetAttributes(attribute.String("language", "urdu"))
	span.End()

	require.NoError(t, tel.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "rag.Ask", spans[0].Name)
	assert.Equal(t, "waqfqa", resourceServiceName(spans[0]))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.IsEnabled())
}

func resourceServiceName(s tracetest.SpanStub) string {
	for _, kv := range s.Resource.Attributes() {
		if kv.Key == "service.name" {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()
	assert.True(t, tt.Health().Healthy)

	_, span := tt.Tracer("test").Start(ctx, "completion.Complete")
	span.SetAttributes(attribute.String("outcome", "ok"))
	span.End()

	tt.AssertSpanExists(t, "completion.Complete")
	tt.AssertSpanAttribute(t, "completion.Complete", "outcome", "ok")
	assert.Equal(t, []string{"completion.Complete"}, tt.SpanNames())

	counter, err := tt.Meter("test").Int64Counter("waqfqa.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	names, err := tt.MetricNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "waqfqa.test.calls")
}
