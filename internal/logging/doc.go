// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a Trace level below Debug
//   - stdout output plus an optional OpenTelemetry bridge
//   - automatic context fields (trace_id, session.id, request.id, language)
//   - secret redaction at the encoder
//   - sampling below error level
//
// Create a logger from the application config:
//
//	cfg, err := logging.FromSettings(appCfg.Logging, appCfg.Telemetry.Enabled)
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	ctx = logging.WithLanguage(ctx, "urdu")
//	logger.Info(ctx, "chat turn completed", zap.Int("history", n))
//
// Packages below the HTTP layer take a *zap.Logger; pass Underlying().
//
// Use TestLogger for assertions in tests:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
package logging
