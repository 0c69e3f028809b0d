// Package telemetry wires OpenTelemetry tracing and metrics export.
//
// Spans are created through the global tracer provider by the packages that
// do the work (vectorstore.Retrieve, rag.Ask, completion.Complete), so New
// installs its providers globally unless WithoutGlobals is passed.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry))
//	defer tel.Shutdown(context.Background())
//
// Export failures degrade the instance instead of failing startup.
//
// Use TestTelemetry in tests to record spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "rag.Ask")
//	span.End()
//	tt.AssertSpanExists(t, "rag.Ask")
package telemetry
