package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracerProviderExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), Options{ServiceName: "urlscraper-test", Version: "dev", Exporter: exporter})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))
	require.NoError(t, tp.Shutdown(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "unit", spans[0].Name)
	require.Equal(t, "urlscraper-test", serviceName(spans[0].Resource.Attributes()))
}

func serviceName(attrs []attribute.KeyValue) string {
	for _, kv := range attrs {
		if kv.Key == "service.name" {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestLogExporterWritesSpans(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exporter := NewLogExporter(zap.New(core))
	stubs := tracetest.SpanStubs{{
		Name:       "worker.execute",
		Attributes: []attribute.KeyValue{attribute.String("run_id", "r1")},
	}}
	require.NoError(t, exporter.ExportSpans(context.Background(), stubs.Snapshots()))
	require.NoError(t, exporter.Shutdown(context.Background()))

	entries := logs.FilterMessage("worker.execute").All()
	require.Len(t, entries, 1)
	require.Equal(t, "r1", entries[0].ContextMap()["run_id"])
}

func TestLogExporterHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stubs := tracetest.SpanStubs{{Name: "x"}}
	require.ErrorIs(t, NewLogExporter(nil).ExportSpans(ctx, stubs.Snapshots()), context.Canceled)
}
