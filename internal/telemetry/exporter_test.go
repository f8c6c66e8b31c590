package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapExporterLogsSpans(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exporter := NewZapExporter(zap.New(core))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "crawl.run")
	_, child := tp.Tracer("test").Start(ctx, "crawl.node")
	child.SetAttributes(attribute.String("url", "https://example.com/"), attribute.Int("depth", 1))
	child.End()
	parent.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	entries := logs.FilterMessage("Span finished").All()
	require.Len(t, entries, 2)
	node := entries[0].ContextMap()
	require.Equal(t, "crawl.node", node["span"])
	require.Equal(t, "https://example.com/", node["url"])
	require.Equal(t, "1", node["depth"])
	require.Contains(t, node, "parent_id")
	require.Equal(t, "trace", entries[0].LoggerName)
	require.NotContains(t, entries[1].ContextMap(), "parent_id")
}

func TestZapExporterStopsAfterShutdown(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exporter := NewZapExporter(zap.New(core))
	require.NoError(t, exporter.Shutdown(context.Background()))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	_, span := tp.Tracer("test").Start(context.Background(), "ignored")
	span.End()
	require.Zero(t, logs.Len())
}

func TestSetupInstallsProvider(t *testing.T) {
	shutdown, err := Setup(context.Background(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
