package telemetry

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ZapExporter writes finished spans as Debug log lines. It lets a local run
// inspect per-node timings without a collector.
type ZapExporter struct {
	logger  *zap.Logger
	stopped atomic.Bool
}

// NewZapExporter returns an exporter that logs to logger under the "trace" name.
func NewZapExporter(logger *zap.Logger) *ZapExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapExporter{logger: logger.Named("trace")}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *ZapExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := make([]zap.Field, 0, 6+len(s.Attributes()))
		fields = append(fields,
			zap.String("span", s.Name()),
			zap.Stringer("trace_id", s.SpanContext().TraceID()),
			zap.Stringer("span_id", s.SpanContext().SpanID()),
			zap.Duration("dur", s.EndTime().Sub(s.StartTime())),
		)
		if parent := s.Parent(); parent.IsValid() {
			fields = append(fields, zap.Stringer("parent_id", parent.SpanID()))
		}
		if st := s.Status(); st.Description != "" {
			fields = append(fields, zap.String("status", st.Description))
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("Span finished", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *ZapExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}
