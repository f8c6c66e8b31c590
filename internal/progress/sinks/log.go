package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/ripples/internal/progress"
)

// LogSink writes each progress event as a structured log line. Run and depth
// milestones log at Info; per-node events log at Debug so busy crawls stay
// quiet unless the level is lowered.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := levelFor(evt.Stage)
		ce := s.logger.Check(level, "Progress event")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("depth", evt.Depth),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL), zap.String("site", evt.Site))
		}
		if evt.Links > 0 {
			fields = append(fields, zap.Int("links", evt.Links))
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageRunError:
		return zapcore.WarnLevel
	case progress.StageRunStart, progress.StageRunDone, progress.StageDepthDone:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
