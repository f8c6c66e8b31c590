package progress

import "context"

// Sink consumes batches of progress events. Consume is only ever called from
// the hub goroutine, one batch at a time, and must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it, as does
// crawler.Emitter, so the engine stays unaware of batching.
type Emitter interface {
	Emit(evt Event)
}

// SinkFunc adapts a function into a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
