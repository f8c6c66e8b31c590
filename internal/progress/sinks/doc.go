// Package sinks implements progress consumers: a zap log sink for operators
// following a crawl and a Prometheus sink that turns the event stream into
// run and node metrics. Each satisfies progress.Sink.
package sinks
