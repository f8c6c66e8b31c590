// Package progress carries crawl progress events from the engine to
// observers. A Hub batches events on a background goroutine so the crawl never
// waits on a slow sink, and fans each batch out to sinks such as the zap log
// sink and the Prometheus sink in progress/sinks.
package progress
