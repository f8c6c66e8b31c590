// Package crawler implements the breadth-first link-graph crawl engine: URL
// identities, domain filters, the crawl graph with its per-node state machine,
// and the depth-bounded frontier scheduler that drives fetch and extraction.
package crawler
