package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinksDiscovered tracks every raw link returned by the extractor.
	LinksDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripples_links_discovered_total",
		Help: "The total number of links extracted from fetched pages.",
	})
	// LinksDropped tracks links discarded before graph insertion, by reason.
	LinksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripples_links_dropped_total",
		Help: "The total number of extracted links that never reached the graph.",
	}, []string{"reason"})
	// NodesCreated tracks graph nodes created during crawls.
	NodesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripples_nodes_created_total",
		Help: "The total number of graph nodes created.",
	})
	// FetchFailures tracks fetches that returned an error, by site.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripples_fetch_failures_total",
		Help: "The total number of failed page fetches.",
	}, []string{"site"})
)

const (
	dropReasonDenied   = "denied"
	dropReasonTooLong  = "too_long"
	dropReasonSelfLoop = "self_loop"
	dropReasonInvalid  = "invalid"
)
