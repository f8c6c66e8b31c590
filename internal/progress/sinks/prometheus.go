package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/ripples/internal/progress"
)

// Node outcome labels.
const (
	outcomeComplete    = "complete"
	outcomeUnreachable = "unreachable"
	outcomeStub        = "stub"
)

// PrometheusSink derives run and node metrics from progress events. It owns
// its collectors so tests can register them on a private registry.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	nodesFinished *prometheus.CounterVec
	nodesInFlight prometheus.Gauge
	frontierSize  prometheus.Gauge
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripples_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ripples_runs_completed_total",
			Help: "Total crawl runs finished, partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripples_runs_running",
			Help: "Crawl runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ripples_run_duration_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		nodesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ripples_nodes_finished_total",
			Help: "Nodes that left the in-progress state, by site and outcome.",
		}, []string{"site", "outcome"}),
		nodesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripples_nodes_in_flight",
			Help: "Nodes currently being crawled.",
		}),
		frontierSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripples_frontier_size",
			Help: "Nodes queued for the next depth at the last depth barrier.",
		}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ripples_fetch_bytes_total",
			Help: "Response bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ripples_fetch_duration_seconds",
			Help:    "Fetch latency by site and outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.nodesFinished,
		s.nodesInFlight,
		s.frontierSize,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "success")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StageDepthDone:
		s.frontierSize.Set(float64(evt.Links))
	case progress.StageNodeStart:
		s.nodesInFlight.Inc()
	case progress.StageNodeDone:
		s.finishNode(evt, outcomeComplete)
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(siteLabel(evt)).Add(float64(evt.Bytes))
		}
	case progress.StageNodeUnreachable:
		s.finishNode(evt, outcomeUnreachable)
	case progress.StageNodeStub:
		s.finishNode(evt, outcomeStub)
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) finishNode(evt progress.Event, outcome string) {
	site := siteLabel(evt)
	s.nodesInFlight.Dec()
	s.nodesFinished.WithLabelValues(site, outcome).Inc()
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func siteLabel(evt progress.Event) string {
	if evt.Site == "" {
		return "unknown"
	}
	return evt.Site
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
