package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ripples/internal/progress"
)

// ErrEmptySeed is returned when Run is called without a seed URL.
var ErrEmptySeed = errors.New("seed url is required")

var tracer = otel.Tracer("github.com/JakeFAU/ripples/internal/crawler")

// Engine drives the breadth-first crawl. Nodes of one depth are processed by
// a bounded worker pool; the next depth starts only after the whole current
// frontier has finished.
type Engine struct {
	cfg       Config
	fetcher   Fetcher
	extractor LinkExtractor
	stubs     *DomainSet
	deny      *DomainSet
	emitter   Emitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine wires the collaborators into an Engine. A nil emitter discards
// progress events and a nil logger is replaced by a no-op logger.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	extractor LinkExtractor,
	emitter Emitter,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxURLLength <= 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		stubs:     NewDomainSet(cfg.StubDomains),
		deny:      NewDomainSet(cfg.DenyDomains),
		emitter:   emitter,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// runState carries the per-run bookkeeping shared by the workers.
type runState struct {
	id       string
	rawID    [16]byte
	graph    *Graph
	fetchErr atomic.Int64
	denied   atomic.Int64
	invalid  atomic.Int64
	tooLong  atomic.Int64
	stubs    atomic.Int64
}

// Run crawls outward from seed. It fails before crawling only when the seed
// cannot become an identity. Every other failure is contained per node, so the
// returned Result always carries a graph. If ctx ends, Run stops at the next
// depth barrier and returns the partial graph together with the context error.
func (e *Engine) Run(ctx context.Context, seed string) (Result, error) {
	if e.fetcher == nil || e.extractor == nil {
		return Result{}, errors.New("engine requires a fetcher and a link extractor")
	}
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return Result{}, ErrEmptySeed
	}
	if e.cfg.NormalizeURLs {
		normalized, err := NormalizeURL(seed)
		if err != nil {
			return Result{}, fmt.Errorf("normalize seed: %w", err)
		}
		seed = normalized
	}
	seedID, err := NewIdentity(seed, e.cfg.MaxURLLength)
	if err != nil {
		return Result{}, fmt.Errorf("seed identity: %w", err)
	}

	rs, err := e.newRun()
	if err != nil {
		return Result{}, err
	}
	started := e.now()
	ctx, span := tracer.Start(ctx, "crawl.run", trace.WithAttributes(
		attribute.String("run_id", rs.id),
		attribute.String("seed", seed),
		attribute.Int("max_depth", e.cfg.MaxDepth),
	))
	defer span.End()
	logger := e.logger.With(zap.String("run_id", rs.id))
	logger.Info("Crawl started",
		zap.String("seed", seed),
		zap.Int("max_depth", e.cfg.MaxDepth),
		zap.Int("concurrency", e.cfg.Concurrency),
	)
	e.emit(rs, progress.Event{Stage: progress.StageRunStart, URL: seed})

	root, _ := rs.graph.AddNode(seedID, StateUncrawled, 0)
	NodesCreated.Inc()
	frontier := []NodeRef{root}

	depth := 0
	var runErr error
	for len(frontier) > 0 && depth < e.cfg.MaxDepth {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("crawl canceled before depth %d: %w", depth, err)
			break
		}
		frontier = e.crawlDepth(ctx, rs, frontier, depth, logger)
		e.emit(rs, progress.Event{Stage: progress.StageDepthDone, Depth: depth, Links: len(frontier)})
		logger.Info("Depth complete",
			zap.Int("depth", depth),
			zap.Int("next_frontier", len(frontier)),
			zap.Int("nodes", rs.graph.NodeCount()),
		)
		depth++
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("crawl canceled during depth %d: %w", depth-1, err)
			break
		}
	}

	result := Result{Graph: rs.graph, Stats: e.stats(rs, depth, started)}
	wall := result.Stats.Finished.Sub(started)
	span.SetAttributes(
		attribute.Int("nodes", result.Stats.Nodes),
		attribute.Int("edges", result.Stats.Edges),
		attribute.Int("depths", depth),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Warn("Crawl aborted", zap.Error(runErr), zap.Int("nodes", result.Stats.Nodes))
		e.emit(rs, progress.Event{Stage: progress.StageRunError, Depth: depth, Dur: wall, Note: runErr.Error()})
		return result, runErr
	}
	logger.Info("Crawl finished",
		zap.Int("nodes", result.Stats.Nodes),
		zap.Int("edges", result.Stats.Edges),
		zap.Int("depths", depth),
		zap.Duration("elapsed", wall),
	)
	e.emit(rs, progress.Event{Stage: progress.StageRunDone, Depth: depth, Dur: wall})
	return result, nil
}

func (e *Engine) newRun() (*runState, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	return &runState{
		id:    id.String(),
		rawID: progress.UUIDToBytes(id),
		graph: NewGraph(),
	}, nil
}

// crawlDepth processes one frontier and returns the nodes it created, in
// frontier order.
func (e *Engine) crawlDepth(
	ctx context.Context,
	rs *runState,
	frontier []NodeRef,
	depth int,
	logger *zap.Logger,
) []NodeRef {
	children := make([][]NodeRef, len(frontier))
	var group errgroup.Group
	group.SetLimit(e.cfg.Concurrency)
	for i, ref := range frontier {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			nodeCtx, span := tracer.Start(ctx, "crawl.node", trace.WithAttributes(attribute.Int("depth", depth)))
			children[i] = e.crawlNode(nodeCtx, rs, ref, depth, logger)
			if n, ok := rs.graph.Node(ref); ok {
				span.SetAttributes(
					attribute.String("url", n.URL.String()),
					attribute.String("state", n.State.String()),
					attribute.Int("new_nodes", len(children[i])),
				)
				if n.State == StateUnreachable {
					span.SetStatus(codes.Error, "unreachable")
				}
			}
			span.End()
			return nil
		})
	}
	_ = group.Wait()

	var next []NodeRef
	for _, c := range children {
		next = append(next, c...)
	}
	return next
}

// crawlNode runs the state machine for a single node and returns the refs of
// nodes it created.
func (e *Engine) crawlNode(
	ctx context.Context,
	rs *runState,
	ref NodeRef,
	depth int,
	logger *zap.Logger,
) []NodeRef {
	node, ok := rs.graph.Node(ref)
	if !ok {
		logger.Error("Frontier holds unknown node", zap.Int("ref", int(ref)))
		return nil
	}
	rawURL := node.URL.String()
	logger = logger.With(zap.String("url", rawURL), zap.Int("depth", depth))
	if node.State.Terminal() {
		logger.Debug("Node already settled, skipping", zap.Stringer("state", node.State))
		return nil
	}

	if !e.transition(rs, ref, StateInProgress, logger) {
		return nil
	}
	e.emit(rs, progress.Event{Stage: progress.StageNodeStart, URL: rawURL, Depth: depth})

	if e.stubs.MatchesURL(rawURL) {
		e.finishStub(rs, ref, rawURL, depth, logger)
		return nil
	}

	page, err := e.fetch(ctx, rawURL)
	if err != nil {
		rs.fetchErr.Add(1)
		FetchFailures.WithLabelValues(RegistrableDomain(rawURL)).Inc()
		logger.Warn("Fetch failed", zap.Error(err))
		// A fetch cut short by cancellation never reports Complete.
		if e.cfg.MarkUnreachable || ctx.Err() != nil {
			e.transition(rs, ref, StateUnreachable, logger)
			e.emit(rs, progress.Event{
				Stage: progress.StageNodeUnreachable,
				URL:   rawURL,
				Depth: depth,
				Note:  err.Error(),
			})
		} else {
			e.transition(rs, ref, StateComplete, logger)
			e.emit(rs, progress.Event{Stage: progress.StageNodeDone, URL: rawURL, Depth: depth, Note: err.Error()})
		}
		return nil
	}

	links, err := e.extractor.ExtractLinks(page)
	if err != nil {
		logger.Warn("Link extraction failed", zap.Error(err))
		links = nil
	}
	created := e.linkNode(rs, node, links, depth+1, logger)

	e.transition(rs, ref, StateComplete, logger)
	logger.Debug("Node crawled", zap.Int("links", len(links)), zap.Int("new_nodes", len(created)))
	e.emit(rs, progress.Event{
		Stage: progress.StageNodeDone,
		URL:   rawURL,
		Depth: depth,
		Links: len(links),
		Bytes: int64(len(page.Body)),
		Dur:   page.Duration,
	})
	return created
}

// linkNode filters the raw links found on from and records them in the
// graph. Links to known nodes only add an edge; unknown links create a node
// at childDepth which is returned for the next frontier, unless it belongs to
// a stub domain.
func (e *Engine) linkNode(rs *runState, from Node, links []string, childDepth int, logger *zap.Logger) []NodeRef {
	var created []NodeRef
	for _, raw := range links {
		LinksDiscovered.Inc()
		raw = strings.TrimSpace(raw)
		if raw == "" {
			e.drop(rs, dropReasonInvalid)
			continue
		}
		if e.cfg.NormalizeURLs {
			normalized, err := NormalizeURL(raw)
			if err != nil {
				e.drop(rs, dropReasonInvalid)
				logger.Debug("Dropping unparseable link", zap.String("link", raw), zap.Error(err))
				continue
			}
			raw = normalized
		}
		if e.deny.MatchesURL(raw) {
			e.drop(rs, dropReasonDenied)
			logger.Debug("Dropping deny-listed link", zap.String("link", raw))
			continue
		}
		id, err := NewIdentity(raw, e.cfg.MaxURLLength)
		if err != nil {
			e.drop(rs, dropReasonTooLong)
			logger.Info("Skipping link that exceeds the URL capacity", zap.Int("length", len(raw)), zap.Error(err))
			continue
		}
		if id == from.URL && !e.cfg.AllowSelfLoops {
			LinksDropped.WithLabelValues(dropReasonSelfLoop).Inc()
			continue
		}
		child, isNew := rs.graph.AddNode(id, StateUncrawled, childDepth)
		if _, err := rs.graph.AddEdge(from.Ref, child); err != nil {
			logger.Error("Add edge failed", zap.Error(err))
			continue
		}
		if !isNew {
			continue
		}
		NodesCreated.Inc()
		if e.stubs.MatchesURL(raw) {
			e.completeStub(rs, child, raw, childDepth, logger)
			continue
		}
		created = append(created, child)
	}
	return created
}

// completeStub settles a freshly created stub-domain node. Stub nodes are
// never fetched, so they complete as soon as they exist instead of waiting in
// the frontier.
func (e *Engine) completeStub(rs *runState, ref NodeRef, rawURL string, depth int, logger *zap.Logger) {
	if !e.transition(rs, ref, StateInProgress, logger) {
		return
	}
	e.emit(rs, progress.Event{Stage: progress.StageNodeStart, URL: rawURL, Depth: depth})
	e.finishStub(rs, ref, rawURL, depth, logger)
}

func (e *Engine) finishStub(rs *runState, ref NodeRef, rawURL string, depth int, logger *zap.Logger) {
	rs.stubs.Add(1)
	e.transition(rs, ref, StateComplete, logger)
	logger.Debug("Stub domain, skipping fetch", zap.String("stub", rawURL))
	e.emit(rs, progress.Event{Stage: progress.StageNodeStub, URL: rawURL, Depth: depth})
}

func (e *Engine) fetch(ctx context.Context, rawURL string) (Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	start := time.Now()
	page, err := e.fetcher.Fetch(fetchCtx, rawURL)
	if err != nil {
		if IsFetchError(err) {
			return Page{}, err
		}
		return Page{}, &FetchError{URL: rawURL, Err: err}
	}
	if page.Duration == 0 {
		page.Duration = time.Since(start)
	}
	if page.URL == "" {
		page.URL = rawURL
	}
	return page, nil
}

// transition applies a state change through the graph and logs refusals.
func (e *Engine) transition(rs *runState, ref NodeRef, next CrawlState, logger *zap.Logger) bool {
	if err := rs.graph.SetState(ref, next); err != nil {
		logger.Error("State transition rejected", zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) drop(rs *runState, reason string) {
	LinksDropped.WithLabelValues(reason).Inc()
	switch reason {
	case dropReasonDenied:
		rs.denied.Add(1)
	case dropReasonInvalid:
		rs.invalid.Add(1)
	case dropReasonTooLong:
		rs.tooLong.Add(1)
	}
}

func (e *Engine) emit(rs *runState, evt progress.Event) {
	evt.RunID = rs.rawID
	evt.TS = e.now()
	if evt.URL != "" && evt.Site == "" {
		evt.Site = RegistrableDomain(evt.URL)
	}
	e.emitter.Emit(evt)
}

func (e *Engine) stats(rs *runState, depths int, started time.Time) Stats {
	return Stats{
		RunID:         rs.id,
		Nodes:         rs.graph.NodeCount(),
		Edges:         rs.graph.EdgeCount(),
		DepthsCrawled: depths,
		States:        rs.graph.CountByState(),
		FetchFailures: int(rs.fetchErr.Load()),
		DeniedLinks:   int(rs.denied.Load()),
		InvalidLinks:  int(rs.invalid.Load()),
		TooLongLinks:  int(rs.tooLong.Load()),
		StubsSkipped:  int(rs.stubs.Load()),
		Started:       started,
		Finished:      e.now(),
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}
