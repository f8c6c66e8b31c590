package crawler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ripples/internal/progress"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(Page), args.Error(1)
}

// linkMap serves canned links keyed by page URL.
type linkMap map[string][]string

func (l linkMap) ExtractLinks(page Page) ([]string, error) {
	return l[page.URL], nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func okPage(rawURL string) Page {
	return Page{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
	}
}

func testConfig(depth int) Config {
	cfg := DefaultConfig()
	cfg.MaxDepth = depth
	cfg.Concurrency = 1
	cfg.StubDomains = nil
	cfg.DenyDomains = nil
	return cfg
}

func mustLookup(t *testing.T, g *Graph, raw string) Node {
	t.Helper()
	id, err := NewIdentity(raw, 0)
	require.NoError(t, err)
	ref, ok := g.Lookup(id)
	require.Truef(t, ok, "expected node for %s", raw)
	n, ok := g.Node(ref)
	require.True(t, ok)
	return n
}

func TestEngine_Run(t *testing.T) {
	t.Run("stub deny and depth cap", func(t *testing.T) {
		// Arrange
		cfg := testConfig(1)
		cfg.StubDomains = []string{"stub.com"}
		cfg.DenyDomains = []string{"ads.example"}
		fetcher := new(MockFetcher)
		links := linkMap{
			"https://example.com/": {
				"https://stub.com/x",
				"https://ads.example/y",
				"https://child.com/z",
			},
		}
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		// Act
		res, err := engine.Run(context.Background(), "https://example.com/")

		// Assert
		require.NoError(t, err)
		g := res.Graph
		require.Equal(t, 3, g.NodeCount())
		root := mustLookup(t, g, "https://example.com/")
		stub := mustLookup(t, g, "https://stub.com/x")
		child := mustLookup(t, g, "https://child.com/z")
		require.Equal(t, StateComplete, root.State)
		require.Equal(t, StateComplete, stub.State)
		require.Equal(t, StateUncrawled, child.State)
		require.True(t, g.HasEdge(root.Ref, stub.Ref))
		require.True(t, g.HasEdge(root.Ref, child.Ref))
		require.Equal(t, 2, g.EdgeCount())

		ads, err := NewIdentity("https://ads.example/y", 0)
		require.NoError(t, err)
		require.False(t, g.Contains(ads))
		require.Equal(t, 1, res.Stats.DeniedLinks)
		require.Equal(t, 1, res.Stats.StubsSkipped)
		fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	})

	t.Run("stub seed completes without fetch", func(t *testing.T) {
		cfg := testConfig(2)
		cfg.StubDomains = []string{"*.example.com"}
		fetcher := new(MockFetcher)
		engine := NewEngine(cfg, fetcher, linkMap{}, nil, nil)

		res, err := engine.Run(context.Background(), "https://www.example.com/")

		require.NoError(t, err)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://www.example.com/").State)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})

	t.Run("stub node completes without fetch", func(t *testing.T) {
		cfg := testConfig(2)
		cfg.StubDomains = []string{"stub.com"}
		cfg.DenyDomains = []string{"ads.example"}
		fetcher := new(MockFetcher)
		links := linkMap{
			"https://example.com/": {"https://stub.com/x", "https://ads.example/y", "https://child.com/z"},
		}
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		fetcher.On("Fetch", mock.Anything, "https://child.com/z").Return(okPage("https://child.com/z"), nil)
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://stub.com/x").State)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://child.com/z").State)
		require.Equal(t, 1, res.Stats.StubsSkipped)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, "https://stub.com/x")
	})

	t.Run("seed fetch failure marks unreachable", func(t *testing.T) {
		cfg := testConfig(2)
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").
			Return(Page{}, &FetchError{URL: "https://example.com/", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")})
		emitter := &recordingEmitter{}
		engine := NewEngine(cfg, fetcher, linkMap{}, emitter, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, 1, res.Graph.NodeCount())
		require.Equal(t, 0, res.Graph.EdgeCount())
		require.Equal(t, StateUnreachable, mustLookup(t, res.Graph, "https://example.com/").State)
		require.Equal(t, 1, res.Stats.FetchFailures)
		require.Contains(t, emitter.stages(), progress.StageNodeUnreachable)
		require.Contains(t, emitter.stages(), progress.StageRunDone)
	})

	t.Run("fetch failure without unreachable marking completes", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.MarkUnreachable = false
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(Page{}, errors.New("dial tcp: refused"))
		engine := NewEngine(cfg, fetcher, linkMap{}, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://example.com/").State)
	})

	t.Run("self link records a loop edge without a new node", func(t *testing.T) {
		cfg := testConfig(3)
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		links := linkMap{"https://example.com/": {"https://example.com/", "https://example.com/"}}
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, 1, res.Graph.NodeCount())
		require.Equal(t, []Edge{{From: 0, To: 0}}, res.Graph.Edges())
		fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	})

	t.Run("self loops can be disabled", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.AllowSelfLoops = false
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		links := linkMap{"https://example.com/": {"https://example.com/"}}
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, 1, res.Graph.NodeCount())
		require.Zero(t, res.Graph.EdgeCount())
	})

	t.Run("rediscovered node gets edge only", func(t *testing.T) {
		cfg := testConfig(2)
		fetcher := new(MockFetcher)
		links := linkMap{
			"https://a.test/": {"https://b.test/", "https://c.test/"},
			"https://b.test/": {"https://c.test/", "https://a.test/"},
			"https://c.test/": {"https://b.test/"},
		}
		for u := range links {
			fetcher.On("Fetch", mock.Anything, u).Return(okPage(u), nil)
		}
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		res, err := engine.Run(context.Background(), "https://a.test/")

		require.NoError(t, err)
		g := res.Graph
		require.Equal(t, 3, g.NodeCount())
		a := mustLookup(t, g, "https://a.test/")
		b := mustLookup(t, g, "https://b.test/")
		c := mustLookup(t, g, "https://c.test/")
		require.True(t, g.HasEdge(b.Ref, a.Ref))
		require.True(t, g.HasEdge(b.Ref, c.Ref))
		require.True(t, g.HasEdge(c.Ref, b.Ref))
		require.Equal(t, 5, g.EdgeCount())
		require.Equal(t, 1, b.Depth)
		for _, n := range g.Nodes() {
			require.Equal(t, StateComplete, n.State, n.URL.String())
		}
		fetcher.AssertNumberOfCalls(t, "Fetch", 3)
	})

	t.Run("depth zero leaves seed uncrawled", func(t *testing.T) {
		fetcher := new(MockFetcher)
		engine := NewEngine(testConfig(0), fetcher, linkMap{}, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, StateUncrawled, mustLookup(t, res.Graph, "https://example.com/").State)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})

	t.Run("seed too long aborts", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.MaxURLLength = 20
		engine := NewEngine(cfg, new(MockFetcher), linkMap{}, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/"+strings.Repeat("a", 10))

		require.ErrorIs(t, err, ErrTooLong)
		require.Nil(t, res.Graph)
	})

	t.Run("too long link is skipped", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.MaxURLLength = 40
		long := "https://example.com/" + strings.Repeat("x", 40)
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		links := linkMap{"https://example.com/": {long, "https://ok.test/"}}
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, 2, res.Graph.NodeCount())
		require.Equal(t, 1, res.Stats.TooLongLinks)
		require.Zero(t, res.Stats.InvalidLinks)
	})

	t.Run("empty seed", func(t *testing.T) {
		engine := NewEngine(testConfig(1), new(MockFetcher), linkMap{}, nil, nil)
		_, err := engine.Run(context.Background(), "  ")
		require.ErrorIs(t, err, ErrEmptySeed)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		engine := NewEngine(testConfig(1), nil, nil, nil, nil)
		_, err := engine.Run(context.Background(), "https://example.com/")
		require.Error(t, err)
	})

	t.Run("context cancelled before first depth", func(t *testing.T) {
		fetcher := new(MockFetcher)
		engine := NewEngine(testConfig(2), fetcher, linkMap{}, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := engine.Run(ctx, "https://example.com/")

		require.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, res.Graph)
		require.Equal(t, StateUncrawled, mustLookup(t, res.Graph, "https://example.com/").State)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})

	t.Run("cancel between depths keeps completed nodes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fetcher := FetcherFunc(func(_ context.Context, rawURL string) (Page, error) {
			cancel()
			return okPage(rawURL), nil
		})
		links := linkMap{"https://example.com/": {"https://child.test/"}}
		engine := NewEngine(testConfig(3), fetcher, links, nil, nil)

		res, err := engine.Run(ctx, "https://example.com/")

		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://example.com/").State)
		require.Equal(t, StateUncrawled, mustLookup(t, res.Graph, "https://child.test/").State)
	})

	t.Run("extractor error counts as no links", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		extractor := ExtractorFunc(func(Page) ([]string, error) {
			return nil, errors.New("parse failure")
		})
		engine := NewEngine(testConfig(1), fetcher, extractor, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://example.com/").State)
		require.Zero(t, res.Graph.EdgeCount())
	})

	t.Run("normalized links collapse", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.NormalizeURLs = true
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "https://example.com/").Return(okPage("https://example.com/"), nil)
		links := linkMap{"https://example.com/": {"HTTPS://Child.test:443/p#top", "https://child.test/p"}}
		engine := NewEngine(cfg, fetcher, links, nil, nil)

		res, err := engine.Run(context.Background(), "https://EXAMPLE.com/")

		require.NoError(t, err)
		require.Equal(t, 2, res.Graph.NodeCount())
		mustLookup(t, res.Graph, "https://child.test/p")
	})

	t.Run("zero config fetches with the default timeout", func(t *testing.T) {
		var deadline time.Duration
		fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (Page, error) {
			if err := ctx.Err(); err != nil {
				return Page{}, err
			}
			d, ok := ctx.Deadline()
			require.True(t, ok)
			deadline = time.Until(d)
			return okPage(rawURL), nil
		})
		engine := NewEngine(Config{MaxDepth: 1, MarkUnreachable: true}, fetcher, linkMap{}, nil, nil)

		res, err := engine.Run(context.Background(), "https://example.com/")

		require.NoError(t, err)
		require.Equal(t, StateComplete, mustLookup(t, res.Graph, "https://example.com/").State)
		require.Zero(t, res.Stats.FetchFailures)
		require.Greater(t, deadline, DefaultConfig().RequestTimeout/2)
	})

	t.Run("canceled fetch is unreachable even when failures are not marked", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fetcher := FetcherFunc(func(fctx context.Context, _ string) (Page, error) {
			cancel()
			return Page{}, fctx.Err()
		})
		cfg := testConfig(2)
		cfg.MarkUnreachable = false
		engine := NewEngine(cfg, fetcher, linkMap{}, nil, nil)

		res, err := engine.Run(ctx, "https://example.com/")

		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, StateUnreachable, mustLookup(t, res.Graph, "https://example.com/").State)
	})
}

func TestEngine_ConcurrentFrontier(t *testing.T) {
	t.Parallel()

	const fanout = 20
	seed := "https://hub.test/"
	links := linkMap{seed: nil}
	for i := 0; i < fanout; i++ {
		u := "https://leaf.test/" + strings.Repeat("n", i+1)
		links[seed] = append(links[seed], u)
		// every leaf links to the same shared page and back to the seed
		links[u] = []string{"https://shared.test/", seed}
	}
	fetcher := FetcherFunc(func(_ context.Context, rawURL string) (Page, error) {
		time.Sleep(time.Millisecond)
		return okPage(rawURL), nil
	})
	cfg := testConfig(2)
	cfg.Concurrency = 8
	emitter := &recordingEmitter{}
	engine := NewEngine(cfg, fetcher, links, emitter, nil)

	res, err := engine.Run(context.Background(), seed)

	require.NoError(t, err)
	g := res.Graph
	require.Equal(t, fanout+2, g.NodeCount())
	require.Equal(t, fanout+2*fanout, g.EdgeCount())
	shared := mustLookup(t, g, "https://shared.test/")
	require.Equal(t, StateUncrawled, shared.State)
	require.Equal(t, 2, shared.Depth)
	require.Equal(t, fanout+1, res.Stats.States[StateComplete])
	require.Equal(t, 2, res.Stats.DepthsCrawled)
}

func TestEngine_CrawlNodeSkipsSettledNode(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	engine := NewEngine(testConfig(1), fetcher, linkMap{}, nil, nil)
	rs, err := engine.newRun()
	require.NoError(t, err)

	id, err := NewIdentity("https://done.test/", 0)
	require.NoError(t, err)
	ref, _ := rs.graph.AddNode(id, StateUncrawled, 0)
	require.NoError(t, rs.graph.SetState(ref, StateInProgress))
	require.NoError(t, rs.graph.SetState(ref, StateComplete))

	created := engine.crawlNode(context.Background(), rs, ref, 0, engine.logger)

	require.Empty(t, created)
	state, _ := rs.graph.State(ref)
	require.Equal(t, StateComplete, state)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}
