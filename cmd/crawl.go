package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ripples/internal/config"
	"github.com/JakeFAU/ripples/internal/crawler"
	"github.com/JakeFAU/ripples/internal/export"
	"github.com/JakeFAU/ripples/internal/extract"
	collyfetcher "github.com/JakeFAU/ripples/internal/fetcher/colly"
	"github.com/JakeFAU/ripples/internal/logging"
	"github.com/JakeFAU/ripples/internal/metrics"
	"github.com/JakeFAU/ripples/internal/policy/ratelimit"
	"github.com/JakeFAU/ripples/internal/progress"
	"github.com/JakeFAU/ripples/internal/progress/sinks"
	"github.com/JakeFAU/ripples/internal/storage/local"
	"github.com/JakeFAU/ripples/internal/telemetry"
)

const hubCloseTimeout = 5 * time.Second

// newCrawlCmd creates the 'crawl' subcommand. Flags override the config file
// and RIPPLES_* environment variables.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url]",
		Short: "Crawl outward from a seed URL and export the link graph",
		Long: `Crawls breadth first from the seed URL up to --depth levels, then
writes the resulting graph to --output-dir. The seed may also come from the
crawler.seed config key. Interrupting the crawl still exports the partial
graph.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCommand,
	}

	d := crawler.DefaultConfig()
	f := cmd.Flags()
	f.Int("depth", d.MaxDepth, "number of depths to crawl")
	f.Int("concurrency", d.Concurrency, "maximum concurrent fetches per depth")
	f.Int("max-url-length", d.MaxURLLength, "longest URL accepted as a node")
	f.StringSlice("stub", d.StubDomains, "domains recorded as nodes but never fetched")
	f.StringSlice("deny", d.DenyDomains, "domains whose links are dropped")
	f.Duration("timeout", d.RequestTimeout, "per-request timeout")
	f.Float64("rps", d.PerHostRPS, "requests per second to any single host (0 = unlimited)")
	f.String("user-agent", d.UserAgent, "User-Agent header sent with every request")
	f.Bool("normalize", d.NormalizeURLs, "canonicalize URLs before they become nodes")
	f.String("format", export.FormatDOT, "export format: dot or json")
	f.String("output-dir", ".", "directory the graph is written to")
	f.StringP("output", "o", "", "graph file name (default ripples.<format>)")
	f.Bool("cluster", false, "group DOT nodes by registrable domain")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while crawling")
	f.Bool("trace", false, "log OpenTelemetry spans for the run and every node at debug level")
	f.Bool("dev", true, "human friendly console logging")
	f.String("log-level", "", "minimum log level (debug, info, warn, error)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	seed := cfg.Crawler.Seed
	if len(args) == 1 {
		seed = args[0]
	}
	if seed == "" {
		return errors.New("a seed URL is required, as an argument or crawler.seed")
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := local.New(local.Config{BaseDir: cfg.Export.OutputDir})
	if err != nil {
		return fmt.Errorf("init output dir: %w", err)
	}

	// Run-scoped collectors; promauto package metrics stay on the default registry.
	reg := prometheus.NewRegistry()
	ctx := cmd.Context()
	if cfg.Metrics.Addr != "" {
		stopMetrics, err := startMetrics(ctx, cfg.Metrics.Addr, reg, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.Setup(ctx, logger)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("Trace flush failed", zap.Error(err))
			}
		}()
	}

	hub, err := newProgressHub(reg, logger)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.PerHostRPS, Burst: cfg.Crawler.PerHostBurst})
	fetcher := limiter.Wrap(collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.RequestTimeout,
	}))
	engine := crawler.NewEngine(
		cfg.Crawler,
		fetcher,
		extract.New(extract.Options{IncludeLinkTags: cfg.Crawler.IncludeLinkTags}),
		hub,
		logger,
	)

	result, runErr := engine.Run(ctx, seed)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("Progress hub did not drain", zap.Error(err))
	}

	if result.Graph == nil {
		return fmt.Errorf("crawl: %w", runErr)
	}

	uri, err := writeGraph(context.WithoutCancel(ctx), store, result.Graph, cfg.Export)
	if err != nil {
		return err
	}
	logStats(logger, result.Stats, uri, cfg.Export.Format)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("crawl: %w", runErr)
	}
	return nil
}

func newProgressHub(reg prometheus.Registerer, logger *zap.Logger) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	return progress.NewHub(
		progress.Config{Logger: logger},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	), nil
}

// startMetrics serves metrics in the background and returns a func that stops
// the listener and waits for it to exit.
func startMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) (func(), error) {
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, reg}
	srv, err := metrics.NewServer(addr, reg, gatherers, logger)
	if err != nil {
		return nil, fmt.Errorf("init metrics server: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

// writeGraph streams the rendered graph into the artifact store.
func writeGraph(ctx context.Context, store *local.ArtifactStore, g *crawler.Graph, cfg config.ExportConfig) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		opts := export.Options{IncludeState: cfg.IncludeState, ClusterBySite: cfg.ClusterBySite}
		pw.CloseWithError(export.Render(pw, g, cfg.Format, opts))
	}()
	uri, err := store.Write(ctx, cfg.Filename, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", fmt.Errorf("export graph: %w", err)
	}
	return uri, nil
}

func logStats(logger *zap.Logger, s crawler.Stats, uri, format string) {
	logger.Info("Graph exported",
		zap.String("run_id", s.RunID),
		zap.String("uri", uri),
		zap.String("content_type", export.ContentType(format)),
		zap.Int("nodes", s.Nodes),
		zap.Int("edges", s.Edges),
		zap.Int("depths", s.DepthsCrawled),
		zap.Int("complete", s.States[crawler.StateComplete]),
		zap.Int("unreachable", s.States[crawler.StateUnreachable]),
		zap.Int("uncrawled", s.States[crawler.StateUncrawled]),
		zap.Int("stubs", s.StubsSkipped),
		zap.Int("fetch_failures", s.FetchFailures),
		zap.Int("denied_links", s.DeniedLinks),
		zap.Int("too_long_links", s.TooLongLinks),
		zap.Duration("elapsed", s.Finished.Sub(s.Started)),
	)
}
