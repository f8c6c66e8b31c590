// Package ratelimit spaces out requests to the same host with per-host token
// buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/ripples/internal/crawler"
)

// waitSeconds records how long fetches were held back, by site.
var waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ripples_rate_limit_wait_seconds",
	Help:    "Time fetches spent waiting on the per-host rate limiter.",
	Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
}, []string{"site"})

// Config holds rate limiter configuration. A non-positive RPS disables
// limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Enabled reports whether the limiter can ever delay a request.
func (l *Limiter) Enabled() bool {
	return l.limit != rate.Inf
}

// Wait blocks until rawURL's host has a token or ctx ends. URLs without a
// usable host share one bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, ok := crawler.DomainOf(rawURL)
	if !ok {
		host = "unknown"
	}
	start := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		waitSeconds.WithLabelValues(crawler.RegistrableDomain(rawURL)).Observe(waited.Seconds())
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = b
	}
	return b
}

// Wrap returns a crawler.Fetcher that waits on l before delegating to next.
// When limiting is disabled next is returned unchanged.
func (l *Limiter) Wrap(next crawler.Fetcher) crawler.Fetcher {
	if !l.Enabled() {
		return next
	}
	return crawler.FetcherFunc(func(ctx context.Context, rawURL string) (crawler.Page, error) {
		if err := l.Wait(ctx, rawURL); err != nil {
			return crawler.Page{}, &crawler.FetchError{URL: rawURL, Err: err}
		}
		return next.Fetch(ctx, rawURL)
	})
}
