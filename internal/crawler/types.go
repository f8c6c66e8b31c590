package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Page is the content returned by a successful fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// BaseURL returns the URL relative links on the page resolve against.
func (p Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// FetchError describes a failed fetch. StatusCode is zero for transport
// failures such as DNS errors or timeouts.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Stats summarizes a crawl run.
type Stats struct {
	RunID         string
	Nodes         int
	Edges         int
	DepthsCrawled int
	States        map[CrawlState]int
	FetchFailures int
	DeniedLinks   int
	InvalidLinks  int
	TooLongLinks  int
	StubsSkipped  int
	Started       time.Time
	Finished      time.Time
}

// Result is the outcome of Engine.Run. Graph is always non-nil once the seed
// identity was accepted, even when Run also returns an error.
type Result struct {
	Graph *Graph
	Stats Stats
}
