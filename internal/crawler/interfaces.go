package crawler

import (
	"context"

	"github.com/JakeFAU/ripples/internal/progress"
)

// Fetcher retrieves raw page content. Implementations must honor ctx and
// return an error (preferably a *FetchError) for transport failures and
// non-2xx responses.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// LinkExtractor returns every link target found in a page. New nodes are
// created in the order the links are returned.
type LinkExtractor interface {
	ExtractLinks(page Page) ([]string, error)
}

// Emitter receives progress events; progress.Hub satisfies it.
type Emitter interface {
	Emit(evt progress.Event)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (Page, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (Page, error) {
	return f(ctx, rawURL)
}

// ExtractorFunc adapts a function to the LinkExtractor interface.
type ExtractorFunc func(page Page) ([]string, error)

// ExtractLinks calls f.
func (f ExtractorFunc) ExtractLinks(page Page) ([]string, error) {
	return f(page)
}
