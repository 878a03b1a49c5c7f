package fetcher

import (
	"context"
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Fetcher retrieves a page over plain HTTP.
type Fetcher interface {
	// Fetch returns the observation for url. A non-2xx status is not an
	// error; only transport failures return a *types.FetchError.
	Fetch(ctx context.Context, url string) (*types.PageObservation, error)

	// Close releases any resources held by the fetcher.
	Close() error
}

// RenderOptions parameterize a JS-rendered fetch.
type RenderOptions struct {
	ScrollCount    int
	ScrollInterval time.Duration
	WaitAfterLoad  time.Duration

	// LoadMoreSelector names a "load more" button clicked up to
	// LoadMoreClicks times before the HTML is read.
	LoadMoreSelector string
	LoadMoreClicks   int
}

// Renderer is the optional browser capability: render a URL and return the
// resulting HTML plus basic DOM counts.
type Renderer interface {
	Render(ctx context.Context, url string, opts RenderOptions) (*types.PageObservation, error)
	Close() error
}

var (
	_ Fetcher  = (*HTTPFetcher)(nil)
	_ Renderer = (*BrowserRenderer)(nil)
)
