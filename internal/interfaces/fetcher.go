package interfaces

import "context"

// PageFetcher drives a single stateful browser tab over the paginated search
// results page. Implementations report transient navigation problems as error
// values (or a false postback result), never panics: site slowness is expected
// and recoverable by retrying the same page.
//
// The postback model is stateful per tab, so a fetcher must never be shared
// across concurrent walks.
type PageFetcher interface {
	// NavigateRoot loads the search root page and waits for it to settle.
	NavigateRoot(ctx context.Context) error

	// SetPageSize selects the rows-per-page control, minimizing page count.
	SetPageSize(ctx context.Context, size int) error

	// PageText returns the visible text of the current page.
	PageText(ctx context.Context) (string, error)

	// PageHTML returns the rendered markup of the current page.
	PageHTML(ctx context.Context) (string, error)

	// InvokePostback triggers the pager postback for the given page number and
	// reports whether navigation completed. The site silently clamps
	// out-of-range targets, so success here only means the round-trip landed.
	InvokePostback(ctx context.Context, page int) bool

	// WaitStable blocks until in-flight rendering has settled.
	WaitStable(ctx context.Context) error

	// Close releases the browser session.
	Close() error
}
