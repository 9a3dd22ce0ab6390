// Package browser drives a single headless Chrome tab over the CalCareers
// search results page. The results grid is an ASP.NET WebForms control: page
// changes happen through __doPostBack round-trips that re-render the whole
// page, so all navigation is funneled through one stateful session.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/interfaces"
)

// WebForms pager targets. CalCareers exposes the results grid pager through
// the standard GridView postback protocol: __doPostBack(target, "Page$N").
const (
	pagerPostbackTarget = "ctl00$cphMainContent$grdSearchResults"
	pageSizeSelector    = `select[id$="ddlRowCount"]`
	resultsSelector     = `div[id$="SearchResults"]`
)

// Fetcher implements interfaces.PageFetcher over a chromedp browser context.
type Fetcher struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	config          common.BrowserConfig
	rootURL         string
	logger          arbor.ILogger
}

var _ interfaces.PageFetcher = (*Fetcher)(nil)

// New launches a browser instance and verifies it is responsive before
// returning. The startup smoke test catches missing Chrome binaries and
// broken sandboxes early instead of at first navigation.
func New(config common.BrowserConfig, rootURL string, logger arbor.ILogger) (*Fetcher, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.DisableGPU),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.UserAgent(config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testTimeout := 30 * time.Second
	if config.NavigationTimeout > 0 {
		testTimeout = config.NavigationTimeout.Std()
	}
	testCtx, testCancel := context.WithTimeout(browserCtx, testTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, network.Enable(), chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	var title string
	if err := chromedp.Run(testCtx, chromedp.Title(&title)); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed responsiveness test: %w", err)
	}

	logger.Info().
		Bool("headless", config.Headless).
		Str("user_agent", config.UserAgent).
		Msg("Browser session initialized")

	return &Fetcher{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		config:          config,
		rootURL:         rootURL,
		logger:          logger,
	}, nil
}

// NavigateRoot loads the search root page and waits for the results grid.
func (f *Fetcher) NavigateRoot(ctx context.Context) error {
	runCtx, cancel := f.runContext(ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(f.rootURL),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("failed to load search root %s: %w", f.rootURL, err)
	}

	return f.WaitStable(ctx)
}

// SetPageSize selects the rows-per-page dropdown. The dropdown itself posts
// back, so the call waits for the re-render to settle.
func (f *Fetcher) SetPageSize(ctx context.Context, size int) error {
	runCtx, cancel := f.runContext(ctx)
	defer cancel()

	value := fmt.Sprintf("%d", size)
	err := chromedp.Run(runCtx,
		chromedp.SetValue(pageSizeSelector, value, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`document.querySelector(%q).dispatchEvent(new Event('change', {bubbles: true}))`,
			pageSizeSelector), nil),
	)
	if err != nil {
		return fmt.Errorf("failed to set page size %d: %w", size, err)
	}

	return f.WaitStable(ctx)
}

// PageText returns the visible text of the current page.
func (f *Fetcher) PageText(ctx context.Context) (string, error) {
	runCtx, cancel := f.runContext(ctx)
	defer cancel()

	var text string
	if err := chromedp.Run(runCtx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// PageHTML returns the rendered markup of the current page.
func (f *Fetcher) PageHTML(ctx context.Context) (string, error) {
	runCtx, cancel := f.runContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

// InvokePostback triggers the pager postback for the given page number.
// Failures are reported as false, never raised: a timed-out or clamped
// postback is an expected outcome the caller probes for.
func (f *Fetcher) InvokePostback(ctx context.Context, page int) bool {
	runCtx, cancel := f.runContext(ctx)
	defer cancel()

	script := fmt.Sprintf(`__doPostBack(%q, %q)`, pagerPostbackTarget, fmt.Sprintf("Page$%d", page))
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, nil)); err != nil {
		f.logger.Debug().Int("page", page).Err(err).Msg("Pager postback failed")
		return false
	}

	if err := f.WaitStable(ctx); err != nil {
		f.logger.Debug().Int("page", page).Err(err).Msg("Page did not stabilize after postback")
		return false
	}

	return true
}

// WaitStable blocks until the post-render settle period has elapsed and the
// document body is ready again. WebForms replaces the document on every
// postback, so waiting on readiness alone is not enough for grids that
// populate late.
func (f *Fetcher) WaitStable(ctx context.Context) error {
	runCtx, cancel := f.runContext(ctx)
	defer cancel()

	wait := f.config.StabilizeWait.Std()
	if wait <= 0 {
		wait = 2 * time.Second
	}

	err := chromedp.Run(runCtx,
		chromedp.Sleep(wait),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("page failed to stabilize: %w", err)
	}
	return nil
}

// Close releases the browser session.
func (f *Fetcher) Close() error {
	if f.browserCancel != nil {
		f.browserCancel()
	}
	if f.allocatorCancel != nil {
		f.allocatorCancel()
	}
	f.logger.Debug().Msg("Browser session closed")
	return nil
}

// runContext derives a navigation-scoped context from the browser context,
// honoring both the caller's cancellation and the configured timeout.
func (f *Fetcher) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := f.config.NavigationTimeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	runCtx, cancel := context.WithTimeout(f.browserCtx, timeout)

	// Propagate caller cancellation into the chromedp context.
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// NormalizeRootURL strips fragment noise from a configured root URL.
func NormalizeRootURL(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}
