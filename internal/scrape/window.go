package scrape

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/interfaces"
	"github.com/calwatch/calwatch/internal/models"
)

var pagerTargetPattern = regexp.MustCompile(`Page\$(\d+)`)

// WindowDiscoverer inspects pager controls to find which page numbers are
// currently postback-reachable, and provokes the site into revealing the next
// window once the current one is exhausted.
type WindowDiscoverer struct {
	maxSanePage       int
	jumpStep          int
	maxJumpCandidates int
	logger            arbor.ILogger
}

// NewWindowDiscoverer creates a discoverer with the configured bounds.
func NewWindowDiscoverer(maxSanePage, jumpStep, maxJumpCandidates int, logger arbor.ILogger) *WindowDiscoverer {
	if maxSanePage <= 0 {
		maxSanePage = 1000
	}
	if jumpStep <= 0 {
		jumpStep = 50
	}
	if maxJumpCandidates <= 0 {
		maxJumpCandidates = 7
	}
	return &WindowDiscoverer{
		maxSanePage:       maxSanePage,
		jumpStep:          jumpStep,
		maxJumpCandidates: maxJumpCandidates,
		logger:            logger,
	}
}

// DiscoverWindow scans the page's interactive pager elements and returns the
// sorted, deduplicated set of reachable page numbers. The returned window is a
// snapshot: it is stale as soon as the page navigates again.
func (d *WindowDiscoverer) DiscoverWindow(html string) (models.PaginationWindow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var pages []int
	doc.Find("a[href], [onclick]").Each(func(_ int, el *goquery.Selection) {
		page, ok := d.pageNumberOf(el)
		if !ok {
			return
		}
		if page <= 0 || page > d.maxSanePage {
			// Pager junk like "10000" or decorative numerals.
			return
		}
		pages = append(pages, page)
	})

	window := models.NewPaginationWindow(pages)
	d.logger.Debug().
		Int("reachable_pages", len(window)).
		Int("max_page", window.Max()).
		Msg("Pagination window discovered")
	return window, nil
}

// pageNumberOf decides whether an element is a clickable pager entry and
// parses its page number. The visible text must itself be the integer; the
// postback target is used as a cross-check when present.
func (d *WindowDiscoverer) pageNumberOf(el *goquery.Selection) (int, bool) {
	text := strings.TrimSpace(el.Text())
	page, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}

	href, _ := el.Attr("href")
	onclick, _ := el.Attr("onclick")
	trigger := href + onclick
	if !strings.Contains(trigger, "__doPostBack") && !strings.Contains(href, "Page") {
		return 0, false
	}

	// When the trigger names an explicit pager target, trust it over the text.
	if m := pagerTargetPattern.FindStringSubmatch(trigger); m != nil {
		if target, err := strconv.Atoi(m[1]); err == nil {
			return target, true
		}
	}

	return page, true
}

// AdvanceWindow tries to reveal the next pagination window by invoking
// postbacks at ascending jump targets beyond the current window. The site
// clamps out-of-range targets to the nearest valid page, so the only reliable
// probe is whether the landing page still shows listings. The smallest
// successful candidate wins; a failed candidate is skipped, never retried.
// Returns false when every candidate is exhausted, the normal termination
// signal for the ingestion walk.
func (d *WindowDiscoverer) AdvanceWindow(ctx context.Context, fetcher interfaces.PageFetcher, current models.PaginationWindow) bool {
	for i := 1; i <= d.maxJumpCandidates; i++ {
		candidate := i * d.jumpStep
		if candidate <= current.Max() {
			continue
		}
		if ctx.Err() != nil {
			return false
		}

		d.logger.Debug().
			Int("candidate", candidate).
			Int("current_max", current.Max()).
			Msg("Probing jump target beyond current window")

		if !fetcher.InvokePostback(ctx, candidate) {
			continue
		}

		html, err := fetcher.PageHTML(ctx)
		if err != nil {
			d.logger.Debug().Int("candidate", candidate).Err(err).Msg("Could not read page after jump")
			continue
		}

		if HasListings(html) {
			d.logger.Info().
				Int("jump_target", candidate).
				Msg("Advanced beyond pagination window")
			return true
		}
	}

	d.logger.Info().
		Int("candidates_tried", d.maxJumpCandidates).
		Msg("Jump candidates exhausted, no further window reachable")
	return false
}
