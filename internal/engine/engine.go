// Package engine sequences the windowed pagination walk: discover the
// reachable pages, extract and upsert each page's listings, then provoke the
// pager into revealing the next window until nothing further is reachable.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/interfaces"
	"github.com/calwatch/calwatch/internal/models"
	"github.com/calwatch/calwatch/internal/scrape"
	"github.com/calwatch/calwatch/internal/storage"
)

// State identifies a stage of the ingestion walk.
type State string

const (
	StateInit           State = "INIT"
	StateNavigateRoot   State = "NAVIGATE_ROOT"
	StateDiscoverWindow State = "DISCOVER_WINDOW"
	StateProcessPage    State = "PROCESS_PAGE"
	StateAdvanceWindow  State = "ADVANCE_WINDOW"
	StateTerminated     State = "TERMINATED"
)

// Engine owns the run-scoped progress and drives every other component. It is
// strictly single-threaded: the site's postback model is stateful per tab, so
// concurrent navigation would corrupt pager state.
type Engine struct {
	site       common.SiteConfig
	ingestion  common.IngestionConfig
	fetcher    interfaces.PageFetcher
	store      interfaces.JobStore
	extractor  *scrape.Extractor
	discoverer *scrape.WindowDiscoverer
	limiter    *rate.Limiter
	retry      *common.RetryPolicy
	logger     arbor.ILogger

	progress    *models.IngestionProgress
	currentPage int // page currently displayed, 0 when unknown
}

// New creates an ingestion engine over the given fetcher and store. The retry
// policy paces page-navigation retries; it is the same policy the store
// adapters carry.
func New(config *common.Config, fetcher interfaces.PageFetcher, store interfaces.JobStore, retry *common.RetryPolicy, logger arbor.ILogger) *Engine {
	ing := config.Ingestion

	limit := rate.Inf
	if ing.RequestDelay > 0 {
		limit = rate.Every(ing.RequestDelay.Std())
	}

	if retry == nil {
		retry = common.NewRetryPolicy()
	}

	return &Engine{
		site:       config.Site,
		ingestion:  ing,
		fetcher:    fetcher,
		store:      store,
		extractor:  scrape.NewExtractor(ing.AncestorHops, logger),
		discoverer: scrape.NewWindowDiscoverer(ing.MaxSanePage, ing.JumpStep, ing.MaxJumpCandidates, logger),
		limiter:    rate.NewLimiter(limit, 1),
		retry:      retry,
		logger:     logger,
	}
}

// Run executes one complete ingestion walk. A summary is returned on every
// path, including fatal aborts; rows already persisted stay valid because
// each write commits independently.
func (e *Engine) Run(ctx context.Context) (*models.IngestionSummary, error) {
	start := time.Now()
	runID := uuid.NewString()
	e.progress = models.NewIngestionProgress()
	e.currentPage = 0

	e.logger.Info().
		Str("run_id", runID).
		Str("root_url", e.site.RootURL).
		Int("page_size", e.site.PageSize).
		Msg("Starting ingestion run")

	runErr := e.walk(ctx)

	summary := e.buildSummary(ctx, runID, start, runErr != nil)
	e.logSummary(summary)

	return summary, runErr
}

// walk drives the state machine until termination or a fatal error.
func (e *Engine) walk(ctx context.Context) error {
	state := StateInit
	var window models.PaginationWindow

	for state != StateTerminated {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch state {
		case StateInit:
			state = StateNavigateRoot

		case StateNavigateRoot:
			if err := e.navigateRoot(ctx); err != nil {
				return err
			}
			state = StateDiscoverWindow

		case StateDiscoverWindow:
			var err error
			window, err = e.discoverWindow(ctx)
			if err != nil {
				return err
			}
			if window.IsEmpty() {
				e.logger.Info().Msg("No reachable pages, terminating walk")
				state = StateTerminated
				continue
			}
			if !e.hasUnprocessed(window) {
				// The pager clamped a jump back into ground already covered;
				// nothing new is reachable.
				e.logger.Info().
					Int("window_max", window.Max()).
					Msg("Discovered window holds no new pages, terminating walk")
				state = StateTerminated
				continue
			}
			state = StateProcessPage

		case StateProcessPage:
			if err := e.processWindow(ctx, window); err != nil {
				return err
			}
			state = StateAdvanceWindow

		case StateAdvanceWindow:
			if len(e.progress.ProcessedWindows) >= e.ingestion.MaxWindows {
				e.logger.Warn().
					Int("max_windows", e.ingestion.MaxWindows).
					Msg("Window limit reached, terminating walk")
				state = StateTerminated
				continue
			}
			if !e.discoverer.AdvanceWindow(ctx, e.fetcher, window) {
				state = StateTerminated
				continue
			}
			// A jump re-renders the page somewhere inside the next window.
			e.currentPage = 0
			state = StateDiscoverWindow
		}
	}

	return nil
}

// hasUnprocessed reports whether the window contains any page not yet visited
// this run.
func (e *Engine) hasUnprocessed(window models.PaginationWindow) bool {
	for _, page := range window {
		if !e.progress.PageProcessed(page) {
			return true
		}
	}
	return false
}

// navigateRoot loads the search page, maximizes the page size, and captures
// the advertised result total from the banner.
func (e *Engine) navigateRoot(ctx context.Context) error {
	if err := e.fetcher.NavigateRoot(ctx); err != nil {
		return fmt.Errorf("failed to reach search root: %w", err)
	}
	e.currentPage = 1

	if err := e.fetcher.SetPageSize(ctx, e.site.PageSize); err != nil {
		// Smaller pages mean more windows, not lost records.
		e.logger.Warn().Err(err).Int("page_size", e.site.PageSize).
			Msg("Could not set page size, continuing with site default")
	}

	text, err := e.fetcher.PageText(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Could not read page text for result banner")
		return nil
	}

	total := scrape.ParseResultCount(text)
	e.progress.TotalJobsOnSite = total
	if total == 0 {
		e.logger.Warn().Msg("Result-count banner not found, coverage will be unknown")
	} else {
		e.logger.Info().Int("total_jobs_on_site", total).Msg("Parsed result-count banner")
	}
	return nil
}

// discoverWindow snapshots the currently reachable page numbers. A first page
// without pager controls still counts as a single-page window when it carries
// listings.
func (e *Engine) discoverWindow(ctx context.Context) (models.PaginationWindow, error) {
	html, err := e.fetcher.PageHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page for window discovery: %w", err)
	}

	window, err := e.discoverer.DiscoverWindow(html)
	if err != nil {
		return nil, fmt.Errorf("failed to discover pagination window: %w", err)
	}

	if window.IsEmpty() && len(e.progress.ProcessedWindows) == 0 && scrape.HasListings(html) {
		window = models.NewPaginationWindow([]int{1})
	}

	return window, nil
}

// processWindow visits each unprocessed page of the window in ascending
// order. Per-page failures are logged and skipped; only fatal store errors
// abort the walk.
func (e *Engine) processWindow(ctx context.Context, window models.PaginationWindow) error {
	result := models.WindowResult{Window: window}

	for _, page := range window {
		if e.progress.PageProcessed(page) {
			e.logger.Debug().Int("page", page).Msg("Page already processed this run, skipping")
			continue
		}

		if err := e.gotoPage(ctx, page); err != nil {
			e.logger.Warn().Int("page", page).Err(err).
				Msg("Page unreachable after retries, skipping")
			e.progress.TotalErrors++
			result.Errors++
			continue
		}

		if err := e.processCurrentPage(ctx, page, &result); err != nil {
			e.progress.ProcessedWindows = append(e.progress.ProcessedWindows, result)
			return err
		}

		// Visited regardless of per-record outcomes.
		e.progress.MarkPageProcessed(page)
		result.PagesVisited++
	}

	e.progress.ProcessedWindows = append(e.progress.ProcessedWindows, result)
	e.logger.Info().
		Int("pages_visited", result.PagesVisited).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("Window processed")
	return nil
}

// gotoPage navigates to a page via pager postback, retrying once per
// configuration before giving up. Retries back off per the shared policy so a
// struggling site is not hammered.
func (e *Engine) gotoPage(ctx context.Context, page int) error {
	if page == e.currentPage {
		return nil
	}

	attempts := e.ingestion.NavigationRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := e.retry.CalculateBackoff(attempt - 1)
			e.logger.Debug().
				Int("page", page).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Backing off before postback retry")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		if e.fetcher.InvokePostback(ctx, page) {
			e.currentPage = page
			return nil
		}
		e.logger.Debug().
			Int("page", page).
			Int("attempt", attempt+1).
			Msg("Pager postback failed")
	}

	e.currentPage = 0
	return fmt.Errorf("postback to page %d failed after %d attempts", page, attempts)
}

// processCurrentPage extracts the displayed page and upserts every record.
// Returns an error only for fatal store failures.
func (e *Engine) processCurrentPage(ctx context.Context, page int, result *models.WindowResult) error {
	html, err := e.fetcher.PageHTML(ctx)
	if err != nil {
		e.logger.Warn().Int("page", page).Err(err).Msg("Could not read page markup")
		e.progress.TotalErrors++
		result.Errors++
		return nil
	}

	records, err := e.extractor.Extract(html)
	if err != nil {
		e.logger.Warn().Int("page", page).Err(err).Msg("Could not parse page markup")
		e.progress.TotalErrors++
		result.Errors++
		return nil
	}

	e.logger.Info().Int("page", page).Int("records", len(records)).Msg("Extracted listings")

	consecutiveFailures := 0
	for _, record := range records {
		if err := e.upsert(ctx, record, result); err != nil {
			if storage.IsFatal(err) {
				e.logger.Error().Str("job_control", record.JobControl).Err(err).
					Msg("Fatal store error, aborting run")
				return err
			}

			e.logger.Warn().Str("job_control", record.JobControl).Err(err).
				Msg("Failed to persist record, continuing")
			e.progress.TotalErrors++
			result.Errors++

			consecutiveFailures++
			if consecutiveFailures >= e.ingestion.ConsecutiveFailures {
				e.logger.Warn().
					Int("page", page).
					Int("consecutive_failures", consecutiveFailures).
					Msg("Too many consecutive store failures, abandoning page")
				return nil
			}
			continue
		}
		consecutiveFailures = 0
	}

	return nil
}

// upsert inserts a new record or updates an existing row only when a tracked
// field actually changed, preserving created_at provenance on no-ops.
func (e *Engine) upsert(ctx context.Context, record *models.JobRecord, result *models.WindowResult) error {
	stored, err := e.store.Lookup(ctx, record.JobControl)
	if err != nil {
		return err
	}

	if stored == nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := e.store.Insert(ctx, record); err != nil {
			return err
		}
		e.progress.TotalJobsScraped++
		result.Inserted++
		return nil
	}

	if !record.Changed(&stored.Record) {
		e.progress.TotalSkipped++
		result.Skipped++
		return nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := e.store.Update(ctx, stored.ID, record); err != nil {
		return err
	}
	e.progress.TotalUpdated++
	result.Updated++
	return nil
}

// buildSummary assembles the final report from run progress.
func (e *Engine) buildSummary(ctx context.Context, runID string, start time.Time, aborted bool) *models.IngestionSummary {
	summary := &models.IngestionSummary{
		RunID:            runID,
		StartedAt:        start,
		Duration:         time.Since(start),
		TotalJobsOnSite:  e.progress.TotalJobsOnSite,
		TotalJobsScraped: e.progress.TotalJobsScraped,
		TotalUpdated:     e.progress.TotalUpdated,
		TotalSkipped:     e.progress.TotalSkipped,
		TotalErrors:      e.progress.TotalErrors,
		PagesProcessed:   e.progress.PagesProcessed(),
		WindowsProcessed: len(e.progress.ProcessedWindows),
		Aborted:          aborted,
	}

	summary.CoveragePercent, summary.CoverageKnown = summary.Coverage()

	if count, err := e.store.Count(ctx); err == nil {
		summary.StoreCount = count
	} else {
		e.logger.Debug().Err(err).Msg("Could not read final store count")
	}

	return summary
}

func (e *Engine) logSummary(s *models.IngestionSummary) {
	evt := e.logger.Info().
		Str("run_id", s.RunID).
		Dur("duration", s.Duration).
		Int("total_on_site", s.TotalJobsOnSite).
		Int("scraped", s.TotalJobsScraped).
		Int("updated", s.TotalUpdated).
		Int("skipped", s.TotalSkipped).
		Int("errors", s.TotalErrors).
		Int("pages", s.PagesProcessed).
		Int("windows", s.WindowsProcessed).
		Int64("store_count", s.StoreCount).
		Bool("aborted", s.Aborted)

	if s.CoverageKnown {
		evt = evt.Float64("coverage_percent", s.CoveragePercent)
	} else {
		evt = evt.Str("coverage", "unknown")
	}

	evt.Msg("Ingestion run finished")
}
