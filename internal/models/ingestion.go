package models

import (
	"sort"
	"time"
)

// PaginationWindow is the sorted set of page numbers currently reachable via
// postback on the results page. A window is a snapshot: it is stale the moment
// the page is navigated again.
type PaginationWindow []int

// NewPaginationWindow sorts and deduplicates the given page numbers.
func NewPaginationWindow(pages []int) PaginationWindow {
	seen := make(map[int]struct{}, len(pages))
	out := make(PaginationWindow, 0, len(pages))
	for _, p := range pages {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// IsEmpty reports whether the window contains no reachable pages.
func (w PaginationWindow) IsEmpty() bool { return len(w) == 0 }

// Max returns the largest page number in the window, or 0 when empty.
func (w PaginationWindow) Max() int {
	if len(w) == 0 {
		return 0
	}
	return w[len(w)-1]
}

// Contains reports whether page is in the window.
func (w PaginationWindow) Contains(page int) bool {
	i := sort.SearchInts(w, page)
	return i < len(w) && w[i] == page
}

// WindowResult records the outcome of processing one discovered window.
type WindowResult struct {
	Window       PaginationWindow `json:"window"`
	PagesVisited int              `json:"pages_visited"`
	Inserted     int              `json:"inserted"`
	Updated      int              `json:"updated"`
	Skipped      int              `json:"skipped"`
	Errors       int              `json:"errors"`
}

// IngestionProgress holds the run-scoped counters owned exclusively by the
// ingestion engine. It is never persisted; a rerun rediscovers prior state
// through the store's existence checks.
type IngestionProgress struct {
	TotalJobsOnSite  int
	TotalJobsScraped int
	TotalUpdated     int
	TotalSkipped     int
	TotalErrors      int
	processedPages   map[int]struct{}
	ProcessedWindows []WindowResult
}

// NewIngestionProgress returns zeroed progress for a fresh run.
func NewIngestionProgress() *IngestionProgress {
	return &IngestionProgress{
		processedPages: make(map[int]struct{}),
	}
}

// PageProcessed reports whether the page was already visited this run.
func (p *IngestionProgress) PageProcessed(page int) bool {
	_, ok := p.processedPages[page]
	return ok
}

// MarkPageProcessed records a page as visited. The set only grows; a window
// advance that lands on an old page is skipped rather than re-extracted.
func (p *IngestionProgress) MarkPageProcessed(page int) {
	p.processedPages[page] = struct{}{}
}

// PagesProcessed returns the number of distinct pages visited.
func (p *IngestionProgress) PagesProcessed() int { return len(p.processedPages) }

// IngestionSummary is the final report emitted by the engine, on normal
// termination and on fatal abort alike.
type IngestionSummary struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	TotalJobsOnSite  int           `json:"total_jobs_on_site"`
	TotalJobsScraped int           `json:"total_jobs_scraped"`
	TotalUpdated     int           `json:"total_updated"`
	TotalSkipped     int           `json:"total_skipped"`
	TotalErrors      int           `json:"total_errors"`
	PagesProcessed   int           `json:"pages_processed"`
	WindowsProcessed int           `json:"windows_processed"`
	CoverageKnown    bool          `json:"coverage_known"`
	CoveragePercent  float64       `json:"coverage_percent"`
	StoreCount       int64         `json:"store_count"`
	Aborted          bool          `json:"aborted"`
}

// Coverage computes the scraped-versus-advertised ratio. When the result
// banner could not be parsed (TotalJobsOnSite == 0) coverage is unknown, not
// a division error.
func (s *IngestionSummary) Coverage() (float64, bool) {
	if s.TotalJobsOnSite <= 0 {
		return 0, false
	}
	return float64(s.TotalJobsScraped) / float64(s.TotalJobsOnSite) * 100.0, true
}
