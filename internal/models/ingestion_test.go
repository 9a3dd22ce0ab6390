package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationWindow(t *testing.T) {
	window := NewPaginationWindow([]int{5, 3, 5, 1, 3, 9})

	assert.Equal(t, PaginationWindow{1, 3, 5, 9}, window)
	assert.Equal(t, 9, window.Max())
	assert.True(t, window.Contains(3))
	assert.False(t, window.Contains(4))
	assert.False(t, window.IsEmpty())
}

func TestEmptyPaginationWindow(t *testing.T) {
	window := NewPaginationWindow(nil)

	assert.True(t, window.IsEmpty())
	assert.Equal(t, 0, window.Max())
}

func TestProgressPageTracking(t *testing.T) {
	progress := NewIngestionProgress()

	assert.False(t, progress.PageProcessed(1))

	progress.MarkPageProcessed(1)
	progress.MarkPageProcessed(1)
	progress.MarkPageProcessed(2)

	assert.True(t, progress.PageProcessed(1))
	assert.True(t, progress.PageProcessed(2))
	assert.Equal(t, 2, progress.PagesProcessed())
}

func TestCoverage(t *testing.T) {
	s := &IngestionSummary{TotalJobsOnSite: 200, TotalJobsScraped: 50}
	pct, known := s.Coverage()
	assert.True(t, known)
	assert.InDelta(t, 25.0, pct, 0.001)
}

// A failed banner parse leaves the site total at zero; coverage must come back
// as unknown, never a division error or NaN.
func TestCoverageUnknown(t *testing.T) {
	s := &IngestionSummary{TotalJobsOnSite: 0, TotalJobsScraped: 50}
	pct, known := s.Coverage()
	assert.False(t, known)
	assert.Equal(t, 0.0, pct)
}
