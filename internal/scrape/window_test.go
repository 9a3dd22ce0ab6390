package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/models"
)

const pagerPage = `<html><body>
<a href="?JobControlId=1">Listing</a>
<table class="pager"><tr>
  <td><span>1</span></td>
  <td><a href="javascript:__doPostBack('ctl00$cphMainContent$grdSearchResults','Page$2')">2</a></td>
  <td><a href="javascript:__doPostBack('ctl00$cphMainContent$grdSearchResults','Page$3')">3</a></td>
  <td><a href="javascript:__doPostBack('ctl00$cphMainContent$grdSearchResults','Page$3')">3</a></td>
  <td><a href="javascript:__doPostBack('ctl00$cphMainContent$grdSearchResults','Page$4')">...</a></td>
</tr></table>
<a href="/footer">5</a>
<a href="javascript:__doPostBack('ctl00$cphMainContent$grdSearchResults','Page$10000')">10000</a>
</body></html>`

func newTestDiscoverer() *WindowDiscoverer {
	return NewWindowDiscoverer(1000, 50, 7, arbor.NewLogger())
}

func TestDiscoverWindow(t *testing.T) {
	window, err := newTestDiscoverer().DiscoverWindow(pagerPage)
	require.NoError(t, err)

	// The plain-span current page is not clickable, "..." has no numeric text,
	// the footer "5" has no postback trigger, and 10000 is over the sanity cap.
	assert.Equal(t, models.PaginationWindow{2, 3}, window)
}

func TestDiscoverWindowNoPager(t *testing.T) {
	window, err := newTestDiscoverer().DiscoverWindow(`<html><body><a href="?JobControlId=1">Listing</a></body></html>`)
	require.NoError(t, err)
	assert.True(t, window.IsEmpty())
}

func TestDiscoverWindowOnclickPager(t *testing.T) {
	page := `<html><body>
      <span onclick="__doPostBack('ctl00$cphMainContent$grdSearchResults','Page$7')">7</span>
    </body></html>`

	window, err := newTestDiscoverer().DiscoverWindow(page)
	require.NoError(t, err)
	assert.Equal(t, models.PaginationWindow{7}, window)
}

// jumpFetcher simulates the pager's clamping postback behavior for
// AdvanceWindow probing. Only PageHTML and InvokePostback matter here.
type jumpFetcher struct {
	postbackOK  func(page int) bool
	landingHTML func(page int) string
	probed      []int
	landed      int
}

func (f *jumpFetcher) NavigateRoot(ctx context.Context) error          { return nil }
func (f *jumpFetcher) SetPageSize(ctx context.Context, size int) error { return nil }
func (f *jumpFetcher) PageText(ctx context.Context) (string, error)    { return "", nil }
func (f *jumpFetcher) WaitStable(ctx context.Context) error            { return nil }
func (f *jumpFetcher) Close() error                                    { return nil }

func (f *jumpFetcher) InvokePostback(ctx context.Context, page int) bool {
	f.probed = append(f.probed, page)
	if f.postbackOK != nil && !f.postbackOK(page) {
		return false
	}
	f.landed = page
	return true
}

func (f *jumpFetcher) PageHTML(ctx context.Context) (string, error) {
	return f.landingHTML(f.landed), nil
}

const withListings = `<html><body><a href="?JobControlId=9">Listing</a></body></html>`
const withoutListings = `<html><body><p>No results found.</p></body></html>`

func TestAdvanceWindowSmallestCandidateWins(t *testing.T) {
	fetcher := &jumpFetcher{
		landingHTML: func(int) string { return withListings },
	}

	advanced := newTestDiscoverer().AdvanceWindow(context.Background(), fetcher, models.PaginationWindow{1, 2, 3})

	assert.True(t, advanced)
	assert.Equal(t, []int{50}, fetcher.probed)
}

// Candidates at or below the window's max page would land inside ground
// already covered and are never probed.
func TestAdvanceWindowSkipsCandidatesInsideWindow(t *testing.T) {
	fetcher := &jumpFetcher{
		landingHTML: func(int) string { return withListings },
	}

	advanced := newTestDiscoverer().AdvanceWindow(context.Background(), fetcher, models.PaginationWindow{48, 49, 50})

	assert.True(t, advanced)
	assert.Equal(t, []int{100}, fetcher.probed)
}

func TestAdvanceWindowFailedCandidateSkipped(t *testing.T) {
	fetcher := &jumpFetcher{
		postbackOK:  func(page int) bool { return page != 50 },
		landingHTML: func(int) string { return withListings },
	}

	advanced := newTestDiscoverer().AdvanceWindow(context.Background(), fetcher, models.PaginationWindow{1, 2, 3})

	assert.True(t, advanced)
	assert.Equal(t, []int{50, 100}, fetcher.probed)
}

func TestAdvanceWindowExhausted(t *testing.T) {
	fetcher := &jumpFetcher{
		landingHTML: func(int) string { return withoutListings },
	}

	advanced := newTestDiscoverer().AdvanceWindow(context.Background(), fetcher, models.PaginationWindow{1, 2, 3})

	assert.False(t, advanced)
	assert.Equal(t, []int{50, 100, 150, 200, 250, 300, 350}, fetcher.probed)
}

func TestAdvanceWindowRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &jumpFetcher{
		landingHTML: func(int) string { return withListings },
	}

	advanced := newTestDiscoverer().AdvanceWindow(ctx, fetcher, models.PaginationWindow{1, 2, 3})

	assert.False(t, advanced)
	assert.Empty(t, fetcher.probed)
}
