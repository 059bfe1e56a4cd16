package crawl_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commonground/newscrawler/internal/browser/staticpage"
	"github.com/commonground/newscrawler/internal/crawl"
)

const listingURL = "https://news.example.com/list"

func listingHTML(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="list_body">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<a href="https://news.example.com/main/read.naver?oid=1&aid=%d">headline %d</a>`, i, i)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func newCollector(retries int) *crawl.LinkCollector {
	chain := []crawl.Locator{
		{Query: "a[href*='/main/read.naver']"},
		{Query: ".list_body a"},
	}
	return crawl.NewLinkCollector(chain, time.Second, retries, time.Millisecond, nil)
}

func TestCollectEnoughLinksFirstPass(t *testing.T) {
	t.Parallel()

	page := staticpage.New()
	page.AddHTML(listingURL, listingHTML(5))

	links, err := newCollector(5).Collect(context.Background(), page, listingURL, 3)
	require.NoError(t, err)
	require.Len(t, links, 3)
	// Target already met, so the page is never scrolled.
	require.Zero(t, page.ScrollCount())
}

func TestCollectScrollRecollectsAndMerges(t *testing.T) {
	t.Parallel()

	page := staticpage.New()
	page.AddHTML(listingURL, listingHTML(2))
	page.OnScroll = func(p *staticpage.Page, n int) {
		// Each scroll reveals two more rows, duplicating the earlier ones.
		p.SetHTML(listingHTML(2 + 2*n))
	}

	links, err := newCollector(5).Collect(context.Background(), page, listingURL, 6)
	require.NoError(t, err)
	require.Len(t, links, 6)
	require.Equal(t, 2, page.ScrollCount())

	seen := map[string]bool{}
	for _, link := range links {
		require.False(t, seen[link], "duplicate link %s", link)
		seen[link] = true
	}
}

func TestCollectScrollBudgetExhausted(t *testing.T) {
	t.Parallel()

	page := staticpage.New()
	page.AddHTML(listingURL, listingHTML(2))

	links, err := newCollector(3).Collect(context.Background(), page, listingURL, 10)
	require.NoError(t, err)
	// The page never grows, so the budget runs out and the partial set is
	// returned without error.
	require.Len(t, links, 2)
	require.Equal(t, 3, page.ScrollCount())
}

func TestCollectListingNavigationFailureIsFatal(t *testing.T) {
	t.Parallel()

	page := staticpage.New()
	page.AddHTML(listingURL, listingHTML(2))
	page.FailNavigation(listingURL, errors.New("net::ERR_TIMED_OUT"))

	_, err := newCollector(3).Collect(context.Background(), page, listingURL, 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "navigate listing page")
}

func TestCollectFirstSuccessfulLocatorWins(t *testing.T) {
	t.Parallel()

	// Both locators match different subsets; only the first matching
	// locator's results are used for the initial pass.
	page := staticpage.New()
	page.AddHTML(listingURL, `<html><body>
		<div class="newsflash_body">
			<a href="https://news.example.com/read.naver?aid=1">one</a>
		</div>
		<div class="generic">
			<a href="https://other.example.com/2">two</a>
		</div>
	</body></html>`)

	chain := []crawl.Locator{
		{Query: ".newsflash_body a[href*='read.naver']"},
		{Query: "a"},
	}
	collector := crawl.NewLinkCollector(chain, time.Second, 0, 0, nil)
	links, err := collector.Collect(context.Background(), page, listingURL, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"https://news.example.com/read.naver?aid=1"}, links)
}

func TestCollectReportsCycles(t *testing.T) {
	t.Parallel()

	page := staticpage.New()
	page.AddHTML(listingURL, listingHTML(1))
	page.OnScroll = func(p *staticpage.Page, n int) {
		p.SetHTML(listingHTML(1 + n))
	}

	collector := newCollector(2)
	var cycles []int
	var counts []int
	collector.OnCycle = func(found, cycle int) {
		cycles = append(cycles, cycle)
		counts = append(counts, found)
	}

	links, err := collector.Collect(context.Background(), page, listingURL, 3)
	require.NoError(t, err)
	require.Len(t, links, 3)
	require.Equal(t, []int{0, 1, 2}, cycles)
	require.Equal(t, []int{1, 2, 3}, counts)
}
