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

// staticProvider hands out a single prepared page and records whether it was
// released.
type staticProvider struct {
	page   *staticpage.Page
	err    error
	closed bool
}

func (p *staticProvider) NewPage(context.Context) (crawl.PageHandle, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &trackedPage{Page: p.page, provider: p}, nil
}

type trackedPage struct {
	*staticpage.Page
	provider *staticProvider
}

func (t *trackedPage) Close() {
	t.provider.closed = true
	t.Page.Close()
}

type eventSink struct {
	events []crawl.ProgressEvent
}

func (e *eventSink) Emit(_ context.Context, evt crawl.ProgressEvent) error {
	e.events = append(e.events, evt)
	return nil
}

const testBaseURL = "https://news.example.com/main/list.naver"

func orchestratorConfig() crawl.Config {
	return crawl.Config{
		BaseURL:        testBaseURL,
		ListingTimeout: time.Second,
		ArticleTimeout: time.Second,
		PacingDelay:    time.Millisecond,
		ScrollRetries:  2,
		ScrollPause:    time.Millisecond,
	}
}

// portalFixture builds a listing page with n article links plus the article
// documents behind them, leaving out the body for indexes in broken.
func portalFixture(req crawl.Request, n int, broken map[int]bool) *staticpage.Page {
	page := staticpage.New()

	var b strings.Builder
	b.WriteString(`<html><body><div class="list_body">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<a href="https://news.example.com/main/read.naver?oid=1&aid=%d">headline</a>`, i)
	}
	b.WriteString(`</div></body></html>`)
	page.AddHTML(crawl.ListingURL(testBaseURL, req.OfficeID, req.CategoryID), b.String())

	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://news.example.com/main/read.naver?oid=1&aid=%d", i)
		if broken[i] {
			// No title in any chain, so extraction fails for this article.
			page.AddHTML(url, `<html><body><p>not an article</p></body></html>`)
			continue
		}
		page.AddHTML(url, fmt.Sprintf(`<html><body>
			<div id="title_area"><span>Article %d</span></div>
			<div id="dic_area">Body %d</div>
		</body></html>`, i, i))
	}
	return page
}

func runOrchestrator(t *testing.T, provider *staticProvider, req crawl.Request) (*crawl.Session, *eventSink) {
	t.Helper()
	sink := &eventSink{}
	clock := fixedClock{now: testNow}
	orch := crawl.NewOrchestrator(provider, crawl.NaverChains(), orchestratorConfig(), clock, nil, sink)
	s := crawl.NewSession(req, clock)
	orch.Run(context.Background(), req, s)
	return s, sink
}

func TestOrchestratorCompletesSession(t *testing.T) {
	t.Parallel()

	req := testRequest()
	req.MaxArticles = 3
	provider := &staticProvider{page: portalFixture(req, 3, nil)}

	s, sink := runOrchestrator(t, provider, req)

	snap := s.Snapshot()
	require.Equal(t, crawl.StatusCompleted, snap.Status)
	require.Equal(t, 100, snap.Progress)
	require.Equal(t, 3, snap.TotalFound)
	require.Equal(t, 3, snap.TotalProcessed)
	require.Equal(t, 3, snap.SuccessCount)
	require.Equal(t, 0, snap.FailCount)
	require.Len(t, snap.Data, 3)
	require.True(t, provider.closed, "page must be released")

	// Progress over the emitted events never decreases.
	last := 0
	for _, evt := range sink.events {
		require.GreaterOrEqual(t, evt.Progress, last)
		last = evt.Progress
	}
	require.Equal(t, 100, sink.events[len(sink.events)-1].Progress)
}

func TestOrchestratorCountsBrokenArticles(t *testing.T) {
	t.Parallel()

	req := testRequest()
	req.MaxArticles = 4
	provider := &staticProvider{page: portalFixture(req, 4, map[int]bool{1: true, 3: true})}

	s, _ := runOrchestrator(t, provider, req)

	snap := s.Snapshot()
	require.Equal(t, crawl.StatusCompleted, snap.Status)
	require.Equal(t, 4, snap.TotalProcessed)
	require.Equal(t, 2, snap.SuccessCount)
	require.Equal(t, 2, snap.FailCount)
	require.Equal(t, snap.TotalProcessed, snap.SuccessCount+snap.FailCount)
}

func TestOrchestratorFailsOnListingNavigation(t *testing.T) {
	t.Parallel()

	req := testRequest()
	page := portalFixture(req, 2, nil)
	page.FailNavigation(
		crawl.ListingURL(testBaseURL, req.OfficeID, req.CategoryID),
		errors.New("net::ERR_TIMED_OUT"),
	)
	provider := &staticProvider{page: page}

	s, sink := runOrchestrator(t, provider, req)

	snap := s.Snapshot()
	require.Equal(t, crawl.StatusFailed, snap.Status)
	require.NotEmpty(t, snap.Errors)
	require.True(t, provider.closed, "page must be released on failure")

	final := sink.events[len(sink.events)-1]
	require.Equal(t, crawl.StatusFailed, final.Status)
	require.Contains(t, final.Message, "crawl failed")
}

func TestOrchestratorZeroLinksCompletes(t *testing.T) {
	t.Parallel()

	req := testRequest()
	page := staticpage.New()
	page.AddHTML(
		crawl.ListingURL(testBaseURL, req.OfficeID, req.CategoryID),
		`<html><body><div class="list_body"></div></body></html>`,
	)
	provider := &staticProvider{page: page}

	s, _ := runOrchestrator(t, provider, req)

	snap := s.Snapshot()
	require.Equal(t, crawl.StatusCompleted, snap.Status)
	require.Equal(t, 100, snap.Progress)
	require.Zero(t, snap.TotalFound)
	require.Zero(t, snap.TotalProcessed)
	require.Empty(t, snap.Data)
	require.True(t, provider.closed)
}

func TestOrchestratorFailsWhenPageUnavailable(t *testing.T) {
	t.Parallel()

	provider := &staticProvider{err: errors.New("browser not running")}

	s, _ := runOrchestrator(t, provider, testRequest())

	snap := s.Snapshot()
	require.Equal(t, crawl.StatusFailed, snap.Status)
	require.NotEmpty(t, snap.Errors)
	require.Contains(t, snap.Errors[0], "acquire browser page")
}

func TestOrchestratorHonorsCancellation(t *testing.T) {
	t.Parallel()

	req := testRequest()
	req.MaxArticles = 3
	provider := &staticProvider{page: portalFixture(req, 3, nil)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clock := fixedClock{now: testNow}
	orch := crawl.NewOrchestrator(provider, crawl.NaverChains(), orchestratorConfig(), clock, nil)
	s := crawl.NewSession(req, clock)
	orch.Run(ctx, req, s)

	require.Equal(t, crawl.StatusFailed, s.Status())
	require.True(t, provider.closed)
}
