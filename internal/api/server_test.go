package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commonground/newscrawler/internal/browser/staticpage"
	"github.com/commonground/newscrawler/internal/crawl"
	"github.com/commonground/newscrawler/internal/health"
	"github.com/commonground/newscrawler/internal/pool"
	"github.com/commonground/newscrawler/internal/store"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

const apiBaseURL = "https://news.example.com/main/list.naver"

// fixtureProvider serves a fresh copy of the same portal fixture per page
// request, so concurrent sessions do not share handles.
type fixtureProvider struct {
	build func() *staticpage.Page
	gate  chan struct{}
}

func (p *fixtureProvider) NewPage(ctx context.Context) (crawl.PageHandle, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.build(), nil
}

func apiFixture() *staticpage.Page {
	page := staticpage.New()
	page.AddHTML(crawl.ListingURL(apiBaseURL, "015", "101"),
		`<html><body><div class="list_body">
			<a href="https://news.example.com/main/read.naver?aid=1">one</a>
		</div></body></html>`)
	page.AddHTML("https://news.example.com/main/read.naver?aid=1",
		`<html><body>
			<div id="title_area"><span>Article 1</span></div>
			<div id="dic_area">Body 1</div>
		</body></html>`)
	return page
}

type serverEnv struct {
	server   *Server
	sessions *store.SessionStore
	pool     *pool.Pool
	cancel   context.CancelFunc
}

func newServerEnv(t *testing.T, provider crawl.BrowserProvider, workers, backlog int) *serverEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := crawl.Config{
		BaseURL:        apiBaseURL,
		ListingTimeout: time.Second,
		ArticleTimeout: time.Second,
		PacingDelay:    time.Millisecond,
		ScrollRetries:  1,
		ScrollPause:    time.Millisecond,
	}
	clock := fixedClock{}
	orch := crawl.NewOrchestrator(provider, crawl.NaverChains(), cfg, clock, nil)
	sessions := store.New()
	p := pool.New(ctx, workers, backlog, nil)
	checker := health.New(health.Config{}, nil, nil)
	srv := NewServer(sessions, orch, p, nil, checker, clock, nil, nil, nil, nil)
	env := &serverEnv{server: srv, sessions: sessions, pool: p, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		p.Close()
	})
	return env
}

func crawlBody(sessionID string) string {
	return fmt.Sprintf(`{"sessionId":%q,"officeId":"015","categoryId":"101","maxArticles":1,"includeContent":true}`, sessionID)
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestStartCrawlAccepted(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, &fixtureProvider{build: apiFixture}, 1, 4)

	w := doRequest(env.server, http.MethodPost, "/crawl", crawlBody("sess-api-1"))
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var snap crawl.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Equal(t, "sess-api-1", snap.SessionID)

	// The session runs in the background and eventually completes.
	require.Eventually(t, func() bool {
		sess, err := env.sessions.Get("sess-api-1")
		return err == nil && sess.Status() == crawl.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartCrawlGeneratesSessionID(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, &fixtureProvider{build: apiFixture}, 1, 4)

	w := doRequest(env.server, http.MethodPost, "/crawl",
		`{"officeId":"015","categoryId":"101","maxArticles":1}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var snap crawl.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.SessionID)
}

func TestStartCrawlValidation(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, &fixtureProvider{build: apiFixture}, 1, 4)

	w := doRequest(env.server, http.MethodPost, "/crawl", `{"officeId":"","categoryId":"101","maxArticles":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env.server, http.MethodPost, "/crawl", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartCrawlDuplicateSession(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	defer close(gate)
	env := newServerEnv(t, &fixtureProvider{build: apiFixture, gate: gate}, 1, 4)

	w := doRequest(env.server, http.MethodPost, "/crawl", crawlBody("dup"))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(env.server, http.MethodPost, "/crawl", crawlBody("dup"))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestStartCrawlSaturatedPool(t *testing.T) {
	t.Parallel()

	// Pages never open while the gate is held, so one session occupies the
	// worker and one fills the backlog.
	gate := make(chan struct{})
	env := newServerEnv(t, &fixtureProvider{build: apiFixture, gate: gate}, 1, 1)

	require.Equal(t, http.StatusAccepted, doRequest(env.server, http.MethodPost, "/crawl", crawlBody("s1")).Code)
	require.Eventually(t, func() bool {
		// Wait until s1 is picked up by the worker, freeing the backlog slot.
		return doRequest(env.server, http.MethodPost, "/crawl", crawlBody("s2")).Code == http.StatusAccepted
	}, 5*time.Second, 10*time.Millisecond)

	w := doRequest(env.server, http.MethodPost, "/crawl", crawlBody("s3"))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	// The rejected id is released for a later retry.
	_, err := env.sessions.Get("s3")
	require.Error(t, err)
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, &fixtureProvider{build: apiFixture}, 1, 4)
	require.Equal(t, http.StatusAccepted, doRequest(env.server, http.MethodPost, "/crawl", crawlBody("lookup")).Code)

	w := doRequest(env.server, http.MethodGet, "/sessions/lookup", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap crawl.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Equal(t, "lookup", snap.SessionID)

	w = doRequest(env.server, http.MethodGet, "/sessions/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, &fixtureProvider{build: apiFixture}, 2, 4)
	require.Equal(t, http.StatusAccepted, doRequest(env.server, http.MethodPost, "/crawl", crawlBody("list-a")).Code)
	require.Equal(t, http.StatusAccepted, doRequest(env.server, http.MethodPost, "/crawl", crawlBody("list-b")).Code)

	w := doRequest(env.server, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sessions []sessionSummary `json:"sessions"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	require.Equal(t, "list-b", resp.Sessions[0].SessionID)
	require.Equal(t, "list-a", resp.Sessions[1].SessionID)
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	env := newServerEnv(t, &fixtureProvider{build: apiFixture, gate: gate}, 1, 4)
	require.Equal(t, http.StatusAccepted, doRequest(env.server, http.MethodPost, "/crawl", crawlBody("del")).Code)

	// Still running: deletion is refused.
	w := doRequest(env.server, http.MethodDelete, "/sessions/del", "")
	require.Equal(t, http.StatusConflict, w.Code)

	close(gate)
	require.Eventually(t, func() bool {
		return doRequest(env.server, http.MethodDelete, "/sessions/del", "").Code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	w = doRequest(env.server, http.MethodDelete, "/sessions/del", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, &fixtureProvider{build: apiFixture}, 1, 4)

	w := doRequest(env.server, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
	require.Equal(t, "standalone", resp["systemStatus"])
	require.Equal(t, false, resp["backendConnected"])
	require.Equal(t, false, resp["brokerConnected"])
	require.Contains(t, resp, "activeSessions")
	require.Contains(t, resp, "totalSessions")
}
