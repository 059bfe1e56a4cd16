// Package crawl implements the crawl orchestration engine: selector
// resolution with fallback, article extraction, bounded link collection,
// and the per-session state machine driven by the Orchestrator.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// SourceTag marks every extracted article with this crawler as its origin.
const SourceTag = "go_crawler"

// Request identifies one unit of crawl work. Immutable once created.
type Request struct {
	SessionID      string `json:"sessionId"`
	OfficeID       string `json:"officeId"`
	CategoryID     string `json:"categoryId"`
	MaxArticles    int    `json:"maxArticles"`
	IncludeContent bool   `json:"includeContent"`
}

// Validate checks the request fields a caller must supply.
func (r Request) Validate() error {
	if r.OfficeID == "" {
		return fmt.Errorf("officeId is required")
	}
	if r.CategoryID == "" {
		return fmt.Errorf("categoryId is required")
	}
	if r.MaxArticles <= 0 {
		return fmt.Errorf("maxArticles must be positive, got %d", r.MaxArticles)
	}
	return nil
}

// Article is one extracted news record. Optional fields are pointers so the
// queue contract serializes them as explicit nulls, never omits them.
type Article struct {
	Title       string            `json:"title"`
	Content     *string           `json:"content"`
	URL         string            `json:"url"`
	OriginalURL *string           `json:"originalUrl"`
	AuthorName  *string           `json:"authorName"`
	PublishedAt *string           `json:"publishedAt"`
	DiscoveredAt time.Time        `json:"discoveredAt"`
	Source      string            `json:"source"`
	CategoryID  *string           `json:"categoryId"`
	Metadata    map[string]string `json:"metadata"`
}

// PageHandle abstracts a rendered browser page. Implementations wrap a real
// browser tab (chromedp) or a parsed static document in tests; the core never
// touches an automation API directly.
type PageHandle interface {
	// Navigate loads url and waits for the document to be ready, bounded by
	// timeout. A navigation error leaves the previous document in place.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Text returns the text content of the first element matching loc.
	Text(ctx context.Context, loc Locator) (string, error)
	// Attribute returns the attribute named by loc.Attr of the first match.
	Attribute(ctx context.Context, loc Locator) (string, error)
	// Links returns the href of every element matching loc, in page order.
	Links(ctx context.Context, loc Locator) ([]string, error)
	// ScrollToBottom scrolls the page to trigger lazy content loading.
	ScrollToBottom(ctx context.Context) error
	// Close releases the page. Safe to call more than once.
	Close()
}

// BrowserProvider hands out page handles. Each session gets its own page;
// pages may share one underlying browser process.
type BrowserProvider interface {
	NewPage(ctx context.Context) (PageHandle, error)
}

// Clock abstracts time for session timestamps.
type Clock interface {
	Now() time.Time
}

// ListingURL builds the portal's listing page address for one press office
// and category. The query template is fixed by the target site.
func ListingURL(baseURL, officeID, categoryID string) string {
	q := url.Values{}
	q.Set("mode", "LS2D")
	q.Set("mid", "shm")
	q.Set("sid1", categoryID)
	q.Set("sid2", "")
	q.Set("page", "1")
	q.Set("oid", officeID)
	return baseURL + "?" + q.Encode()
}

func strPtr(s string) *string {
	return &s
}
