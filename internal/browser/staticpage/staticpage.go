// Package staticpage implements crawl.PageHandle over parsed static HTML.
// It lets the crawl engine run against fixture documents without a browser,
// which is how the engine's unit tests exercise selector fallback, link
// collection, and extraction.
package staticpage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/commonground/newscrawler/internal/crawl"
)

// Page is a scriptable page handle. Register documents with AddHTML, then
// Navigate between them like a browser would.
type Page struct {
	docs     map[string]*goquery.Document
	navErr   map[string]error
	current  *goquery.Document
	closed   bool
	scrolls  int
	navCount int

	// OnScroll, when set, runs on every ScrollToBottom call and may mutate the
	// page (e.g. append lazily-loaded rows) via SetHTML.
	OnScroll func(p *Page, scrollCount int)
	// FailQueries maps selector queries to forced lookup errors.
	FailQueries map[string]error
}

// New creates an empty Page.
func New() *Page {
	return &Page{
		docs:        map[string]*goquery.Document{},
		navErr:      map[string]error{},
		FailQueries: map[string]error{},
	}
}

// AddHTML registers the document served for url. It panics on unparseable
// fixture HTML, which is always a test-authoring bug.
func (p *Page) AddHTML(url, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("staticpage: parse fixture for %s: %v", url, err))
	}
	p.docs[url] = doc
}

// SetHTML replaces the currently loaded document.
func (p *Page) SetHTML(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("staticpage: parse html: %v", err))
	}
	p.current = doc
}

// FailNavigation makes Navigate return err for url.
func (p *Page) FailNavigation(url string, err error) {
	p.navErr[url] = err
}

// NavigationCount reports how many Navigate calls succeeded.
func (p *Page) NavigationCount() int {
	return p.navCount
}

// ScrollCount reports how many times the page was scrolled.
func (p *Page) ScrollCount() int {
	return p.scrolls
}

// Navigate switches to the document registered for url.
func (p *Page) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := p.alive(ctx); err != nil {
		return err
	}
	if err, ok := p.navErr[url]; ok {
		return err
	}
	doc, ok := p.docs[url]
	if !ok {
		return fmt.Errorf("navigate %s: no such document", url)
	}
	p.current = doc
	p.navCount++
	return nil
}

// Text returns the text content of the first match, empty when none.
func (p *Page) Text(ctx context.Context, loc crawl.Locator) (string, error) {
	if err := p.lookupErr(ctx, loc.Query); err != nil {
		return "", err
	}
	return p.current.Find(loc.Query).First().Text(), nil
}

// Attribute returns the named attribute of the first match, empty when none.
func (p *Page) Attribute(ctx context.Context, loc crawl.Locator) (string, error) {
	if err := p.lookupErr(ctx, loc.Query); err != nil {
		return "", err
	}
	val, _ := p.current.Find(loc.Query).First().Attr(loc.Attr)
	return val, nil
}

// Links returns the href of every match in document order.
func (p *Page) Links(ctx context.Context, loc crawl.Locator) ([]string, error) {
	if err := p.lookupErr(ctx, loc.Query); err != nil {
		return nil, err
	}
	var links []string
	p.current.Find(loc.Query).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	return links, nil
}

// ScrollToBottom counts the scroll and runs the OnScroll hook.
func (p *Page) ScrollToBottom(ctx context.Context) error {
	if err := p.alive(ctx); err != nil {
		return err
	}
	p.scrolls++
	if p.OnScroll != nil {
		p.OnScroll(p, p.scrolls)
	}
	return nil
}

// Close marks the handle dead; further calls return crawl.ErrPageClosed.
func (p *Page) Close() {
	p.closed = true
}

func (p *Page) alive(ctx context.Context) error {
	if p.closed {
		return crawl.ErrPageClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", crawl.ErrPageClosed, err)
	}
	return nil
}

func (p *Page) lookupErr(ctx context.Context, query string) error {
	if err := p.alive(ctx); err != nil {
		return err
	}
	if p.current == nil {
		return fmt.Errorf("no document loaded")
	}
	if err, ok := p.FailQueries[query]; ok {
		return err
	}
	return nil
}
