package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/commonground/newscrawler/internal/crawl"
)

// page is one browser tab. All DOM reads go through Evaluate so a selector
// that matches nothing yields an empty value instead of blocking on a wait.
type page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel, err := p.runContext(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *page) Text(ctx context.Context, loc crawl.Locator) (string, error) {
	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? el.textContent : ""; })()`,
		jsString(loc.Query),
	)
	return p.evalString(ctx, js)
}

func (p *page) Attribute(ctx context.Context, loc crawl.Locator) (string, error) {
	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? (el.getAttribute(%s) || "") : ""; })()`,
		jsString(loc.Query), jsString(loc.Attr),
	)
	return p.evalString(ctx, js)
}

func (p *page) Links(ctx context.Context, loc crawl.Locator) ([]string, error) {
	runCtx, cancel, err := p.runContext(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer cancel()
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(el => el.href).filter(href => href)`,
		jsString(loc.Query),
	)
	var links []string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &links)); err != nil {
		return nil, fmt.Errorf("collect links %q: %w", loc.Query, err)
	}
	return links, nil
}

func (p *page) ScrollToBottom(ctx context.Context) error {
	runCtx, cancel, err := p.runContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

func (p *page) Close() {
	p.closeOnce.Do(p.cancel)
}

func (p *page) evalString(ctx context.Context, js string) (string, error) {
	runCtx, cancel, err := p.runContext(ctx, 0)
	if err != nil {
		return "", err
	}
	defer cancel()
	var out string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &out)); err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return out, nil
}

// runContext derives a chromedp-compatible context honoring both the caller's
// deadline and the tab's lifetime. A dead tab surfaces as ErrPageClosed so
// the resolver knows the failure is fatal, not a selector miss.
func (p *page) runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if p.ctx.Err() != nil {
		return nil, nil, crawl.ErrPageClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", crawl.ErrPageClosed, err)
	}
	if timeout > 0 {
		runCtx, cancel := context.WithTimeout(p.ctx, timeout)
		return runCtx, cancel, nil
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	return runCtx, cancel, nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
