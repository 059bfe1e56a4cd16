// Package browser implements crawl.PageHandle on top of chromedp.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/commonground/newscrawler/internal/crawl"
)

// Config controls the shared browser process.
type Config struct {
	Headless  bool
	UserAgent string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Browser owns one Chrome exec allocator. Sessions get independent chromedp
// contexts from it, so one page's fault cannot affect another's.
type Browser struct {
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts an exec allocator with the crawl-friendly flag set.
func New(cfg Config) *Browser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// NewPage opens a fresh browser tab scoped to ctx.
func (b *Browser) NewPage(ctx context.Context) (crawl.PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser page request canceled: %w", err)
	}
	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	// Tie the tab's lifetime to the caller's context.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()
	return &page{ctx: taskCtx, cancel: taskCancel}, nil
}

// Close tears down the allocator and every open tab.
func (b *Browser) Close() {
	b.allocCancel()
}

// WarmUp launches the browser process by opening and closing a tab, so the
// first session does not pay the startup cost. Failure is non-fatal.
func (b *Browser) WarmUp() error {
	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()
	runCtx, cancel := context.WithTimeout(taskCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx); err != nil {
		return fmt.Errorf("browser warm-up: %w", err)
	}
	return nil
}
