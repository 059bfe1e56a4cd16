package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LinkCollector gathers article URLs from a listing page, scrolling for lazy
// content when the first pass comes up short of the target.
type LinkCollector struct {
	chain       []Locator
	timeout     time.Duration
	retries     int
	scrollPause time.Duration
	logger      *zap.Logger

	// OnCycle, when set, is invoked after the initial pass and after every
	// scroll cycle with the unique link count so far and the cycle index
	// (0 for the initial pass).
	OnCycle func(found, cycle int)
}

// NewLinkCollector builds a collector over the given link chain.
func NewLinkCollector(chain []Locator, timeout time.Duration, retries int, scrollPause time.Duration, logger *zap.Logger) *LinkCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkCollector{
		chain:       chain,
		timeout:     timeout,
		retries:     retries,
		scrollPause: scrollPause,
		logger:      logger,
	}
}

// Collect navigates to listingURL and returns up to maxLinks unique article
// URLs in discovery order. A failed listing navigation is returned as an
// error and is fatal to the session; collecting fewer than maxLinks is a
// valid, non-error outcome.
func (c *LinkCollector) Collect(ctx context.Context, page PageHandle, listingURL string, maxLinks int) ([]string, error) {
	if err := page.Navigate(ctx, listingURL, c.timeout); err != nil {
		return nil, fmt.Errorf("navigate listing page: %w", err)
	}

	seen := make(map[string]bool, maxLinks)
	var links []string

	// First pass: the first candidate that yields any links wins outright.
	// Result sets from different selectors are never merged here; a later,
	// more generic candidate may match a superset structured differently.
	for _, loc := range c.chain {
		found, err := page.Links(ctx, loc)
		if err != nil {
			c.logger.Debug("link locator failed", zap.String("query", loc.Query), zap.Error(err))
			continue
		}
		if len(found) == 0 {
			continue
		}
		links = appendUnique(links, seen, found)
		c.logger.Debug("link chain resolved",
			zap.String("query", loc.Query),
			zap.Int("links", len(links)),
		)
		break
	}
	c.cycle(len(links), 0)

	// Scroll-and-recollect until the target is met or the budget runs out.
	// Recollection runs the full chain and merges unique URLs.
	for attempt := 1; len(links) < maxLinks && attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collect aborted: %w", err)
		}
		if err := page.ScrollToBottom(ctx); err != nil {
			c.logger.Debug("scroll failed", zap.Int("attempt", attempt), zap.Error(err))
			break
		}
		c.pause(ctx)
		for _, loc := range c.chain {
			found, err := page.Links(ctx, loc)
			if err != nil {
				continue
			}
			links = appendUnique(links, seen, found)
			if len(links) >= maxLinks {
				break
			}
		}
		c.cycle(len(links), attempt)
	}

	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links, nil
}

func (c *LinkCollector) cycle(found, attempt int) {
	if c.OnCycle != nil {
		c.OnCycle(found, attempt)
	}
}

func (c *LinkCollector) pause(ctx context.Context) {
	if c.scrollPause <= 0 {
		return
	}
	t := time.NewTimer(c.scrollPause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func appendUnique(dst []string, seen map[string]bool, found []string) []string {
	for _, link := range found {
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		dst = append(dst, link)
	}
	return dst
}
