package crawl

import "time"

// Config holds the tunables for one Orchestrator. The scroll budget and the
// progress bands are configuration rather than constants; the defaults match
// the values the portal crawler has been run with in production.
type Config struct {
	// BaseURL is the portal's listing endpoint.
	BaseURL string
	// ListingTimeout bounds the listing-page navigation. Exceeding it fails
	// the whole session.
	ListingTimeout time.Duration
	// ArticleTimeout bounds each article navigation. Exceeding it fails only
	// that article.
	ArticleTimeout time.Duration
	// PacingDelay is the cooperative delay between article fetches.
	PacingDelay time.Duration
	// ScrollRetries caps the scroll-then-recollect cycles on the listing page.
	ScrollRetries int
	// ScrollPause waits after each scroll for lazy content to load.
	ScrollPause time.Duration
	// CollectProgressFloor/Ceiling bound the progress band reported while
	// collecting links; ExtractProgressCeiling bounds the extraction band.
	// Completion always forces 100.
	CollectProgressFloor   int
	CollectProgressCeiling int
	ExtractProgressCeiling int
}

const defaultBaseURL = "https://news.naver.com/main/list.naver"

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.ListingTimeout <= 0 {
		c.ListingTimeout = 30 * time.Second
	}
	if c.ArticleTimeout <= 0 {
		c.ArticleTimeout = 15 * time.Second
	}
	if c.PacingDelay <= 0 {
		c.PacingDelay = 500 * time.Millisecond
	}
	if c.ScrollRetries <= 0 {
		c.ScrollRetries = 5
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = 2 * time.Second
	}
	if c.CollectProgressFloor <= 0 {
		c.CollectProgressFloor = 10
	}
	if c.CollectProgressCeiling <= c.CollectProgressFloor {
		c.CollectProgressCeiling = 60
	}
	if c.ExtractProgressCeiling <= c.CollectProgressCeiling || c.ExtractProgressCeiling > 100 {
		c.ExtractProgressCeiling = 95
	}
	return c
}
