package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Emitter consumes progress events during orchestration. Emitter errors are
// logged and never affect the session.
type Emitter interface {
	Emit(ctx context.Context, evt ProgressEvent) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, evt ProgressEvent) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, evt ProgressEvent) error {
	return f(ctx, evt)
}

// Orchestrator drives one crawl session end to end: page acquisition, link
// collection, per-article extraction with pacing, and progress reporting.
// It guarantees the session reaches a terminal state and the browser page is
// released on every exit path.
type Orchestrator struct {
	browser  BrowserProvider
	chains   Chains
	cfg      Config
	clock    Clock
	emitters []Emitter
	logger   *zap.Logger
}

// NewOrchestrator builds an Orchestrator. Every emitter receives every
// progress event for sessions this orchestrator runs.
func NewOrchestrator(browser BrowserProvider, chains Chains, cfg Config, clock Clock, logger *zap.Logger, emitters ...Emitter) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser:  browser,
		chains:   chains,
		cfg:      cfg.withDefaults(),
		clock:    clock,
		emitters: emitters,
		logger:   logger,
	}
}

// Run executes the session to a terminal state. Faults from page acquisition
// or listing navigation fail the session; per-article faults are absorbed by
// the extractor and only counted. Run never panics through and never returns
// before the session is terminal.
func (o *Orchestrator) Run(ctx context.Context, req Request, s *Session) {
	page, err := o.browser.NewPage(ctx)
	if err != nil {
		o.fail(ctx, s, fmt.Errorf("acquire browser page: %w", err))
		return
	}
	defer page.Close()

	if err := s.Advance(StatusCollectingLinks); err != nil {
		o.fail(ctx, s, err)
		return
	}
	s.SetProgress(o.cfg.CollectProgressFloor)

	listingURL := ListingURL(o.cfg.BaseURL, req.OfficeID, req.CategoryID)
	o.emit(ctx, s, fmt.Sprintf("loading listing page: %s", listingURL))

	links, err := o.collectLinks(ctx, page, listingURL, req.MaxArticles, s)
	if err != nil {
		o.fail(ctx, s, err)
		return
	}
	s.SetTotalFound(len(links))

	if len(links) == 0 {
		// Nothing to extract; the session completes with zero counters.
		if err := s.Advance(StatusCompleted); err != nil {
			o.fail(ctx, s, err)
			return
		}
		o.emit(ctx, s, "crawl completed: no articles found")
		return
	}

	if err := s.Advance(StatusExtractingArticles); err != nil {
		o.fail(ctx, s, err)
		return
	}
	s.SetProgress(o.cfg.CollectProgressCeiling)
	o.emit(ctx, s, fmt.Sprintf("extracting %d articles", len(links)))

	extractor := NewExtractor(o.chains, o.cfg.ArticleTimeout, o.clock, o.logger)
	band := o.cfg.ExtractProgressCeiling - o.cfg.CollectProgressCeiling
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			o.fail(ctx, s, fmt.Errorf("crawl canceled: %w", err))
			return
		}
		if article := extractor.Extract(ctx, page, link, req); article != nil {
			s.RecordSuccess(*article)
		} else {
			s.RecordFailure()
		}
		s.SetProgress(o.cfg.CollectProgressCeiling + (i+1)*band/len(links))
		o.emit(ctx, s, fmt.Sprintf("extracting articles (%d/%d)", i+1, len(links)))

		if i < len(links)-1 {
			o.pace(ctx)
		}
	}

	if err := s.Advance(StatusCompleted); err != nil {
		o.fail(ctx, s, err)
		return
	}
	snap := s.Snapshot()
	o.emit(ctx, s, fmt.Sprintf("crawl completed: %d articles collected", snap.SuccessCount))
	o.logger.Info("session completed",
		zap.String("session_id", s.ID()),
		zap.Int("success", snap.SuccessCount),
		zap.Int("failed", snap.FailCount),
	)
}

func (o *Orchestrator) collectLinks(ctx context.Context, page PageHandle, listingURL string, maxLinks int, s *Session) ([]string, error) {
	collector := NewLinkCollector(o.chains.Links, o.cfg.ListingTimeout, o.cfg.ScrollRetries, o.cfg.ScrollPause, o.logger)
	band := o.cfg.CollectProgressCeiling - o.cfg.CollectProgressFloor
	step := band / (o.cfg.ScrollRetries + 1)
	collector.OnCycle = func(found, cycle int) {
		s.SetTotalFound(found)
		pct := o.cfg.CollectProgressFloor + (cycle+1)*step
		if pct > o.cfg.CollectProgressCeiling {
			pct = o.cfg.CollectProgressCeiling
		}
		s.SetProgress(pct)
		o.emit(ctx, s, fmt.Sprintf("collecting article links... (%d found)", found))
	}
	links, err := collector.Collect(ctx, page, listingURL, maxLinks)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (o *Orchestrator) fail(ctx context.Context, s *Session, err error) {
	o.logger.Error("session failed", zap.String("session_id", s.ID()), zap.Error(err))
	s.Fail(err)
	o.emit(ctx, s, fmt.Sprintf("crawl failed: %v", err))
}

func (o *Orchestrator) emit(ctx context.Context, s *Session, message string) {
	evt := s.Progress(message)
	for _, em := range o.emitters {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, evt); err != nil {
			o.logger.Warn("progress emit failed", zap.String("session_id", evt.SessionID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) pace(ctx context.Context) {
	t := time.NewTimer(o.cfg.PacingDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
