package crawl

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// authorRoleSuffix is the role token the portal appends to bylines.
const authorRoleSuffix = "기자"

// Extractor pulls the five semantic fields out of a single article page.
type Extractor struct {
	chains  Chains
	timeout time.Duration
	clock   Clock
	logger  *zap.Logger
}

// NewExtractor builds an Extractor. timeout bounds each article navigation.
func NewExtractor(chains Chains, timeout time.Duration, clock Clock, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		chains:  chains,
		timeout: timeout,
		clock:   clock,
		logger:  logger,
	}
}

// Extract navigates page to url and resolves each field chain. Title is the
// only mandatory field; if no title candidate matches, or navigation fails,
// the article is unextractable and Extract returns nil. One bad article must
// never abort the batch, so every fault is logged and converted to nil.
func (e *Extractor) Extract(ctx context.Context, page PageHandle, url string, req Request) *Article {
	if err := page.Navigate(ctx, url, e.timeout); err != nil {
		e.logger.Warn("article navigation failed", zap.String("url", url), zap.Error(err))
		return nil
	}

	_, title, err := Resolve(ctx, page, e.chains.Title)
	if err != nil {
		e.logger.Warn("article has no title", zap.String("url", url), zap.Error(err))
		return nil
	}

	article := &Article{
		Title:        title,
		URL:          url,
		OriginalURL:  strPtr(url),
		DiscoveredAt: e.clock.Now(),
		Source:       SourceTag,
		CategoryID:   strPtr(req.CategoryID),
		Metadata: map[string]string{
			"office_id":        req.OfficeID,
			"crawling_session": req.SessionID,
		},
	}

	if req.IncludeContent {
		if _, content, err := Resolve(ctx, page, e.chains.Content); err == nil {
			article.Content = strPtr(NormalizeContent(content))
		}
	}

	if _, author, err := Resolve(ctx, page, e.chains.Author); err == nil {
		article.AuthorName = strPtr(stripRoleSuffix(author))
	}

	if _, media, err := Resolve(ctx, page, e.chains.Media); err == nil {
		article.Metadata["media_name"] = media
	}

	// The portal's date format is not stable, so the published time stays a
	// raw string; parsing it is the consumer's problem.
	if _, published, err := Resolve(ctx, page, e.chains.PublishedAt); err == nil {
		article.PublishedAt = strPtr(published)
	}

	return article
}

// NormalizeContent trims every line, drops blank lines, and rejoins the rest.
func NormalizeContent(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func stripRoleSuffix(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, authorRoleSuffix)
	return strings.TrimSpace(name)
}
