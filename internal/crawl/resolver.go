package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that every candidate locator in a chain failed to
// yield a non-empty value. It is an expected outcome, not a fault.
var ErrNotFound = errors.New("no locator in chain matched")

// ErrPageClosed reports that the page handle is no longer valid (the page or
// its browser was closed underneath the caller). Unlike a selector miss this
// is fatal to the resolution.
var ErrPageClosed = errors.New("page handle closed")

// Resolve tries each candidate locator in order against the page and returns
// the first one that yields a non-empty value, together with that value.
// Locators that error on lookup or match nothing are skipped; exhausting the
// chain returns ErrNotFound. Only a dead page handle aborts resolution.
func Resolve(ctx context.Context, page PageHandle, candidates []Locator) (Locator, string, error) {
	for _, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return Locator{}, "", fmt.Errorf("resolve aborted: %w", err)
		}
		var (
			val string
			err error
		)
		if loc.Attr != "" {
			val, err = page.Attribute(ctx, loc)
		} else {
			val, err = page.Text(ctx, loc)
		}
		if err != nil {
			if errors.Is(err, ErrPageClosed) {
				return Locator{}, "", err
			}
			// Lookup errors count as "not found"; try the next candidate.
			continue
		}
		if v := strings.TrimSpace(val); v != "" {
			return loc, v, nil
		}
	}
	return Locator{}, "", ErrNotFound
}
