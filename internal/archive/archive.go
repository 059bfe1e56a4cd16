// Package archive persists completed crawl sessions. The provider is picked
// at startup; failures here are logged by callers and never touch session
// state.
package archive

import (
	"context"

	"github.com/commonground/newscrawler/internal/crawl"
)

// Archiver stores one completed session snapshot.
type Archiver interface {
	Save(ctx context.Context, snap crawl.Snapshot) error
	Close() error
}

// Noop discards every snapshot. Used when persistence is disabled.
type Noop struct{}

// Save does nothing.
func (Noop) Save(context.Context, crawl.Snapshot) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
