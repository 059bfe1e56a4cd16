package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/commonground/newscrawler/internal/crawl"
)

// FS writes one JSON document per completed session under a root directory.
type FS struct {
	root string
}

// NewFS creates the output directory if needed and returns an FS archiver.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

// Save writes the snapshot as crawl_<sessionID>_<completion ts>.json.
func (f *FS) Save(ctx context.Context, snap crawl.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	stamp := snap.StartTime
	if snap.EndTime != nil {
		stamp = *snap.EndTime
	}
	name := fmt.Sprintf("crawl_%s_%s.json", snap.SessionID, stamp.Format("20060102_150405"))
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", snap.SessionID, err)
	}
	target := filepath.Join(f.root, name)
	if err := os.WriteFile(target, payload, 0o600); err != nil {
		return fmt.Errorf("write session document %s: %w", target, err)
	}
	return nil
}

// Close is a no-op for the filesystem archiver.
func (f *FS) Close() error { return nil }
