package storage

import (
	"context"
	"time"

	"github.com/Skryldev/camera-pipeline/core"
)

// Cleanup tracks scratch locators and removes them together.
type Cleanup struct {
	store core.FileStore
	locs  []core.Locator
}

// NewCleanup returns a tracker deleting through store.
func NewCleanup(store core.FileStore) *Cleanup {
	return &Cleanup{store: store}
}

// Add registers a locator for later cleanup.  Empty locators are ignored.
func (c *Cleanup) Add(loc core.Locator) {
	if loc != "" {
		c.locs = append(c.locs, loc)
	}
}

// Execute removes all registered locators.  It is safe to call multiple times
// and returns the first error encountered.
func (c *Cleanup) Execute(ctx context.Context) error {
	var firstErr error
	for _, loc := range c.locs {
		if err := c.store.Delete(ctx, loc); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.locs = nil
	return firstErr
}

// Sweeper is implemented by stores that can purge stale scratch files.
type Sweeper interface {
	SweepTemp(ctx context.Context, maxAge time.Duration) (int, error)
}
