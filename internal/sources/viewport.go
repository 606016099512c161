package sources

import (
	"sync"

	"transit-tracker/internal/geo"
)

// ViewportFeed is a ViewportProvider fed by Set. Change events are buffered
// by one; a burst of updates collapses into the latest rectangle.
type ViewportFeed struct {
	mu      sync.RWMutex
	current geo.Rect
	changes chan geo.Rect
}

func NewViewportFeed(initial geo.Rect) *ViewportFeed {
	return &ViewportFeed{current: initial, changes: make(chan geo.Rect, 1)}
}

func (f *ViewportFeed) Current() geo.Rect {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *ViewportFeed) Changes() <-chan geo.Rect { return f.changes }

// Set records r as the current viewport and announces it without blocking.
func (f *ViewportFeed) Set(r geo.Rect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = r
	// drop a pending event the consumer has not picked up yet
	select {
	case <-f.changes:
	default:
	}
	f.changes <- r
}
