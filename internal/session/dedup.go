package session

import (
	"sync"
	"time"
)

// Deduper suppresses repeats of the same key inside a caller-chosen window.
// Entries older than evictAfter are pruned opportunistically once the table
// grows past maxEntries, so the map stays bounded without a dedicated
// janitor goroutine.
type Deduper struct {
	mu         sync.Mutex
	lastSeen   map[string]time.Time
	maxEntries int
	evictAfter time.Duration
	now        func() time.Time
}

func NewDeduper(maxEntries int, evictAfter time.Duration) *Deduper {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if evictAfter <= 0 {
		evictAfter = 10 * time.Second
	}
	return &Deduper{
		lastSeen:   make(map[string]time.Time),
		maxEntries: maxEntries,
		evictAfter: evictAfter,
		now:        time.Now,
	}
}

// ShouldSuppress reports whether key was already seen inside window. A
// non-suppressed call records the key as seen now.
func (d *Deduper) ShouldSuppress(key string, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.lastSeen[key]; ok && now.Sub(last) < window {
		return true
	}
	d.lastSeen[key] = now

	if len(d.lastSeen) > d.maxEntries {
		d.evictLocked(now)
	}
	return false
}

func (d *Deduper) evictLocked(now time.Time) {
	for key, seen := range d.lastSeen {
		if now.Sub(seen) > d.evictAfter {
			delete(d.lastSeen, key)
		}
	}
}

func (d *Deduper) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSeen)
}
