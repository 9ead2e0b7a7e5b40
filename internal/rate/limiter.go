package rate

import (
	"sync"
	"time"
)

// WindowLimiter caps how many times a keyed action may run per fixed
// window. Used as a client-side guard on comment posting so a stuck send
// button cannot flood the backend.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	items  map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		items:  make(map[string]*windowEntry),
	}
}

// Allow reports whether another action for key fits in the current window,
// counting it when it does. Expired entries are dropped as they are seen.
func (l *WindowLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.items[key]
	if !ok || now.Sub(entry.start) >= l.window {
		l.items[key] = &windowEntry{start: now, count: 1}
		l.prune(now)
		return true
	}
	if entry.count >= l.limit {
		return false
	}
	entry.count++
	return true
}

func (l *WindowLimiter) prune(now time.Time) {
	for key, entry := range l.items {
		if now.Sub(entry.start) >= l.window {
			delete(l.items, key)
		}
	}
}
