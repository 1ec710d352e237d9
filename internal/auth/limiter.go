package auth

import (
	"context"
	"sync"
	"time"
)

type limiterEntry struct {
	count       int
	windowStart time.Time
}

// Limiter enforces a fixed-window request quota per identity. Expired
// entries are swept by a janitor, never on the request path.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	max     int
	window  time.Duration
}

func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*limiterEntry),
		max:     maxRequests,
		window:  window,
	}
}

// Allow reports whether identity may make another request in the current
// window, incrementing the counter when it may. A rejected request does
// not mutate the window.
func (l *Limiter) Allow(identity string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identity]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.entries[identity] = &limiterEntry{count: 1, windowStart: now}
		return true
	}
	if e.count >= l.max {
		return false
	}
	e.count++
	return true
}

// Sweep drops every entry whose window has expired. Maintenance only.
func (l *Limiter) Sweep() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window {
			delete(l.entries, id)
		}
	}
}

func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Size reports the number of tracked identities; used by tests and the
// readiness probe.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
