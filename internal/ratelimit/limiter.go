// Package ratelimit admits requests with a sliding window per
// (identity, category). Categories carry independent budgets so a hot pixel
// path cannot starve the admin or config endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// Category names one endpoint budget.
type Category string

const (
	CategoryAdmin        Category = "admin"
	CategoryPublicConfig Category = "public-config"
	CategoryPixel        Category = "pixel"
	CategoryCollect      Category = "collect"
)

// Limit is one category's budget: at most Requests admissions per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits mirrors the shipped configuration defaults.
func DefaultLimits() map[Category]Limit {
	return map[Category]Limit{
		CategoryAdmin:        {Requests: 30, Window: time.Minute},
		CategoryPublicConfig: {Requests: 60, Window: time.Minute},
		CategoryPixel:        {Requests: 120, Window: time.Minute},
		CategoryCollect:      {Requests: 300, Window: time.Minute},
	}
}

// window is one identity+category queue of admitted-request timestamps.
// Each queue has its own mutex so identities never contend with each other;
// the limiter's outer lock only guards the map itself. dead is set when the
// sweep removes the window from the map, so a request holding a stale
// pointer re-fetches instead of recording an admission nothing will see.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	dead       bool
}

// evict drops timestamps at or before cutoff. Caller holds w.mu.
func (w *window) evict(cutoff time.Time) {
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}

// Limiter is the process-wide sliding-window rate limiter. Construct once
// and pass by reference into the middleware.
type Limiter struct {
	mu      sync.RWMutex
	limits  map[Category]Limit
	windows map[string]*window
}

// New creates a limiter with the given per-category budgets. Categories
// without a budget are denied outright (fail closed on misconfiguration).
func New(limits map[Category]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{
		limits:  limits,
		windows: make(map[string]*window),
	}
}

func key(identity string, category Category) string {
	return string(category) + ":" + identity
}

func (l *Limiter) getOrCreate(k string) *window {
	l.mu.RLock()
	w := l.windows[k]
	l.mu.RUnlock()
	if w != nil {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w = l.windows[k]; w == nil {
		w = &window{}
		l.windows[k] = w
	}
	return w
}

// IsRateLimited checks and records one request from identity in category.
// When blocked, retryAfter is the time until the oldest remaining admission
// leaves the window. When admitted, now is appended to the queue.
func (l *Limiter) IsRateLimited(identity string, category Category, now time.Time) (bool, time.Duration) {
	limit, ok := l.limits[category]
	if !ok {
		return true, time.Minute
	}

	k := key(identity, category)
	w := l.getOrCreate(k)
	w.mu.Lock()
	for w.dead {
		w.mu.Unlock()
		w = l.getOrCreate(k)
		w.mu.Lock()
	}
	defer w.mu.Unlock()

	w.evict(now.Add(-limit.Window))

	if len(w.timestamps) >= limit.Requests {
		retryAfter := limit.Window - now.Sub(w.timestamps[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return true, retryAfter
	}

	w.timestamps = append(w.timestamps, now)
	return false, 0
}

// CleanupExpired sweeps all identities, dropping entries older than the
// largest configured window and deleting identities whose queues emptied.
// Bounds memory under long-running operation; runs off the request path.
func (l *Limiter) CleanupExpired(now time.Time) {
	var largest time.Duration
	for _, limit := range l.limits {
		if limit.Window > largest {
			largest = limit.Window
		}
	}
	cutoff := now.Add(-largest)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.windows {
		w.mu.Lock()
		w.evict(cutoff)
		if len(w.timestamps) == 0 {
			w.dead = true
			delete(l.windows, k)
		}
		w.mu.Unlock()
	}
}

// TrackedIdentities reports how many identity+category queues are live.
// Used by the janitor's log line and by tests.
func (l *Limiter) TrackedIdentities() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}
